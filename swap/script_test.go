package swap

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func randKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func randPreimage(t *testing.T) []byte {
	t.Helper()
	p := make([]byte, PreimageSize)
	_, err := rand.Read(p)
	require.NoError(t, err)
	return p
}

// buildSpendTx returns a minimal one-input, one-output transaction spending
// commitOut, used only to compute a signature hash and execute the redeem
// script against it.
func buildSpendTx(commitOut *wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(commitOut.Value-1000, commitOut.PkScript))
	return tx
}

func TestHashSecretMatchesInvariant4(t *testing.T) {
	preimage := randPreimage(t)
	hash := HashSecret(preimage)
	require.Len(t, hash, 32)

	require.NoError(t, ValidatePreimage(preimage))
	require.Error(t, ValidatePreimage(preimage[:15]))
}

func TestClaimBranchExecutes(t *testing.T) {
	recipientPriv := randKey(t)
	senderPriv := randKey(t)
	preimage := randPreimage(t)
	secretHash := HashSecret(preimage)

	redeemScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitOut := wire.NewTxOut(100000, redeemScript)
	spendTx := buildSpendTx(commitOut)

	sigHash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, spendTx, 0)
	require.NoError(t, err)

	sig := ecdsa.Sign(recipientPriv, sigHash)
	derSig := append(sig.Serialize(), byte(txscript.SigHashAll))

	sigScript, err := BuildClaimSigScript(derSig, recipientPriv.PubKey().SerializeCompressed(), preimage)
	require.NoError(t, err)

	spendTx.TxIn[0].SignatureScript = sigScript

	vm, err := txscript.NewEngine(
		redeemScript, spendTx, 0,
		txscript.StandardVerifyFlags, nil, nil, commitOut.Value, nil,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())

	parsed, err := ParseSigScript(sigScript)
	require.NoError(t, err)
	require.Equal(t, SelectorClaim, parsed.Selector)
	require.Equal(t, preimage, parsed.Preimage)

	extracted, err := ExtractPreimage(sigScript)
	require.NoError(t, err)
	require.Equal(t, preimage, extracted)
}

func TestRefundBranchExecutes(t *testing.T) {
	recipientPriv := randKey(t)
	senderPriv := randKey(t)
	_, secretHash := randKey(t), HashSecret(randPreimage(t))

	redeemScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitOut := wire.NewTxOut(100000, redeemScript)
	spendTx := buildSpendTx(commitOut)
	spendTx.TxIn[0].Sequence = 1
	spendTx.LockTime = 700000

	sigHash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, spendTx, 0)
	require.NoError(t, err)

	recipientSig := append(ecdsa.Sign(recipientPriv, sigHash).Serialize(), byte(txscript.SigHashAll))
	senderSig := append(ecdsa.Sign(senderPriv, sigHash).Serialize(), byte(txscript.SigHashAll))

	sigScript, err := BuildRefundSigScript(
		recipientSig, recipientPriv.PubKey().SerializeCompressed(),
		senderSig, senderPriv.PubKey().SerializeCompressed(),
	)
	require.NoError(t, err)
	spendTx.TxIn[0].SignatureScript = sigScript

	vm, err := txscript.NewEngine(
		redeemScript, spendTx, 0,
		txscript.StandardVerifyFlags, nil, nil, commitOut.Value, nil,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())

	parsed, err := ParseSigScript(sigScript)
	require.NoError(t, err)
	require.Equal(t, SelectorRefund, parsed.Selector)

	_, err = ExtractPreimage(sigScript)
	require.ErrorIs(t, err, ErrNotClaim)
}

func TestRefundBranchFailsWithoutSenderSig(t *testing.T) {
	recipientPriv := randKey(t)
	senderPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	redeemScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitOut := wire.NewTxOut(100000, redeemScript)
	spendTx := buildSpendTx(commitOut)

	sigHash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, spendTx, 0)
	require.NoError(t, err)
	recipientSig := append(ecdsa.Sign(recipientPriv, sigHash).Serialize(), byte(txscript.SigHashAll))

	// Flip the selector to refund without supplying a valid sender
	// signature: execution must fail, not silently succeed.
	b := txscript.NewScriptBuilder()
	b.AddData([]byte{0x00, 0x00}) // garbage stand-in for sender sig
	b.AddData(senderPriv.PubKey().SerializeCompressed())
	b.AddInt64(int64(SelectorRefund))
	b.AddData(recipientSig)
	b.AddData(recipientPriv.PubKey().SerializeCompressed())
	sigScript, err := b.Script()
	require.NoError(t, err)
	spendTx.TxIn[0].SignatureScript = sigScript

	vm, err := txscript.NewEngine(
		redeemScript, spendTx, 0,
		txscript.StandardVerifyFlags, nil, nil, commitOut.Value, nil,
	)
	require.NoError(t, err)
	require.Error(t, vm.Execute())
}

func TestEmptySigScriptFailsToExecute(t *testing.T) {
	recipientPriv := randKey(t)
	senderPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	redeemScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitOut := wire.NewTxOut(100000, redeemScript)
	spendTx := buildSpendTx(commitOut)
	spendTx.TxIn[0].SignatureScript = nil

	vm, err := txscript.NewEngine(
		redeemScript, spendTx, 0,
		txscript.StandardVerifyFlags, nil, nil, commitOut.Value, nil,
	)
	require.NoError(t, err)
	require.Error(t, vm.Execute())

	_, err = ParseSigScript(nil)
	require.Error(t, err) // zero pushes, not 4 or 5

	_, parseErr := ParseSigScript(spendTx.TxIn[0].SignatureScript)
	_ = parseErr
}
