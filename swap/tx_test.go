package swap

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/rnicoll/cate/chainrpc"
)

func newFakeClient(t *testing.T) *chainrpc.FakeClient {
	t.Helper()
	return chainrpc.NewFakeClient(&chaincfg.RegressionNetParams)
}

func TestBuildSendSelectsCoinsAndPaysChange(t *testing.T) {
	fc := newFakeClient(t)

	addr, err := fc.GetNewAddress("")
	require.NoError(t, err)
	priv, err := fc.DumpPrivKey(addr)
	require.NoError(t, err)
	_ = priv

	pkScript := p2pkhScript(t, addr)
	fc.AddUnspent(chainrpc.Unspent{
		Amount:        150000,
		Confirmations: 6,
		Address:       addr,
		PkScript:      pkScript,
	})

	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	tx, err := BuildSend(fc, 100000, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash, 1000)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2) // htlc output + change
	require.Equal(t, int64(100000), tx.TxOut[0].Value)
}

func TestBuildSendInsufficientFunds(t *testing.T) {
	fc := newFakeClient(t)
	addr, err := fc.GetNewAddress("")
	require.NoError(t, err)
	fc.AddUnspent(chainrpc.Unspent{Amount: 1000, Confirmations: 6, Address: addr})

	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	_, err = BuildSend(fc, 100000, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash, 1000)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRefundRoundTripPassesScriptVerification(t *testing.T) {
	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	htlcScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitTx := wire.NewMsgTx(1)
	commitTx.AddTxOut(wire.NewTxOut(100000, htlcScript))

	refundAddr := p2pkhAddress(t, senderPriv)
	refundTx, err := BuildUnsignedRefund(commitTx, 0, refundAddr, 700000, 1000)
	require.NoError(t, err)

	recipientSig, err := SignRefundPartial(refundTx, recipientPriv, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.NoError(t, err)
	senderSig, err := SignRefundPartial(refundTx, senderPriv, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.NoError(t, err)

	assembled, err := AssembleRefund(refundTx, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash, recipientSig, senderSig)
	require.NoError(t, err)
	require.NotNil(t, assembled.TxIn[0].SignatureScript)
}

func TestAssembleRefundRejectsBadSignature(t *testing.T) {
	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	otherPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	htlcScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitTx := wire.NewMsgTx(1)
	commitTx.AddTxOut(wire.NewTxOut(100000, htlcScript))

	refundAddr := p2pkhAddress(t, senderPriv)
	refundTx, err := BuildUnsignedRefund(commitTx, 0, refundAddr, 700000, 1000)
	require.NoError(t, err)

	badSig, err := SignRefundPartial(refundTx, otherPriv, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.NoError(t, err)
	senderSig, err := SignRefundPartial(refundTx, senderPriv, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.NoError(t, err)

	_, err = AssembleRefund(refundTx, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash, badSig, senderSig)
	require.Error(t, err)
}

func TestValidateRefundWindow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testClock := clock.NewTestClock(fixed)

	tx := wire.NewMsgTx(1)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Sequence = 1
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(50000, nil))
	tx.LockTime = uint32(fixed.Add(48 * time.Hour).Unix())

	require.NoError(t, ValidateRefund(tx, 100000, testClock))

	tx.LockTime = uint32(fixed.Add(1 * time.Hour).Unix())
	require.Error(t, ValidateRefund(tx, 100000, testClock))

	tx.LockTime = uint32(fixed.Add(48 * time.Hour).Unix())
	tx.TxOut[0].Value = 200000
	require.Error(t, ValidateRefund(tx, 100000, testClock))

	tx.TxOut[0].Value = 50000
	tx.TxIn[0].Sequence = wire.MaxTxInSequenceNum
	require.Error(t, ValidateRefund(tx, 100000, testClock))
}

func TestValidateCommitmentFindsHTLCOutput(t *testing.T) {
	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	secretHash := HashSecret(randPreimage(t))

	htlcScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	tx := wire.NewMsgTx(1)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Sequence = wire.MaxTxInSequenceNum
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x6a})) // unrelated OP_RETURN-ish output
	tx.AddTxOut(wire.NewTxOut(100000, htlcScript))

	idx, err := ValidateCommitment(tx, 100000, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)

	_, err = ValidateCommitment(tx, 999, senderPriv.PubKey(), recipientPriv.PubKey(), secretHash)
	require.Error(t, err)
}

func TestClaimRoundTripPassesScriptVerification(t *testing.T) {
	fc := newFakeClient(t)
	senderPriv := randKey(t)
	recipientPriv := randKey(t)
	preimage := randPreimage(t)
	secretHash := HashSecret(preimage)

	htlcScript, err := BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitTx := wire.NewMsgTx(1)
	commitTx.AddTxOut(wire.NewTxOut(100000, htlcScript))

	claimAddr, err := fc.GetNewAddress("")
	require.NoError(t, err)

	claimTx, err := BuildClaim(fc, commitTx, senderPriv.PubKey(), recipientPriv, preimage, claimAddr, 1000)
	require.NoError(t, err)
	require.Len(t, claimTx.TxOut, 1)
	require.Less(t, claimTx.TxOut[0].Value, commitTx.TxOut[0].Value)
}

// p2pkhAddress derives the regtest P2PKH address for a private key, for
// use as a refund/claim destination in tests.
func p2pkhAddress(t *testing.T, priv *btcec.PrivateKey) btcutil.Address {
	t.Helper()
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr
}

// p2pkhScript returns the output script paying a previously derived
// address, used to seed a fake unspent entry with a spendable script.
func p2pkhScript(t *testing.T, addr btcutil.Address) []byte {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}
