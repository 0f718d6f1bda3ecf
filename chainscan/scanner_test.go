package chainscan

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/swap"
)

func TestWaitForConfirmationFindsMinedTx(t *testing.T) {
	fc := chainrpc.NewFakeClient(&chaincfg.RegressionNetParams)

	tx := wire.NewMsgTx(1)
	tx.AddTxOut(wire.NewTxOut(1000, nil))
	for i := 0; i < 3; i++ {
		fc.MineBlock()
	}
	fc.MineBlock(tx)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	txHash := tx.TxHash()
	found, err := WaitForConfirmation(ctx, fc, &txHash, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, tx.TxOut[0].Value, found.TxOut[0].Value)
}

func TestWaitForConfirmationTimesOutWhenAbsent(t *testing.T) {
	fc := chainrpc.NewFakeClient(&chaincfg.RegressionNetParams)
	fc.MineBlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var missing wire.OutPoint
	_, err := WaitForConfirmation(ctx, fc, &missing.Hash, time.Now().Add(-time.Hour))
	require.Error(t, err)
}

func TestFindSpenderLocatesSpendingInput(t *testing.T) {
	fc := chainrpc.NewFakeClient(&chaincfg.RegressionNetParams)

	commitTx := wire.NewMsgTx(1)
	commitTx.AddTxOut(wire.NewTxOut(100000, nil))
	fc.MineBlock(commitTx)

	spendTx := wire.NewMsgTx(1)
	spendTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: commitTx.TxHash(), Index: 0}, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(99000, nil))
	fc.MineBlock(spendTx)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	found, idx, err := FindSpender(ctx, fc, wire.OutPoint{Hash: commitTx.TxHash(), Index: 0}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.Equal(t, spendTx.TxHash(), found.TxHash())
}

func TestExtractPreimageFromClaimSpend(t *testing.T) {
	recipientPriv, senderPriv := newKey(t), newKey(t)
	preimage := make([]byte, swap.PreimageSize)
	secretHash := swap.HashSecret(preimage)

	htlcScript, err := swap.BuildHTLCScript(recipientPriv.PubKey(), senderPriv.PubKey(), secretHash)
	require.NoError(t, err)

	commitTx := wire.NewMsgTx(1)
	commitTx.AddTxOut(wire.NewTxOut(100000, htlcScript))

	spendTx := wire.NewMsgTx(1)
	spendTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: commitTx.TxHash(), Index: 0}, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(99000, nil))

	sigHash, err := txscript.CalcSignatureHash(htlcScript, txscript.SigHashAll, spendTx, 0)
	require.NoError(t, err)
	sig := append(ecdsa.Sign(recipientPriv, sigHash).Serialize(), byte(txscript.SigHashAll))

	sigScript, err := swap.BuildClaimSigScript(sig, recipientPriv.PubKey().SerializeCompressed(), preimage)
	require.NoError(t, err)
	spendTx.TxIn[0].SignatureScript = sigScript

	got, err := ExtractPreimage(spendTx, 0)
	require.NoError(t, err)
	require.Equal(t, preimage, got)
}

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}
