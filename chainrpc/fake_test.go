package chainrpc

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestFakeClientAddressRoundTrip(t *testing.T) {
	fc := NewFakeClient(&chaincfg.RegressionNetParams)

	addr, err := fc.GetNewAddress("")
	require.NoError(t, err)

	wif, err := fc.DumpPrivKey(addr)
	require.NoError(t, err)
	require.True(t, wif.IsForNet(&chaincfg.RegressionNetParams))
}

func TestFakeClientMineAndFetch(t *testing.T) {
	fc := NewFakeClient(&chaincfg.RegressionNetParams)

	count, err := fc.GetBlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	tx := wire.NewMsgTx(1)
	tx.AddTxOut(wire.NewTxOut(1000, nil))
	fc.MineBlock(tx)

	count, err = fc.GetBlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	hash, err := fc.GetBlockHash(1)
	require.NoError(t, err)

	block, err := fc.GetBlock(hash)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	var missing wire.OutPoint
	fetched, err := fc.GetRawTransaction(&missing.Hash)
	require.Error(t, err)
	require.Nil(t, fetched)

	txHash := tx.TxHash()
	fetched, err = fc.GetRawTransaction(&txHash)
	require.NoError(t, err)
	require.Equal(t, tx.TxOut[0].Value, fetched.TxOut[0].Value)
}

func TestFakeClientListUnspentHonorsMinConf(t *testing.T) {
	fc := NewFakeClient(&chaincfg.RegressionNetParams)
	fc.AddUnspent(Unspent{Amount: 1000, Confirmations: 0})
	fc.AddUnspent(Unspent{Amount: 2000, Confirmations: 6})

	confirmed, err := fc.ListUnspent(1)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	require.Equal(t, int64(2000), confirmed[0].Amount)

	all, err := fc.ListUnspent(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
