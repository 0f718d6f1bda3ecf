// Package chainrpc defines the narrow chain-node RPC capability that the
// rest of cate depends on, and two implementations: a live binding onto
// btcd/ltcd's JSON-RPC wallet interface, and an in-memory fake for tests.
// The shape mirrors the teacher's per-chain RPC wiring in
// chainregistry.go, trimmed to exactly the calls the protocol engine and
// transaction builder need (spec.md §6's capability list) rather than the
// teacher's full wallet/notifier/chainview surface.
package chainrpc

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Unspent is one output reported by ListUnspent, trimmed to the fields
// coin selection actually needs.
type Unspent struct {
	TxID         chainhash.Hash
	Vout         uint32
	Address      btcutil.Address
	Amount       int64
	Confirmations int64
	PkScript     []byte
}

// Client is the chain-node capability surface used by swap and
// chainscan. It is implemented by RPCClient against a live btcd/ltcd
// node and by FakeClient for deterministic tests.
type Client interface {
	ListUnspent(minConf int) ([]Unspent, error)
	GetNewAddress(label string) (btcutil.Address, error)
	GetRawChangeAddress() (btcutil.Address, error)
	SignRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, bool, error)
	SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error)
	GetRawTransaction(txid *chainhash.Hash) (*wire.MsgTx, error)
	GetRawMempool() ([]*chainhash.Hash, error)
	GetBlockHash(height int64) (*chainhash.Hash, error)
	GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error)
	GetBlockCount() (int64, error)
	DumpPrivKey(addr btcutil.Address) (*btcutil.WIF, error)
}
