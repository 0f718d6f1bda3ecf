package chainrpc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// RPCClient binds Client to a live btcd/ltcd node over JSON-RPC, the way
// chainregistry.go dials btcd for the teacher's wallet and chain
// notifier. It carries the chaincfg.Params needed to decode addresses
// returned by the node, since btcd/rpcclient itself is network-agnostic.
type RPCClient struct {
	rpc        *rpcclient.Client
	netParams  *chaincfg.Params
}

// NewRPCClient dials host with the given credentials. TLS is expected to
// be configured by the caller via cert in the same way
// chainregistry.go reads RPCCert/RawRPCCert before constructing the
// ConnConfig.
func NewRPCClient(host, user, pass string, cert []byte, disableTLS bool, netParams *chaincfg.Params) (*RPCClient, error) {
	cfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		Certificates: cert,
		DisableTLS:   disableTLS,
		HTTPPostMode: true,
	}
	client, err := rpcclient.New(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing chain node at %s: %w", host, err)
	}
	return &RPCClient{rpc: client, netParams: netParams}, nil
}

func (c *RPCClient) ListUnspent(minConf int) ([]Unspent, error) {
	results, err := c.rpc.ListUnspentMin(minConf)
	if err != nil {
		return nil, err
	}
	out := make([]Unspent, 0, len(results))
	for _, r := range results {
		txid, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			return nil, fmt.Errorf("parsing unspent txid %s: %w", r.TxID, err)
		}
		addr, err := btcutil.DecodeAddress(r.Address, c.netParams)
		if err != nil {
			return nil, fmt.Errorf("parsing unspent address %s: %w", r.Address, err)
		}
		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("decoding unspent scriptPubKey for %s: %w", r.TxID, err)
		}
		out = append(out, Unspent{
			TxID:          *txid,
			Vout:          r.Vout,
			Address:       addr,
			Amount:        toSatoshis(r.Amount),
			Confirmations: r.Confirmations,
			PkScript:      pkScript,
		})
	}
	return out, nil
}

func (c *RPCClient) GetNewAddress(label string) (btcutil.Address, error) {
	return c.rpc.GetNewAddress(label)
}

func (c *RPCClient) GetRawChangeAddress() (btcutil.Address, error) {
	return c.rpc.GetRawChangeAddress("legacy")
}

func (c *RPCClient) SignRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, bool, error) {
	signed, complete, err := c.rpc.SignRawTransaction(tx)
	if err != nil {
		return nil, false, err
	}
	return signed, complete, nil
}

func (c *RPCClient) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	return c.rpc.SendRawTransaction(tx, false)
}

func (c *RPCClient) GetRawTransaction(txid *chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := c.rpc.GetRawTransaction(txid)
	if err != nil {
		return nil, err
	}
	return tx.MsgTx(), nil
}

func (c *RPCClient) GetRawMempool() ([]*chainhash.Hash, error) {
	return c.rpc.GetRawMempool()
}

func (c *RPCClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	return c.rpc.GetBlockHash(height)
}

func (c *RPCClient) GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	return c.rpc.GetBlock(hash)
}

func (c *RPCClient) GetBlockCount() (int64, error) {
	return c.rpc.GetBlockCount()
}

func (c *RPCClient) DumpPrivKey(addr btcutil.Address) (*btcutil.WIF, error) {
	return c.rpc.DumpPrivKey(addr)
}

func toSatoshis(btc float64) int64 {
	amt, err := btcutil.NewAmount(btc)
	if err != nil {
		return 0
	}
	return int64(amt)
}
