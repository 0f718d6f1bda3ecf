package chainrpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// FakeClient is a deterministic in-memory chain node used by engine and
// swap tests, per spec.md §9's "coin selection via an injected unspent
// outputs interface; tests use a deterministic fake" design note. It
// keeps its own chain of fake blocks so wait_for_confirmation-style
// polling has something to walk.
type FakeClient struct {
	mu sync.Mutex

	netParams *chaincfg.Params

	unspent []Unspent
	blocks  []*wire.MsgBlock
	byTxID  map[chainhash.Hash]*wire.MsgTx
	mempool map[chainhash.Hash]*wire.MsgTx
	keys    map[string]*btcutil.WIF
}

// NewFakeClient returns an empty fake client with one empty genesis-like
// block, so GetBlockCount/GetBlockHash/GetBlock never see an empty chain.
func NewFakeClient(netParams *chaincfg.Params) *FakeClient {
	return &FakeClient{
		netParams: netParams,
		byTxID:    make(map[chainhash.Hash]*wire.MsgTx),
		mempool:   make(map[chainhash.Hash]*wire.MsgTx),
		keys:      make(map[string]*btcutil.WIF),
		blocks:    []*wire.MsgBlock{{Header: wire.BlockHeader{}}},
	}
}

// AddUnspent seeds the fake wallet's unspent set, used by tests to set
// up coin selection scenarios for build_send.
func (f *FakeClient) AddUnspent(u Unspent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unspent = append(f.unspent, u)
}

// MineBlock appends a new block containing txs to the fake chain,
// letting tests drive wait_for_confirmation/find_spender deterministically
// instead of sleeping on a real node. The block's timestamp is real wall
// time so chainscan's start-height estimation, which walks backward from
// the tip until it passes a caller's not-before time, behaves the same
// way it would against a live node instead of degenerating to "always
// scan from the tip" against a chain of zero-value timestamps.
func (f *FakeClient) MineBlock(txs ...*wire.MsgTx) *wire.MsgBlock {
	f.mu.Lock()
	defer f.mu.Unlock()
	block := &wire.MsgBlock{Header: wire.BlockHeader{Timestamp: time.Now()}}
	for _, tx := range txs {
		block.Transactions = append(block.Transactions, tx)
		hash := tx.TxHash()
		f.byTxID[hash] = tx
		delete(f.mempool, hash)
	}
	f.blocks = append(f.blocks, block)
	return block
}

func (f *FakeClient) ListUnspent(minConf int) ([]Unspent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Unspent, 0, len(f.unspent))
	for _, u := range f.unspent {
		if u.Confirmations >= int64(minConf) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *FakeClient) newAddress() (btcutil.Address, *btcec.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, f.netParams)
	if err != nil {
		return nil, nil, err
	}
	wif, err := btcutil.NewWIF(priv, f.netParams, true)
	if err != nil {
		return nil, nil, err
	}
	f.keys[addr.EncodeAddress()] = wif
	return addr, priv, nil
}

func (f *FakeClient) GetNewAddress(label string) (btcutil.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, _, err := f.newAddress()
	return addr, err
}

func (f *FakeClient) GetRawChangeAddress() (btcutil.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, _, err := f.newAddress()
	return addr, err
}

// SignRawTransaction signs every input whose previous outpoint matches a
// seeded unspent for which this fake holds the private key. It does not
// attempt a general-purpose signer; inputs spending an HTLC script are
// expected to already carry a signature script from swap.Build*SigScript
// and are left untouched.
func (f *FakeClient) SignRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	signed := tx.Copy()
	complete := true
	for i, in := range signed.TxIn {
		if len(in.SignatureScript) > 0 {
			continue
		}
		u := f.findUnspent(in.PreviousOutPoint)
		if u == nil {
			complete = false
			continue
		}
		wif, ok := f.keys[u.Address.EncodeAddress()]
		if !ok {
			complete = false
			continue
		}
		sigScript, err := txscript.SignatureScript(
			signed, i, u.PkScript, txscript.SigHashAll, wif.PrivKey, true,
		)
		if err != nil {
			return nil, false, fmt.Errorf("fake-signing input %d: %w", i, err)
		}
		signed.TxIn[i].SignatureScript = sigScript
	}
	return signed, complete, nil
}

func (f *FakeClient) findUnspent(op wire.OutPoint) *Unspent {
	for i := range f.unspent {
		if f.unspent[i].TxID == op.Hash && f.unspent[i].Vout == op.Index {
			return &f.unspent[i]
		}
	}
	return nil
}

// SendRawTransaction accepts tx into the fake mempool, the way a node
// would before it is next mined, so FindSpender's mempool check has
// something to see before a block makes the spend final.
func (f *FakeClient) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := tx.TxHash()
	f.byTxID[hash] = tx
	f.mempool[hash] = tx
	return &hash, nil
}

func (f *FakeClient) GetRawTransaction(txid *chainhash.Hash) (*wire.MsgTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byTxID[*txid]
	if !ok {
		return nil, fmt.Errorf("no such transaction: %s", txid)
	}
	return tx, nil
}

// GetRawMempool lists every txid this fake has seen via
// SendRawTransaction that has not yet been mined into a block.
func (f *FakeClient) GetRawMempool() ([]*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*chainhash.Hash, 0, len(f.mempool))
	for hash := range f.mempool {
		h := hash
		out = append(out, &h)
	}
	return out, nil
}

func (f *FakeClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if height < 0 || int(height) >= len(f.blocks) {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	h := f.blocks[height].BlockHash()
	return &h, nil
}

func (f *FakeClient) GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		h := b.BlockHash()
		if h == *hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no such block: %s", hash)
}

func (f *FakeClient) GetBlockCount() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.blocks) - 1), nil
}

func (f *FakeClient) DumpPrivKey(addr btcutil.Address) (*btcutil.WIF, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wif, ok := f.keys[addr.EncodeAddress()]
	if !ok {
		return nil, fmt.Errorf("no known private key for %s", addr.EncodeAddress())
	}
	return wif, nil
}
