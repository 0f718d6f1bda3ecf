// Package chainscan walks a chain node's block history and mempool
// looking for a specific transaction or a specific outpoint's spender.
// The interface shape is adapted from chainntfs.ChainNotifier's
// confirmation/spend registration pair, but chainscan is a synchronous
// poll loop rather than a subscription service: cate has no long-lived
// notification client to serve, only a handler that needs to block until
// a single event appears (spec.md §4.5).
package chainscan

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/swap"
)

// pollInterval is the cadence at which the scanner re-checks the chain
// tip once it has caught up, matching spec.md §4.5's "polls every 5
// seconds when the tip is reached".
const pollInterval = 5 * time.Second

// estimationWindow is how many recent blocks are sampled to estimate the
// chain's average block interval, used to jump close to not_before_time
// before walking block-by-block.
const estimationWindow = 10

// estimateStartHeight computes a starting block height by estimating the
// average interval between the last estimationWindow blocks and walking
// backwards from the tip until a block's timestamp falls at or before
// notBefore, per spec.md §4.5.
func estimateStartHeight(rpc chainrpc.Client, notBefore time.Time) (int64, error) {
	tip, err := rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("getting block count: %w", err)
	}

	sampleStart := tip - estimationWindow
	if sampleStart < 0 {
		sampleStart = 0
	}
	startHash, err := rpc.GetBlockHash(sampleStart)
	if err != nil {
		return 0, fmt.Errorf("getting sample start hash: %w", err)
	}
	startBlock, err := rpc.GetBlock(startHash)
	if err != nil {
		return 0, fmt.Errorf("getting sample start block: %w", err)
	}
	tipHash, err := rpc.GetBlockHash(tip)
	if err != nil {
		return 0, fmt.Errorf("getting tip hash: %w", err)
	}
	tipBlock, err := rpc.GetBlock(tipHash)
	if err != nil {
		return 0, fmt.Errorf("getting tip block: %w", err)
	}

	blocksElapsed := tip - sampleStart
	var avgInterval time.Duration
	if blocksElapsed > 0 {
		span := tipBlock.Header.Timestamp.Sub(startBlock.Header.Timestamp)
		avgInterval = span / time.Duration(blocksElapsed)
	}
	if avgInterval <= 0 {
		avgInterval = 10 * time.Minute
	}

	height := tip
	cursorTime := tipBlock.Header.Timestamp
	for height > 0 && cursorTime.After(notBefore) {
		behind := cursorTime.Sub(notBefore)
		step := int64(behind/avgInterval) + 1
		if step < 1 {
			step = 1
		}
		height -= step
		if height < 0 {
			height = 0
		}
		hash, err := rpc.GetBlockHash(height)
		if err != nil {
			return 0, fmt.Errorf("getting hash at height %d: %w", height, err)
		}
		block, err := rpc.GetBlock(hash)
		if err != nil {
			return 0, fmt.Errorf("getting block at height %d: %w", height, err)
		}
		cursorTime = block.Header.Timestamp
	}
	return height, nil
}

// WaitForConfirmation implements spec.md §4.5's wait_for_confirmation:
// finds txid by walking forward from an estimated starting height,
// blocking and polling every pollInterval once the chain tip is reached.
// There is no timeout at this layer; callers that need one wrap ctx with
// context.WithTimeout or context.WithDeadline, per spec.md §9's
// "a timeout wrapper is added at the boundary" design note.
func WaitForConfirmation(ctx context.Context, rpc chainrpc.Client, txid *chainhash.Hash, notBeforeTime time.Time) (*wire.MsgTx, error) {
	height, err := estimateStartHeight(rpc, notBeforeTime)
	if err != nil {
		return nil, err
	}

	t := ticker.New(pollInterval)
	t.Resume()
	defer t.Stop()

	for {
		tip, err := rpc.GetBlockCount()
		if err != nil {
			return nil, fmt.Errorf("getting block count: %w", err)
		}

		for ; height <= tip; height++ {
			hash, err := rpc.GetBlockHash(height)
			if err != nil {
				return nil, fmt.Errorf("getting hash at height %d: %w", height, err)
			}
			block, err := rpc.GetBlock(hash)
			if err != nil {
				return nil, fmt.Errorf("getting block at height %d: %w", height, err)
			}
			for _, tx := range block.Transactions {
				if tx.TxHash() == *txid {
					return tx, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.Ticks():
		}
	}
}

// FindSpender implements spec.md §4.5's find_spender: before each
// block-by-block walk pass (the same walk WaitForConfirmation does), it
// lists the node's mempool and checks every pending transaction for the
// spend, since a claim or refund can be visible before it is mined.
func FindSpender(ctx context.Context, rpc chainrpc.Client, outpoint wire.OutPoint, notBeforeTime time.Time) (*wire.MsgTx, int, error) {
	height, err := estimateStartHeight(rpc, notBeforeTime)
	if err != nil {
		return nil, 0, err
	}

	t := ticker.New(pollInterval)
	t.Resume()
	defer t.Stop()

	for {
		if tx, idx, ok, err := findSpendInMempool(rpc, outpoint); err != nil {
			return nil, 0, err
		} else if ok {
			return tx, idx, nil
		}

		tip, err := rpc.GetBlockCount()
		if err != nil {
			return nil, 0, fmt.Errorf("getting block count: %w", err)
		}

		for ; height <= tip; height++ {
			hash, err := rpc.GetBlockHash(height)
			if err != nil {
				return nil, 0, fmt.Errorf("getting hash at height %d: %w", height, err)
			}
			block, err := rpc.GetBlock(hash)
			if err != nil {
				return nil, 0, fmt.Errorf("getting block at height %d: %w", height, err)
			}
			if tx, idx, ok := findSpendIn(block.Transactions, outpoint); ok {
				return tx, idx, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-t.Ticks():
		}
	}
}

// findSpendInMempool checks every transaction the node currently holds
// unconfirmed for one spending outpoint, so a claim or refund that is
// broadcast but not yet mined is found immediately rather than only
// once it confirms.
func findSpendInMempool(rpc chainrpc.Client, outpoint wire.OutPoint) (*wire.MsgTx, int, bool, error) {
	txids, err := rpc.GetRawMempool()
	if err != nil {
		return nil, 0, false, fmt.Errorf("listing mempool: %w", err)
	}
	for _, txid := range txids {
		tx, err := rpc.GetRawTransaction(txid)
		if err != nil {
			continue
		}
		if spend, idx, ok := findSpendIn([]*wire.MsgTx{tx}, outpoint); ok {
			return spend, idx, true, nil
		}
	}
	return nil, 0, false, nil
}

func findSpendIn(txs []*wire.MsgTx, outpoint wire.OutPoint) (*wire.MsgTx, int, bool) {
	for _, tx := range txs {
		for i, in := range tx.TxIn {
			if in.PreviousOutPoint == outpoint {
				return tx, i, true
			}
		}
	}
	return nil, 0, false
}

// FindCommitment scans forward from notBeforeTime for a confirmed
// transaction carrying an output of exactly expectedValue paying
// htlcScript, returning the transaction and the matching output's index.
// Unlike WaitForConfirmation, the caller has no prior reference to the
// transaction's id — this is how a recipient discovers its counterparty's
// commitment on a chain it never submitted an outpoint for (spec.md
// §4.7 message 5: B learns of TX3 only by its shape, never by txid).
func FindCommitment(ctx context.Context, rpc chainrpc.Client, notBeforeTime time.Time, expectedValue int64, htlcScript []byte) (*wire.MsgTx, uint32, error) {
	height, err := estimateStartHeight(rpc, notBeforeTime)
	if err != nil {
		return nil, 0, err
	}

	t := ticker.New(pollInterval)
	t.Resume()
	defer t.Stop()

	for {
		tip, err := rpc.GetBlockCount()
		if err != nil {
			return nil, 0, fmt.Errorf("getting block count: %w", err)
		}

		for ; height <= tip; height++ {
			hash, err := rpc.GetBlockHash(height)
			if err != nil {
				return nil, 0, fmt.Errorf("getting hash at height %d: %w", height, err)
			}
			block, err := rpc.GetBlock(hash)
			if err != nil {
				return nil, 0, fmt.Errorf("getting block at height %d: %w", height, err)
			}
			for _, tx := range block.Transactions {
				for i, out := range tx.TxOut {
					if out.Value == expectedValue && scriptBytesEqual(out.PkScript, htlcScript) {
						return tx, uint32(i), nil
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-t.Ticks():
		}
	}
}

func scriptBytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ExtractPreimage implements spec.md §4.5's extract_preimage, a thin
// wrapper exposing swap.ExtractPreimage at the scanner's level of
// abstraction: it parses the signature script of the given input index
// within spendingTx.
func ExtractPreimage(spendingTx *wire.MsgTx, inputIndex int) ([]byte, error) {
	if inputIndex < 0 || inputIndex >= len(spendingTx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", inputIndex)
	}
	return swap.ExtractPreimage(spendingTx.TxIn[inputIndex].SignatureScript)
}
