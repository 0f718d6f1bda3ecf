// Package engine is the protocol's core state machine (spec.md §4.7): it
// turns the six wire messages plus the scanner-driven claim and refund
// actions into reads and writes against a tradestore.Store, using
// chainrpc.Client to build and broadcast transactions and
// msgtransport.Transport to exchange envelopes with the counterparty.
//
// The dispatch-to-handler shape and the go-errors/errors wrapping at
// every handler boundary are adapted from peer.go's readHandler
// switch and htlcswitch/switch.go's per-link message routing; the
// single-queue serialization below is adapted from the same
// switch.go's use of lightningnetwork/lnd/queue.ConcurrentQueue to
// keep message processing strictly ordered.
package engine

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	goerrors "github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/btcsuite/btcd/wire"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/chainreg"
	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/msgtransport"
	"github.com/rnicoll/cate/tradestore"
)

// Slot names, one per persisted protocol artifact. The numbering
// follows spec.md §4.6 exactly; which party writes which slot is
// implied by which handler is running, not by the slot name itself,
// since each party keeps its own tradestore.Store.
const (
	slotOffer            = "1_offer"
	slotOfferPrivateKey  = "1_private_key"
	slotPeerOffer        = "2_offer"
	slotAcceptance       = "2_acceptance"
	slotSecret           = "2_secret"
	slotAcceptPrivateKey = "2_private_key"
	slotTx1              = "2_tx1"
	slotPeerAcceptance   = "3_acceptance"
	slotTx3              = "3_tx3"
	slotConfirmation     = "3_confirmation"
	slotPeerConfirmation = "4_confirmation"
	slotTx2              = "4_tx2"
	slotCoinsSent        = "4_coins_sent"
	slotSendNotification = "5_send_notification"
	slotTx4              = "5_tx4"
	slotCompleteB        = "6_complete"
	slotCompleteA        = "7_complete"

	// slotRefundB/slotRefundA are not in spec.md §4.6's illustrative
	// slot list but follow its "e.g." naming scheme: write-once markers
	// recording that a recovery handler has already broadcast its
	// refund, so a second timer tick does not double-spend.
	slotRefundB = "4_refund"
	slotRefundA = "5_refund"
)

// Engine holds everything a handler needs to process one trade's
// messages or scanner events. One Engine is shared by every trade the
// process handles; per-trade isolation comes from the tradeID argument
// to each handler plus the write-once discipline of Store, not from any
// per-trade struct.
type Engine struct {
	Registry  *chainreg.Registry
	Store     tradestore.Store
	Transport msgtransport.Transport
	Clock     clock.Clock
	RPC       map[string]chainrpc.Client
	FeeRate   map[string]int64

	// RefundDelta is the maximum amount by which a counterparty's
	// refund lock time may precede ours before it is rejected
	// (SPEC_FULL.md §8, Open Question 2).
	RefundDelta int64

	jobs *queue.ConcurrentQueue
}

// New constructs an Engine and starts its serialization queue.
func New(registry *chainreg.Registry, store tradestore.Store, transport msgtransport.Transport, clk clock.Clock, rpc map[string]chainrpc.Client, feeRate map[string]int64) *Engine {
	e := &Engine{
		Registry: registry,
		Store:    store,
		Transport: transport,
		Clock:    clk,
		RPC:      rpc,
		FeeRate:  feeRate,
		jobs:     queue.NewConcurrentQueue(64),
	}
	e.jobs.Start()
	go e.drain()
	return e
}

// Stop halts the serialization queue. No handler may be invoked after
// Stop returns.
func (e *Engine) Stop() {
	e.jobs.Stop()
}

func (e *Engine) drain() {
	for item := range e.jobs.ChanOut() {
		job := item.(func())
		job()
	}
}

// run serializes fn against every other call to run on this Engine,
// matching spec.md §5's "handler invocations from different trades are
// serialized" (strengthened here to all trades, which trivially
// satisfies the weaker per-trade requirement without per-trade queue
// lifecycle bookkeeping).
func (e *Engine) run(fn func() error) error {
	done := make(chan error, 1)
	e.jobs.ChanIn() <- func() {
		done <- fn()
	}
	return <-done
}

// goerrorsErrf wraps a formatted error with a captured stack trace,
// matching the rest of the codebase's go-errors/errors usage.
func goerrorsErrf(format string, args ...interface{}) error {
	return goerrors.Errorf(format, args...)
}

func (e *Engine) rpcFor(code string) (chainrpc.Client, error) {
	client, ok := e.RPC[code]
	if !ok {
		return nil, cateerrs.Configuration("no chain RPC client configured for %q", code)
	}
	return client, nil
}

func (e *Engine) feeRateFor(code string) (int64, error) {
	rate, ok := e.FeeRate[code]
	if !ok || rate <= 0 {
		return 0, cateerrs.Configuration("no fee rate configured for %q", code)
	}
	return rate, nil
}

// putJSON marshals v and writes it to the given slot. ErrSlotExists is
// swallowed and reported via the returned bool, since a pre-existing
// slot is the normal at-least-once-replay no-op, not a failure.
func (e *Engine) putJSON(tradeID, slot string, v interface{}) (wrote bool, err error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, goerrors.Errorf("marshaling slot %s: %v", slot, err)
	}
	if err := e.Store.Put(tradeID, slot, data); err != nil {
		if err == tradestore.ErrSlotExists {
			return false, nil
		}
		return false, goerrors.Errorf("writing slot %s: %v", slot, err)
	}
	return true, nil
}

func (e *Engine) getJSON(tradeID, slot string, v interface{}) error {
	data, err := e.Store.Get(tradeID, slot)
	if err != nil {
		if err == tradestore.ErrSlotMissing {
			return cateerrs.Audit("required slot %s/%s is missing", tradeID, slot)
		}
		return goerrors.Errorf("reading slot %s: %v", slot, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return goerrors.Errorf("decoding slot %s: %v", slot, err)
	}
	return nil
}

func (e *Engine) has(tradeID, slot string) (bool, error) {
	ok, err := e.Store.Has(tradeID, slot)
	if err != nil {
		return false, goerrors.Errorf("checking slot %s: %v", slot, err)
	}
	return ok, nil
}

// requirePrior enforces spec.md §5's ordering guarantee: the current
// handler refuses to run unless every strictly-prior slot is present.
func (e *Engine) requirePrior(tradeID string, slots ...string) error {
	for _, slot := range slots {
		ok, err := e.has(tradeID, slot)
		if err != nil {
			return err
		}
		if !ok {
			return cateerrs.Audit("slot %s/%s must exist before this step", tradeID, slot)
		}
	}
	return nil
}

func encodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serializing transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeTx(s string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding transaction hex: %w", err)
	}
	tx := wire.NewMsgTx(1)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserializing transaction: %w", err)
	}
	return tx, nil
}

func encodeHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decoding hash hex %q: %w", s, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("hash %q must decode to 32 bytes, got %d", s, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// dispatchSubject routes an inbound envelope to its handler. It does not
// itself serialize; Dispatch invokes it via Engine.run.
func (e *Engine) dispatchSubject(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	switch env.Subject {
	case msgtransport.SubjectOffer:
		return e.handleOfferLocked(ctx, env)
	case msgtransport.SubjectAccept:
		return e.handleAcceptLocked(ctx, env)
	case msgtransport.SubjectConfirm:
		return e.handleConfirmLocked(ctx, env)
	case msgtransport.SubjectSend:
		return e.handleSendLocked(ctx, env)
	default:
		return msgtransport.Envelope{}, cateerrs.Message("unknown message subject %q", env.Subject)
	}
}

// Dispatch processes one inbound envelope, serialized against every
// other Engine call, and returns the reply envelope to transmit, if
// any (a zero Envelope with a nil error means "no-op, nothing to
// send" — either a replay or a terminal step).
func (e *Engine) Dispatch(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	var reply msgtransport.Envelope
	err := e.run(func() error {
		var innerErr error
		reply, innerErr = e.dispatchSubject(ctx, env)
		return innerErr
	})
	return reply, err
}
