package swap

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/feepolicy"
)

// Byte-size constants the fee policy is evaluated against. A refund or
// claim transaction is always one input, one output; a commitment
// transaction may carry a change output, so it is budgeted generously.
// Grounded on spec.md §4.4's literal fee_for_size(1000)/fee_for_size(2000)
// calls.
const (
	refundTxSize     = 1000
	commitmentTxSize = 2000
)

// ErrInsufficientFunds is returned by BuildSend when the wallet's unspent
// set cannot cover quantity plus the estimated commitment fee.
var ErrInsufficientFunds = fmt.Errorf("insufficient funds for commitment output plus fee")

// BuildSend implements spec.md §4.4's build_send: greedy coin selection
// from the chain node's unspent set, one HTLC output of exactly quantity,
// and an optional change output to a fresh change address. The chain
// node signs the funding inputs, mirroring the teacher's pattern of
// handing an assembled wire.MsgTx to the node's SignRawTransaction rather
// than deriving keys locally (script_utils.go's genFundingPkScript feeds
// the same kind of raw tx into the wallet's signer).
func BuildSend(rpc chainrpc.Client, quantity int64, senderPub, recipientPub *btcec.PublicKey, secretHash [32]byte, feeRate int64) (*wire.MsgTx, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	htlcScript, err := BuildHTLCScript(recipientPub, senderPub, secretHash)
	if err != nil {
		return nil, fmt.Errorf("building htlc script: %w", err)
	}

	fee := feepolicy.FeeForSize(commitmentTxSize, feeRate)
	target := quantity + fee

	unspent, err := rpc.ListUnspent(1)
	if err != nil {
		return nil, fmt.Errorf("listing unspent outputs: %w", err)
	}

	tx := wire.NewMsgTx(1)
	var selected int64
	for _, u := range unspent {
		if selected >= target {
			break
		}
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: u.TxID, Index: u.Vout}, nil, nil))
		selected += u.Amount
	}
	if selected < target {
		return nil, ErrInsufficientFunds
	}

	tx.AddTxOut(wire.NewTxOut(quantity, htlcScript))

	if change := selected - target; change > 0 {
		changeAddr, err := rpc.GetRawChangeAddress()
		if err != nil {
			return nil, fmt.Errorf("getting change address: %w", err)
		}
		changeScript, err := txscript.PayToAddrScript(changeAddr)
		if err != nil {
			return nil, fmt.Errorf("building change script: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	signed, complete, err := rpc.SignRawTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("signing commitment transaction: %w", err)
	}
	if !complete {
		return nil, fmt.Errorf("chain node could not fully sign commitment transaction")
	}
	return signed, nil
}

// BuildUnsignedRefund implements spec.md §4.4's build_unsigned_refund: a
// single input spending commitmentTx's HTLC output with nSequence set to
// a nonzero, non-final value (marking this input as intended for the
// refund path, not a final spend), paying the HTLC value minus the
// refund fee to refundAddress, locked until lockTime.
func BuildUnsignedRefund(commitmentTx *wire.MsgTx, outIndex uint32, refundAddress btcutil.Address, lockTime uint32, feeRate int64) (*wire.MsgTx, error) {
	if int(outIndex) >= len(commitmentTx.TxOut) {
		return nil, fmt.Errorf("output index %d out of range", outIndex)
	}
	commitOut := commitmentTx.TxOut[outIndex]

	fee := feepolicy.FeeForSize(refundTxSize, feeRate)
	if commitOut.Value <= fee {
		return nil, fmt.Errorf("commitment output %d too small to cover refund fee", commitOut.Value)
	}

	refundScript, err := txscript.PayToAddrScript(refundAddress)
	if err != nil {
		return nil, fmt.Errorf("building refund output script: %w", err)
	}

	tx := wire.NewMsgTx(1)
	commitHash := commitmentTx.TxHash()
	txIn := wire.NewTxIn(&wire.OutPoint{Hash: commitHash, Index: outIndex}, nil, nil)
	txIn.Sequence = 1
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(commitOut.Value-fee, refundScript))
	tx.LockTime = lockTime

	return tx, nil
}

// refundSigHash rebuilds the HTLC script from first principles and
// computes the refund transaction's signature hash against it. Per
// spec.md §4.4, rebuilding rather than trusting a script embedded
// elsewhere prevents a peer from slipping in a refund transaction that
// signs over a different redeem script than the one actually backing the
// commitment output.
func refundSigHash(refundTx *wire.MsgTx, senderPub, recipientPub *btcec.PublicKey, secretHash [32]byte) ([]byte, []byte, error) {
	htlcScript, err := BuildHTLCScript(recipientPub, senderPub, secretHash)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuilding htlc script: %w", err)
	}
	sigHash, err := txscript.CalcSignatureHash(htlcScript, txscript.SigHashAll, refundTx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("computing refund sighash: %w", err)
	}
	return sigHash, htlcScript, nil
}

// SignRefundPartial implements spec.md §4.4's sign_refund_partial: one
// party's signature over the counterparty-supplied refund transaction,
// computed against the HTLC script rebuilt locally rather than trusted
// from the wire.
func SignRefundPartial(refundTx *wire.MsgTx, ownPriv *btcec.PrivateKey, senderPub, recipientPub *btcec.PublicKey, secretHash [32]byte) ([]byte, error) {
	sigHash, _, err := refundSigHash(refundTx, senderPub, recipientPub, secretHash)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(ownPriv, sigHash)
	return append(sig.Serialize(), byte(txscript.SigHashAll)), nil
}

// AssembleRefund implements spec.md §4.4's assemble_refund: verifies both
// supplied signatures against the independently reconstructed sighash,
// refusing to proceed on mismatch, then assembles the refund-branch
// input script per §4.3.
func AssembleRefund(refundTx *wire.MsgTx, senderPub, recipientPub *btcec.PublicKey, secretHash [32]byte, recipientSig, senderSig []byte) (*wire.MsgTx, error) {
	sigHash, htlcScript, err := refundSigHash(refundTx, senderPub, recipientPub, secretHash)
	if err != nil {
		return nil, err
	}

	if err := verifyDERSig(recipientSig, recipientPub, sigHash); err != nil {
		return nil, fmt.Errorf("recipient refund signature invalid: %w", err)
	}
	if err := verifyDERSig(senderSig, senderPub, sigHash); err != nil {
		return nil, fmt.Errorf("sender refund signature invalid: %w", err)
	}

	sigScript, err := BuildRefundSigScript(
		recipientSig, recipientPub.SerializeCompressed(),
		senderSig, senderPub.SerializeCompressed(),
	)
	if err != nil {
		return nil, fmt.Errorf("assembling refund sig script: %w", err)
	}

	assembled := refundTx.Copy()
	assembled.TxIn[0].SignatureScript = sigScript

	commitOut := &wire.TxOut{Value: assembled.TxOut[0].Value, PkScript: htlcScript}
	if err := execute(htlcScript, assembled, commitOut.Value); err != nil {
		return nil, fmt.Errorf("assembled refund fails script verification: %w", err)
	}
	return assembled, nil
}

func verifyDERSig(sigWithHashType []byte, pub *btcec.PublicKey, sigHash []byte) error {
	if len(sigWithHashType) < 2 {
		return fmt.Errorf("signature too short")
	}
	sig, err := ecdsa.ParseDERSignature(sigWithHashType[:len(sigWithHashType)-1])
	if err != nil {
		return fmt.Errorf("parsing DER signature: %w", err)
	}
	if !sig.Verify(sigHash, pub) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

// execute runs the btcd script verifier against a fully assembled input,
// the script-execution check spec.md §4.4 requires before every state
// transition concludes.
func execute(htlcScript []byte, tx *wire.MsgTx, inputValue int64) error {
	vm, err := txscript.NewEngine(
		htlcScript, tx, 0, txscript.StandardVerifyFlags, nil, nil,
		inputValue, nil,
	)
	if err != nil {
		return err
	}
	return vm.Execute()
}

// BuildClaim implements spec.md §4.4's build_claim: a single input
// spending commitmentTx's HTLC output via the recipient-claim branch, to
// a fresh wallet address, minus the claim fee.
func BuildClaim(rpc chainrpc.Client, commitmentTx *wire.MsgTx, senderPub *btcec.PublicKey, ownPriv *btcec.PrivateKey, preimage []byte, ownAddress btcutil.Address, feeRate int64) (*wire.MsgTx, error) {
	if err := ValidatePreimage(preimage); err != nil {
		return nil, err
	}

	const htlcOutIndex = 0
	if len(commitmentTx.TxOut) == 0 {
		return nil, fmt.Errorf("commitment transaction has no outputs")
	}
	commitOut := commitmentTx.TxOut[htlcOutIndex]

	fee := feepolicy.FeeForSize(refundTxSize, feeRate)
	if commitOut.Value <= fee {
		return nil, fmt.Errorf("commitment output too small to cover claim fee")
	}

	recipientPub := ownPriv.PubKey()
	htlcScript, err := BuildHTLCScript(recipientPub, senderPub, HashSecret(preimage))
	if err != nil {
		return nil, fmt.Errorf("rebuilding htlc script: %w", err)
	}

	claimScript, err := txscript.PayToAddrScript(ownAddress)
	if err != nil {
		return nil, fmt.Errorf("building claim output script: %w", err)
	}

	tx := wire.NewMsgTx(1)
	commitHash := commitmentTx.TxHash()
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: commitHash, Index: htlcOutIndex}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(commitOut.Value-fee, claimScript))

	sigHash, err := txscript.CalcSignatureHash(htlcScript, txscript.SigHashAll, tx, 0)
	if err != nil {
		return nil, fmt.Errorf("computing claim sighash: %w", err)
	}
	sig := ecdsa.Sign(ownPriv, sigHash)
	derSig := append(sig.Serialize(), byte(txscript.SigHashAll))

	sigScript, err := BuildClaimSigScript(derSig, recipientPub.SerializeCompressed(), preimage)
	if err != nil {
		return nil, fmt.Errorf("assembling claim sig script: %w", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	if err := execute(htlcScript, tx, commitOut.Value); err != nil {
		return nil, fmt.Errorf("claim fails script verification: %w", err)
	}
	return tx, nil
}

// ValidateRefund implements spec.md §4.4's validate_refund: a
// counterparty-supplied refund transaction must be a single input,
// single output, its output value must not exceed maxValue, its lock
// time must fall between 12 and 72 hours from clk.Now(), and its
// sequence number must not be the final (0xffffffff) value, which would
// make the transaction final and so disable the nLockTime the refund
// path relies on.
func ValidateRefund(refundTx *wire.MsgTx, maxValue int64, clk clock.Clock) error {
	if len(refundTx.TxIn) != 1 {
		return fmt.Errorf("refund transaction must have exactly one input, got %d", len(refundTx.TxIn))
	}
	if len(refundTx.TxOut) != 1 {
		return fmt.Errorf("refund transaction must have exactly one output, got %d", len(refundTx.TxOut))
	}
	if refundTx.TxOut[0].Value > maxValue {
		return fmt.Errorf("refund output value %d exceeds maximum %d", refundTx.TxOut[0].Value, maxValue)
	}
	if refundTx.TxIn[0].Sequence == wire.MaxTxInSequenceNum {
		return fmt.Errorf("refund input sequence must not be final")
	}

	now := clk.Now()
	lockTime := time.Unix(int64(refundTx.LockTime), 0)
	delta := lockTime.Sub(now)
	if delta < 12*time.Hour || delta > 72*time.Hour {
		return fmt.Errorf("refund lock time %s is outside the 12h-72h window from now", lockTime)
	}
	return nil
}

// ValidateCommitment implements spec.md §4.4's validate_commitment: some
// output of commitmentTx must carry exactly expectedValue and the HTLC
// script for these parameters, and every input must be final (standard
// sequence number, ready to be mined without further waiting).
func ValidateCommitment(commitmentTx *wire.MsgTx, expectedValue int64, senderPub, recipientPub *btcec.PublicKey, secretHash [32]byte) (uint32, error) {
	htlcScript, err := BuildHTLCScript(recipientPub, senderPub, secretHash)
	if err != nil {
		return 0, fmt.Errorf("building expected htlc script: %w", err)
	}

	for _, in := range commitmentTx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			return 0, fmt.Errorf("commitment transaction has a non-final input")
		}
	}

	for i, out := range commitmentTx.TxOut {
		if out.Value == expectedValue && scriptsEqual(out.PkScript, htlcScript) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("no output pays %d to the expected htlc script", expectedValue)
}

func scriptsEqual(a, b []byte) bool {
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

// TxID is a convenience wrapper returning the wire-standard transaction
// id (double-SHA256 of the serialized transaction, byte-reversed).
func TxID(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
