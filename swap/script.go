// Package swap builds the HTLC output script shared by both commitment
// transactions of an atomic swap, and the two redeem-script variants that
// spend it. The script shape and the builder idiom (txscript.ScriptBuilder,
// nested OP_IF/OP_ELSE branches, one spend-script constructor per branch)
// are adapted from lnd's lnwallet/script_utils.go, generalized from lnd's
// multi-branch HTLC (revocation/redeem/timeout) down to the two branches an
// atomic swap actually needs: a signature-gated preimage claim, and a
// cooperatively-signed, pre-timelocked refund.
package swap

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"
)

// Selector is the boolean pushed on the stack to choose the HTLC script's
// IF/ELSE branch. The spec text describing this script is inconsistent
// about which value selects which branch (compare its §4.3 table against
// its own glossary); this implementation follows the original Python
// source's actual CScript construction order, the only version that is
// self-consistent under real script execution: pushing Refund selects the
// IF branch (requires both signatures), pushing Claim selects the ELSE
// branch (requires the preimage plus the recipient's signature, already
// checked unconditionally above the IF).
type Selector int64

const (
	// SelectorClaim picks the ELSE branch: preimage + recipient sig.
	SelectorClaim Selector = 0

	// SelectorRefund picks the IF branch: sender sig + recipient sig.
	SelectorRefund Selector = 1
)

// PreimageSize is the required length, in bytes, of an atomic-swap secret.
const PreimageSize = 16

// hash160 computes RIPEMD160(SHA256(data)), the pubkey-hash primitive used
// by every P2PKH-style check in the HTLC script.
func hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// hash256 computes SHA256(SHA256(data)), the double round used for the
// swap's secret_hash commitment per spec.md invariant 4.
func hash256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// HashSecret returns the double-SHA256 secret_hash for a preimage. It does
// not validate length; callers that accept a preimage from a message
// should call ValidatePreimage first.
func HashSecret(preimage []byte) [32]byte {
	return hash256(preimage)
}

// ValidatePreimage enforces spec.md invariant 4: a secret is exactly 16
// random bytes.
func ValidatePreimage(preimage []byte) error {
	if len(preimage) != PreimageSize {
		return fmt.Errorf("preimage must be %d bytes, got %d",
			PreimageSize, len(preimage))
	}
	return nil
}

// BuildHTLCScript produces the output script shared by both commitment
// transactions (spec.md §4.3):
//
//	DUP HASH160 <H160(recipientPub)> EQUALVERIFY CHECKSIGVERIFY
//	IF
//	  DUP HASH160 <H160(senderPub)> EQUALVERIFY CHECKSIG
//	ELSE
//	  HASH256 <secretHash> EQUAL
//	ENDIF
//
// recipient is the party who will eventually claim these coins by
// revealing the preimage; sender is the party who funded the output and
// can recover it cooperatively via the timelocked refund branch.
func BuildHTLCScript(recipientPub, senderPub *btcec.PublicKey, secretHash [32]byte) ([]byte, error) {
	if recipientPub == nil || senderPub == nil {
		return nil, fmt.Errorf("recipient and sender pubkeys are required")
	}

	recipientHash := hash160(recipientPub.SerializeCompressed())
	senderHash := hash160(senderPub.SerializeCompressed())

	b := txscript.NewScriptBuilder()

	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(recipientHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIGVERIFY)

	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(senderHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_HASH256)
	b.AddData(secretHash[:])
	b.AddOp(txscript.OP_EQUAL)
	b.AddOp(txscript.OP_ENDIF)

	return b.Script()
}

// BuildClaimSigScript assembles the input script for the Claim branch
// (spec.md §4.3's claim row): the recipient reveals the preimage and signs.
// Stack order at redeem-script execution time must end with recipientPub on
// top (so the script's leading DUP/HASH160/CHECKSIGVERIFY can consume it),
// so the push order here is preimage, selector, recipientSig, recipientPub.
func BuildClaimSigScript(recipientSig, recipientPub, preimage []byte) ([]byte, error) {
	if err := ValidatePreimage(preimage); err != nil {
		return nil, err
	}
	b := txscript.NewScriptBuilder()
	b.AddData(preimage)
	b.AddInt64(int64(SelectorClaim))
	b.AddData(recipientSig)
	b.AddData(recipientPub)
	return b.Script()
}

// BuildRefundSigScript assembles the input script for the Refund branch
// (spec.md §4.3's refund row): both parties' signatures over the
// pre-agreed, timelocked refund transaction. Push order is senderSig,
// senderPub, selector, recipientSig, recipientPub, so that recipientPub
// ends on top for the unconditional leading check, leaving senderSig/
// senderPub for the IF branch once the selector is consumed.
func BuildRefundSigScript(recipientSig, recipientPub, senderSig, senderPub []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(senderSig)
	b.AddData(senderPub)
	b.AddInt64(int64(SelectorRefund))
	b.AddData(recipientSig)
	b.AddData(recipientPub)
	return b.Script()
}

// ParsedSigScript is the decoded shape of an input spending an HTLC output,
// as produced by either BuildClaimSigScript or BuildRefundSigScript.
type ParsedSigScript struct {
	Selector      Selector
	RecipientSig  []byte
	RecipientPub  []byte
	Preimage      []byte // only set when Selector == SelectorClaim
	SenderSig     []byte // only set when Selector == SelectorRefund
	SenderPub     []byte // only set when Selector == SelectorRefund
}

// ErrNotClaim is returned by ExtractPreimage when the input being parsed
// took the refund branch rather than the claim branch, so
// there is no preimage to extract. Per spec.md §9's extension-point note,
// callers that want to keep scanning for a later claim do so themselves;
// this function does not continue searching.
var ErrNotClaim = fmt.Errorf("input script is a refund, not a claim")

// sigScriptElement is one decoded stack push from an input script, in the
// order it was pushed. Small-integer opcodes (OP_0, OP_1) carry their value
// in num and no bytes in data, since txscript.PushedData does not surface
// them the way it does ordinary data pushes.
type sigScriptElement struct {
	data  []byte
	num   int64
	isNum bool
}

func tokenizeSigScript(sigScript []byte) ([]sigScriptElement, error) {
	var elems []sigScriptElement

	t := txscript.MakeScriptTokenizer(0, sigScript)
	for t.Next() {
		op := t.Opcode()
		switch {
		case op == txscript.OP_0:
			elems = append(elems, sigScriptElement{isNum: true, num: 0})
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			elems = append(elems, sigScriptElement{
				isNum: true,
				num:   int64(op-txscript.OP_1) + 1,
			})
		default:
			if t.Data() == nil {
				return nil, fmt.Errorf("unexpected non-push opcode 0x%x in sig script", op)
			}
			elems = append(elems, sigScriptElement{data: t.Data()})
		}
	}
	if err := t.Err(); err != nil {
		return nil, fmt.Errorf("tokenizing sig script: %w", err)
	}
	return elems, nil
}

// ParseSigScript decodes an HTLC input script built by either
// BuildClaimSigScript or BuildRefundSigScript.
func ParseSigScript(sigScript []byte) (*ParsedSigScript, error) {
	elems, err := tokenizeSigScript(sigScript)
	if err != nil {
		return nil, err
	}

	switch len(elems) {
	case 4:
		// preimage, selector, recipientSig, recipientPub
		if !elems[1].isNum || elems[1].num != int64(SelectorClaim) {
			return nil, fmt.Errorf("4-element sig script has non-claim selector")
		}
		return &ParsedSigScript{
			Selector:     SelectorClaim,
			Preimage:     elems[0].data,
			RecipientSig: elems[2].data,
			RecipientPub: elems[3].data,
		}, nil
	case 5:
		// senderSig, senderPub, selector, recipientSig, recipientPub
		if !elems[2].isNum || elems[2].num != int64(SelectorRefund) {
			return nil, fmt.Errorf("5-element sig script has non-refund selector")
		}
		return &ParsedSigScript{
			Selector:     SelectorRefund,
			SenderSig:    elems[0].data,
			SenderPub:    elems[1].data,
			RecipientSig: elems[3].data,
			RecipientPub: elems[4].data,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected sig script shape: %d pushes", len(elems))
	}
}

// ExtractPreimage returns the preimage revealed by a Claim-branch input
// script, or ErrNotClaim if the input took the Refund branch instead.
func ExtractPreimage(sigScript []byte) ([]byte, error) {
	parsed, err := ParseSigScript(sigScript)
	if err != nil {
		return nil, err
	}
	if parsed.Selector != SelectorClaim {
		return nil, ErrNotClaim
	}
	return parsed.Preimage, nil
}
