package engine

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/msgtransport"
	"github.com/rnicoll/cate/swap"
)

// peerAcceptanceRecord is 3_acceptance's persisted content: the ACCEPT
// message as A received it.
type peerAcceptanceRecord struct {
	TradeID    string `json:"trade_id"`
	SecretHash string `json:"secret_hash"`
	PublicKeyB string `json:"public_key_b"`
	Tx2        string `json:"tx2"`
}

type confirmationRecord struct {
	TradeID string `json:"trade_id"`
	Tx2Sig  string `json:"tx2_sig"`
	Tx4     string `json:"tx4"`
}

// handleAcceptLocked implements A's side of message 2 (receiving ACCEPT)
// and the construction of message 3 (CONFIRM): A validates B's unsigned
// TX2, partial-signs it, builds its own commitment TX3 and the unsigned
// refund TX4 spending it (spec.md §4.7 message 3).
func (e *Engine) handleAcceptLocked(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	body, err := env.DecodeAccept()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("%v", err)
	}

	if has, err := e.has(body.TradeID, slotConfirmation); err != nil {
		return msgtransport.Envelope{}, err
	} else if has {
		return msgtransport.Envelope{}, nil
	}

	if err := e.requirePrior(body.TradeID, slotOffer, slotOfferPrivateKey); err != nil {
		return msgtransport.Envelope{}, err
	}

	var offer offerRecord
	if err := e.getJSON(body.TradeID, slotOffer, &offer); err != nil {
		return msgtransport.Envelope{}, err
	}
	var ownKey privateKeyRecord
	if err := e.getJSON(body.TradeID, slotOfferPrivateKey, &ownKey); err != nil {
		return msgtransport.Envelope{}, err
	}
	ownPriv, err := decodePrivKey(ownKey.PrivateKey)
	if err != nil {
		return msgtransport.Envelope{}, err
	}

	secretHash, err := decodeHash(body.SecretHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid secret_hash: %v", err)
	}
	bPub, err := decodePubKey(body.PublicKeyA)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid public_key_a: %v", err)
	}
	tx2, err := decodeTx(body.Tx2)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid tx2: %v", err)
	}

	// validate_refund (spec.md §4.4): TX2's value must not exceed the
	// ask quantity A is expecting to receive.
	if err := swap.ValidateRefund(tx2, offer.AskCurrencyQuantity, e.Clock); err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("tx2 failed validation: %v", err)
	}

	// Lock-time relationship (spec.md invariant 6, SPEC_FULL.md §8 Open
	// Question 2): TX4's lock time must not precede TX2's by more than
	// RefundDelta, or B could refund TX1 and still have time to force A
	// into refunding TX3 before A could claim it, stealing both sides.
	// TX4's lock time is fixed by the clock and refundWindow alone, so
	// it can be checked here, before any slot for this trade is written.
	lockTime := uint32(refundLockTimeFor(e.Clock, refundWindow))
	if int64(lockTime) < int64(tx2.LockTime)-e.RefundDelta {
		return msgtransport.Envelope{}, cateerrs.Trade(
			"tx2 lock time %d leaves tx4 lock time %d less than refund_delta %d apart",
			tx2.LockTime, lockTime, e.RefundDelta)
	}

	if _, err := e.putJSON(body.TradeID, slotPeerAcceptance, peerAcceptanceRecord{
		TradeID:    body.TradeID,
		SecretHash: body.SecretHash,
		PublicKeyB: body.PublicKeyA,
		Tx2:        body.Tx2,
	}); err != nil {
		return msgtransport.Envelope{}, err
	}

	// A's partial signature on TX2. TX2's HTLC parties are (sender=B,
	// recipient=A), mirroring how B's buildAcceptance built TX1/TX2.
	tx2Sig, err := swap.SignRefundPartial(tx2, ownPriv, bPub, ownPriv.PubKey(), secretHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("signing tx2: %v", err)
	}

	// TX3 is A's own commitment on the offer-chain: A is the sender, B
	// is the recipient, since B already holds the preimage and can
	// claim as soon as TX3 confirms.
	offerRPC, err := e.rpcFor(offer.OfferCurrency)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	offerFeeRate, err := e.feeRateFor(offer.OfferCurrency)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx3, err := swap.BuildSend(offerRPC, offer.OfferCurrencyQuantity, ownPriv.PubKey(), bPub, secretHash, offerFeeRate)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Funds("building tx3: %v", err)
	}
	tx3Hex, err := encodeTx(tx3)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	if _, err := e.putJSON(body.TradeID, slotTx3, map[string]string{"tx3": tx3Hex}); err != nil {
		return msgtransport.Envelope{}, err
	}

	refundAddr, err := offerRPC.GetRawChangeAddress()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Configuration("getting refund address: %v", err)
	}
	tx4, err := swap.BuildUnsignedRefund(tx3, 0, refundAddr, lockTime, offerFeeRate)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx4Hex, err := encodeTx(tx4)
	if err != nil {
		return msgtransport.Envelope{}, err
	}

	record := confirmationRecord{
		TradeID: body.TradeID,
		Tx2Sig:  hex.EncodeToString(tx2Sig),
		Tx4:     tx4Hex,
	}
	if _, err := e.putJSON(body.TradeID, slotConfirmation, record); err != nil {
		return msgtransport.Envelope{}, err
	}

	return msgtransport.NewEnvelope(msgtransport.SubjectConfirm, msgtransport.ConfirmBody{
		TradeID: record.TradeID,
		Tx2Sig:  record.Tx2Sig,
		Tx4:     record.Tx4,
	})
}

func decodePrivKey(s string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}
