package engine

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/chainscan"
	"github.com/rnicoll/cate/msgtransport"
	"github.com/rnicoll/cate/swap"
)

type coinsSentRecord struct {
	Tx1Txid string `json:"tx1_txid"`
}

type sendNotificationRecord struct {
	TradeID string `json:"trade_id"`
	Tx4Sig  string `json:"tx4_sig"`
}

// handleConfirmLocked implements B's side of message 3 (receiving
// CONFIRM) and message 4 (emitting SEND): assemble the fully-signed TX2
// safety net, broadcast TX1 now that both refunds exist, and partial-sign
// TX4 for A.
func (e *Engine) handleConfirmLocked(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	body, err := env.DecodeConfirm()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("%v", err)
	}

	if err := e.requirePrior(body.TradeID, slotPeerOffer, slotAcceptance, slotSecret, slotAcceptPrivateKey, slotTx1); err != nil {
		return msgtransport.Envelope{}, err
	}

	var peerOffer peerOfferRecord
	if err := e.getJSON(body.TradeID, slotPeerOffer, &peerOffer); err != nil {
		return msgtransport.Envelope{}, err
	}
	var acceptance struct {
		TradeID    string `json:"trade_id"`
		SecretHash string `json:"secret_hash"`
		PublicKeyB string `json:"public_key_b"`
		Tx2        string `json:"tx2"`
	}
	if err := e.getJSON(body.TradeID, slotAcceptance, &acceptance); err != nil {
		return msgtransport.Envelope{}, err
	}
	var ownKey privateKeyRecord
	if err := e.getJSON(body.TradeID, slotAcceptPrivateKey, &ownKey); err != nil {
		return msgtransport.Envelope{}, err
	}
	ownPriv, err := decodePrivKey(ownKey.PrivateKey)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	aPub, err := decodePubKey(peerOffer.PublicKeyA)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	secretHash, err := decodeHash(acceptance.SecretHash)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx2, err := decodeTx(acceptance.Tx2)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	aTx2Sig, err := hex.DecodeString(body.Tx2Sig)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid tx2_sig: %v", err)
	}
	tx4, err := decodeTx(body.Tx4)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid tx4: %v", err)
	}

	if _, err := e.putJSON(body.TradeID, slotPeerConfirmation, body); err != nil {
		return msgtransport.Envelope{}, err
	}

	// TX2's HTLC parties are (sender=B=ownPriv, recipient=A=aPub); B
	// contributes its own signature and assembles with A's.
	bTx2Sig, err := swap.SignRefundPartial(tx2, ownPriv, ownPriv.PubKey(), aPub, secretHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("signing tx2: %v", err)
	}
	assembledTx2, err := swap.AssembleRefund(tx2, ownPriv.PubKey(), aPub, secretHash, aTx2Sig, bTx2Sig)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("assembling tx2: %v", err)
	}
	assembledTx2Hex, err := encodeTx(assembledTx2)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	if _, err := e.putJSON(body.TradeID, slotTx2, map[string]string{"tx2": assembledTx2Hex}); err != nil {
		return msgtransport.Envelope{}, err
	}

	if has, err := e.has(body.TradeID, slotCoinsSent); err != nil {
		return msgtransport.Envelope{}, err
	} else if !has {
		askRPC, err := e.rpcFor(peerOffer.AskCurrency)
		if err != nil {
			return msgtransport.Envelope{}, err
		}
		var tx1 struct {
			Tx1 string `json:"tx1"`
		}
		if err := e.getJSON(body.TradeID, slotTx1, &tx1); err != nil {
			return msgtransport.Envelope{}, err
		}
		tx1Tx, err := decodeTx(tx1.Tx1)
		if err != nil {
			return msgtransport.Envelope{}, err
		}
		txid, err := askRPC.SendRawTransaction(tx1Tx)
		if err != nil {
			return msgtransport.Envelope{}, cateerrs.Funds("broadcasting tx1: %v", err)
		}
		if _, err := e.putJSON(body.TradeID, slotCoinsSent, coinsSentRecord{Tx1Txid: txid.String()}); err != nil {
			return msgtransport.Envelope{}, err
		}
	}

	// TX4's HTLC parties are (sender=A=aPub, recipient=B=ownPriv); B's
	// signature here is the partial the SEND message carries.
	tx4Sig, err := swap.SignRefundPartial(tx4, ownPriv, aPub, ownPriv.PubKey(), secretHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("signing tx4: %v", err)
	}

	return msgtransport.NewEnvelope(msgtransport.SubjectSend, msgtransport.SendBody{
		TradeID: body.TradeID,
		Tx4Sig:  hex.EncodeToString(tx4Sig),
	})
}

// handleSendLocked implements A's side of message 4 (receiving SEND):
// assemble the fully-signed TX4 safety net and persist it. Waiting for
// TX1's confirmation and broadcasting TX3 is long-running (it blocks on
// chain state, potentially for hours) and so runs in a detached goroutine
// rather than on the handler serialization queue; WatchAndBroadcastOffer
// is also exported so a caller can invoke it directly, e.g. on resume
// after a crash.
func (e *Engine) handleSendLocked(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	body, err := env.DecodeSend()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("%v", err)
	}

	if err := e.requirePrior(body.TradeID, slotOffer, slotOfferPrivateKey, slotPeerAcceptance, slotConfirmation); err != nil {
		return msgtransport.Envelope{}, err
	}

	if has, err := e.has(body.TradeID, slotTx4); err != nil {
		return msgtransport.Envelope{}, err
	} else if has {
		return msgtransport.Envelope{}, nil
	}

	if wrote, err := e.putJSON(body.TradeID, slotSendNotification, sendNotificationRecord{TradeID: body.TradeID, Tx4Sig: body.Tx4Sig}); err != nil {
		return msgtransport.Envelope{}, err
	} else if !wrote {
		return msgtransport.Envelope{}, nil
	}

	var peerAcceptance peerAcceptanceRecord
	if err := e.getJSON(body.TradeID, slotPeerAcceptance, &peerAcceptance); err != nil {
		return msgtransport.Envelope{}, err
	}
	var confirmation confirmationRecord
	if err := e.getJSON(body.TradeID, slotConfirmation, &confirmation); err != nil {
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
	bPub, err := decodePubKey(peerAcceptance.PublicKeyB)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	secretHash, err := decodeHash(peerAcceptance.SecretHash)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx4, err := decodeTx(confirmation.Tx4)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	bTx4Sig, err := hex.DecodeString(body.Tx4Sig)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid tx4_sig: %v", err)
	}

	// A's own signature on TX4 (sender=A=ownPriv, recipient=B=bPub).
	ownTx4Sig, err := swap.SignRefundPartial(tx4, ownPriv, ownPriv.PubKey(), bPub, secretHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("signing tx4: %v", err)
	}
	assembledTx4, err := swap.AssembleRefund(tx4, ownPriv.PubKey(), bPub, secretHash, bTx4Sig, ownTx4Sig)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Trade("assembling tx4: %v", err)
	}
	assembledTx4Hex, err := encodeTx(assembledTx4)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	if _, err := e.putJSON(body.TradeID, slotTx4, map[string]string{"tx4": assembledTx4Hex}); err != nil {
		return msgtransport.Envelope{}, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 72*time.Hour)
		defer cancel()
		e.WatchAndBroadcastOffer(bgCtx, body.TradeID)
	}()

	return msgtransport.Envelope{}, nil
}

// WatchAndBroadcastOffer waits for TX1's confirmation on the ask-chain
// (deriving TX1's outpoint from the previously-stored TX2, since TX1's
// raw bytes are never transmitted to A over the wire) and then broadcasts
// A's own commitment TX3 on the offer-chain.
func (e *Engine) WatchAndBroadcastOffer(ctx context.Context, tradeID string) error {
	var offer offerRecord
	if err := e.getJSON(tradeID, slotOffer, &offer); err != nil {
		return err
	}
	var peerAcceptance peerAcceptanceRecord
	if err := e.getJSON(tradeID, slotPeerAcceptance, &peerAcceptance); err != nil {
		return err
	}
	tx2, err := decodeTx(peerAcceptance.Tx2)
	if err != nil {
		return err
	}
	if len(tx2.TxIn) != 1 {
		return cateerrs.Audit("tx2 must have exactly one input")
	}
	tx1Outpoint := tx2.TxIn[0].PreviousOutPoint

	askRPC, err := e.rpcFor(offer.AskCurrency)
	if err != nil {
		return err
	}
	tx1, err := chainscan.WaitForConfirmation(ctx, askRPC, &tx1Outpoint.Hash, e.Clock.Now())
	if err != nil {
		return cateerrs.Trade("waiting for tx1 confirmation: %v", err)
	}

	bPub, err := decodePubKey(peerAcceptance.PublicKeyB)
	if err != nil {
		return err
	}
	ownKeyRec := privateKeyRecord{}
	if err := e.getJSON(tradeID, slotOfferPrivateKey, &ownKeyRec); err != nil {
		return err
	}
	ownPriv, err := decodePrivKey(ownKeyRec.PrivateKey)
	if err != nil {
		return err
	}
	secretHash, err := decodeHash(peerAcceptance.SecretHash)
	if err != nil {
		return err
	}
	if _, err := swap.ValidateCommitment(tx1, offer.AskCurrencyQuantity, bPub, ownPriv.PubKey(), secretHash); err != nil {
		return cateerrs.Trade("tx1 does not match expected commitment: %v", err)
	}

	var tx3Record struct {
		Tx3 string `json:"tx3"`
	}
	if err := e.getJSON(tradeID, slotTx3, &tx3Record); err != nil {
		return err
	}
	tx3, err := decodeTx(tx3Record.Tx3)
	if err != nil {
		return err
	}
	offerRPC, err := e.rpcFor(offer.OfferCurrency)
	if err != nil {
		return err
	}
	if _, err := offerRPC.SendRawTransaction(tx3); err != nil {
		return cateerrs.Funds("broadcasting tx3: %v", err)
	}
	return nil
}
