package engine

import (
	"context"

	"github.com/rnicoll/cate/cateerrs"
)

type refundRecord struct {
	RefundTxid string `json:"refund_txid"`
}

// RefundB implements B's recovery handler (spec.md §4.7). It broadcasts
// B's already fully-signed TX2, reclaiming TX1's funds, once TX2's lock
// time has passed and the trade has not otherwise completed; RefundA is
// the symmetric handler for A via TX4.
func (e *Engine) RefundB(ctx context.Context, tradeID string) error {
	if has, err := e.has(tradeID, slotCompleteB); err != nil {
		return err
	} else if has {
		return nil
	}
	if has, err := e.has(tradeID, slotRefundB); err != nil {
		return err
	} else if has {
		return nil
	}

	var peerOffer peerOfferRecord
	if err := e.getJSON(tradeID, slotPeerOffer, &peerOffer); err != nil {
		return err
	}
	var tx2Record struct {
		Tx2 string `json:"tx2"`
	}
	if err := e.getJSON(tradeID, slotTx2, &tx2Record); err != nil {
		return err
	}
	tx2, err := decodeTx(tx2Record.Tx2)
	if err != nil {
		return err
	}

	if err := lockTimeElapsed(e.Clock, tx2); err != nil {
		return err
	}

	askRPC, err := e.rpcFor(peerOffer.AskCurrency)
	if err != nil {
		return err
	}
	txid, err := askRPC.SendRawTransaction(tx2)
	if err != nil {
		return cateerrs.Funds("broadcasting tx2 refund: %v", err)
	}

	_, err = e.putJSON(tradeID, slotRefundB, refundRecord{RefundTxid: txid.String()})
	return err
}

// RefundA implements A's recovery handler: broadcasts A's already
// fully-signed TX4, reclaiming TX3's funds, once TX4's lock time has
// passed and the trade has not otherwise completed.
func (e *Engine) RefundA(ctx context.Context, tradeID string) error {
	if has, err := e.has(tradeID, slotCompleteA); err != nil {
		return err
	} else if has {
		return nil
	}
	if has, err := e.has(tradeID, slotRefundA); err != nil {
		return err
	} else if has {
		return nil
	}

	var offer offerRecord
	if err := e.getJSON(tradeID, slotOffer, &offer); err != nil {
		return err
	}
	var tx4Record struct {
		Tx4 string `json:"tx4"`
	}
	if err := e.getJSON(tradeID, slotTx4, &tx4Record); err != nil {
		return err
	}
	tx4, err := decodeTx(tx4Record.Tx4)
	if err != nil {
		return err
	}

	if err := lockTimeElapsed(e.Clock, tx4); err != nil {
		return err
	}

	offerRPC, err := e.rpcFor(offer.OfferCurrency)
	if err != nil {
		return err
	}
	txid, err := offerRPC.SendRawTransaction(tx4)
	if err != nil {
		return cateerrs.Funds("broadcasting tx4 refund: %v", err)
	}

	_, err = e.putJSON(tradeID, slotRefundA, refundRecord{RefundTxid: txid.String()})
	return err
}
