package engine

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/chainscan"
	"github.com/rnicoll/cate/swap"
)

type completeRecord struct {
	ClaimTxid string `json:"claim_txid"`
}

// ClaimOfferCommitment implements B's side of message 5: once TX3
// confirms on the offer-chain, B broadcasts a ClaimTx revealing the
// preimage, making it public for A to observe. B discovers TX3 by its
// shape (value and HTLC script), since its txid is never transmitted.
func (e *Engine) ClaimOfferCommitment(ctx context.Context, tradeID string) error {
	if has, err := e.has(tradeID, slotCompleteB); err != nil {
		return err
	} else if has {
		return nil
	}

	var peerOffer peerOfferRecord
	if err := e.getJSON(tradeID, slotPeerOffer, &peerOffer); err != nil {
		return err
	}
	var secret struct {
		Preimage string `json:"preimage"`
	}
	if err := e.getJSON(tradeID, slotSecret, &secret); err != nil {
		return err
	}
	var ownKey privateKeyRecord
	if err := e.getJSON(tradeID, slotAcceptPrivateKey, &ownKey); err != nil {
		return err
	}
	ownPriv, err := decodePrivKey(ownKey.PrivateKey)
	if err != nil {
		return err
	}
	aPub, err := decodePubKey(peerOffer.PublicKeyA)
	if err != nil {
		return err
	}
	preimage, err := hex.DecodeString(secret.Preimage)
	if err != nil {
		return err
	}
	secretHash := swap.HashSecret(preimage)

	htlcScript, err := swap.BuildHTLCScript(ownPriv.PubKey(), aPub, secretHash)
	if err != nil {
		return err
	}

	offerRPC, err := e.rpcFor(peerOffer.OfferCurrency)
	if err != nil {
		return err
	}
	tx3, _, err := chainscan.FindCommitment(ctx, offerRPC, e.Clock.Now(), peerOffer.OfferCurrencyQuantity, htlcScript)
	if err != nil {
		return cateerrs.Trade("finding tx3: %v", err)
	}

	offerFeeRate, err := e.feeRateFor(peerOffer.OfferCurrency)
	if err != nil {
		return err
	}
	claimAddr, err := offerRPC.GetRawChangeAddress()
	if err != nil {
		return cateerrs.Configuration("getting claim address: %v", err)
	}
	claimTx, err := swap.BuildClaim(offerRPC, tx3, aPub, ownPriv, preimage, claimAddr, offerFeeRate)
	if err != nil {
		return cateerrs.Trade("building claim of tx3: %v", err)
	}
	txid, err := offerRPC.SendRawTransaction(claimTx)
	if err != nil {
		return cateerrs.Funds("broadcasting claim of tx3: %v", err)
	}

	_, err = e.putJSON(tradeID, slotCompleteB, completeRecord{ClaimTxid: txid.String()})
	return err
}

// ClaimAskCommitment implements A's side of message 6: once A's chain
// scanner observes the spend of TX3 and extracts the preimage from it, A
// claims TX1 on the ask-chain using the same preimage.
func (e *Engine) ClaimAskCommitment(ctx context.Context, tradeID string) error {
	if has, err := e.has(tradeID, slotCompleteA); err != nil {
		return err
	} else if has {
		return nil
	}

	var offer offerRecord
	if err := e.getJSON(tradeID, slotOffer, &offer); err != nil {
		return err
	}
	var peerAcceptance peerAcceptanceRecord
	if err := e.getJSON(tradeID, slotPeerAcceptance, &peerAcceptance); err != nil {
		return err
	}
	var ownKey privateKeyRecord
	if err := e.getJSON(tradeID, slotOfferPrivateKey, &ownKey); err != nil {
		return err
	}
	ownPriv, err := decodePrivKey(ownKey.PrivateKey)
	if err != nil {
		return err
	}
	bPub, err := decodePubKey(peerAcceptance.PublicKeyB)
	if err != nil {
		return err
	}
	secretHash, err := decodeHash(peerAcceptance.SecretHash)
	if err != nil {
		return err
	}

	offerRPC, err := e.rpcFor(offer.OfferCurrency)
	if err != nil {
		return err
	}
	htlcScript, err := swap.BuildHTLCScript(bPub, ownPriv.PubKey(), secretHash)
	if err != nil {
		return err
	}
	tx3, tx3OutIndex, err := chainscan.FindCommitment(ctx, offerRPC, e.Clock.Now(), offer.OfferCurrencyQuantity, htlcScript)
	if err != nil {
		return cateerrs.Trade("finding tx3: %v", err)
	}

	tx3Outpoint := wire.OutPoint{Hash: tx3.TxHash(), Index: tx3OutIndex}
	spendTx, spendInput, err := chainscan.FindSpender(ctx, offerRPC, tx3Outpoint, e.Clock.Now())
	if err != nil {
		return cateerrs.Trade("finding tx3 spender: %v", err)
	}
	preimage, err := chainscan.ExtractPreimage(spendTx, spendInput)
	if err != nil {
		return cateerrs.Trade("tx3 spend is not a claim: %v", err)
	}

	askRPC, err := e.rpcFor(offer.AskCurrency)
	if err != nil {
		return err
	}

	tx2, err := decodeTx(peerAcceptance.Tx2)
	if err != nil {
		return err
	}
	tx1Outpoint := tx2.TxIn[0].PreviousOutPoint
	tx1, err := chainscan.WaitForConfirmation(ctx, askRPC, &tx1Outpoint.Hash, e.Clock.Now())
	if err != nil {
		return cateerrs.Trade("fetching tx1: %v", err)
	}

	askFeeRate, err := e.feeRateFor(offer.AskCurrency)
	if err != nil {
		return err
	}
	claimAddr, err := askRPC.GetRawChangeAddress()
	if err != nil {
		return cateerrs.Configuration("getting claim address: %v", err)
	}
	claimTx, err := swap.BuildClaim(askRPC, tx1, bPub, ownPriv, preimage, claimAddr, askFeeRate)
	if err != nil {
		return cateerrs.Trade("building claim of tx1: %v", err)
	}
	txid, err := askRPC.SendRawTransaction(claimTx)
	if err != nil {
		return cateerrs.Funds("broadcasting claim of tx1: %v", err)
	}

	_, err = e.putJSON(tradeID, slotCompleteA, completeRecord{ClaimTxid: txid.String()})
	return err
}
