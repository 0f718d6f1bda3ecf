package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/msgtransport"
	"github.com/rnicoll/cate/swap"
)

// offerRecord is 1_offer's persisted content: what A offered, plus A's own
// pubkey so later steps don't need to re-derive it from the private key
// slot.
type offerRecord struct {
	TradeID               string `json:"trade_id"`
	OfferCurrency         string `json:"offer_currency"`
	OfferCurrencyQuantity int64  `json:"offer_currency_quantity"`
	AskCurrency           string `json:"ask_currency"`
	AskCurrencyQuantity   int64  `json:"ask_currency_quantity"`
	PublicKeyA            string `json:"public_key_a"`
}

type privateKeyRecord struct {
	PrivateKey string `json:"private_key"`
}

// Offer implements A's side of the trade's first step (spec.md §4.7
// message 1): generate A's keypair, persist it and the offer terms, and
// return the OFFER envelope to transmit to B.
func (e *Engine) Offer(ctx context.Context, tradeID, offerCurrency string, offerQuantity int64, askCurrency string, askQuantity int64) (msgtransport.Envelope, error) {
	var env msgtransport.Envelope
	err := e.run(func() error {
		var innerErr error
		env, innerErr = e.offerLocked(tradeID, offerCurrency, offerQuantity, askCurrency, askQuantity)
		return innerErr
	})
	return env, err
}

func (e *Engine) offerLocked(tradeID, offerCurrency string, offerQuantity int64, askCurrency string, askQuantity int64) (msgtransport.Envelope, error) {
	if _, err := uuid.Parse(tradeID); err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("trade id %q is not a UUID: %v", tradeID, err)
	}
	if offerQuantity <= 0 || askQuantity <= 0 {
		return msgtransport.Envelope{}, cateerrs.Message("offer and ask quantities must be positive")
	}
	if !e.Registry.Has(offerCurrency) {
		return msgtransport.Envelope{}, cateerrs.Message("unknown offer currency %q", offerCurrency)
	}
	if !e.Registry.Has(askCurrency) {
		return msgtransport.Envelope{}, cateerrs.Message("unknown ask currency %q", askCurrency)
	}
	if offerCurrency == askCurrency {
		return msgtransport.Envelope{}, cateerrs.Message("offer and ask currency must differ, both are %q", offerCurrency)
	}

	if has, err := e.has(tradeID, slotOffer); err != nil {
		return msgtransport.Envelope{}, err
	} else if has {
		return msgtransport.Envelope{}, nil
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return msgtransport.Envelope{}, goerrorsErrf("generating offer keypair: %v", err)
	}

	if _, err := e.putJSON(tradeID, slotOfferPrivateKey, privateKeyRecord{PrivateKey: hex.EncodeToString(priv.Serialize())}); err != nil {
		return msgtransport.Envelope{}, err
	}

	offerHash, err := e.Registry.GenesisFor(offerCurrency)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	askHash, err := e.Registry.GenesisFor(askCurrency)
	if err != nil {
		return msgtransport.Envelope{}, err
	}

	record := offerRecord{
		TradeID:               tradeID,
		OfferCurrency:         offerCurrency,
		OfferCurrencyQuantity: offerQuantity,
		AskCurrency:           askCurrency,
		AskCurrencyQuantity:   askQuantity,
		PublicKeyA:            hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}
	if _, err := e.putJSON(tradeID, slotOffer, record); err != nil {
		return msgtransport.Envelope{}, err
	}

	body := msgtransport.OfferBody{
		TradeID:               tradeID,
		OfferCurrencyHash:     offerHash,
		OfferCurrencyQuantity: offerQuantity,
		AskCurrencyHash:       askHash,
		AskCurrencyQuantity:   askQuantity,
		PublicKeyB:            record.PublicKeyA,
	}
	return msgtransport.NewEnvelope(msgtransport.SubjectOffer, body)
}

// peerOfferRecord is 2_offer's persisted content: the OFFER message as B
// received it, translated from genesis hashes to currency codes.
type peerOfferRecord struct {
	TradeID               string `json:"trade_id"`
	OfferCurrency         string `json:"offer_currency"`
	OfferCurrencyQuantity int64  `json:"offer_currency_quantity"`
	AskCurrency           string `json:"ask_currency"`
	AskCurrencyQuantity   int64  `json:"ask_currency_quantity"`
	PublicKeyA            string `json:"public_key_a"`
}

// handleOfferLocked implements B's side of message 1 and the construction
// of message 2 (ACCEPT) in one step, since nothing observable happens
// between OFFER_RECEIVED and ACCEPTED other than persisting the same data
// an operator would otherwise have to re-request (spec.md §4.7's "Before
// emitting: B generates preimage and keypair...").
func (e *Engine) handleOfferLocked(ctx context.Context, env msgtransport.Envelope) (msgtransport.Envelope, error) {
	body, err := env.DecodeOffer()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("%v", err)
	}
	if _, err := uuid.Parse(body.TradeID); err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("trade id %q is not a UUID: %v", body.TradeID, err)
	}
	if body.OfferCurrencyQuantity <= 0 || body.AskCurrencyQuantity <= 0 {
		return msgtransport.Envelope{}, cateerrs.Message("offer and ask quantities must be positive")
	}

	offerCode, err := e.Registry.CodeFor(body.OfferCurrencyHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("unknown offer currency hash %q", body.OfferCurrencyHash)
	}
	askCode, err := e.Registry.CodeFor(body.AskCurrencyHash)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("unknown ask currency hash %q", body.AskCurrencyHash)
	}
	offerPub, err := decodePubKey(body.PublicKeyB)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Message("invalid public_key_b: %v", err)
	}
	if offerCode == askCode {
		return msgtransport.Envelope{}, cateerrs.Message("offer and ask currency must differ, both are %q", offerCode)
	}

	if has, err := e.has(body.TradeID, slotAcceptance); err != nil {
		return msgtransport.Envelope{}, err
	} else if has {
		// Already accepted; replay of OFFER is a no-op per spec.md §4.7.
		return msgtransport.Envelope{}, nil
	}

	if wrote, err := e.putJSON(body.TradeID, slotPeerOffer, peerOfferRecord{
		TradeID:               body.TradeID,
		OfferCurrency:         offerCode,
		OfferCurrencyQuantity: body.OfferCurrencyQuantity,
		AskCurrency:           askCode,
		AskCurrencyQuantity:   body.AskCurrencyQuantity,
		PublicKeyA:            body.PublicKeyB,
	}); err != nil {
		return msgtransport.Envelope{}, err
	} else if !wrote {
		return msgtransport.Envelope{}, nil
	}

	return e.buildAcceptance(body.TradeID, offerCode, body.OfferCurrencyQuantity, askCode, body.AskCurrencyQuantity, offerPub)
}

func (e *Engine) buildAcceptance(tradeID, offerCode string, offerQuantity int64, askCode string, askQuantity int64, offerPub *btcec.PublicKey) (msgtransport.Envelope, error) {
	preimage := make([]byte, swap.PreimageSize)
	if _, err := rand.Read(preimage); err != nil {
		return msgtransport.Envelope{}, goerrorsErrf("generating secret: %v", err)
	}
	secretHash := swap.HashSecret(preimage)

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return msgtransport.Envelope{}, goerrorsErrf("generating accept keypair: %v", err)
	}

	if _, err := e.putJSON(tradeID, slotSecret, map[string]string{"preimage": hex.EncodeToString(preimage)}); err != nil {
		return msgtransport.Envelope{}, err
	}
	if _, err := e.putJSON(tradeID, slotAcceptPrivateKey, privateKeyRecord{PrivateKey: hex.EncodeToString(priv.Serialize())}); err != nil {
		return msgtransport.Envelope{}, err
	}

	// TX1 is B's commitment on the ask-chain: B is the sender, A is the
	// recipient, since A is the one who will eventually know the
	// preimage by watching the offer-chain (see claim.go).
	askRPC, err := e.rpcFor(askCode)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	askFeeRate, err := e.feeRateFor(askCode)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx1, err := swap.BuildSend(askRPC, askQuantity, priv.PubKey(), offerPub, secretHash, askFeeRate)
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Funds("building tx1: %v", err)
	}
	tx1Hex, err := encodeTx(tx1)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	if _, err := e.putJSON(tradeID, slotTx1, map[string]string{"tx1": tx1Hex}); err != nil {
		return msgtransport.Envelope{}, err
	}

	refundAddr, err := askRPC.GetRawChangeAddress()
	if err != nil {
		return msgtransport.Envelope{}, cateerrs.Configuration("getting refund address: %v", err)
	}
	lockTime := uint32(refundLockTimeFor(e.Clock, refundWindow))
	tx2, err := swap.BuildUnsignedRefund(tx1, 0, refundAddr, lockTime, askFeeRate)
	if err != nil {
		return msgtransport.Envelope{}, err
	}
	tx2Hex, err := encodeTx(tx2)
	if err != nil {
		return msgtransport.Envelope{}, err
	}

	record := struct {
		TradeID    string `json:"trade_id"`
		SecretHash string `json:"secret_hash"`
		PublicKeyB string `json:"public_key_b"`
		Tx2        string `json:"tx2"`
	}{
		TradeID:    tradeID,
		SecretHash: encodeHash(secretHash),
		PublicKeyB: hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		Tx2:        tx2Hex,
	}
	if _, err := e.putJSON(tradeID, slotAcceptance, record); err != nil {
		return msgtransport.Envelope{}, err
	}

	body := msgtransport.AcceptBody{
		TradeID:    tradeID,
		SecretHash: record.SecretHash,
		PublicKeyA: record.PublicKeyB,
		Tx2:        tx2Hex,
	}
	return msgtransport.NewEnvelope(msgtransport.SubjectAccept, body)
}

func decodePubKey(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(raw)
}
