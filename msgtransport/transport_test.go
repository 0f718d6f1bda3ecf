package msgtransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	body := OfferBody{
		TradeID:               "3b1e9f2a-9c1e-4b3a-8f3a-1e2d3c4b5a69",
		OfferCurrencyHash:     "aa",
		OfferCurrencyQuantity: 1000000,
		AskCurrencyHash:       "bb",
		AskCurrencyQuantity:   2000000,
		PublicKeyB:            "02abcd",
	}
	env, err := NewEnvelope(SubjectOffer, body)
	require.NoError(t, err)

	decoded, err := env.DecodeOffer()
	require.NoError(t, err)
	require.Equal(t, body, decoded)

	_, err = env.DecodeAccept()
	require.Error(t, err)
}

func TestLoopbackTransportPipe(t *testing.T) {
	a, b := Pipe(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	env, err := NewEnvelope(SubjectSend, SendBody{TradeID: "t1", Tx4Sig: "ff"})
	require.NoError(t, err)

	require.NoError(t, a.Send(ctx, "t1", env))
	got, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, env.Subject, got.Subject)
}

func TestFileTransportRoundTrip(t *testing.T) {
	aliceOut := t.TempDir()
	bobOut := t.TempDir()

	alice, err := NewFileTransport(bobOut, aliceOut, 10*time.Millisecond)
	require.NoError(t, err)
	bob, err := NewFileTransport(aliceOut, bobOut, 10*time.Millisecond)
	require.NoError(t, err)

	env, err := NewEnvelope(SubjectConfirm, ConfirmBody{TradeID: "t1", Tx2Sig: "aa", Tx4: "bb"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, alice.Send(ctx, "t1", env))
	got, err := bob.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, SubjectConfirm, got.Subject)

	decoded, err := got.DecodeConfirm()
	require.NoError(t, err)
	require.Equal(t, "aa", decoded.Tx2Sig)
}
