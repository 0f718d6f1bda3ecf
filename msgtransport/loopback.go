package msgtransport

import "context"

// LoopbackTransport is an in-process Transport connecting two parties
// via a pair of channels, for tests that exchange envelopes without a
// filesystem round-trip.
type LoopbackTransport struct {
	sendCh chan<- Envelope
	recvCh <-chan Envelope
}

func (t *LoopbackTransport) Send(ctx context.Context, tradeID string, envelope Envelope) error {
	select {
	case t.sendCh <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *LoopbackTransport) Recv(ctx context.Context) (Envelope, error) {
	select {
	case e := <-t.recvCh:
		return e, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Pipe returns two LoopbackTransports, each other's counterpart: a's
// Send is b's Recv and vice versa.
func Pipe(buffer int) (a, b *LoopbackTransport) {
	aToB := make(chan Envelope, buffer)
	bToA := make(chan Envelope, buffer)
	a = &LoopbackTransport{sendCh: aToB, recvCh: bToA}
	b = &LoopbackTransport{sendCh: bToA, recvCh: aToB}
	return a, b
}
