package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/engine"
	"github.com/rnicoll/cate/msgtransport"
)

// offerCommand implements A's side of message 1 (spec.md §4.7): generate
// a trade_id if none was given, build the OFFER envelope, and drop it in
// the outbox for the counterparty to pick up.
type offerCommand struct {
	TradeID       string `long:"trade-id" description:"trade id; a new UUID is generated if omitted"`
	OfferCurrency string `long:"offer-currency" required:"true" description:"currency code being offered"`
	OfferQuantity int64  `long:"offer-quantity" required:"true" description:"quantity offered, in minimum units"`
	AskCurrency   string `long:"ask-currency" required:"true" description:"currency code being asked for"`
	AskQuantity   int64  `long:"ask-quantity" required:"true" description:"quantity asked for, in minimum units"`

	app *app
}

func (c *offerCommand) Execute(_ []string) error {
	tradeID := c.TradeID
	if tradeID == "" {
		tradeID = uuid.New().String()
	}

	ctx := context.Background()
	env, err := c.app.engine.Offer(ctx, tradeID, c.OfferCurrency, c.OfferQuantity, c.AskCurrency, c.AskQuantity)
	if err != nil {
		return err
	}
	if err := c.app.transport.Send(ctx, tradeID, env); err != nil {
		return err
	}
	fmt.Printf("offered trade %s\n", tradeID)
	return nil
}

// recvCommand is shared by accept/confirm/send: each reads the next
// envelope from the inbox, rejects it if it is not the expected subject
// (so e.g. "cate accept" cannot be used to accidentally process a
// CONFIRM), dispatches it, and sends any reply envelope back out.
type recvCommand struct {
	app     *app
	subject msgtransport.Subject
	verb    string
}

func (c *recvCommand) Execute(_ []string) error {
	ctx := context.Background()
	env, err := c.app.transport.Recv(ctx)
	if err != nil {
		return err
	}
	if env.Subject != c.subject {
		return cateerrs.Message("expected a %s message for %q, got %s", c.subject, c.verb, env.Subject)
	}

	reply, err := c.app.engine.Dispatch(ctx, env)
	if err != nil {
		return err
	}
	if reply.Subject == "" {
		fmt.Printf("%s: no-op (replay or terminal step)\n", c.verb)
		return nil
	}

	tradeID, err := tradeIDFromEnvelope(reply)
	if err != nil {
		return err
	}
	if err := c.app.transport.Send(ctx, tradeID, reply); err != nil {
		return err
	}
	fmt.Printf("%s: sent %s\n", c.verb, reply.Subject)
	return nil
}

// acceptCommand, confirmCommand, sendCommand each just pin recvCommand
// to the message subject they are allowed to consume, so operators get
// one subcommand per protocol step as spec.md §4.7 names them even
// though the dispatch underneath is uniform.
type acceptCommand struct {
	recvCommand
}

type confirmCommand struct {
	recvCommand
}

type sendCommand struct {
	recvCommand
}

func (c *acceptCommand) Execute(args []string) error  { return c.recvCommand.Execute(args) }
func (c *confirmCommand) Execute(args []string) error { return c.recvCommand.Execute(args) }
func (c *sendCommand) Execute(args []string) error    { return c.recvCommand.Execute(args) }

// claimCommand implements messages 5 and 6: it inspects which role the
// local trade store belongs to and calls the matching claim handler, so
// the operator does not have to state which side of the trade they are
// on (engine.RoleFor already knows, from which keypair slot was written).
type claimCommand struct {
	TradeID string `long:"trade-id" required:"true" description:"trade id to claim"`

	app *app
}

func (c *claimCommand) Execute(_ []string) error {
	ctx := context.Background()
	role, err := c.app.engine.RoleFor(c.TradeID)
	if err != nil {
		return err
	}
	switch role {
	case engine.RoleAccepter:
		return c.app.engine.ClaimOfferCommitment(ctx, c.TradeID)
	case engine.RoleOfferer:
		return c.app.engine.ClaimAskCommitment(ctx, c.TradeID)
	default:
		return cateerrs.Audit("trade %s has no determinable role", c.TradeID)
	}
}

// refundCommand implements the two recovery handlers (spec.md §4.7), also
// dispatched by role.
type refundCommand struct {
	TradeID string `long:"trade-id" required:"true" description:"trade id to refund"`

	app *app
}

func (c *refundCommand) Execute(_ []string) error {
	ctx := context.Background()
	role, err := c.app.engine.RoleFor(c.TradeID)
	if err != nil {
		return err
	}
	switch role {
	case engine.RoleAccepter:
		return c.app.engine.RefundB(ctx, c.TradeID)
	case engine.RoleOfferer:
		return c.app.engine.RefundA(ctx, c.TradeID)
	default:
		return cateerrs.Audit("trade %s has no determinable role", c.TradeID)
	}
}

// auditCommand prints the write-once status of every slot cate knows
// about for a trade (spec.md §4.6's audit record), for operator
// inspection between protocol steps.
type auditCommand struct {
	TradeID string `long:"trade-id" required:"true" description:"trade id to audit"`

	app *app
}

func (c *auditCommand) Execute(_ []string) error {
	statuses, err := c.app.engine.Audit(c.TradeID)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		mark := " "
		if s.Present {
			mark = "x"
		}
		fmt.Printf("[%s] %s\n", mark, s.Slot)
	}
	return nil
}

func tradeIDFromEnvelope(env msgtransport.Envelope) (string, error) {
	switch env.Subject {
	case msgtransport.SubjectOffer:
		body, err := env.DecodeOffer()
		return body.TradeID, err
	case msgtransport.SubjectAccept:
		body, err := env.DecodeAccept()
		return body.TradeID, err
	case msgtransport.SubjectConfirm:
		body, err := env.DecodeConfirm()
		return body.TradeID, err
	case msgtransport.SubjectSend:
		body, err := env.DecodeSend()
		return body.TradeID, err
	default:
		return "", cateerrs.Message("unknown message subject %q", env.Subject)
	}
}
