// Command cate drives one step of the cross-chain atomic swap protocol
// per invocation: generate an offer, consume the next inbound message,
// claim a commitment, force a refund after the lock time, or audit a
// trade's progress. State lives in the write-once trade store between
// invocations; there is no long-running daemon mode.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/rnicoll/cate"
	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/config"
	"github.com/rnicoll/cate/msgtransport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		if flagsHelpRequested(err) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "[cate] %v\n", err)
		return cateerrs.ExitCode(err)
	}

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[cate] %v\n", err)
		return cateerrs.ExitCode(err)
	}
	defer a.Close()

	if err := dispatch(a, args); err != nil {
		fmt.Fprintf(os.Stderr, "[cate] %v\n", err)
		return cateerrs.ExitCode(err)
	}
	return 0
}

// dispatch registers one go-flags command per protocol step (spec.md
// §4.7) and lets the parser pick which one args selects, the same
// command-group shape lncli's per-RPC commands use, swapping
// urfave/cli's registration for go-flags' AddCommand.
func dispatch(a *app, args []string) error {
	parser := flags.NewParser(&struct{}{}, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)

	if _, err := parser.AddCommand("offer", "Offer a trade", "Propose a new trade to a counterparty (message 1).", &offerCommand{app: a}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("accept", "Accept an offer", "Consume an inbound OFFER and reply with ACCEPT (message 2).", &acceptCommand{recvCommand{app: a, subject: msgtransport.SubjectOffer, verb: "accept"}}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("confirm", "Confirm an acceptance", "Consume an inbound ACCEPT and reply with CONFIRM (message 3).", &confirmCommand{recvCommand{app: a, subject: msgtransport.SubjectAccept, verb: "confirm"}}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("send", "Send coins", "Consume an inbound CONFIRM and reply with SEND (message 4).", &sendCommand{recvCommand{app: a, subject: msgtransport.SubjectConfirm, verb: "send"}}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("claim", "Claim a commitment", "Reveal the secret and sweep the counterparty's commitment output.", &claimCommand{app: a}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("refund", "Refund a commitment", "Reclaim a commitment output after its lock time has elapsed.", &refundCommand{app: a}); err != nil {
		return err
	}
	if _, err := parser.AddCommand("audit", "Audit a trade", "List the write-once status of every slot known for a trade.", &auditCommand{app: a}); err != nil {
		return err
	}

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsHelpRequested(err) {
			return nil
		}
		return cateerrs.Message("%v", err)
	}
	return nil
}

func flagsHelpRequested(err error) bool {
	if e, ok := err.(*flags.Error); ok {
		return e.Type == flags.ErrHelp
	}
	return false
}

func init() {
	cate.SetLogLevels("info")
}
