package main

import (
	"path/filepath"
	"time"

	"github.com/rnicoll/cate/chainreg"
	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/config"
	"github.com/rnicoll/cate/engine"
	"github.com/rnicoll/cate/msgtransport"
	"github.com/rnicoll/cate/tradestore"

	"github.com/lightningnetwork/lnd/clock"
)

// transportPollInterval is how often FileTransport.Recv checks its
// inbox for a new envelope when none is immediately available.
const transportPollInterval = 2 * time.Second

// app bundles every collaborator one invocation of cate needs, built
// once in newApp and handed to whichever subcommand runs.
type app struct {
	cfg       *config.Config
	registry  *chainreg.Registry
	engine    *engine.Engine
	transport *msgtransport.FileTransport
}

func newApp(cfg *config.Config) (*app, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	rpcClients, err := buildRPCClients(cfg, registry)
	if err != nil {
		return nil, err
	}
	feeRates := buildFeeRates(cfg)

	store := tradestore.NewFileStore(cfg.TradeStoreDir)

	transport, err := msgtransport.NewFileTransport(
		filepath.Join(cfg.Transport.Directory, "inbox"),
		filepath.Join(cfg.Transport.Directory, "outbox"),
		transportPollInterval,
	)
	if err != nil {
		return nil, err
	}

	eng := engine.New(registry, store, transport, clock.NewDefaultClock(), rpcClients, feeRates)
	eng.RefundDelta = engine.RefundDeltaSeconds

	return &app{cfg: cfg, registry: registry, engine: eng, transport: transport}, nil
}

// Close halts the engine's serialization queue. No subcommand may use
// app after Close returns.
func (a *app) Close() {
	a.engine.Stop()
}
