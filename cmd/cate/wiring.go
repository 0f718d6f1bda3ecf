package main

import (
	"strings"

	btcchaincfg "github.com/btcsuite/btcd/chaincfg"
	ltcchaincfg "github.com/ltcsuite/ltcd/chaincfg"

	"github.com/rnicoll/cate/cateerrs"
	"github.com/rnicoll/cate/chainreg"
	"github.com/rnicoll/cate/chainrpc"
	"github.com/rnicoll/cate/config"
)

// resolvedChain bundles the two views a registered currency needs: the
// genesis hash string chainreg.Registry keys trades on, and the
// btcd-shaped address parameters chainrpc/swap need to decode and build
// addresses for that chain.
type resolvedChain struct {
	genesisHash string
	addrParams  *btcchaincfg.Params
}

// resolveChain maps a registered currency code and its configured
// network name to the parameters cate needs, mirroring chainregistry.go's
// bitcoinChain/litecoinChain switch but reading the registered code
// instead of a compiled-in chainCode enum.
//
// Litecoin's address-version bytes are read out of ltcsuite/ltcd's own
// chaincfg.Params and copied into a btcd-shaped chaincfg.Params, since
// every address-decoding call in chainrpc/swap is typed against
// btcsuite/btcd/chaincfg.Params (cate talks to an ltcd node's RPC using
// btcd's own client and address codec, the same way decred/atomicswap's
// Litecoin support works against a Bitcoin-family RPC/address stack).
func resolveChain(code, network string) (resolvedChain, error) {
	switch strings.ToUpper(code) {
	case "BTC":
		p, err := btcNetParams(network)
		if err != nil {
			return resolvedChain{}, err
		}
		return resolvedChain{genesisHash: p.GenesisHash.String(), addrParams: p}, nil
	case "LTC":
		src, err := ltcNetParams(network)
		if err != nil {
			return resolvedChain{}, err
		}
		return resolvedChain{
			genesisHash: src.GenesisHash.String(),
			addrParams: &btcchaincfg.Params{
				Name:             src.Name,
				PubKeyHashAddrID: src.PubKeyHashAddrID,
				ScriptHashAddrID: src.ScriptHashAddrID,
				PrivateKeyID:     src.PrivateKeyID,
			},
		}, nil
	default:
		return resolvedChain{}, cateerrs.Configuration("unsupported chain code %q (cate knows BTC, LTC)", code)
	}
}

func btcNetParams(network string) (*btcchaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &btcchaincfg.MainNetParams, nil
	case "testnet":
		return &btcchaincfg.TestNet3Params, nil
	case "regtest":
		return &btcchaincfg.RegressionNetParams, nil
	default:
		return nil, cateerrs.Configuration("unsupported network %q for BTC", network)
	}
}

func ltcNetParams(network string) (*ltcchaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &ltcchaincfg.MainNetParams, nil
	case "testnet":
		return &ltcchaincfg.TestNet4Params, nil
	case "regtest":
		return &ltcchaincfg.RegressionNetParams, nil
	default:
		return nil, cateerrs.Configuration("unsupported network %q for LTC", network)
	}
}

// buildRegistry constructs a chainreg.Registry from every chain
// configured in cfg, resolving each one's address parameters and
// genesis hash.
func buildRegistry(cfg *config.Config) (*chainreg.Registry, error) {
	chains := make([]chainreg.Params, 0, len(cfg.Chains))
	for code, chainCfg := range cfg.Chains {
		resolved, err := resolveChain(code, chainCfg.Network)
		if err != nil {
			return nil, err
		}
		chains = append(chains, chainreg.Params{
			Code:        code,
			GenesisHash: resolved.genesisHash,
			Net:         resolved.addrParams,
			DefaultPort: chainCfg.Port,
			ConfPath:    chainCfg.ConfigPath,
			FeePerKB:    chainCfg.FeePerKB,
		})
	}
	return chainreg.New(chains)
}

// buildRPCClients dials one chainrpc.RPCClient per configured chain.
// TLS is not wired here: cate's ChainConfig carries no certificate
// path, matching spec.md's scope (the node's own network security is
// an external collaborator's concern, not cate's).
func buildRPCClients(cfg *config.Config, registry *chainreg.Registry) (map[string]chainrpc.Client, error) {
	clients := make(map[string]chainrpc.Client, len(cfg.Chains))
	for code, chainCfg := range cfg.Chains {
		params, err := registry.ParamsFor(code)
		if err != nil {
			return nil, err
		}
		client, err := chainrpc.NewRPCClient(chainCfg.RPCHost, chainCfg.RPCUser, chainCfg.RPCPass, nil, true, params.Net)
		if err != nil {
			return nil, cateerrs.Configuration("dialing chain %q: %v", code, err)
		}
		clients[strings.ToUpper(code)] = client
	}
	return clients, nil
}

// buildFeeRates collects each configured chain's default fee rate.
func buildFeeRates(cfg *config.Config) map[string]int64 {
	rates := make(map[string]int64, len(cfg.Chains))
	for code, chainCfg := range cfg.Chains {
		rates[strings.ToUpper(code)] = chainCfg.FeePerKB
	}
	return rates
}
