// Package chainreg maps currency codes to the genesis-block hash that
// identifies them and to the per-chain network parameters a trade needs:
// address version, default P2P port, and the path to that chain's node
// config. It mirrors the bitcoinChain/litecoinChain dual-registry shape
// lnd's chainregistry.go builds for its own chainControl wiring, but reads
// from a caller-supplied table instead of being compiled in, so operators
// can register any Bitcoin-derived chain without a code change.
package chainreg

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rnicoll/cate/cateerrs"
)

// Params carries the network parameters a trade needs for one chain.
type Params struct {
	// Code is the short currency code, e.g. "BTC", "LTC".
	Code string

	// GenesisHash is the lowercase-hex genesis block hash that
	// identifies this chain on the wire; it is the value exchanged in
	// OFFER/ACCEPT messages (spec.md §6), not the Code string, because
	// it cannot be forged the way a three-letter ticker can.
	GenesisHash string

	// Net carries the chain's address-encoding and checksum parameters.
	Net *chaincfg.Params

	// DefaultPort is the chain's default P2P port, recorded for
	// operator convenience; cate itself only ever talks to a node's
	// RPC endpoint, never its P2P port.
	DefaultPort int

	// ConfPath is the default location of this chain's node
	// configuration file, used only to populate config.ChainConfig
	// defaults.
	ConfPath string

	// FeePerKB is the default fee rate in minimum units per 1000 bytes,
	// consumed by feepolicy.FeeForSize.
	FeePerKB int64
}

// Registry is a read-only, once-built mapping between genesis hash and
// currency code. It is safe for concurrent use by multiple handlers once
// constructed, matching spec.md §9's "global mutable state -> read-only
// context object" redesign note.
type Registry struct {
	byCode map[string]Params
	byHash map[string]string
}

// ErrNotFound is returned by CodeFor and GenesisFor when the requested
// chain was never registered.
var ErrNotFound = cateerrs.Configuration("chain not registered")

// New builds a Registry from a list of chain parameters. Genesis hashes
// and codes are case-folded to lowercase/uppercase respectively so lookups
// are forgiving of how an operator typed them in config.
func New(chains []Params) (*Registry, error) {
	r := &Registry{
		byCode: make(map[string]Params, len(chains)),
		byHash: make(map[string]string, len(chains)),
	}
	for _, p := range chains {
		code := strings.ToUpper(p.Code)
		hash := strings.ToLower(p.GenesisHash)

		if err := validateGenesisHash(hash); err != nil {
			return nil, cateerrs.Configuration(
				"chain %s: %s", code, err)
		}
		if _, exists := r.byCode[code]; exists {
			return nil, cateerrs.Configuration(
				"duplicate chain code %s", code)
		}
		if other, exists := r.byHash[hash]; exists {
			return nil, cateerrs.Configuration(
				"genesis hash %s claimed by both %s and %s",
				hash, other, code)
		}

		p.Code = code
		p.GenesisHash = hash
		r.byCode[code] = p
		r.byHash[hash] = code
	}
	return r, nil
}

func validateGenesisHash(hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return cateerrs.Configuration("genesis hash is not hex: %w", err)
	}
	if len(raw) != 32 {
		return cateerrs.Configuration(
			"genesis hash must be 32 bytes, got %d", len(raw))
	}
	return nil
}

// CodeFor returns the currency code registered under the given genesis
// hash (lowercase hex, 32 bytes), or ErrNotFound.
func (r *Registry) CodeFor(genesisHash string) (string, error) {
	code, ok := r.byHash[strings.ToLower(genesisHash)]
	if !ok {
		return "", ErrNotFound
	}
	return code, nil
}

// GenesisFor returns the genesis hash registered for a currency code, or
// ErrNotFound.
func (r *Registry) GenesisFor(code string) (string, error) {
	p, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return "", ErrNotFound
	}
	return p.GenesisHash, nil
}

// ParamsFor returns the full network parameters registered for a currency
// code, or ErrNotFound.
func (r *Registry) ParamsFor(code string) (Params, error) {
	p, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return Params{}, ErrNotFound
	}
	return p, nil
}

// Has reports whether a currency code is registered, without allocating an
// error — used at message-validation boundaries (spec.md §6: "Unknown
// currency codes are an error at protocol boundary").
func (r *Registry) Has(code string) bool {
	_, ok := r.byCode[strings.ToUpper(code)]
	return ok
}
