package chainreg

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testParams(code, hash string) Params {
	return Params{
		Code:        code,
		GenesisHash: hash,
		Net:         &chaincfg.MainNetParams,
		DefaultPort: 8333,
		FeePerKB:    1000,
	}
}

const (
	btcGenesis = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	ltcGenesis = "12a765e31ffd4059bada1e25190f6e98c99d9714d334efa41a195a7e7e04bfe2"
)

func TestNewRejectsDuplicateCode(t *testing.T) {
	_, err := New([]Params{
		testParams("BTC", btcGenesis),
		testParams("btc", ltcGenesis),
	})
	require.Error(t, err)
}

func TestNewRejectsDuplicateGenesisHash(t *testing.T) {
	_, err := New([]Params{
		testParams("BTC", btcGenesis),
		testParams("LTC", btcGenesis),
	})
	require.Error(t, err)
}

func TestNewRejectsMalformedGenesisHash(t *testing.T) {
	_, err := New([]Params{testParams("BTC", "not-hex")})
	require.Error(t, err)

	_, err = New([]Params{testParams("BTC", "aabb")})
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	reg, err := New([]Params{
		testParams("BTC", btcGenesis),
		testParams("LTC", ltcGenesis),
	})
	require.NoError(t, err)

	code, err := reg.CodeFor(strings.ToUpper(btcGenesis))
	require.NoError(t, err)
	require.Equal(t, "BTC", code)

	hash, err := reg.GenesisFor("btc")
	require.NoError(t, err)
	require.Equal(t, btcGenesis, hash)

	require.True(t, reg.Has("LTC"))
	require.False(t, reg.Has("DOGE"))

	_, err = reg.CodeFor("ff"+strings.Repeat("00", 31))
	require.ErrorIs(t, err, ErrNotFound)
}
