package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConf = `
tradestoredir = /var/lib/cate/trades
transport.directory = /var/lib/cate/transport

[chain "BTC"]
network = mainnet
rpchost = 127.0.0.1:8332
rpcuser = cate
rpcpass = hunter2
feeperkb = 1000
port = 8333

[chain "LTC"]
network = mainnet
rpchost = 127.0.0.1:9332
rpcuser = cate
rpcpass = hunter2
feeperkb = 2000
port = 9333
`

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cate.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigParsesChainSections(t *testing.T) {
	path := writeConf(t, sampleConf)

	cfg, err := LoadConfig([]string{"-C", path})
	require.NoError(t, err)

	require.Equal(t, "/var/lib/cate/trades", cfg.TradeStoreDir)
	require.Len(t, cfg.Chains, 2)

	btc, err := cfg.ChainByCode("btc")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8332", btc.RPCHost)
	require.Equal(t, int64(1000), btc.FeePerKB)

	_, err = cfg.ChainByCode("DOGE")
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingTradeStoreDir(t *testing.T) {
	path := writeConf(t, `
[chain "BTC"]
rpchost = 127.0.0.1:8332
feeperkb = 1000
`)
	_, err := LoadConfig([]string{"-C", path})
	require.Error(t, err)
}

func TestLoadConfigRejectsChainWithoutFee(t *testing.T) {
	path := writeConf(t, `
tradestoredir = /var/lib/cate/trades

[chain "BTC"]
rpchost = 127.0.0.1:8332
`)
	_, err := LoadConfig([]string{"-C", path})
	require.Error(t, err)
}
