// Package config loads cate's configuration: the per-currency chain
// table, trade store location, and message-transport settings. The
// fixed, global options follow lnd.go's flags.NewParser/INI-file
// pattern exactly; the per-currency chain table is a dynamic set of
// `[chain "CODE"]` sections that go-flags' static struct tags cannot
// describe, so parseChainSections reads those sections by hand instead,
// matching spec.md §6's "single mapping of currency_code -> {...}" data
// model.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/rnicoll/cate/cateerrs"
)

// ChainConfig describes how to reach and pay fees on one registered
// currency's node, per SPEC_FULL.md §6.3.
type ChainConfig struct {
	Network    string
	RPCHost    string
	RPCUser    string
	RPCPass    string
	Port       int
	ConfigPath string
	FeePerKB   int64
}

// TransportConfig describes how protocol messages are exchanged with the
// counterparty. Only a file-drop transport ships with cate; a network
// transport is explicitly out of scope (spec.md §1), so this struct
// holds just enough to point at a directory.
type TransportConfig struct {
	Directory string `long:"transport.directory" description:"directory used for dropped/read message envelopes"`
}

// options is the subset of configuration go-flags can parse declaratively:
// global, fixed fields plus the path to the config file itself. The
// per-chain table is layered on top of this by LoadConfig.
type options struct {
	TradeStoreDir string `long:"tradestoredir" description:"root directory for the write-once trade store"`
	TransportConfig

	ConfigFile string `short:"C" long:"configfile" description:"path to cate.conf"`
}

// Config is cate's fully-loaded configuration.
type Config struct {
	TradeStoreDir string
	Chains        map[string]ChainConfig
	Transport     TransportConfig
}

// DefaultConfigFile is used when the operator does not supply -C.
const DefaultConfigFile = "cate.conf"

// LoadConfig parses cate.conf plus any command-line overrides in args,
// the way lnd.go's loadConfig first parses flags to find a non-default
// config file path, then re-parses the ini file, then lets flags
// override it again.
func LoadConfig(args []string) (*Config, error) {
	opts := &options{ConfigFile: DefaultConfigFile}

	preParser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		if isHelpErr(err) {
			return nil, err
		}
		return nil, cateerrs.Configuration("parsing command-line flags: %v", err)
	}

	chains := make(map[string]ChainConfig)
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err == nil {
			iniParser := flags.NewIniParser(flags.NewParser(opts, flags.Default|flags.IgnoreUnknown))
			if err := iniParser.ParseFile(opts.ConfigFile); err != nil {
				return nil, cateerrs.Configuration("parsing config file %s: %v", opts.ConfigFile, err)
			}
			parsed, err := parseChainSections(opts.ConfigFile)
			if err != nil {
				return nil, err
			}
			chains = parsed
		} else if !os.IsNotExist(err) {
			return nil, cateerrs.Configuration("statting config file %s: %v", opts.ConfigFile, err)
		}
	}

	finalParser := flags.NewParser(opts, flags.Default|flags.IgnoreUnknown)
	if _, err := finalParser.ParseArgs(args); err != nil {
		if isHelpErr(err) {
			return nil, err
		}
		return nil, cateerrs.Configuration("parsing command-line flags: %v", err)
	}

	cfg := &Config{
		TradeStoreDir: opts.TradeStoreDir,
		Chains:        chains,
		Transport:     opts.TransportConfig,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseChainSections scans cate.conf for `[chain "CODE"]` headers,
// reading the handful of key=value pairs each one carries. go-flags'
// struct-tag based ini.Parser only understands statically named groups,
// so the dynamic, currency-keyed sections are read by hand here.
func parseChainSections(path string) (map[string]ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cateerrs.Configuration("reading config file %s: %v", path, err)
	}

	chains := make(map[string]ChainConfig)
	var currentCode string
	var current ChainConfig
	flush := func() {
		if currentCode != "" {
			chains[currentCode] = current
		}
	}

	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			header := strings.Trim(line, "[]")
			code, ok := chainSectionCode(header)
			if !ok {
				flush()
				currentCode = ""
				continue
			}
			flush()
			currentCode = strings.ToUpper(code)
			current = ChainConfig{}
			continue
		}
		if currentCode == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(strings.Trim(value, `"`))
		if err := setChainField(&current, key, value); err != nil {
			return nil, cateerrs.Configuration("chain %q: %v", currentCode, err)
		}
	}
	flush()
	return chains, nil
}

func chainSectionCode(header string) (string, bool) {
	const prefix = `chain "`
	if !strings.HasPrefix(header, prefix) || !strings.HasSuffix(header, `"`) {
		return "", false
	}
	return header[len(prefix) : len(header)-1], true
}

func setChainField(c *ChainConfig, key, value string) error {
	switch key {
	case "network":
		c.Network = value
	case "rpchost":
		c.RPCHost = value
	case "rpcuser":
		c.RPCUser = value
	case "rpcpass":
		c.RPCPass = value
	case "configpath":
		c.ConfigPath = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parsing port %q: %w", value, err)
		}
		c.Port = port
	case "feeperkb":
		fee, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing feeperkb %q: %w", value, err)
		}
		c.FeePerKB = fee
	default:
		return fmt.Errorf("unknown chain config key %q", key)
	}
	return nil
}

func isHelpErr(err error) bool {
	if e, ok := err.(*flags.Error); ok {
		return e.Type == flags.ErrHelp
	}
	return false
}

// validate enforces the minimum shape cate needs to run at all: a trade
// store directory, at least one registered chain, and for every chain an
// rpchost and a positive feeperkb. Other chain fields are not checked
// here.
func validate(cfg *Config) error {
	if cfg.TradeStoreDir == "" {
		return cateerrs.Configuration("tradestoredir is required")
	}
	if len(cfg.Chains) == 0 {
		return cateerrs.Configuration(`at least one [chain "CODE"] section is required`)
	}
	for code, chain := range cfg.Chains {
		if chain.RPCHost == "" {
			return cateerrs.Configuration("chain %q is missing rpchost", code)
		}
		if chain.FeePerKB <= 0 {
			return cateerrs.Configuration("chain %q has a non-positive feeperkb", code)
		}
	}
	return nil
}

// ChainByCode looks up a registered chain's configuration, returning a
// MessageError since this lookup is always triggered by a currency code
// drawn from an inbound protocol message (spec.md §6: "unknown currency
// codes are an error at protocol boundary").
func (c *Config) ChainByCode(code string) (ChainConfig, error) {
	chain, ok := c.Chains[strings.ToUpper(code)]
	if !ok {
		return ChainConfig{}, cateerrs.Message("unknown currency code %q", code)
	}
	return chain, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{TradeStoreDir: %q, Chains: %d registered}",
		c.TradeStoreDir, len(c.Chains))
}
