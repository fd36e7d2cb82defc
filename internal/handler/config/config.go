// Package config resolves one Handler process's configuration from the
// environment variables in spec.md §6, with an optional TOML overlay file
// for operator-managed defaults, modeled on klaytn's
// cmd/utils/nodecmd/dumpconfigcmd.go ("tomlSettings" field-name-preserving
// convention).
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Coin is one entry of PROC_HANDLER_COINS:
// "name|decimal|min|fee|address,name|decimal|min|fee|address,...".
type Coin struct {
	Name            string
	Decimals        int
	MinAmount       int64
	FeeAmount       int64
	ContractAddress string
}

type Config struct {
	AppPath          string
	HandlerName      string
	HandlerDisplay   string
	AdminSeed        string
	WriteDSN         string
	ReadDSN          string
	DBSecretKeyRaw   string
	ProviderURLs     []string
	ProviderAPIKeys  []string
	ScannerURL       string
	RateURLFast      string
	RateURLSlow      string
	QuoteCoinAddress string // contract_address of the coin internal accounting is denominated in; its rate is always 1
	Coins            []Coin
	NetworkName      string
	NetworkID        int64
	NetworkKind      string // "evm" or "tvm"
	StartBlock       string // "latest" or integer
	HandlerAPIKey    string
	DispatcherURL    string
	DispatcherAPIKey string

	// Operational knobs not carried by the Python env-var surface.
	// BlockOffset is the scanner's confirmation depth. AllowedSlippage and
	// BlockParserInterval are read from the environment but not used: the
	// scheduler's intervals are constants in package handler.
	// NativeWarningThreshold is fixed at 1.0.
	BlockOffset            int64
	AllowedSlippage        int64
	BlockParserInterval    int
	NativeWarningThreshold float64
}

// tomlSettings preserves Go field names verbatim in TOML keys, exactly as
// klaytn's dumpconfigcmd.go configures it.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// LoadFromFile reads a TOML overlay (operator-managed defaults); any field
// left zero is later filled from the environment by Load.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config overlay")
	}
	defer f.Close()
	cfg := &Config{}
	if err := tomlSettings.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config overlay")
	}
	return cfg, nil
}

// Load resolves configuration purely from the environment, per spec.md §6.
func Load() (*Config, error) {
	cfg := &Config{}
	var missing []string
	req := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	cfg.AppPath = req("APP_PATH")
	cfg.HandlerName = req("PROC_HANDLER_NAME")
	cfg.HandlerDisplay = req("PROC_HANDLER_DISPLAY")
	cfg.AdminSeed = req("PROC_HANDLER_ADMIN_SEED")
	cfg.WriteDSN = req("PROC_HANDLER_WRITE_DSN")
	cfg.ReadDSN = req("PROC_HANDLER_READ_DSN")
	cfg.DBSecretKeyRaw = req("PROC_HANDLER_DB_SECRET_KEY")
	cfg.ProviderURLs = splitNonEmpty(req("PROC_HANDLER_PROVIDER_URL"), ",")
	cfg.ProviderAPIKeys = splitNonEmpty(req("PROC_HANDLER_PROVIDER_API_KEYS"), ",")
	cfg.ScannerURL = req("PROC_HANDLER_SCANNER_URL")
	cfg.RateURLFast = envOr("PROC_HANDLER_RATE_URL_FAST", cfg.ScannerURL)
	cfg.RateURLSlow = envOr("PROC_HANDLER_RATE_URL_SLOW", cfg.ScannerURL)
	cfg.QuoteCoinAddress = strings.ToLower(req("PROC_HANDLER_QUOTE_COIN_ADDRESS"))
	coins, err := parseCoins(req("PROC_HANDLER_COINS"))
	if err != nil {
		return nil, err
	}
	cfg.Coins = coins
	cfg.NetworkName = req("PROC_HANDLER_NETWORK_NAME")
	cfg.NetworkID, _ = strconv.ParseInt(req("PROC_HANDLER_NETWORK_ID"), 10, 64)
	cfg.NetworkKind = envOr("PROC_HANDLER_NETWORK_KIND", "evm")
	cfg.StartBlock = req("PROC_HANDLER_START_BLOCK")
	cfg.HandlerAPIKey = req("PROC_HANDLER_API_KEY")
	cfg.DispatcherURL = req("PROC_URL")
	cfg.DispatcherAPIKey = req("PROC_API_KEY")

	cfg.BlockOffset = envInt64Or("PROC_HANDLER_BLOCK_OFFSET", 10)
	cfg.AllowedSlippage = envInt64Or("PROC_HANDLER_ALLOWED_SLIPPAGE", 2)
	cfg.BlockParserInterval = int(envInt64Or("PROC_HANDLER_BLOCK_PARSER_INTERVAL", 2))
	cfg.NativeWarningThreshold = 1.0

	if len(missing) > 0 {
		return nil, errors.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt64Or(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCoins(spec string) ([]Coin, error) {
	if spec == "" {
		return nil, nil
	}
	var coins []Coin
	for _, entry := range strings.Split(spec, ",") {
		fields := strings.Split(entry, "|")
		if len(fields) != 5 {
			return nil, errors.Errorf("malformed coin entry %q, want name|decimal|min|fee|address", entry)
		}
		decimals, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "decimal in coin entry %q", entry)
		}
		min, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "min in coin entry %q", entry)
		}
		fee, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "fee in coin entry %q", entry)
		}
		coins = append(coins, Coin{
			Name:            fields[0],
			Decimals:        decimals,
			MinAmount:       min,
			FeeAmount:       fee,
			ContractAddress: strings.ToLower(fields[4]),
		})
	}
	return coins, nil
}
