// Package config resolves the Dispatcher process's configuration from
// environment variables only; unlike internal/handler/config it has no
// TOML overlay.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NetworkEntry seeds one network_handlers row from
// PROC_NETWORK_HANDLERS="name|base_url|api_key,...".
type NetworkEntry struct {
	NetworkName string
	BaseURL     string
	APIKey      string
}

type Config struct {
	AppPath       string
	WriteDSN      string
	ReadDSN       string
	ListenAddr    string
	AdminKey      string
	Networks      []NetworkEntry
	CallbackBatch int
}

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
	cfg.WriteDSN = req("PROC_DISPATCHER_WRITE_DSN")
	cfg.ReadDSN = req("PROC_DISPATCHER_READ_DSN")
	cfg.ListenAddr = envOr("PROC_DISPATCHER_LISTEN_ADDR", ":8081")
	cfg.AdminKey = req("PROC_DISPATCHER_ADMIN_KEY")

	networks, err := parseNetworks(req("PROC_NETWORK_HANDLERS"))
	if err != nil {
		return nil, err
	}
	cfg.Networks = networks
	cfg.CallbackBatch = int(envInt64Or("PROC_DISPATCHER_CALLBACK_BATCH", 100))

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

func parseNetworks(spec string) ([]NetworkEntry, error) {
	if spec == "" {
		return nil, nil
	}
	var out []NetworkEntry
	for _, entry := range strings.Split(spec, ",") {
		fields := strings.Split(entry, "|")
		if len(fields) != 3 {
			return nil, errors.Errorf("malformed network entry %q, want name|base_url|api_key", entry)
		}
		out = append(out, NetworkEntry{NetworkName: fields[0], BaseURL: fields[1], APIKey: fields[2]})
	}
	return out, nil
}
