package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultTypingTTL is how long a typing signal stays visible without a
// refresh. A tunable, not a contract.
const defaultTypingTTL = 4 * time.Second

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// Load reads a YAML config file from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEffective merges flags, config file and environment into a single
// effective config. Precedence: explicit flags > env > file > defaults.
func LoadEffective(flags Flags) (*Config, error) {
	cfg := &Config{}
	if b, err := os.ReadFile(flags.Config); err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	} else if flags.Set["config"] {
		// an explicitly requested config file must exist
		return nil, err
	}

	applyEnv(cfg)

	if flags.Set["addr"] {
		cfg.Server.Address = flags.Addr
		cfg.Server.Port = 0
	}
	if flags.Set["db"] || cfg.Server.DBPath == "" {
		cfg.Server.DBPath = flags.DB
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATRELAY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
		cfg.Server.Port = 0
	}
	if v := os.Getenv("CHATRELAY_SERVER_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHATRELAY_SIGNING_KEYS"); v != "" {
		cfg.Auth.SigningKeys = parseList(v)
	}
	if v := os.Getenv("CHATRELAY_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Auth.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("CHATRELAY_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.RateLimit.Burst = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Fanout.QueueCapacity <= 0 {
		cfg.Fanout.QueueCapacity = 64 * 1024
	}
	if cfg.Fanout.SendBuffer <= 0 {
		cfg.Fanout.SendBuffer = 256
	}
	if cfg.Presence.TypingTTL.Duration() <= 0 {
		cfg.Presence.TypingTTL = Duration(defaultTypingTTL)
	}
	if cfg.Retention.BatchSize <= 0 {
		cfg.Retention.BatchSize = 500
	}
}

func parseList(v string) []string {
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// RuntimeConfig holds derived runtime values that other packages may query
// at runtime (populated during startup after merging env+file).
type RuntimeConfig struct {
	SigningKeys map[string]struct{}
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

// GetSigningKeys returns a copy of configured signing keys.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := map[string]struct{}{}
	if runtimeCfg == nil || runtimeCfg.SigningKeys == nil {
		return out
	}
	for k := range runtimeCfg.SigningKeys {
		out[k] = struct{}{}
	}
	return out
}
