package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestLoadYAML verifies a config file round-trips, including duration
// fields given as strings and as bare seconds.
func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/tmp/db"
  allowed_origins:
    - "https://app.example.com"
auth:
  signing_keys:
    - "k1"
  rate_limit:
    rps: 10
    burst: 20
presence:
  typing_ttl: "2s"
fanout:
  queue_capacity: 1024
  send_buffer: 32
retention:
  enabled: true
  cron: "0 3 * * *"
  period: "720h"
logging:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, 2*time.Second, cfg.Presence.TypingTTL.Duration())
	require.True(t, cfg.Retention.Enabled)
	require.Equal(t, "0 3 * * *", cfg.Retention.Cron)
	require.Equal(t, []string{"k1"}, cfg.Auth.SigningKeys)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 1024, cfg.Fanout.QueueCapacity)
	require.Equal(t, float64(10), cfg.Auth.RateLimit.RPS)
}

// TestDurationUnmarshal covers the string and bare-number forms.
func TestDurationUnmarshal(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte(`d: "1500ms"`), &out); err != nil {
		t.Fatalf("unmarshal string form: %v", err)
	}
	if out.D.Duration() != 1500*time.Millisecond {
		t.Fatalf("got %v", out.D.Duration())
	}
	if err := yaml.Unmarshal([]byte(`d: 3`), &out); err != nil {
		t.Fatalf("unmarshal number form: %v", err)
	}
	if out.D.Duration() != 3*time.Second {
		t.Fatalf("got %v", out.D.Duration())
	}
	if err := yaml.Unmarshal([]byte(`d: "nope"`), &out); err == nil {
		t.Fatalf("invalid duration should fail")
	}
}

// TestAddrDefaults covers the address/port fallback rules.
func TestAddrDefaults(t *testing.T) {
	cases := []struct {
		addr string
		port int
		want string
	}{
		{"", 0, ":8080"},
		{":9000", 0, ":9000"},
		{"0.0.0.0", 0, "0.0.0.0:8080"},
		{"127.0.0.1", 7000, "127.0.0.1:7000"},
	}
	for _, c := range cases {
		cfg := &Config{}
		cfg.Server.Address = c.addr
		cfg.Server.Port = c.port
		if got := cfg.Addr(); got != c.want {
			t.Fatalf("Addr(%q,%d) = %q; want %q", c.addr, c.port, got, c.want)
		}
	}
}

// TestLoadEffectivePrecedence verifies env overrides the file and an
// explicit flag overrides both, with defaults filled last.
func TestLoadEffectivePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \"file-host:1111\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHATRELAY_SERVER_ADDRESS", "env-host:2222")
	t.Setenv("CHATRELAY_SIGNING_KEYS", "ka, kb")

	cfg, err := LoadEffective(Flags{Addr: ":8080", DB: "./.database", Config: path, Set: map[string]bool{}})
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if cfg.Addr() != "env-host:2222" {
		t.Fatalf("env should beat file; got %q", cfg.Addr())
	}
	if len(cfg.Auth.SigningKeys) != 2 || cfg.Auth.SigningKeys[1] != "kb" {
		t.Fatalf("signing keys from env: %v", cfg.Auth.SigningKeys)
	}
	if cfg.Server.DBPath != "./.database" {
		t.Fatalf("db default: %q", cfg.Server.DBPath)
	}
	if cfg.Fanout.QueueCapacity != 64*1024 || cfg.Fanout.SendBuffer != 256 {
		t.Fatalf("fanout defaults: %+v", cfg.Fanout)
	}
	if cfg.Presence.TypingTTL.Duration() != 4*time.Second {
		t.Fatalf("typing TTL default: %v", cfg.Presence.TypingTTL.Duration())
	}

	// explicit flag wins over env
	cfg, err = LoadEffective(Flags{Addr: ":3333", DB: "./.database", Config: path, Set: map[string]bool{"addr": true}})
	if err != nil {
		t.Fatalf("LoadEffective with flag: %v", err)
	}
	if cfg.Addr() != ":3333" {
		t.Fatalf("flag should beat env; got %q", cfg.Addr())
	}
}

// TestLoadEffectiveMissingExplicitConfig verifies an explicitly requested
// config file must exist, while the default path may be absent.
func TestLoadEffectiveMissingExplicitConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := LoadEffective(Flags{Config: missing, Set: map[string]bool{"config": true}}); err == nil {
		t.Fatalf("explicit missing config should fail")
	}
	if _, err := LoadEffective(Flags{DB: "./.database", Config: missing, Set: map[string]bool{}}); err != nil {
		t.Fatalf("default missing config should be tolerated: %v", err)
	}
}

// TestRuntimeSigningKeys verifies SetRuntime/GetSigningKeys copy
// semantics.
func TestRuntimeSigningKeys(t *testing.T) {
	SetRuntime(&RuntimeConfig{SigningKeys: map[string]struct{}{"k1": {}}})
	defer SetRuntime(nil)

	keys := GetSigningKeys()
	if _, ok := keys["k1"]; !ok {
		t.Fatalf("expected k1 in %v", keys)
	}
	// mutating the copy must not affect the runtime state
	keys["evil"] = struct{}{}
	if _, ok := GetSigningKeys()["evil"]; ok {
		t.Fatalf("GetSigningKeys must return a copy")
	}
}
