package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oarkflow/fernet/token"
)

const (
	keyA = "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4="
	keyB = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvKeys, EnvTTL, EnvRetain, EnvLogLevel, EnvLogFormat} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retain != 3 || cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.TTL != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := cfg.Ring(); !errors.Is(err, token.ErrEmptyRing) {
		t.Fatalf("Ring without keys: got %v, want ErrEmptyRing", err)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "fernet.yaml", "keys:\n  - "+keyA+"\n  - "+keyB+"\nttl: 90s\nretain: 5\nlog_level: debug\nlog_format: json\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Keys) != 2 || cfg.Keys[0] != keyA {
		t.Fatalf("keys = %v", cfg.Keys)
	}
	if cfg.TTL != 90*time.Second {
		t.Fatalf("ttl = %v", cfg.TTL)
	}
	if cfg.Retain != 5 {
		t.Fatalf("retain = %d", cfg.Retain)
	}
	level, err := cfg.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Fatalf("level = %v, %v", level, err)
	}
	ring, err := cfg.Ring()
	if err != nil {
		t.Fatalf("Ring: %v", err)
	}
	if ring.Len() != 2 {
		t.Fatalf("ring len = %d", ring.Len())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "fernet.yaml", "keys: ["+keyA+"]\nttl: 1m\n")
	t.Setenv(EnvKeys, keyB+", "+keyA)
	t.Setenv(EnvTTL, "2h")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Keys) != 2 || cfg.Keys[0] != keyB {
		t.Fatalf("keys = %v", cfg.Keys)
	}
	if cfg.TTL != 2*time.Hour {
		t.Fatalf("ttl = %v", cfg.TTL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", EnvKeys+"="+keyA+"\n"+EnvRetain+"=2\n")
	t.Cleanup(func() {
		os.Unsetenv(EnvKeys)
		os.Unsetenv(EnvRetain)
	})

	cfg, err := Load("", filepath.Join(dir, "missing.env"), envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Keys) != 1 || cfg.Keys[0] != keyA {
		t.Fatalf("keys = %v", cfg.Keys)
	}
	if cfg.Retain != 2 {
		t.Fatalf("retain = %d", cfg.Retain)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "bad ttl env", env: map[string]string{EnvTTL: "soon"}},
		{name: "negative ttl", yaml: "ttl: -1s\n"},
		{name: "zero retain", yaml: "retain: 0\n"},
		{name: "bad level", env: map[string]string{EnvLogLevel: "loud"}},
		{name: "bad format", yaml: "log_format: xml\n"},
		{name: "bad yaml", yaml: "keys: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.yaml != "" {
				path = writeFile(t, t.TempDir(), "c.yaml", tc.yaml)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRingRejectsBadKey(t *testing.T) {
	cfg := Default()
	cfg.Keys = []string{keyA, "c2hvcnQ="}
	if _, err := cfg.Ring(); !errors.Is(err, token.ErrInvalidKeyFormat) {
		t.Fatalf("got %v, want ErrInvalidKeyFormat", err)
	}
}

func TestKeyManagerHonoursRetain(t *testing.T) {
	cfg := Default()
	cfg.Keys = []string{keyA, keyB}
	cfg.Retain = 1
	km, err := cfg.KeyManager(token.WithKeyManagerLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("KeyManager: %v", err)
	}
	if n := len(km.Keys()); n != 1 {
		t.Fatalf("kept %d keys, want 1", n)
	}
}
