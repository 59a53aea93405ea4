package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	toml := `
[server]
addr = ":9090"
read_timeout = "10s"

[database]
dsn = ":memory:"

[session]
ttl = "1h"

[[oauth2.providers]]
service = "github"
client_id = "abc123"
client_secret = "shh"
scope = "read:user"

[[users]]
name = "admin"
password = "correcthorsebatterystaple"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("session ttl = %v, want 1h", cfg.Session.TTL)
	}
	if len(cfg.OAuth2.Providers) != 1 {
		t.Fatalf("providers count = %d, want 1", len(cfg.OAuth2.Providers))
	}
	if cfg.OAuth2.Providers[0].Service != "github" {
		t.Errorf("provider service = %q, want %q", cfg.OAuth2.Providers[0].Service, "github")
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Name != "admin" {
		t.Fatalf("users = %+v, want one entry named admin", cfg.Users)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_CLIENT_SECRET", "sk-secret-123")

	result := expandEnv([]byte(`client_secret = "${TEST_CLIENT_SECRET}"`))
	want := `client_secret = "sk-secret-123"`
	if string(result) != want {
		t.Errorf("expandEnv = %q, want %q", string(result), want)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Database.DSN != "warden.db" {
		t.Errorf("default dsn = %q, want %q", cfg.Database.DSN, "warden.db")
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("default session ttl = %v, want 24h", cfg.Session.TTL)
	}
	if cfg.Login.AttemptsPerMinute != 10 {
		t.Errorf("default attempts_per_minute = %d, want 10", cfg.Login.AttemptsPerMinute)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
