// Package config handles TOML configuration loading with environment
// variable expansion, grounded on the teacher's config.go: same
// expand-then-unmarshal-over-defaults shape, swapped from YAML to TOML
// per the out-of-scope collaborator spec.md names explicitly
// ("TOML configuration loading").
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level warden configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Envelope  EnvelopeConfig  `toml:"envelope"`
	Session   SessionConfig   `toml:"session"`
	OTP       OTPConfig       `toml:"otp"`
	OAuth2    OAuth2Config    `toml:"oauth2"`
	Login     LoginConfig     `toml:"login"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Users     []UserEntry     `toml:"users"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `toml:"dsn"` // file path or ":memory:"
}

// EnvelopeConfig supplies the server's sealed-envelope key pair. SecretKey
// is base64 (standard encoding); if empty, a fresh pair is generated at
// startup and the process is single-instance-only (restarting invalidates
// every outstanding session, since clients re-derive nothing from it --
// they just re-run GET /auth).
type EnvelopeConfig struct {
	PublicKey string `toml:"public_key"`
	SecretKey string `toml:"secret_key"`
}

// SessionConfig controls session lifetime enforcement.
type SessionConfig struct {
	// TTL bounds a session's idle lifetime; the X-Auth filter always
	// checks it (an unconditional step of the protocol), so 0 here means
	// "never expires" rather than "skip the check".
	TTL time.Duration `toml:"ttl"`
}

// OTPConfig parameterizes the one-time-password method and its channels.
type OTPConfig struct {
	PassSize   int           `toml:"pass_size"`
	DeadTime   time.Duration `toml:"dead_time"`
	RetryLimit int           `toml:"retry_limit"`
	Email      EmailConfig   `toml:"email"`
}

// EmailConfig configures the SMTP-backed OTP delivery channel.
type EmailConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"` // host:port
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	Subject  string `toml:"subject"`
	TextBody string `toml:"text_body"`
	HTMLBody string `toml:"html_body"`
}

// OAuth2Config lists the federated identity providers to register.
type OAuth2Config struct {
	Providers []OAuth2ProviderEntry `toml:"providers"`
}

// OAuth2ProviderEntry names a built-in provider (github, google, yandex,
// vkontakte) and its client credentials.
type OAuth2ProviderEntry struct {
	Service              string            `toml:"service"`
	ClientID             string            `toml:"client_id"`
	ClientSecret         string            `toml:"client_secret"`
	RedirectURI          string            `toml:"redirect_uri"`
	Scope                string            `toml:"scope"`
	ExtraAuthorizeParams map[string]string `toml:"extra_authorize_params"`
	ExtraTokenParams     map[string]string `toml:"extra_token_params"`
}

// LoginConfig controls brute-force defenses on the login endpoint.
type LoginConfig struct {
	AttemptsPerMinute int64 `toml:"attempts_per_minute"` // 0 = unthrottled
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `toml:"metrics"`
	Tracing TracingConfig `toml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `toml:"enabled"`
	Endpoint   string  `toml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `toml:"sample_rate"` // 0.0 to 1.0
}

// UserEntry seeds a native-auth user on first run. Roles are not
// per-user: every authenticated subject gets Protocol.DefaultRoles, so
// there is no per-user role knob here to leave unwired.
type UserEntry struct {
	Name     string `toml:"name"`
	Password string `toml:"password"` // plaintext, hashed on bootstrap
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a TOML config file, expanding environment
// variables, over a set of production-sane defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "warden.db",
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		OTP: OTPConfig{
			PassSize:   6,
			DeadTime:   5 * time.Minute,
			RetryLimit: 3,
		},
		Login: LoginConfig{
			AttemptsPerMinute: 10,
		},
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
