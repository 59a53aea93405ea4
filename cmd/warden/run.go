package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	warden "github.com/eugener/warden/internal"
	"github.com/eugener/warden/internal/auth"
	"github.com/eugener/warden/internal/auth/method"
	"github.com/eugener/warden/internal/auth/method/native"
	"github.com/eugener/warden/internal/auth/method/oauth2"
	"github.com/eugener/warden/internal/auth/method/otpass"
	"github.com/eugener/warden/internal/auth/method/otpass/emailchannel"
	"github.com/eugener/warden/internal/authproto"
	"github.com/eugener/warden/internal/circuitbreaker"
	"github.com/eugener/warden/internal/config"
	"github.com/eugener/warden/internal/envelope"
	"github.com/eugener/warden/internal/ratelimit"
	"github.com/eugener/warden/internal/server"
	"github.com/eugener/warden/internal/storage/sqlite"
	"github.com/eugener/warden/internal/telemetry"
	"github.com/eugener/warden/internal/transport"
	"github.com/eugener/warden/internal/worker"
	"go.opentelemetry.io/otel/trace"
)

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting warden", "version", version, "addr", cfg.Server.Addr)

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("database opened", "dsn", cfg.Database.DSN)

	ctx := context.Background()
	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return err
	}

	keys, err := loadOrGenerateKeyPair(cfg.Envelope)
	if err != nil {
		return fmt.Errorf("envelope key pair: %w", err)
	}

	// Shared DNS cache for every outbound OAuth2 provider client.
	dnsResolver := &dnscache.Resolver{}
	client := &http.Client{Transport: transport.New(dnsResolver)}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())

	nativeMethod := native.New(store)

	var channels []otpass.Channel
	if cfg.OTP.Email.Enabled {
		var auth smtp.Auth
		if cfg.OTP.Email.Username != "" {
			host, _, splitErr := splitHostPort(cfg.OTP.Email.Addr)
			if splitErr != nil {
				return fmt.Errorf("otp email addr: %w", splitErr)
			}
			auth = smtp.PlainAuth("", cfg.OTP.Email.Username, cfg.OTP.Email.Password, host)
		}
		channels = append(channels, emailchannel.New(emailchannel.Config{
			Addr:     cfg.OTP.Email.Addr,
			Auth:     auth,
			From:     cfg.OTP.Email.From,
			Subject:  cfg.OTP.Email.Subject,
			TextBody: cfg.OTP.Email.TextBody,
			HTMLBody: cfg.OTP.Email.HTMLBody,
		}))
		slog.Info("otp email channel enabled", "from", cfg.OTP.Email.From)
	}
	otpMethod := otpass.New(store, otpass.OTPassOptions{
		PassSize:   cfg.OTP.PassSize,
		DeadTime:   cfg.OTP.DeadTime,
		RetryLimit: cfg.OTP.RetryLimit,
	}, channels...)

	oauthMethod := oauth2.New(store, store, client, breakers)
	for _, p := range cfg.OAuth2.Providers {
		prov, ok := builtinOAuth2Provider(p.Service)
		if !ok {
			slog.Warn("unknown oauth2 provider, skipping", "service", p.Service)
			continue
		}
		oauthMethod.Register(prov, oauth2.ClientParams{
			ClientID:             p.ClientID,
			ClientSecret:         p.ClientSecret,
			RedirectURI:          p.RedirectURI,
			Scope:                p.Scope,
			ExtraAuthorizeParams: p.ExtraAuthorizeParams,
			ExtraTokenParams:     p.ExtraTokenParams,
		})
		slog.Info("oauth2 provider registered", "service", p.Service)
	}

	// Prometheus metrics.
	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promRegistry.MustRegister(collectors.NewGoCollector())
		metrics = telemetry.NewMetrics(promRegistry)
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
		slog.Info("prometheus metrics enabled")
	}
	otpMethod.Metrics = metrics
	oauthMethod.Metrics = metrics

	// OpenTelemetry tracing.
	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Telemetry.Tracing.Enabled {
		endpoint := cfg.Telemetry.Tracing.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		sampleRate := cfg.Telemetry.Tracing.SampleRate
		if sampleRate == 0 {
			sampleRate = 0.1
		}
		shutdown, err := telemetry.SetupTracing(ctx, endpoint, sampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("warden/server")
			slog.Info("opentelemetry tracing enabled", "endpoint", endpoint, "sample_rate", sampleRate)
		}
	}

	loginThrottle := ratelimit.NewLoginThrottle(cfg.Login.AttemptsPerMinute)
	slog.Info("login throttle configured", "attempts_per_minute", cfg.Login.AttemptsPerMinute)

	sessions, err := auth.NewCachedSessionStore(store)
	if err != nil {
		return fmt.Errorf("session cache: %w", err)
	}

	proto := &authproto.Protocol{
		Keys:         keys,
		Method:       method.Compose(nativeMethod, otpMethod, oauthMethod),
		Sessions:     sessions,
		Users:        store,
		SessionTTL:   cfg.Session.TTL,
		DefaultRoles: []warden.Role{warden.BuiltinRoles["member"]},
	}

	handler := server.New(server.Deps{
		Proto:          proto,
		LoginThrottle:  loginThrottle,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     store.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	runner := worker.NewRunner(
		&worker.DNSRefreshWorker{Resolver: dnsResolver, Interval: 5 * time.Minute},
		&worker.ThrottleEvictWorker{Throttle: loginThrottle, Interval: time.Minute, MaxAge: time.Hour},
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("authentication protocol enabled",
		"endpoints", []string{"GET /auth", "POST /auth", "GET /whoami"},
	)
	slog.Info("warden ready", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("warden stopped")
	return nil
}

// loadOrGenerateKeyPair builds the server's envelope key pair from
// configuration, or generates a fresh one if unset. A generated pair makes
// the process single-instance-only: restarting invalidates every
// outstanding session, since clients hold no state beyond what GET /auth
// republishes.
func loadOrGenerateKeyPair(cfg config.EnvelopeConfig) (*envelope.KeyPair, error) {
	if cfg.SecretKey == "" {
		slog.Warn("no envelope secret key configured, generating an ephemeral one")
		return envelope.GenerateKeyPair()
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret_key: %w", err)
	}
	if len(secret) != envelope.KeySize {
		return nil, fmt.Errorf("secret_key has wrong length %d, want %d", len(secret), envelope.KeySize)
	}
	public, err := base64.StdEncoding.DecodeString(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public_key: %w", err)
	}
	if len(public) != envelope.KeySize {
		return nil, fmt.Errorf("public_key has wrong length %d, want %d", len(public), envelope.KeySize)
	}
	kp := &envelope.KeyPair{}
	copy(kp.Secret[:], secret)
	copy(kp.Public[:], public)
	return kp, nil
}

// builtinOAuth2Provider maps a configured service name to its built-in
// oauth2.Provider implementation.
func builtinOAuth2Provider(service string) (oauth2.Provider, bool) {
	switch service {
	case "github":
		return oauth2.Github{}, true
	case "google":
		return oauth2.Google{}, true
	case "yandex":
		return oauth2.Yandex{}, true
	case "vkontakte":
		return oauth2.VKontakte{}, true
	default:
		return nil, false
	}
}

// splitHostPort splits addr at its last colon, for the only caller (SMTP
// auth setup). Unlike net.SplitHostPort it does not strip the brackets of
// an IPv6 literal host.
func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("address %q missing port", addr)
}
