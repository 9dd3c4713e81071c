package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	oauth "github.com/giantswarm/oauth-grants"
	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Starts the HTTP authorization server.

Endpoints are mounted under --path-prefix:
  GET  /authorize            authorization endpoint (needs a session)
  POST /authorize/decision   consent decision
  POST /token                token endpoint
  POST /token/legacy         token endpoint with form-encoded responses
  GET  /tokeninfo            access token introspection

With --dev-session, HTTP Basic credentials of a seeded user stand in for a
browser session on the authorization endpoints. Do not use it in production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.String("listen", ":8080", "address to serve OAuth endpoints on")
	f.String("path-prefix", "/oauth", "path prefix for OAuth endpoints")
	f.String("login-url", "", "login page for requests without a session")
	f.String("seed", "", "YAML file with clients and users to register at start-up")
	f.Bool("dev-session", false, "accept HTTP Basic user credentials as the session")

	f.String("store", storeMemory, "storage backend: memory, valkey, sqlite or postgres")
	f.String("dsn", "", "data source name for sqlite and postgres")
	f.String("valkey-address", "localhost:6379", "valkey server address")
	f.String("valkey-password", "", "valkey password")
	f.Int("valkey-db", 0, "valkey database number")
	f.String("valkey-key-prefix", "", "valkey key prefix")
	f.Duration("cleanup-interval", oauth.DefaultCleanupInterval, "how often expired artifacts are purged")

	f.Int64("code-ttl", 600, "authorization code lifetime in seconds")
	f.Int64("access-token-ttl", 3600, "access token lifetime in seconds")
	f.Int64("transaction-ttl", 600, "consent transaction lifetime in seconds")
	f.String("encryption-key", "", "base64 AES-256 key sealing consent transactions at rest")
	f.Bool("audit", true, "enable security audit logging")

	f.Float64("rate-limit", 10, "token requests per second per client IP, 0 disables")
	f.Int("rate-limit-burst", 20, "token request burst per client IP")
	f.Bool("trust-proxy", false, "trust X-Forwarded-For for client IPs")
	f.Int("trusted-proxy-count", 1, "number of trusted proxies in front of the server")

	f.Bool("metrics", false, "enable OpenTelemetry instrumentation with a Prometheus exporter")
	f.String("metrics-listen", "", "separate address for /metrics; empty serves it next to the OAuth endpoints")
	f.Bool("log-client-ips", false, "attach client IPs to spans")

	bindFlags(v, f)
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(v)
	if err != nil {
		return err
	}

	config, err := handlerConfig(v)
	if err != nil {
		return err
	}

	var inst *instrumentation.Instrumentation
	if v.GetBool("metrics") {
		inst, err = instrumentation.New(instrumentation.Config{
			ServiceName:     "oauth2d",
			ServiceVersion:  version,
			Enabled:         true,
			MetricsExporter: "prometheus",
			LogClientIPs:    v.GetBool("log-client-ips"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shut down instrumentation", "error", err)
			}
		}()
		config.Instrumentation = inst
	}

	backend, closeBackend, err := openBackend(ctx, backendOptions{
		Kind:            v.GetString("store"),
		DSN:             v.GetString("dsn"),
		ValkeyAddress:   v.GetString("valkey-address"),
		ValkeyPassword:  v.GetString("valkey-password"),
		ValkeyDB:        v.GetInt("valkey-db"),
		ValkeyKeyPrefix: v.GetString("valkey-key-prefix"),
		CleanupInterval: config.CleanupInterval,
		Instrumentation: inst,
	}, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	if path := v.GetString("seed"); path != "" {
		seed, err := loadSeedFile(path)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, backend); err != nil {
			return err
		}
		logger.Info("Seeded storage", "clients", len(seed.Clients), "users", len(seed.Users))
	}

	handler, err := oauth.NewServer(backend, config, logger)
	if err != nil {
		return err
	}
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, v.GetString("path-prefix"))

	var servers []*http.Server
	if metrics := metricsHandler(inst); metrics != nil {
		if addr := v.GetString("metrics-listen"); addr != "" {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", metrics)
			servers = append(servers, newHTTPServer(addr, metricsMux))
		} else {
			mux.Handle("/metrics", metrics)
		}
	}

	var root http.Handler = mux
	if v.GetBool("dev-session") {
		logger.Warn("Development sessions enabled: Basic credentials act as a browser session")
		root = devSession(security.NewPasswordVerifier(backend), root)
	}
	root = security.RequestIDMiddleware(root)
	servers = append([]*http.Server{newHTTPServer(v.GetString("listen"), root)}, servers...)

	return serveUntilDone(ctx, servers, logger)
}

// handlerConfig maps flags onto the handler configuration
func handlerConfig(v *viper.Viper) (*oauth.Config, error) {
	config := &oauth.Config{
		LoginURL: v.GetString("login-url"),
		Engine: server.Config{
			AuthorizationCodeTTL: v.GetInt64("code-ttl"),
			AccessTokenTTL:       v.GetInt64("access-token-ttl"),
			TransactionTTL:       v.GetInt64("transaction-ttl"),
		},
		RateLimit: oauth.RateLimitConfig{
			Rate:              v.GetFloat64("rate-limit"),
			Burst:             v.GetInt("rate-limit-burst"),
			TrustProxy:        v.GetBool("trust-proxy"),
			TrustedProxyCount: v.GetInt("trusted-proxy-count"),
		},
		Security: oauth.SecurityConfig{
			EnableAuditLogging: v.GetBool("audit"),
		},
		CleanupInterval: v.GetDuration("cleanup-interval"),
	}

	if raw := v.GetString("encryption-key"); raw != "" {
		key, err := security.KeyFromBase64(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		config.Security.EncryptionKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func metricsHandler(inst *instrumentation.Instrumentation) http.Handler {
	if inst == nil {
		return nil
	}
	return inst.MetricsHandler()
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// serveUntilDone runs every server until ctx ends or one of them fails,
// then shuts all of them down.
func serveUntilDone(ctx context.Context, servers []*http.Server, logger *slog.Logger) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		logger.Info("Listening", "address", srv.Addr)
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-errCh:
		logger.Error("Server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown failed", "address", srv.Addr, "error", err)
		}
	}
	return serveErr
}
