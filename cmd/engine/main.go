// Command engine is the process entrypoint: load configuration, wire an
// orchestrator against whatever exchange connectors have credentials
// configured, expose the control API, and run until a shutdown signal
// arrives. Grounded on cmd/bot/main.go's config-then-engine-then-signal
// shape (0xtitan6-polymarket-mm), adapted to this engine's zerolog-based
// logging.Init and HMAC/TOTP control API instead of that bot's slog
// setup and dashboard server.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantforge/internal/api"
	"quantforge/internal/audit"
	"quantforge/internal/config"
	"quantforge/internal/engine"
	"quantforge/internal/eventbus"
	"quantforge/internal/exchange"
	"quantforge/internal/logging"
	"quantforge/internal/metrics"
	"quantforge/internal/store"
	"quantforge/internal/strategy"
)

func main() {
	cfg, err := config.Load(os.Getenv("ENGINE_ENV_FILE"))
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	connectors := buildConnectors(cfg)

	st, err := store.Open(getEnvDefault("ENGINE_DB_PATH", "./engine.db"))
	if err != nil {
		logging.Errorf("store: open failed: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	var auditEncKey []byte
	if cfg.AuditEncryptionKey != "" {
		auditEncKey = []byte(cfg.AuditEncryptionKey)
	}
	auditSink, err := audit.NewSink(cfg.AuditDir, []byte(cfg.AuditIntegrityKey), audit.SegmentConfig{
		MaxSegmentBytes: cfg.AuditRotateBytes,
		RetentionDays:   cfg.AuditRetentionDays,
		EncryptionKey:   auditEncKey,
	})
	if err != nil {
		logging.Errorf("audit: open failed: %v", err)
		os.Exit(1)
	}
	defer auditSink.Close()

	bus := eventbus.New()
	registry := strategy.NewDefaultRegistry()

	orch := engine.New(cfg, bus, registry, st, auditSink, connectors)

	jwtSecret := os.Getenv("API_JWT_SECRET")
	if jwtSecret == "" {
		logging.Errorf("api: API_JWT_SECRET must be set")
		os.Exit(1)
	}
	totpSecret := os.Getenv("API_TOTP_SECRET")
	if totpSecret == "" {
		key, genErr := totp.Generate(totp.GenerateOpts{Issuer: "quantforge", AccountName: "bootstrap-admin"})
		if genErr != nil {
			logging.Errorf("api: totp bootstrap failed: %v", genErr)
			os.Exit(1)
		}
		totpSecret = key.Secret()
		logging.Infof("api: no API_TOTP_SECRET configured, generated one for this run: %s", totpSecret)
	}

	srv := api.NewServer(orch, api.Config{
		JWTSecret:  []byte(jwtSecret),
		TOTPSecret: totpSecret,
		Issuer:     "quantforge",
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		addr := getEnvDefault("METRICS_ADDR", ":9090")
		logging.Infof("metrics: listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Errorf("metrics: server stopped: %v", err)
		}
	}()

	go func() {
		addr := getEnvDefault("API_ADDR", ":8080")
		if err := srv.Run(addr); err != nil {
			logging.Errorf("api: server stopped: %v", err)
		}
	}()

	if err := orch.Start(); err != nil {
		logging.Errorf("engine: start failed: %v", err)
		os.Exit(1)
	}
	logging.Infof("engine: started, allow-list=%v", cfg.ExchangeAllowList)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Infof("engine: received %s, shutting down", sig)

	if err := orch.Stop(); err != nil {
		logging.Errorf("engine: stop did not complete cleanly: %v", err)
		os.Exit(2)
	}
}

// buildConnectors wires one exchange.Connector per venue named in the
// allow-list for which API credentials are present in the environment;
// a venue with no credentials is skipped rather than failing startup,
// since a given deployment may only trade a subset of supported venues.
func buildConnectors(cfg *config.EngineConfig) map[string]exchange.Connector {
	out := make(map[string]exchange.Connector)
	for _, venue := range cfg.ExchangeAllowList {
		switch venue {
		case "binance":
			key, secret := os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET")
			if key == "" || secret == "" {
				continue
			}
			out[venue] = exchange.NewBinanceConnector(exchange.WithCredentials(key, secret))
		case "bybit":
			key, secret := os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET")
			if key == "" || secret == "" {
				continue
			}
			out[venue] = exchange.NewBybitConnector(exchange.WithCredentials(key, secret))
		case "hyperliquid":
			walletKey := os.Getenv("HYPERLIQUID_WALLET_KEY")
			if walletKey == "" {
				continue
			}
			conn, err := exchange.NewHyperliquidConnector(exchange.WithCredentials("", walletKey))
			if err != nil {
				logging.Errorf("exchange: hyperliquid connector init failed: %v", err)
				continue
			}
			out[venue] = conn
		case "lighter":
			walletKey := os.Getenv("LIGHTER_WALLET_KEY")
			if walletKey == "" {
				continue
			}
			conn, err := exchange.NewLighterConnector([]exchange.ClientOption{exchange.WithCredentials("", walletKey)})
			if err != nil {
				logging.Errorf("exchange: lighter connector init failed: %v", err)
				continue
			}
			out[venue] = conn
		default:
			logging.Warnf("exchange: unknown venue %q in allow-list, skipping", venue)
		}
	}
	return out
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
