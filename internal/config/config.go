// Package config loads and validates the engine's startup configuration.
// Grounded on the direct os.Getenv usage in the market-data client,
// trader/auto_trader.go's per-venue API-key fields) generalized into one
// validated struct loaded once at startup via github.com/joho/godotenv,
// loaded here through the same dotenv-loader dependency.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigError marks a fatal startup configuration problem: invalid
// configuration is fatal at startup, never at runtime.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// EngineConfig is the engine's fully-resolved, validated configuration.
type EngineConfig struct {
	// Audit sink
	AuditDir           string
	AuditIntegrityKey  string // HMAC key for the per-record hash chain
	AuditEncryptionKey string // optional AES-256-CBC key for line wrapping
	AuditRotateBytes   int64
	AuditRetentionDays int

	// Credential store
	CredentialPassphraseEnv string

	// Exchange allow-list
	ExchangeAllowList []string

	// Risk defaults, overridable per strategy
	DailyLossLimitPct   float64
	DrawdownWarnPct     float64
	DrawdownDangerPct   float64
	DrawdownCriticalPct float64

	// Gate thresholds fed into risk.Snapshot on every signal (gates.go
	// §4/5/6/7); a zero value disables the corresponding gate check, per
	// each gate's own zero-skip logic.
	MaxLeverage            float64 // gateLeverageCap
	MarginWarnRate         float64 // gateMarginHeadroom warn threshold
	MarginCriticalRate     float64 // gateMarginHeadroom deny threshold
	PerAccountCapNotlPct   float64 // gatePositionLimits' per-account cap, as a multiple of account equity
	PerSymbolCapQty        float64 // gatePositionLimits' per-symbol cap; no per-symbol schema is modeled, so this is one flat qty cap across every symbol
	ConcentrationMaxPct    float64 // gateConcentration / risk.ConcentrationMonitor
	OrderFailureCooldownMs int64   // gateCooldown's cooldown_ms after an order failure

	// Cross-account thresholds, zero disables.
	GlobalEquityFloor float64
	GlobalExposureCap float64

	// Scan/monitor cadence
	MonitorTickInterval time.Duration
	ScanInterval        time.Duration

	// Shutdown grace period (default 30s)
	ShutdownGraceDeadline time.Duration

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads .env (if present, ignoring a missing file) then environment
// variables into an EngineConfig, applying defaults and validating the
// result. Validation is total: every field is checked before Load
// returns, never lazily during a later operation (the engine's
// "validation is total at startup, not lazy" principle, generalized from
// per-strategy schemas to the whole engine config).
func Load(envFile string) (*EngineConfig, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile) // missing .env is not fatal
	} else {
		_ = godotenv.Load()
	}

	cfg := &EngineConfig{
		AuditDir:                getEnvDefault("AUDIT_LOG_DIR", "./audit-logs"),
		AuditIntegrityKey:       os.Getenv("AUDIT_INTEGRITY_KEY"),
		AuditEncryptionKey:      os.Getenv("AUDIT_ENCRYPTION_KEY"),
		AuditRotateBytes:        getEnvInt64Default("AUDIT_ROTATE_BYTES", 64*1024*1024),
		AuditRetentionDays:      int(getEnvInt64Default("AUDIT_RETENTION_DAYS", 90)),
		CredentialPassphraseEnv: getEnvDefault("CREDENTIAL_PASSPHRASE_ENV", "ENGINE_MASTER_PASSPHRASE"),
		ExchangeAllowList:       splitNonEmpty(getEnvDefault("EXCHANGE_ALLOW_LIST", "binance,bybit,hyperliquid,lighter")),
		DailyLossLimitPct:       getEnvFloatDefault("DAILY_LOSS_LIMIT_PCT", 0.05),
		DrawdownWarnPct:         getEnvFloatDefault("DRAWDOWN_WARN_PCT", 0.05),
		DrawdownDangerPct:       getEnvFloatDefault("DRAWDOWN_DANGER_PCT", 0.10),
		DrawdownCriticalPct:     getEnvFloatDefault("DRAWDOWN_CRITICAL_PCT", 0.20),
		MaxLeverage:             getEnvFloatDefault("MAX_LEVERAGE", 10),
		MarginWarnRate:          getEnvFloatDefault("MARGIN_WARN_RATE", 0.15),
		MarginCriticalRate:      getEnvFloatDefault("MARGIN_CRITICAL_RATE", 0.05),
		PerAccountCapNotlPct:    getEnvFloatDefault("PER_ACCOUNT_CAP_NOTIONAL_PCT", 5),
		PerSymbolCapQty:         getEnvFloatDefault("PER_SYMBOL_CAP_QTY", 0),
		ConcentrationMaxPct:     getEnvFloatDefault("CONCENTRATION_MAX_PCT", 0.25),
		OrderFailureCooldownMs:  getEnvInt64Default("ORDER_FAILURE_COOLDOWN_MS", 60_000),
		GlobalEquityFloor:       getEnvFloatDefault("GLOBAL_EQUITY_FLOOR", 0),
		GlobalExposureCap:       getEnvFloatDefault("GLOBAL_EXPOSURE_CAP", 0),
		MonitorTickInterval:     getEnvDurationDefault("MONITOR_TICK_INTERVAL", time.Second),
		ScanInterval:            getEnvDurationDefault("SCAN_INTERVAL", 3*time.Minute),
		ShutdownGraceDeadline:   getEnvDurationDefault("SHUTDOWN_GRACE_DEADLINE", 30*time.Second),
		LogLevel:                getEnvDefault("LOG_LEVEL", "info"),
		LogPretty:               getEnvDefault("LOG_PRETTY", "false") == "true",
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) validate() error {
	if c.AuditIntegrityKey == "" {
		return &ConfigError{Field: "AUDIT_INTEGRITY_KEY", Reason: "must be set (HMAC key for the audit hash chain)"}
	}
	if c.AuditDir == "" {
		return &ConfigError{Field: "AUDIT_LOG_DIR", Reason: "must not be empty"}
	}
	if c.DrawdownWarnPct >= c.DrawdownDangerPct || c.DrawdownDangerPct >= c.DrawdownCriticalPct {
		return &ConfigError{Field: "DRAWDOWN_*_PCT", Reason: "thresholds must satisfy warn < danger < critical"}
	}
	if c.MarginWarnRate != 0 && c.MarginCriticalRate != 0 && c.MarginCriticalRate >= c.MarginWarnRate {
		return &ConfigError{Field: "MARGIN_*_RATE", Reason: "MARGIN_CRITICAL_RATE must be below MARGIN_WARN_RATE"}
	}
	if c.MaxLeverage < 0 || c.PerAccountCapNotlPct < 0 || c.PerSymbolCapQty < 0 {
		return &ConfigError{Field: "MAX_LEVERAGE/PER_*_CAP", Reason: "must not be negative"}
	}
	if c.MonitorTickInterval <= 0 {
		return &ConfigError{Field: "MONITOR_TICK_INTERVAL", Reason: "must be positive"}
	}
	if c.ShutdownGraceDeadline <= 0 {
		return &ConfigError{Field: "SHUTDOWN_GRACE_DEADLINE", Reason: "must be positive"}
	}
	if len(c.ExchangeAllowList) == 0 {
		return &ConfigError{Field: "EXCHANGE_ALLOW_LIST", Reason: "must name at least one venue"}
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt64Default(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
