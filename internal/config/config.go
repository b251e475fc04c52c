// Package config defines the watcher's configuration surface (§6 of the
// external interfaces) and loads it the way the teacher's gateway does:
// Viper reading config/{service}.yaml, environment overrides, and
// fsnotify-driven hot reload — adapted here to publish an immutable
// snapshot on every reload rather than mutating shared state in place, so
// a Job in flight always finishes against the Config it started with.
package config

import (
	"sync/atomic"
	"time"

	pkgconfig "zanowatcher.com/pkg/config"
)

// TickerConfig holds the per-ticker knobs: whether it is enabled, its
// asset mode, its atomic scale, its initial confirmation threshold, and
// its consolidation (sweep) rules.
type TickerConfig struct {
	Enabled          bool                `mapstructure:"enabled"`
	AssetID          string              `mapstructure:"assetId"`  // empty => base-coin mode
	Decimals         int32               `mapstructure:"decimals"` // atomic-to-decimal scale
	MinConfirmations int                 `mapstructure:"minConfirmations"`
	WebhookURL       string              `mapstructure:"webhookUrl"` // overrides Webhook.URL when set
	Consolidation    ConsolidationConfig `mapstructure:"consolidation"`
	RpcURL           string              `mapstructure:"rpcUrl"` // overrides WalletRPC.URL when set
	// WatchAddress is the shared wallet address deposits for this ticker
	// arrive at when a caller supplies its own payment_id at Create time
	// (asset-mode tickers always take this branch; base-coin tickers take
	// it only when the caller passes payment_id explicitly instead of
	// asking Create to synthesize an integrated address).
	WatchAddress string `mapstructure:"watchAddress"`
}

// ConsolidationConfig is the sweep policy for a ticker: once a deposit
// clears MinConfirmations, the operator's fee-adjusted balance can be
// swept to Address in a single transfer call.
type ConsolidationConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Address          string `mapstructure:"address"`
	FeeAtomic        string `mapstructure:"feeAtomic"`
	MinConfirmations int    `mapstructure:"minConfirmations"`
	Mixin            int    `mapstructure:"mixin"`    // default 3
	Priority         int    `mapstructure:"priority"` // default 0
}

// WalletRPCConfig points at the wallet JSON-RPC daemon shared by tickers
// that don't set a per-ticker override.
type WalletRPCConfig struct {
	URL       string `mapstructure:"url"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	TimeoutMs int64  `mapstructure:"timeoutMs"`
}

// WebhookConfig is the default delivery target and backoff/retry shape;
// TickerConfig.WebhookURL can override the URL per ticker.
type WebhookConfig struct {
	URL              string `mapstructure:"url"`
	Secret           string `mapstructure:"secret"`
	TimeoutMs        int64  `mapstructure:"timeoutMs"`
	BackoffBaseMs    int64  `mapstructure:"backoffBaseMs"`
	BackoffFactor    float64 `mapstructure:"backoffFactor"`
	BackoffMaxMs     int64  `mapstructure:"backoffMaxMs"`
	BackoffJitter    bool   `mapstructure:"backoffJitter"`
	MaxAttempts      int    `mapstructure:"maxAttempts"`      // 0 = unlimited
	MaxRetryWindowMs int64  `mapstructure:"maxRetryWindowMs"` // 0 = use default
}

// TTLConfig holds the KV lifetimes for each entity kind (§3).
type TTLConfig struct {
	SeenSeconds   int64 `mapstructure:"seenTtlSeconds"`
	JobSeconds    int64 `mapstructure:"jobTtlSeconds"`
	StatusSeconds int64 `mapstructure:"statusTtlSeconds"`
}

// LedgerConfig selects the audit-trail backend for observed deposits.
type LedgerConfig struct {
	Mode       string `mapstructure:"mode"` // off | kv | disk
	Dir        string `mapstructure:"dir"`  // disk mode only
	TTLSeconds int64  `mapstructure:"ttlSeconds"`
}

// RedisConfig is the KV store's connection info.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IntakeConfig is the HTTP surface's own knobs: listen address and the
// shared secrets gating the create/callback endpoints.
type IntakeConfig struct {
	Addr             string `mapstructure:"addr"`
	APIKey           string `mapstructure:"apiKey"`
	CallbackSecret   string `mapstructure:"callbackSecret"`
	StatusCacheMs    int64  `mapstructure:"statusCacheMs"` // 0 => min(5s, intervalMs)
	RateLimitPerSec  int    `mapstructure:"rateLimitPerSec"`
	RateLimitBurst   int    `mapstructure:"rateLimitBurst"`
}

// Config is the immutable, fully-resolved configuration for one watcher
// process. A new value is published atomically on every hot reload; a Job
// in progress always finishes against the Config snapshot it started
// with.
type Config struct {
	Name            string                  `mapstructure:"name"`
	KeyPrefix       string                  `mapstructure:"keyPrefix"`
	Tickers         []string                `mapstructure:"tickers"`
	IntervalMs      int64                   `mapstructure:"intervalMs"`
	ScanCount       int64                   `mapstructure:"scanCount"`
	ErrorBackoffMs  int64                   `mapstructure:"errorBackoffMs"`
	LogLevel        string                  `mapstructure:"logLevel"`
	LogErrorFile    string                  `mapstructure:"logErrorFile"`
	Redis           RedisConfig             `mapstructure:"redis"`
	WalletRPC       WalletRPCConfig         `mapstructure:"walletRpc"`
	Webhook         WebhookConfig           `mapstructure:"webhook"`
	TickerConfigs   map[string]TickerConfig `mapstructure:"tickerConfigs"`
	TTL             TTLConfig               `mapstructure:"ttl"`
	Ledger          LedgerConfig            `mapstructure:"ledger"`
	Intake          IntakeConfig            `mapstructure:"intake"`
}

// Defaults per §6/§4.6/§4.8/§3.
const (
	DefaultIntervalMs       = 15_000
	DefaultScanCount        = 100
	DefaultErrorBackoffMs   = 30_000
	DefaultSeenTTLSeconds   = 4 * 60 * 60
	DefaultJobTTLSeconds    = 24 * 60 * 60
	DefaultStatusTTLSeconds = 7 * 24 * 60 * 60
	DefaultWebhookTimeoutMs = 10_000
	DefaultBackoffBaseMs    = 1_000
	DefaultBackoffFactor    = 2.0
	DefaultBackoffMaxMs     = 20 * 60 * 1000
	DefaultMaxRetryWindowMs = 2 * 60 * 60 * 1000
	DefaultKeyPrefix        = "zano"
	DefaultConsolidationMixin    = 3
	DefaultConsolidationPriority = 0
)

// applyDefaults fills the zero-value fields the tables in §6 declare a
// default for. It never overrides a value the operator actually set.
func applyDefaults(c *Config) {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.IntervalMs == 0 {
		c.IntervalMs = DefaultIntervalMs
	}
	if c.ScanCount == 0 {
		c.ScanCount = DefaultScanCount
	}
	if c.ErrorBackoffMs == 0 {
		c.ErrorBackoffMs = DefaultErrorBackoffMs
	}
	if c.TTL.SeenSeconds == 0 {
		c.TTL.SeenSeconds = DefaultSeenTTLSeconds
	}
	if c.TTL.JobSeconds == 0 {
		c.TTL.JobSeconds = DefaultJobTTLSeconds
	}
	if c.TTL.StatusSeconds == 0 {
		c.TTL.StatusSeconds = DefaultStatusTTLSeconds
	}
	if c.Webhook.TimeoutMs == 0 {
		c.Webhook.TimeoutMs = DefaultWebhookTimeoutMs
	}
	if c.Webhook.BackoffBaseMs == 0 {
		c.Webhook.BackoffBaseMs = DefaultBackoffBaseMs
	}
	if c.Webhook.BackoffFactor == 0 {
		c.Webhook.BackoffFactor = DefaultBackoffFactor
	}
	if c.Webhook.BackoffMaxMs == 0 {
		c.Webhook.BackoffMaxMs = DefaultBackoffMaxMs
	}
	if c.Webhook.MaxRetryWindowMs == 0 {
		c.Webhook.MaxRetryWindowMs = DefaultMaxRetryWindowMs
	}
	if c.WalletRPC.TimeoutMs < 8000 {
		c.WalletRPC.TimeoutMs = 8000
	}
	if c.Intake.StatusCacheMs == 0 {
		c.Intake.StatusCacheMs = min64(5000, c.IntervalMs)
	}
	for ticker, tc := range c.TickerConfigs {
		if tc.Consolidation.Mixin == 0 {
			tc.Consolidation.Mixin = DefaultConsolidationMixin
		}
		c.TickerConfigs[ticker] = tc
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Ticker returns the resolved config for ticker, or (zero, false) if it
// isn't declared.
func (c *Config) Ticker(ticker string) (TickerConfig, bool) {
	tc, ok := c.TickerConfigs[ticker]
	return tc, ok
}

// WebhookURLFor resolves the per-ticker override, falling back to the
// shared default.
func (c *Config) WebhookURLFor(ticker string) string {
	if tc, ok := c.TickerConfigs[ticker]; ok && tc.WebhookURL != "" {
		return tc.WebhookURL
	}
	return c.Webhook.URL
}

// WalletRPCURLFor resolves the per-ticker RPC override, falling back to
// the shared wallet daemon.
func (c *Config) WalletRPCURLFor(ticker string) string {
	if tc, ok := c.TickerConfigs[ticker]; ok && tc.RpcURL != "" {
		return tc.RpcURL
	}
	return c.WalletRPC.URL
}

// Store publishes hot-reloaded Config snapshots for lock-free concurrent
// reads. The Scheduler reads Get() once per tick; nothing in the hot path
// blocks on a reload in progress.
type Store struct {
	v atomic.Pointer[Config]
}

func (s *Store) Get() *Config { return s.v.Load() }

// NewStoreForTest wraps an already-resolved Config in a Store, for callers
// that construct a Scheduler in tests without going through Load's
// file-watching machinery.
func NewStoreForTest(cfg *Config) *Store {
	s := &Store{}
	s.v.Store(cfg)
	return s
}

// Load reads config/{service}.yaml via pkg/config.LoadAndWatch and keeps
// a Store's snapshot current across hot reloads.
func Load(service string) (*Store, error) {
	store := &Store{}
	raw := &Config{}

	publish := func() {
		snapshot := *raw
		snapshot.TickerConfigs = make(map[string]TickerConfig, len(raw.TickerConfigs))
		for k, v := range raw.TickerConfigs {
			snapshot.TickerConfigs[k] = v
		}
		snapshot.Tickers = append([]string(nil), raw.Tickers...)
		applyDefaults(&snapshot)
		store.v.Store(&snapshot)
	}

	if _, err := pkgconfig.LoadAndWatch(service, raw, publish); err != nil {
		return nil, err
	}
	return store, nil
}

// WebhookTimeout and WalletRPCTimeout convert the millisecond config
// fields to time.Duration at the call sites that need it.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutMs) * time.Millisecond
}

func (c *Config) WalletRPCTimeout() time.Duration {
	return time.Duration(c.WalletRPC.TimeoutMs) * time.Millisecond
}
