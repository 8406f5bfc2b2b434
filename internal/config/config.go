// Package config loads sniper settings from defaults, an optional YAML file,
// a .env file and SNIPER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"solana-slot-sniper/internal/orders"
	"solana-slot-sniper/internal/strategy"
)

// EnvPrefix prefixes every environment override, e.g. SNIPER_RPC_HTTP.
const EnvPrefix = "SNIPER"

// Storage backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the full sniper configuration.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc" yaml:"rpc"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	Readiness ReadinessConfig `mapstructure:"readiness" yaml:"readiness"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Risk      RiskConfig      `mapstructure:"risk" yaml:"risk"`
	Orders    OrdersConfig    `mapstructure:"orders" yaml:"orders"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	Strategy  strategy.Config `mapstructure:"strategy" yaml:"strategy"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
}

type RPCConfig struct {
	HTTP     string        `mapstructure:"http" yaml:"http"`
	WS       string        `mapstructure:"ws" yaml:"ws"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries  int           `mapstructure:"retries" yaml:"retries"`
	RPS      float64       `mapstructure:"rps" yaml:"rps"`
	Burst    int           `mapstructure:"burst" yaml:"burst"`
	Programs []string      `mapstructure:"programs" yaml:"programs"` // logsSubscribe mentions; empty subscribes to all
}

type LedgerConfig struct {
	Window        int   `mapstructure:"window" yaml:"window"`
	Density       int   `mapstructure:"density" yaml:"density"`
	Alignment     int64 `mapstructure:"alignment" yaml:"alignment"`
	MaxFreshMints int   `mapstructure:"max_fresh_mints" yaml:"max_fresh_mints"`
}

type ReadinessConfig struct {
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold"`
	MinLedgerBits int     `mapstructure:"min_ledger_bits" yaml:"min_ledger_bits"`
}

// IngestConfig tunes the event runner.
type IngestConfig struct {
	SlotLag      int64         `mapstructure:"slot_lag" yaml:"slot_lag"`
	ProbeTTL     time.Duration `mapstructure:"probe_ttl" yaml:"probe_ttl"`
	ProbeWorkers int           `mapstructure:"probe_workers" yaml:"probe_workers"`
	ProbeWindow  int64         `mapstructure:"probe_window" yaml:"probe_window"`
}

type SchedulerConfig struct {
	SlotMs          int   `mapstructure:"slot_ms" yaml:"slot_ms"`
	TriggerWindowMs int   `mapstructure:"trigger_window_ms" yaml:"trigger_window_ms"`
	PollMs          int   `mapstructure:"poll_ms" yaml:"poll_ms"`
	TargetOffset    int64 `mapstructure:"target_offset" yaml:"target_offset"`
}

// SlotDuration returns slot_ms as a duration.
func (s SchedulerConfig) SlotDuration() time.Duration {
	return time.Duration(s.SlotMs) * time.Millisecond
}

// TriggerWindow returns trigger_window_ms as a duration.
func (s SchedulerConfig) TriggerWindow() time.Duration {
	return time.Duration(s.TriggerWindowMs) * time.Millisecond
}

// PollInterval returns poll_ms as a duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollMs) * time.Millisecond
}

type RiskConfig struct {
	MinLiquidityUSD float64 `mapstructure:"min_liquidity_usd" yaml:"min_liquidity_usd"`
}

// OrdersConfig holds the follow-up legs and lifecycle settings.
type OrdersConfig struct {
	orders.FollowUpConfig `mapstructure:",squash" yaml:",inline"`

	MaxPerUser           int           `mapstructure:"max_per_user" yaml:"max_per_user"`
	AutoExecute          bool          `mapstructure:"auto_execute" yaml:"auto_execute"`
	ExecTimeout          time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	KeepPendingOnFailure bool          `mapstructure:"keep_pending_on_failure" yaml:"keep_pending_on_failure"`
	RepeatOnEntry        bool          `mapstructure:"repeat_on_entry" yaml:"repeat_on_entry"`
	EntryCapital         float64       `mapstructure:"entry_capital" yaml:"entry_capital"` // quote amount per slot entry
}

type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"-"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn" yaml:"clickhouse_dsn"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// defaults mirror the component defaults so `config print` shows effective values.
var defaults = map[string]any{
	"rpc.http":     "https://api.mainnet-beta.solana.com",
	"rpc.ws":       "wss://api.mainnet-beta.solana.com",
	"rpc.timeout":  "15s",
	"rpc.retries":  3,
	"rpc.rps":      10.0,
	"rpc.burst":    20,
	"rpc.programs": []string{},

	"ledger.window":          3,
	"ledger.density":         3,
	"ledger.alignment":       2,
	"ledger.max_fresh_mints": 20,

	"readiness.threshold":       0.80,
	"readiness.min_ledger_bits": 2,

	"ingest.slot_lag":      2,
	"ingest.probe_ttl":     "5s",
	"ingest.probe_workers": 4,
	"ingest.probe_window":  10,

	"scheduler.slot_ms":           400,
	"scheduler.trigger_window_ms": 5,
	"scheduler.poll_ms":           1,
	"scheduler.target_offset":     1,

	"risk.min_liquidity_usd": 5000.0,

	"orders.tp_min":                  orders.DefaultTPMin,
	"orders.tp_max":                  orders.DefaultTPMax,
	"orders.stop_pct":                orders.DefaultStopPct,
	"orders.take_profit_fraction":    orders.DefaultTakeProfitFraction,
	"orders.max_per_user":            orders.DefaultMaxOrdersPerUser,
	"orders.auto_execute":            true,
	"orders.exec_timeout":            orders.DefaultExecTimeout.String(),
	"orders.keep_pending_on_failure": true,
	"orders.repeat_on_entry":         false,
	"orders.entry_capital":           orders.DefaultEntryCapital,

	"monitor.interval":       "3s",
	"monitor.max_concurrent": 10,
	"monitor.redis_addr":     "localhost:6379",
	"monitor.redis_password": "",
	"monitor.redis_db":       0,
	"monitor.redis_prefix":   "prices:",

	"strategy.timeframes":              []string{"5m", "15m", "4h", "8h"},
	"strategy.capital_percent":         0.10,
	"strategy.min_matching_timeframes": 3,
	"strategy.tp_min":                  0.01,
	"strategy.tp_max":                  0.03,
	"strategy.reinvest_loss":           -0.03,
	"strategy.min_ticks":               strategy.DefaultMinTicks,
	"strategy.entry.stoch_j_max":       10.0,
	"strategy.entry.stoch_k_max":       30.0,
	"strategy.entry.williams_r_min":    80.0,

	"storage.backend":        BackendMemory,
	"storage.postgres_dsn":   "",
	"storage.clickhouse_dsn": "",

	"http.addr": ":8080",
}

// newViper returns a viper instance with defaults and env overrides bound.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadDotEnv loads .env into the process environment. Variables already set
// win; a missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.RPC.HTTP != "", "rpc.http is required")
	check(c.RPC.Timeout > 0, "rpc.timeout must be > 0")
	check(c.RPC.Retries >= 0, "rpc.retries must be >= 0")
	check(c.RPC.RPS > 0, "rpc.rps must be > 0")
	check(c.RPC.Burst > 0, "rpc.burst must be > 0")

	check(c.Ledger.Window > 0, "ledger.window must be > 0")
	check(c.Ledger.Density > 0, "ledger.density must be > 0")
	check(c.Ledger.Alignment >= 0, "ledger.alignment must be >= 0")
	check(c.Ledger.MaxFreshMints > 0, "ledger.max_fresh_mints must be > 0")

	check(c.Readiness.Threshold > 0 && c.Readiness.Threshold <= 1, "readiness.threshold must be in (0, 1], got %v", c.Readiness.Threshold)
	check(c.Readiness.MinLedgerBits >= 0, "readiness.min_ledger_bits must be >= 0")

	check(c.Ingest.SlotLag >= 0, "ingest.slot_lag must be >= 0")
	check(c.Ingest.ProbeWorkers > 0, "ingest.probe_workers must be > 0")

	check(c.Scheduler.SlotMs > 0, "scheduler.slot_ms must be > 0")
	check(c.Scheduler.TriggerWindowMs > 0 && c.Scheduler.TriggerWindowMs < c.Scheduler.SlotMs,
		"scheduler.trigger_window_ms must be in (0, slot_ms)")
	check(c.Scheduler.PollMs > 0, "scheduler.poll_ms must be > 0")
	check(c.Scheduler.TargetOffset > 0, "scheduler.target_offset must be > 0")

	check(c.Risk.MinLiquidityUSD >= 0, "risk.min_liquidity_usd must be >= 0")

	check(c.Orders.TPMin > 0 && c.Orders.TPMin <= c.Orders.TPMax, "orders.tp_min must be in (0, tp_max]")
	check(c.Orders.StopPct > 0 && c.Orders.StopPct < 1, "orders.stop_pct must be in (0, 1)")
	check(c.Orders.MaxPerUser > 0, "orders.max_per_user must be > 0")
	check(c.Orders.ExecTimeout > 0, "orders.exec_timeout must be > 0")
	check(c.Orders.EntryCapital > 0, "orders.entry_capital must be > 0")

	check(c.Monitor.Interval > 0, "monitor.interval must be > 0")
	check(c.Monitor.MaxConcurrent > 0, "monitor.max_concurrent must be > 0")

	check(len(c.Strategy.Timeframes) > 0, "strategy.timeframes must not be empty")
	check(c.Strategy.CapitalPercent > 0 && c.Strategy.CapitalPercent <= 1, "strategy.capital_percent must be in (0, 1]")
	check(c.Strategy.MinMatchingTimeframes > 0 && c.Strategy.MinMatchingTimeframes <= len(c.Strategy.Timeframes),
		"strategy.min_matching_timeframes must be in [1, len(timeframes)]")
	check(c.Strategy.ReinvestLoss < 0, "strategy.reinvest_loss must be negative")

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for the postgres backend")
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Storage.Backend))
	}

	check(c.HTTP.Addr != "", "http.addr is required")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// YAML renders the configuration. Secrets are omitted.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Watcher reloads a config file on change.
type Watcher struct {
	v      *viper.Viper
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Config
}

// Watch loads path and calls onChange with every subsequent valid revision.
// Invalid revisions are logged and ignored; the last valid one stays current.
func Watch(path string, onChange func(*Config), logger *zerolog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watch requires a path")
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{v: v, logger: l.With().Str("component", "config").Logger(), current: cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			w.logger.Error().Err(err).Str("file", evt.Name).Msg("config reload rejected")
			return
		}
		w.mu.Lock()
		w.current = next
		w.mu.Unlock()
		w.logger.Info().Str("file", evt.Name).Str("op", evt.Op.String()).Msg("config reloaded")
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
