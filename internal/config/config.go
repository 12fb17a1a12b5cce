// Package config loads runtime configuration from an optional YAML file,
// an optional .env file and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Detection strategies for the streaming runner.
const (
	StrategyCoOccurrence = "co_occurrence"
	StrategyFastSell     = "fast_sell"
)

// Stream sources.
const (
	SourceWS     = "ws"
	SourceReplay = "replay"
)

// Config holds all application configuration.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Stream    StreamConfig    `yaml:"stream"`
	Batch     BatchConfig     `yaml:"batch"`
	MarketCap MarketCapConfig `yaml:"market_cap"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`

	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`

	// MetricsAddr serves /metrics and /health; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Strategy and Params are the single-strategy form of the batch YAML
	// (strategy: KillFollowStrategy, params: {max_hold_time_sec: 30}).
	Strategy string         `yaml:"strategy"`
	Params   map[string]any `yaml:"params"`
}

// DetectionConfig tunes the streaming heuristics.
type DetectionConfig struct {
	Strategy          string  `yaml:"strategy"`
	WindowSec         float64 `yaml:"window_sec"`
	MinGroupSize      int     `yaml:"min_group_size"`
	MinGroupSightings int     `yaml:"min_group_sightings"`
	HistoryHorizonSec float64 `yaml:"history_horizon_sec"`
	CooldownSec       float64 `yaml:"cooldown_sec"`
	GroupRetentionSec float64 `yaml:"group_retention_sec"`
	SweepIntervalSec  float64 `yaml:"sweep_interval_sec"`

	FastSellWindowSec    float64 `yaml:"fast_sell_window_sec"`
	FastSellRetentionSec float64 `yaml:"fast_sell_retention_sec"`
}

// StreamConfig selects and tunes the event source.
type StreamConfig struct {
	Source     string   `yaml:"source"`
	RPCURL     string   `yaml:"rpc_url"`
	WSURL      string   `yaml:"ws_url"`
	Programs   []string `yaml:"programs"`
	Commitment string   `yaml:"commitment"`
	Workers    int      `yaml:"workers"`
	Checkpoint string   `yaml:"checkpoint"`

	RetryInitialSec float64 `yaml:"retry_initial_sec"`
	RetryMaxSec     float64 `yaml:"retry_max_sec"`
	MaxFailures     int     `yaml:"max_failures"`

	// Replay reads history from ClickHouse instead of the live stream.
	ReplayLookbackHours float64 `yaml:"replay_lookback_hours"`
	ReplaySpeed         float64 `yaml:"replay_speed"`
}

// StrategySpec names a batch strategy and its parameters.
type StrategySpec struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// BatchConfig lists batch strategies to run.
type BatchConfig struct {
	Strategies []StrategySpec `yaml:"strategies"`
}

// MarketCapConfig tunes the market cap filter.
type MarketCapConfig struct {
	BaseURL        string  `yaml:"base_url"`
	CeilingUSD     float64 `yaml:"ceiling_usd"`
	TimeoutSec     float64 `yaml:"timeout_sec"`
	TTLSec         float64 `yaml:"ttl_sec"`
	NegativeTTLSec float64 `yaml:"negative_ttl_sec"`
	RedisPrefix    string  `yaml:"redis_prefix"`
}

// AlertsConfig selects alert sinks.
type AlertsConfig struct {
	// Sinks is any of log, postgres, kafka.
	Sinks        []string `yaml:"sinks"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// ClickHouseConfig locates the event views.
type ClickHouseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// QueryTimeoutSec is the server-side limit for one view scan.
	QueryTimeoutSec float64 `yaml:"query_timeout_sec"`
}

// PostgresConfig locates the alert store.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"` // 0 keeps the pgx default
}

// RedisConfig locates the shared market cap cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			Strategy:          StrategyCoOccurrence,
			WindowSec:         30,
			MinGroupSize:      3,
			MinGroupSightings: 2,
			HistoryHorizonSec: 600,
			CooldownSec:       300,
			SweepIntervalSec:  60,
			FastSellWindowSec: 30,
		},
		Stream: StreamConfig{
			Source:              SourceWS,
			RPCURL:              "https://api.mainnet-beta.solana.com",
			WSURL:               "wss://api.mainnet-beta.solana.com",
			Commitment:          "confirmed",
			Workers:             4,
			Checkpoint:          "watch",
			RetryInitialSec:     1,
			RetryMaxSec:         60,
			ReplayLookbackHours: 24,
		},
		MarketCap: MarketCapConfig{
			BaseURL:        "https://api.dexscreener.com",
			CeilingUSD:     500_000,
			TimeoutSec:     5,
			TTLSec:         600,
			NegativeTTLSec: 30,
			RedisPrefix:    "marketcap:",
		},
		Alerts: AlertsConfig{
			Sinks:      []string{"log"},
			KafkaTopic: "leader-alerts",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		ClickHouse: ClickHouseConfig{
			Host:            "localhost",
			Port:            9000,
			Database:        "default",
			QueryTimeoutSec: 300,
		},
		MetricsAddr: ":9090",
	}
}

// Load builds the configuration. path names an optional YAML file; a
// missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if cfg.Strategy != "" {
		cfg.Batch.Strategies = append(cfg.Batch.Strategies, StrategySpec{Name: cfg.Strategy, Params: cfg.Params})
		cfg.Strategy, cfg.Params = "", nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	d := &c.Detection
	d.Strategy = getEnv("DETECTION_STRATEGY", d.Strategy)
	d.WindowSec = getEnvFloat("DETECTION_WINDOW_SEC", d.WindowSec)
	d.MinGroupSize = getEnvInt("DETECTION_MIN_GROUP_SIZE", d.MinGroupSize)
	d.MinGroupSightings = getEnvInt("DETECTION_MIN_GROUP_SIGHTINGS", d.MinGroupSightings)
	d.HistoryHorizonSec = getEnvFloat("DETECTION_HISTORY_HORIZON_SEC", d.HistoryHorizonSec)
	d.CooldownSec = getEnvFloat("DETECTION_COOLDOWN_SEC", d.CooldownSec)
	d.GroupRetentionSec = getEnvFloat("DETECTION_GROUP_RETENTION_SEC", d.GroupRetentionSec)
	d.SweepIntervalSec = getEnvFloat("DETECTION_SWEEP_INTERVAL_SEC", d.SweepIntervalSec)
	d.FastSellWindowSec = getEnvFloat("DETECTION_FAST_SELL_WINDOW_SEC", d.FastSellWindowSec)
	d.FastSellRetentionSec = getEnvFloat("DETECTION_FAST_SELL_RETENTION_SEC", d.FastSellRetentionSec)

	s := &c.Stream
	s.Source = getEnv("STREAM_SOURCE", s.Source)
	s.RPCURL = getEnv("SOLANA_RPC_URL", s.RPCURL)
	s.WSURL = getEnv("SOLANA_WS_URL", s.WSURL)
	s.Programs = getEnvSlice("STREAM_PROGRAMS", s.Programs)
	s.Commitment = getEnv("STREAM_COMMITMENT", s.Commitment)
	s.Workers = getEnvInt("STREAM_WORKERS", s.Workers)

	m := &c.MarketCap
	m.BaseURL = getEnv("MARKETCAP_BASE_URL", m.BaseURL)
	m.CeilingUSD = getEnvFloat("MARKETCAP_CEILING_USD", m.CeilingUSD)
	m.TimeoutSec = getEnvFloat("MARKETCAP_TIMEOUT_SEC", m.TimeoutSec)

	a := &c.Alerts
	a.Sinks = getEnvSlice("ALERT_SINKS", a.Sinks)
	a.KafkaBrokers = getEnvSlice("KAFKA_BROKERS", a.KafkaBrokers)
	a.KafkaTopic = getEnv("KAFKA_TOPIC", a.KafkaTopic)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	ch := &c.ClickHouse
	ch.DSN = getEnv("CLICKHOUSE_DSN", ch.DSN)
	ch.Host = getEnv("CLICKHOUSE_HOST", ch.Host)
	ch.Port = getEnvInt("CLICKHOUSE_PORT", ch.Port)
	ch.Database = getEnv("CLICKHOUSE_DATABASE", ch.Database)
	ch.Username = getEnv("CLICKHOUSE_USERNAME", ch.Username)
	ch.Password = getEnv("CLICKHOUSE_PASSWORD", ch.Password)
	ch.QueryTimeoutSec = getEnvFloat("CLICKHOUSE_QUERY_TIMEOUT_SEC", ch.QueryTimeoutSec)

	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.MaxConns = getEnvInt("POSTGRES_MAX_CONNS", c.Postgres.MaxConns)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
}

// Validate checks configuration for errors. Startup is the only place an
// invalid threshold is fatal.
func (c *Config) Validate() error {
	d := c.Detection
	switch d.Strategy {
	case StrategyCoOccurrence, StrategyFastSell:
	default:
		return fmt.Errorf("invalid detection strategy %q (must be %s or %s)", d.Strategy, StrategyCoOccurrence, StrategyFastSell)
	}
	if d.WindowSec <= 0 || d.FastSellWindowSec <= 0 {
		return fmt.Errorf("detection windows must be positive")
	}
	if d.MinGroupSize < 2 {
		return fmt.Errorf("min_group_size must be at least 2, got %d", d.MinGroupSize)
	}
	if d.MinGroupSightings < 1 {
		return fmt.Errorf("min_group_sightings must be at least 1, got %d", d.MinGroupSightings)
	}
	if d.HistoryHorizonSec < d.WindowSec {
		return fmt.Errorf("history_horizon_sec (%v) must cover window_sec (%v)", d.HistoryHorizonSec, d.WindowSec)
	}
	if d.CooldownSec < 0 || d.GroupRetentionSec < 0 || d.SweepIntervalSec < 0 || d.FastSellRetentionSec < 0 {
		return fmt.Errorf("detection durations must not be negative")
	}

	switch c.Stream.Source {
	case SourceWS:
		if c.Stream.RPCURL == "" || c.Stream.WSURL == "" {
			return fmt.Errorf("rpc_url and ws_url are required for the ws source")
		}
	case SourceReplay:
		if c.Stream.ReplayLookbackHours <= 0 {
			return fmt.Errorf("replay_lookback_hours must be positive")
		}
	default:
		return fmt.Errorf("invalid stream source %q (must be %s or %s)", c.Stream.Source, SourceWS, SourceReplay)
	}

	if c.MarketCap.CeilingUSD < 0 {
		return fmt.Errorf("market cap ceiling must not be negative")
	}
	if c.MarketCap.TimeoutSec <= 0 {
		return fmt.Errorf("market cap timeout must be positive")
	}

	for _, s := range c.Alerts.Sinks {
		switch s {
		case "log":
		case "postgres":
			if c.Postgres.DSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required when postgres is in alert sinks")
			}
		case "kafka":
			if len(c.Alerts.KafkaBrokers) == 0 || c.Alerts.KafkaTopic == "" {
				return fmt.Errorf("kafka brokers and topic are required when kafka is in alert sinks")
			}
		default:
			return fmt.Errorf("invalid alert sink %q (valid values: log, postgres, kafka)", s)
		}
	}

	for _, s := range c.Batch.Strategies {
		if s.Name == "" {
			return fmt.Errorf("batch strategy without a name")
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format)
	}
	return nil
}

// HasSink reports whether the named alert sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Alerts.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// ConnString returns the ClickHouse DSN, built from the host fields when
// no DSN is set.
func (c ClickHouseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "clickhouse",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

// Seconds converts a fractional second count to a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
