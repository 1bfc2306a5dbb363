// Package conf loads and holds the engine's runtime settings.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseSettings selects the backing store for rules, alerts and the
// execution ledger.
type DatabaseSettings struct {
	// Type is "sqlite" or "mysql".
	Type string `mapstructure:"type"`
	// Path is the SQLite database file path.
	Path string `mapstructure:"path"`
	// DSN is the MySQL connection string.
	DSN string `mapstructure:"dsn"`
}

// SchedulerSettings controls the periodic rule execution loop.
type SchedulerSettings struct {
	// CheckInterval is how often the scheduler looks for due rules.
	CheckInterval Duration `mapstructure:"check_interval"`
	// ExecutionTimeout bounds a single rule execution. An execution that
	// exceeds it is marked failed rather than left hanging.
	ExecutionTimeout Duration `mapstructure:"execution_timeout"`
	// LedgerRetentionDays is how long finished executions are kept.
	// Zero disables cleanup.
	LedgerRetentionDays int `mapstructure:"ledger_retention_days"`
}

// MetricStoreSettings controls access to the portal's metric snapshot data.
type MetricStoreSettings struct {
	// CacheTTL is how long snapshots and population counts are cached.
	CacheTTL Duration `mapstructure:"cache_ttl"`
	// RetryAttempts is how many times a failed snapshot read is retried
	// before the execution is marked failed.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryBackoff is the delay between retries.
	RetryBackoff Duration `mapstructure:"retry_backoff"`
	// EventWindow bounds how far back event-trigger rules look.
	EventWindow Duration `mapstructure:"event_window"`
}

// RiskSettings controls the risk predictor.
type RiskSettings struct {
	// HistoryPeriods is the number of past metric periods used for
	// trajectory classification.
	HistoryPeriods int `mapstructure:"history_periods"`
}

// NotificationSettings controls the in-process notification record store.
type NotificationSettings struct {
	// MaxStored caps retained notification records; oldest are evicted.
	MaxStored int `mapstructure:"max_stored"`
}

// ServerSettings controls the HTTP API listener.
type ServerSettings struct {
	Listen string `mapstructure:"listen"`
}

// Settings is the full engine configuration.
type Settings struct {
	Database     DatabaseSettings     `mapstructure:"database"`
	Scheduler    SchedulerSettings    `mapstructure:"scheduler"`
	MetricStore  MetricStoreSettings  `mapstructure:"metric_store"`
	Risk         RiskSettings         `mapstructure:"risk"`
	Notification NotificationSettings `mapstructure:"notification"`
	Server       ServerSettings       `mapstructure:"server"`
	// Regions is the fixed list of administrative regions. The regional
	// heat map returns one entry per configured region regardless of
	// alert counts.
	Regions []string `mapstructure:"regions"`
}

// setDefaults registers default values on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "regwatch.db")
	v.SetDefault("scheduler.check_interval", "1m")
	v.SetDefault("scheduler.execution_timeout", "2m")
	v.SetDefault("scheduler.ledger_retention_days", 90)
	v.SetDefault("metric_store.cache_ttl", "30s")
	v.SetDefault("metric_store.retry_attempts", 3)
	v.SetDefault("metric_store.retry_backoff", "2s")
	v.SetDefault("metric_store.event_window", "24h")
	v.SetDefault("risk.history_periods", 6)
	v.SetDefault("notification.max_stored", 1000)
	v.SetDefault("server.listen", ":8390")
	v.SetDefault("regions", []string{"north", "south", "east", "west", "central"})
}

// Load reads settings from the given config file (optional) and REGWATCH_*
// environment variables, applying defaults for anything unset.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (s *Settings) Validate() error {
	switch s.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database type %q", s.Database.Type)
	}
	if s.Scheduler.CheckInterval.Std() <= 0 {
		return fmt.Errorf("scheduler.check_interval must be positive")
	}
	if s.Scheduler.ExecutionTimeout.Std() <= 0 {
		return fmt.Errorf("scheduler.execution_timeout must be positive")
	}
	if s.MetricStore.RetryAttempts < 0 {
		return fmt.Errorf("metric_store.retry_attempts must not be negative")
	}
	if len(s.Regions) == 0 {
		return fmt.Errorf("at least one region must be configured")
	}
	return nil
}

// Default returns settings with all defaults applied, for tests and
// programmatic embedding.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	// Defaults are always decodable; ignore the error path.
	_ = v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook()))
	return &s
}

// Sanity floor used by the scheduler when an interval is misconfigured.
const MinScheduleInterval = 10 * time.Second
