package config

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dir is the per-workspace directory holding config, the sqlite store and logs.
const Dir = ".docdrift"

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// Config represents the complete docdrift configuration.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Store      StoreConfig        `json:"store" mapstructure:"store"`
	Weights    map[string]float64 `json:"weights" mapstructure:"weights"`
	Modalities map[string]bool    `json:"modalities" mapstructure:"modalities"`
	Scoring    ScoringConfig      `json:"scoring" mapstructure:"scoring"`
	Severity   SeverityConfig     `json:"severity" mapstructure:"severity"`
	Query      QueryConfig        `json:"query" mapstructure:"query"`
	Drift      DriftConfig        `json:"drift" mapstructure:"drift"`
	Server     ServerConfig       `json:"server" mapstructure:"server"`
	Queue      QueueConfig        `json:"queue" mapstructure:"queue"`
	Schedule   ScheduleConfig     `json:"schedule" mapstructure:"schedule"`
	Ingest     IngestConfig       `json:"ingest" mapstructure:"ingest"`
	Logging    LoggingConfig      `json:"logging" mapstructure:"logging"`
}

// StoreConfig selects and connects the graph store backend.
type StoreConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`
	Backend          string `json:"backend" mapstructure:"backend"`
	Path             string `json:"path,omitempty" mapstructure:"path"`
	Address          string `json:"address,omitempty" mapstructure:"address"`
	Username         string `json:"username,omitempty" mapstructure:"username"`
	Password         string `json:"password,omitempty" mapstructure:"password"`
	Database         string `json:"database,omitempty" mapstructure:"database"`
	ConnectTimeoutMs int    `json:"connectTimeoutMs" mapstructure:"connectTimeoutMs"`
}

// ScoringConfig contains recency decay and normalization parameters.
type ScoringConfig struct {
	HalfLifeHours      float64             `json:"halfLifeHours" mapstructure:"halfLifeHours"`
	SaturationMidpoint float64             `json:"saturationMidpoint" mapstructure:"saturationMidpoint"`
	WindowHours        float64             `json:"windowHours" mapstructure:"windowHours"`
	LookbackHours      float64             `json:"lookbackHours" mapstructure:"lookbackHours"`
	TrendEpsilon       float64             `json:"trendEpsilon" mapstructure:"trendEpsilon"`
	Axes               map[string][]string `json:"axes" mapstructure:"axes"`
}

// ScoreThresholds map an axis score to a severity.
type ScoreThresholds struct {
	Critical float64 `json:"critical" mapstructure:"critical"`
	High     float64 `json:"high" mapstructure:"high"`
	Medium   float64 `json:"medium" mapstructure:"medium"`
	Low      float64 `json:"low" mapstructure:"low"`
}

// SeverityConfig contains the severity mapping thresholds.
type SeverityConfig struct {
	CriticalErrorCount int             `json:"criticalErrorCount" mapstructure:"criticalErrorCount"`
	MediumWarningCount int             `json:"mediumWarningCount" mapstructure:"mediumWarningCount"`
	ScoreThresholds    ScoreThresholds `json:"scoreThresholds" mapstructure:"scoreThresholds"`
	IssueAxes          []string        `json:"issueAxes" mapstructure:"issueAxes"`
	ResolveAfterCycles int             `json:"resolveAfterCycles" mapstructure:"resolveAfterCycles"`
}

// QueryConfig bounds graph traversals.
type QueryConfig struct {
	NeighborhoodDepth int `json:"neighborhoodDepth" mapstructure:"neighborhoodDepth"`
	MaxNodes          int `json:"maxNodes" mapstructure:"maxNodes"`
}

// DriftTarget pairs an API spec with its documentation.
type DriftTarget struct {
	Name      string `json:"name" mapstructure:"name"`
	Service   string `json:"service" mapstructure:"service"`
	Component string `json:"component" mapstructure:"component"`
	Spec      string `json:"spec" mapstructure:"spec"`
	Doc       string `json:"doc" mapstructure:"doc"`
}

// DriftConfig lists the spec/doc pairs checked each evaluation cycle.
type DriftConfig struct {
	Targets []DriftTarget `json:"targets" mapstructure:"targets"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Bind string `json:"bind" mapstructure:"bind"`
	Port int    `json:"port" mapstructure:"port"`
}

// QueueConfig contains AMQP consumer settings.
type QueueConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URL        string `json:"url,omitempty" mapstructure:"url"`
	Queue      string `json:"queue" mapstructure:"queue"`
	MaxRetries int    `json:"maxRetries" mapstructure:"maxRetries"`
	Prefetch   int    `json:"prefetch" mapstructure:"prefetch"`
}

// ScheduleConfig contains cron specs for background jobs.
type ScheduleConfig struct {
	Evaluate string `json:"evaluate" mapstructure:"evaluate"`
}

// IngestConfig contains batch ingestion settings.
type IngestConfig struct {
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"` // "json" or "human"
	Level  string `json:"level" mapstructure:"level"`   // "debug", "info", "warn", "error"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Store: StoreConfig{
			Enabled:          true,
			Backend:          "sqlite",
			Path:             filepath.Join(Dir, "docdrift.db"),
			ConnectTimeoutMs: 5000,
		},
		Weights: map[string]float64{
			"git":     3,
			"slack":   2,
			"issues":  1,
			"support": 4,
		},
		Modalities: map[string]bool{},
		Scoring: ScoringConfig{
			HalfLifeHours:      168,
			SaturationMidpoint: 3,
			WindowHours:        168,
			LookbackHours:      1344,
			TrendEpsilon:       2,
			Axes: map[string][]string{
				"activity":        {"git", "slack", "issues", "tickets"},
				"drift":           {"git", "issues"},
				"dissatisfaction": {"support", "slack", "tickets"},
			},
		},
		Severity: SeverityConfig{
			CriticalErrorCount: 3,
			MediumWarningCount: 2,
			ScoreThresholds: ScoreThresholds{
				Critical: 85,
				High:     70,
				Medium:   50,
				Low:      30,
			},
			IssueAxes:          []string{"drift", "dissatisfaction"},
			ResolveAfterCycles: 2,
		},
		Query: QueryConfig{
			NeighborhoodDepth: 1,
			MaxNodes:          500,
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8420,
		},
		Queue: QueueConfig{
			Queue:      "docdrift.events",
			MaxRetries: 3,
			Prefetch:   10,
		},
		Schedule: ScheduleConfig{
			Evaluate: "@every 15m",
		},
		Ingest: IngestConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// envKeys can be overridden with DOCDRIFT_<SECTION>_<KEY>.
var envKeys = []string{
	"store.enabled",
	"store.backend",
	"store.path",
	"store.address",
	"store.username",
	"store.password",
	"store.database",
	"server.bind",
	"server.port",
	"queue.enabled",
	"queue.url",
	"queue.queue",
	"schedule.evaluate",
	"logging.format",
	"logging.level",
}

// EnvVars lists the environment variables LoadConfig honours.
func EnvVars() []string {
	out := make([]string, len(envKeys))
	for i, key := range envKeys {
		out[i] = "DOCDRIFT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	}
	return out
}

// LoadConfig loads configuration from <root>/.docdrift/config.json.
// Values absent from the file keep their defaults; env vars override both.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, Dir))

	v.SetEnvPrefix("DOCDRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to <root>/.docdrift/config.json.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	switch c.Store.Backend {
	case "sqlite", "postgres", "memory":
	default:
		return &ConfigError{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}
	for source, w := range c.Weights {
		if w < 0 {
			return &ConfigError{Field: "weights." + source, Message: "weight must not be negative"}
		}
	}
	if c.Scoring.HalfLifeHours <= 0 {
		return &ConfigError{Field: "scoring.halfLifeHours", Message: "must be positive"}
	}
	if c.Scoring.SaturationMidpoint <= 0 {
		return &ConfigError{Field: "scoring.saturationMidpoint", Message: "must be positive"}
	}
	if c.Severity.ResolveAfterCycles < 1 {
		return &ConfigError{Field: "severity.resolveAfterCycles", Message: "must be at least 1"}
	}
	t := c.Severity.ScoreThresholds
	if !(t.Critical >= t.High && t.High >= t.Medium && t.Medium >= t.Low) {
		return &ConfigError{Field: "severity.scoreThresholds", Message: "thresholds must be descending"}
	}
	for i, target := range c.Drift.Targets {
		if target.Spec == "" || target.Doc == "" {
			return &ConfigError{Field: fmt.Sprintf("drift.targets[%d]", i), Message: "spec and doc are required"}
		}
	}
	return nil
}

// ModalityEnabled reports whether a signal source participates. Absent means enabled.
func (c *Config) ModalityEnabled(source string) bool {
	enabled, ok := c.Modalities[strings.ToLower(source)]
	return !ok || enabled
}

// Weight returns the configured weight of source; absent sources weigh 0.
func (c *Config) Weight(source string) float64 {
	return c.Weights[strings.ToLower(source)]
}

// HalfLife returns the recency half-life as a duration.
func (s ScoringConfig) HalfLife() time.Duration {
	return hours(s.HalfLifeHours)
}

// Window returns the trend comparison window.
func (s ScoringConfig) Window() time.Duration {
	return hours(s.WindowHours)
}

// Lookback returns how far back events are fetched for scoring.
func (s ScoringConfig) Lookback() time.Duration {
	return hours(s.LookbackHours)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ConnectTimeout returns the store connect timeout.
func (s StoreConfig) ConnectTimeout() time.Duration {
	if s.ConnectTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

// PostgresDSN builds a connection URL from the store fields.
func (s StoreConfig) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   s.Address,
		Path:   "/" + s.Database,
	}
	if s.Username != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.Username, s.Password)
		} else {
			u.User = url.User(s.Username)
		}
	}
	q := url.Values{}
	secs := int(math.Ceil(s.ConnectTimeout().Seconds()))
	if secs < 1 {
		secs = 1
	}
	q.Set("connect_timeout", fmt.Sprintf("%d", secs))
	u.RawQuery = q.Encode()
	return u.String()
}

// ListenAddr returns the HTTP listen address.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
