// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface exposes read access to the loaded configuration. Components take
// the section they need rather than the whole struct wherever possible.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Stealth() StealthConfig
	Search() SearchConfig
	Challenge() ChallengeConfig
	Humanoid() HumanoidConfig
	Manual() ManualConfig
	Artifacts() ArtifactsConfig
	Output() OutputConfig
	Database() DatabaseConfig
}

// Config is the root configuration structure for the application.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	StealthCfg   StealthConfig   `mapstructure:"stealth" yaml:"stealth"`
	SearchCfg    SearchConfig    `mapstructure:"search" yaml:"search"`
	ChallengeCfg ChallengeConfig `mapstructure:"challenge" yaml:"challenge"`
	HumanoidCfg  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	ManualCfg    ManualConfig    `mapstructure:"manual" yaml:"manual"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	OutputCfg    OutputConfig    `mapstructure:"output" yaml:"output"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Stealth() StealthConfig     { return c.StealthCfg }
func (c *Config) Search() SearchConfig       { return c.SearchCfg }
func (c *Config) Challenge() ChallengeConfig { return c.ChallengeCfg }
func (c *Config) Humanoid() HumanoidConfig   { return c.HumanoidCfg }
func (c *Config) Manual() ManualConfig       { return c.ManualCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Output() OutputConfig       { return c.OutputCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser instances and the session pool.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Proxies           []string      `mapstructure:"proxies" yaml:"proxies"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// SettleMin and SettleMax bound the pause taken after a navigation before
	// the page is inspected.
	SettleMin time.Duration `mapstructure:"settle_min" yaml:"settle_min"`
	SettleMax time.Duration `mapstructure:"settle_max" yaml:"settle_max"`
	// NavigationRate is the pool-wide number of navigations allowed per second.
	NavigationRate  float64 `mapstructure:"navigation_rate" yaml:"navigation_rate"`
	NavigationBurst int     `mapstructure:"navigation_burst" yaml:"navigation_burst"`
}

// SearchConfig drives the site search box after the landing page is clear.
// An empty query skips the search and extracts from the target as loaded.
type SearchConfig struct {
	Query string `mapstructure:"query" yaml:"query"`
	// Attempts bounds how often the page is reloaded looking for the box.
	Attempts int `mapstructure:"attempts" yaml:"attempts"`
}

// StealthConfig controls fingerprint synthesis. A zero seed means every
// session draws a fresh random profile.
type StealthConfig struct {
	Seed int64 `mapstructure:"seed" yaml:"seed"`
	// Locale, when set, pins every profile to this locale. Only locales of a
	// known consistency group are accepted.
	Locale string `mapstructure:"locale" yaml:"locale"`
}

// ChallengeConfig carries the retry policy and detection tuning.
type ChallengeConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxStrategies      int           `mapstructure:"max_strategies" yaml:"max_strategies"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier  float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	BackoffJitter      float64       `mapstructure:"backoff_jitter" yaml:"backoff_jitter"`
	MaxChainDepth      int           `mapstructure:"max_chain_depth" yaml:"max_chain_depth"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	AmbiguityThreshold float64       `mapstructure:"ambiguity_threshold" yaml:"ambiguity_threshold"`
	SuccessMarkers     []string      `mapstructure:"success_markers" yaml:"success_markers"`
}

// ManualConfig selects how a human operator is reached when automation gives up.
type ManualConfig struct {
	// Mode is one of "none", "console" or "http".
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	ListenAddr  string        `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// ArtifactsConfig points at the directory used for screenshots.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// OutputConfig controls where extracted records are written.
type OutputConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxRecords int    `mapstructure:"max_records" yaml:"max_records"`
	Pretty     bool   `mapstructure:"pretty" yaml:"pretty"`
}

// DatabaseConfig holds the database connection details. An empty URL
// disables attempt history persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Manual gateway modes.
const (
	ManualModeNone    = "none"
	ManualModeConsole = "console"
	ManualModeHTTP    = "http"
)

// NewDefaultConfig creates a new configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "hurdle")
	v.SetDefault("logger.log_file", "hurdle.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.proxies", []string{})
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.settle_min", "1s")
	v.SetDefault("browser.settle_max", "2s")
	v.SetDefault("browser.navigation_rate", 0.5)
	v.SetDefault("browser.navigation_burst", 1)

	// -- Stealth --
	v.SetDefault("stealth.seed", 0)
	v.SetDefault("stealth.locale", "")

	// -- Search --
	v.SetDefault("search.query", "")
	v.SetDefault("search.attempts", 3)

	// -- Challenge --
	v.SetDefault("challenge.max_attempts", 3)
	v.SetDefault("challenge.max_strategies", 6)
	v.SetDefault("challenge.attempt_timeout", "10s")
	v.SetDefault("challenge.initial_backoff", "750ms")
	v.SetDefault("challenge.max_backoff", "20s")
	v.SetDefault("challenge.backoff_multiplier", 2.0)
	v.SetDefault("challenge.backoff_jitter", 0.2)
	v.SetDefault("challenge.max_chain_depth", 4)
	v.SetDefault("challenge.poll_interval", "250ms")
	v.SetDefault("challenge.ambiguity_threshold", 0.75)
	v.SetDefault("challenge.success_markers", []string{})

	// -- Humanoid --
	setHumanoidDefaults(v)

	// -- Manual --
	v.SetDefault("manual.mode", ManualModeConsole)
	v.SetDefault("manual.wait_timeout", "5m")
	v.SetDefault("manual.listen_addr", "127.0.0.1:8089")

	// -- Artifacts & Output --
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("output.path", "records.json")
	v.SetDefault("output.max_records", 100)
	v.SetDefault("output.pretty", true)

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper unmarshals the viper state into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string usually carries a password; keep it out of files.
	v.BindEnv("database.url", "HURDLE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.DatabaseCfg.URL == "" {
		cfg.DatabaseCfg.URL = os.Getenv("HURDLE_DATABASE_URL")
	}
	cfg.ManualCfg.Mode = strings.ToLower(strings.TrimSpace(cfg.ManualCfg.Mode))

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every file system path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.ArtifactsCfg.Dir, &c.OutputCfg.Path} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.BrowserCfg.SettleMax < c.BrowserCfg.SettleMin {
		return fmt.Errorf("browser.settle_max must not be less than browser.settle_min")
	}
	if c.BrowserCfg.NavigationRate < 0 {
		return fmt.Errorf("browser.navigation_rate must not be negative")
	}
	for _, p := range c.BrowserCfg.Proxies {
		if _, err := url.Parse(p); err != nil || p == "" {
			return fmt.Errorf("browser.proxies contains an invalid endpoint %q", p)
		}
	}
	if c.SearchCfg.Query != "" && c.SearchCfg.Attempts < 1 {
		return fmt.Errorf("search.attempts must be at least 1 when search.query is set")
	}
	if err := c.ChallengeCfg.Validate(); err != nil {
		return fmt.Errorf("challenge configuration invalid: %w", err)
	}
	if err := c.HumanoidCfg.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	if err := c.ManualCfg.Validate(); err != nil {
		return fmt.Errorf("manual configuration invalid: %w", err)
	}
	if c.OutputCfg.MaxRecords < 0 {
		return fmt.Errorf("output.max_records must not be negative")
	}
	return nil
}

// Validate checks the retry policy bounds. The backoff schedule must grow on
// every step even at the extremes of the jitter window.
func (c *ChallengeConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if c.MaxStrategies <= 0 {
		return fmt.Errorf("max_strategies must be a positive integer")
	}
	if c.MaxChainDepth <= 0 {
		return fmt.Errorf("max_chain_depth must be a positive integer")
	}
	if c.AttemptTimeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("attempt_timeout and poll_interval must be positive")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be greater than 1")
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= (c.BackoffMultiplier-1)/(c.BackoffMultiplier+1) {
		return fmt.Errorf("backoff_jitter must be in [0, %.3f) for multiplier %.2f",
			(c.BackoffMultiplier-1)/(c.BackoffMultiplier+1), c.BackoffMultiplier)
	}
	if c.AmbiguityThreshold < 0 || c.AmbiguityThreshold > 1 {
		return fmt.Errorf("ambiguity_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the manual gateway selection.
func (m *ManualConfig) Validate() error {
	switch strings.ToLower(m.Mode) {
	case ManualModeNone:
		return nil
	case ManualModeConsole, ManualModeHTTP:
	default:
		return fmt.Errorf("mode must be one of none, console, http; got %q", m.Mode)
	}
	if m.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive")
	}
	if strings.EqualFold(m.Mode, ManualModeHTTP) && m.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required for http mode")
	}
	return nil
}
