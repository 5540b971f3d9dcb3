package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wablast/internal/model"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Paths    PathsConfig    `yaml:"paths"`
	Channel  ChannelConfig  `yaml:"channel"`
	Campaign CampaignConfig `yaml:"campaign"` // Defaults for knobs a start request omits
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"` // Default: :9724
}

type StorageConfig struct {
	DSN string `yaml:"dsn"` // sqlite DSN shared by app tables and the session store
}

type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`
	ContactsDir string `yaml:"contacts_dir"`
	MediaDir    string `yaml:"media_dir"`
	UploadsDir  string `yaml:"uploads_dir"`
	ReportsDir  string `yaml:"reports_dir"`
}

type ChannelConfig struct {
	RestartCooldown    time.Duration `yaml:"restart_cooldown"`     // Default: 5s
	DefaultCountryCode string        `yaml:"default_country_code"` // Default: 91
	AddressServer      string        `yaml:"address_server"`       // Default: s.whatsapp.net
	DeviceName         string        `yaml:"device_name"`
}

type CampaignConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	DailyLimit      int           `yaml:"daily_limit"`
	MinDelay        time.Duration `yaml:"min_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	MinTypingDelay  time.Duration `yaml:"min_typing_delay"`
	MaxTypingDelay  time.Duration `yaml:"max_typing_delay"`
	MinAttachDelay  time.Duration `yaml:"min_attach_delay"`
	MaxAttachDelay  time.Duration `yaml:"max_attach_delay"`
	SimulationStyle string        `yaml:"simulation_style"`
	SimulateReading bool          `yaml:"simulate_reading"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Default: /metrics
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":9724"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "file:wablast.db?_foreign_keys=on"
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.ContactsDir == "" {
		c.Paths.ContactsDir = filepath.Join(c.Paths.DataDir, "contacts")
	}
	if c.Paths.MediaDir == "" {
		c.Paths.MediaDir = filepath.Join(c.Paths.DataDir, "media")
	}
	if c.Paths.UploadsDir == "" {
		c.Paths.UploadsDir = filepath.Join(c.Paths.DataDir, "uploads")
	}
	if c.Paths.ReportsDir == "" {
		c.Paths.ReportsDir = filepath.Join(c.Paths.DataDir, "reports")
	}

	if c.Channel.RestartCooldown == 0 {
		c.Channel.RestartCooldown = 5 * time.Second
	}
	if c.Channel.DefaultCountryCode == "" {
		c.Channel.DefaultCountryCode = "91"
	}
	if c.Channel.AddressServer == "" {
		c.Channel.AddressServer = "s.whatsapp.net"
	}
	if c.Channel.DeviceName == "" {
		c.Channel.DeviceName = "wablast"
	}

	cc := &c.Campaign
	if cc.BatchSize == 0 {
		cc.BatchSize = 20
	}
	if cc.DailyLimit == 0 {
		cc.DailyLimit = 100
	}
	if cc.MinDelay == 0 && cc.MaxDelay == 0 {
		cc.MinDelay, cc.MaxDelay = 30*time.Second, 90*time.Second
	}
	if cc.MinTypingDelay == 0 && cc.MaxTypingDelay == 0 {
		cc.MinTypingDelay, cc.MaxTypingDelay = 5*time.Second, 10*time.Second
	}
	if cc.MinAttachDelay == 0 && cc.MaxAttachDelay == 0 {
		cc.MinAttachDelay, cc.MaxAttachDelay = time.Second, 3*time.Second
	}
	if cc.SimulationStyle == "" {
		cc.SimulationStyle = model.StyleRandom
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// applyEnv keeps the DB_DSN and PORT overrides of earlier deployments.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Listen = ":" + strings.TrimPrefix(v, ":")
	}
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	var errs []error
	cc := c.Campaign
	if cc.BatchSize <= 0 {
		errs = append(errs, errors.New("campaign.batch_size must be positive"))
	}
	if cc.DailyLimit < 0 {
		errs = append(errs, errors.New("campaign.daily_limit must not be negative"))
	}
	if err := checkRange("campaign delay", cc.MinDelay, cc.MaxDelay); err != nil {
		errs = append(errs, err)
	}
	if err := checkRange("campaign typing delay", cc.MinTypingDelay, cc.MaxTypingDelay); err != nil {
		errs = append(errs, err)
	}
	if err := checkRange("campaign attach delay", cc.MinAttachDelay, cc.MaxAttachDelay); err != nil {
		errs = append(errs, err)
	}
	if err := ValidStyle(cc.SimulationStyle); err != nil {
		errs = append(errs, err)
	}
	if c.Channel.RestartCooldown < 0 {
		errs = append(errs, errors.New("channel.restart_cooldown must not be negative"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func checkRange(name string, min, max time.Duration) error {
	if min < 0 || max < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	if min > max {
		return fmt.Errorf("%s: min %s exceeds max %s", name, min, max)
	}
	return nil
}

// ValidStyle reports an error for an unknown simulation style.
func ValidStyle(style string) error {
	switch style {
	case model.StyleTyping, model.StylePasted, model.StyleRandom:
		return nil
	}
	return fmt.Errorf("simulation style %q must be typing, pasted or random", style)
}

// CampaignDefaults converts the configured defaults to a campaign config.
func (c *Config) CampaignDefaults() model.CampaignConfig {
	cc := c.Campaign
	return model.CampaignConfig{
		BatchSize:       cc.BatchSize,
		DailyLimit:      cc.DailyLimit,
		MinDelay:        cc.MinDelay,
		MaxDelay:        cc.MaxDelay,
		MinTypingDelay:  cc.MinTypingDelay,
		MaxTypingDelay:  cc.MaxTypingDelay,
		MinAttachDelay:  cc.MinAttachDelay,
		MaxAttachDelay:  cc.MaxAttachDelay,
		SimulationStyle: cc.SimulationStyle,
		SimulateReading: cc.SimulateReading,
	}
}
