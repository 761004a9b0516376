package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wfce/gmgn-filter/internal/autotrigger"
	"github.com/wfce/gmgn-filter/internal/grouping"
	"github.com/wfce/gmgn-filter/internal/hysteresis"
	"github.com/wfce/gmgn-filter/internal/leader"
	"github.com/wfce/gmgn-filter/internal/scheduler"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ShowMode selects which classified rows stay visible.
type ShowMode string

const (
	ShowAll             ShowMode = "all"
	ShowOnlyFirst       ShowMode = "onlyFirst"
	ShowOnlyDup         ShowMode = "onlyDup"
	ShowHideNonDupFirst ShowMode = "hideNonDupFirst"
)

// Config is the engine configuration snapshot. The engine never mutates
// it; a changed config is applied through a full reset.
type Config struct {
	Enabled          bool            `yaml:"enabled"`
	MatchMode        grouping.Mode   `yaml:"match_mode" validate:"oneof=symbol name both either"`
	WindowMinutes    int             `yaml:"window_minutes" validate:"gte=1,lte=10080"`
	OnlyWithinWindow bool            `yaml:"only_within_window"`
	ShowMode         ShowMode        `yaml:"show_mode" validate:"oneof=all onlyFirst onlyDup hideNonDupFirst"`
	TieBreak         leader.TieBreak `yaml:"tie_break" validate:"oneof=larger smaller"`

	LockDuration    time.Duration `yaml:"lock_duration" validate:"gt=0"`
	MinScanInterval time.Duration `yaml:"min_scan_interval" validate:"gte=0"`

	AutoBuy AutoBuyConfig `yaml:"auto_buy"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// AutoBuyConfig controls the auto-trigger engine and its executor.
type AutoBuyConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TimeWindow    time.Duration `yaml:"time_window" validate:"gt=0"`
	MinDuplicates int           `yaml:"min_duplicates" validate:"gte=2,lte=100"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	Cooldown      time.Duration `yaml:"cooldown" validate:"gte=0"`
	// DryRun records actions without performing them.
	DryRun bool `yaml:"dry_run"`
	// Webhook receives a POST per action when DryRun is off.
	Webhook string `yaml:"webhook" validate:"omitempty,url"`
	// WebhookToken is sent as a bearer token. Prefer SNIPER_WEBHOOK_TOKEN
	// over storing it in the file.
	WebhookToken string `yaml:"webhook_token,omitempty"`
}

// StorageConfig locates the stats database.
type StorageConfig struct {
	DBPath     string        `yaml:"db_path" validate:"required"`
	StatsDelay time.Duration `yaml:"stats_delay" validate:"gt=0"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Enabled:          true,
		MatchMode:        grouping.ModeSymbol,
		WindowMinutes:    120,
		OnlyWithinWindow: true,
		ShowMode:         ShowAll,
		TieBreak:         leader.TieBreakLargerPosition,
		LockDuration:     hysteresis.DefaultDuration,
		MinScanInterval:  scheduler.DefaultMinInterval,
		AutoBuy: AutoBuyConfig{
			Enabled:       false,
			TimeWindow:    10 * time.Second,
			MinDuplicates: 2,
			Timeout:       autotrigger.DefaultTimeout,
			Cooldown:      autotrigger.DefaultCooldown,
			DryRun:        true,
		},
		Storage: StorageConfig{
			DBPath:     filepath.Join(Dir(), "sniper.db"),
			StatsDelay: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Dir returns the application directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gmgn-sniper")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Window returns the visibility window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// LeaderOptions derives the leadership options.
func (c *Config) LeaderOptions() leader.Options {
	return leader.Options{
		OnlyWithinWindow: c.OnlyWithinWindow,
		Window:           c.Window(),
		TieBreak:         c.TieBreak,
	}
}

// AutoTrigger derives the auto-trigger engine settings.
func (c *Config) AutoTrigger() autotrigger.Config {
	cfg := autotrigger.DefaultConfig()
	cfg.TimeWindow = c.AutoBuy.TimeWindow
	cfg.MinDuplicates = c.AutoBuy.MinDuplicates
	cfg.TieBreak = c.TieBreak
	return cfg
}

var validate = validator.New()

// Validate checks field constraints. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalid, f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load reads path, layering the file over defaults and environment
// overrides over the file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from SNIPER_* environment variables. Unset
// variables leave the field alone.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SNIPER_MATCH_MODE"); v != "" {
		c.MatchMode = grouping.Mode(v)
	}
	if v := os.Getenv("SNIPER_SHOW_MODE"); v != "" {
		c.ShowMode = ShowMode(v)
	}
	if v := os.Getenv("SNIPER_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("SNIPER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SNIPER_WEBHOOK"); v != "" {
		c.AutoBuy.Webhook = v
	}
	if v := os.Getenv("SNIPER_WEBHOOK_TOKEN"); v != "" {
		c.AutoBuy.WebhookToken = v
	}

	if err := envBool("SNIPER_ENABLED", &c.Enabled); err != nil {
		return err
	}
	if err := envBool("SNIPER_AUTO_BUY", &c.AutoBuy.Enabled); err != nil {
		return err
	}
	if err := envBool("SNIPER_DRY_RUN", &c.AutoBuy.DryRun); err != nil {
		return err
	}
	if err := envInt("SNIPER_WINDOW_MINUTES", &c.WindowMinutes); err != nil {
		return err
	}
	if err := envInt("SNIPER_MIN_DUPLICATES", &c.AutoBuy.MinDuplicates); err != nil {
		return err
	}
	if err := envDuration("SNIPER_LOCK_DURATION", &c.LockDuration); err != nil {
		return err
	}
	return envDuration("SNIPER_AUTO_BUY_WINDOW", &c.AutoBuy.TimeWindow)
}

func envBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func envInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func envDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
