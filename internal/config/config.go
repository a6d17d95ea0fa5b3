package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPIBaseURL = "http://localhost:8000"
	envPrefix         = "TVGUIDE"
)

// Config holds runtime settings for the CLI app.
type Config struct {
	APIBaseURL string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	DBPath     string        `mapstructure:"db_path" yaml:"db_path"`
	Player     string        `mapstructure:"player" yaml:"player"`
	Guide      GuideConfig   `mapstructure:"guide" yaml:"guide"`
	Refresh    RefreshConfig `mapstructure:"refresh" yaml:"refresh"`
	List       ListConfig    `mapstructure:"list" yaml:"list"`
	Log        LogConfig     `mapstructure:"log" yaml:"log"`
}

// GuideConfig controls the program grid. Hours are offsets from local
// midnight and may be negative or beyond 24.
type GuideConfig struct {
	StartHour    int    `mapstructure:"start_hour" yaml:"start_hour"`
	EndHour      int    `mapstructure:"end_hour" yaml:"end_hour"`
	Timezone     string `mapstructure:"timezone" yaml:"timezone"`
	CellsPerHour int    `mapstructure:"cells_per_hour" yaml:"cells_per_hour"`
	Strict       bool   `mapstructure:"strict" yaml:"strict"`
}

type RefreshConfig struct {
	M3UURL           string `mapstructure:"m3u_url" yaml:"m3u_url"`
	M3UIntervalHours int    `mapstructure:"m3u_interval_hours" yaml:"m3u_interval_hours"`
	EPGURL           string `mapstructure:"epg_url" yaml:"epg_url"`
	EPGIntervalHours int    `mapstructure:"epg_interval_hours" yaml:"epg_interval_hours"`
	UpdateOnStart    bool   `mapstructure:"update_on_start" yaml:"update_on_start"`
}

type ListConfig struct {
	PageLimit           int `mapstructure:"page_limit" yaml:"page_limit"`
	PrefetchConcurrency int `mapstructure:"prefetch_concurrency" yaml:"prefetch_concurrency"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	dir := DefaultDir()
	return Config{
		APIBaseURL: defaultAPIBaseURL,
		DBPath:     filepath.Join(dir, "tvguide.db"),
		Player:     "mpv",
		Guide: GuideConfig{
			StartHour:    -1,
			EndHour:      24,
			CellsPerHour: 24,
		},
		Refresh: RefreshConfig{
			M3UIntervalHours: 24,
			EPGIntervalHours: 24,
		},
		List: ListConfig{
			PageLimit:           500,
			PrefetchConcurrency: 4,
		},
		Log: LogConfig{
			File:       filepath.Join(dir, "tvguide.log"),
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// DefaultDir is the directory holding the database, log and config file.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".tvguide"
	}
	return filepath.Join(home, ".tvguide")
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads defaults, then the YAML file at path (optional), then
// TVGUIDE_* environment variables, and validates the result.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_base_url", cfg.APIBaseURL)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("player", cfg.Player)
	v.SetDefault("guide.start_hour", cfg.Guide.StartHour)
	v.SetDefault("guide.end_hour", cfg.Guide.EndHour)
	v.SetDefault("guide.timezone", cfg.Guide.Timezone)
	v.SetDefault("guide.cells_per_hour", cfg.Guide.CellsPerHour)
	v.SetDefault("guide.strict", cfg.Guide.Strict)
	v.SetDefault("refresh.m3u_url", cfg.Refresh.M3UURL)
	v.SetDefault("refresh.m3u_interval_hours", cfg.Refresh.M3UIntervalHours)
	v.SetDefault("refresh.epg_url", cfg.Refresh.EPGURL)
	v.SetDefault("refresh.epg_interval_hours", cfg.Refresh.EPGIntervalHours)
	v.SetDefault("refresh.update_on_start", cfg.Refresh.UpdateOnStart)
	v.SetDefault("list.page_limit", cfg.List.PageLimit)
	v.SetDefault("list.prefetch_concurrency", cfg.List.PrefetchConcurrency)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimSpace(cfg.APIBaseURL)
	cfg.DBPath = os.ExpandEnv(cfg.DBPath)
	cfg.Log.File = os.ExpandEnv(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_base_url is required")
	}
	if strings.HasSuffix(c.APIBaseURL, "/") {
		return fmt.Errorf("api_base_url must not end with '/': %s", c.APIBaseURL)
	}
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api_base_url must be an http(s) URL with a host: %s", c.APIBaseURL)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Guide.CellsPerHour <= 0 {
		return fmt.Errorf("guide.cells_per_hour must be positive: %d", c.Guide.CellsPerHour)
	}
	if c.Guide.Strict && c.Guide.StartHour >= c.Guide.EndHour {
		return fmt.Errorf("guide.start_hour (%d) must be before guide.end_hour (%d)", c.Guide.StartHour, c.Guide.EndHour)
	}
	if c.List.PageLimit <= 0 {
		return fmt.Errorf("list.page_limit must be positive: %d", c.List.PageLimit)
	}
	if c.List.PrefetchConcurrency <= 0 {
		return fmt.Errorf("list.prefetch_concurrency must be positive: %d", c.List.PrefetchConcurrency)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error: %s", c.Log.Level)
	}
	return nil
}

// Location resolves the guide timezone; empty means the local zone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Guide.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Guide.Timezone)
	if err != nil {
		return nil, fmt.Errorf("guide.timezone %q: %w", c.Guide.Timezone, err)
	}
	return loc, nil
}

// WriteDefault writes the default config to path, refusing to replace an
// existing file unless overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
