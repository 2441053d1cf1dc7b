package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "FWRDPOST"

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Session   SessionConfig   `mapstructure:"session"`
	Social    SocialConfig    `mapstructure:"social"`
	Media     MediaConfig     `mapstructure:"media"`
	Control   ControlConfig   `mapstructure:"control"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig selects the task store. Driver is "bolt" or "postgres".
type DatabaseConfig struct {
	Driver  string        `mapstructure:"driver"`
	Path    string        `mapstructure:"path"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type FeedConfig struct {
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	AllowPrivate bool          `mapstructure:"allow_private"`
}

type SchedulerConfig struct {
	Tick        time.Duration `mapstructure:"tick"`
	Timezone    string        `mapstructure:"timezone"`
	MailboxSize int           `mapstructure:"mailbox_size"`
}

// SessionConfig holds the OAuth client used to refresh user sessions.
type SessionConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
}

type SocialConfig struct {
	APIURL    string        `mapstructure:"api_url"`
	UploadURL string        `mapstructure:"upload_url"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MediaConfig points at the object store holding user media. Media
// resolution is disabled when Endpoint is empty.
type MediaConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type ControlConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".fwrdpost", "fwrdpost.db")

	return &Config{
		Database: DatabaseConfig{
			Driver:  "bolt",
			Path:    dbPath,
			Timeout: 1 * time.Second,
		},
		Feed: FeedConfig{
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "fwrdpost/1.0 (https://github.com/pders01/fwrdpost)",
		},
		Scheduler: SchedulerConfig{
			Tick:        1 * time.Second,
			Timezone:    "Local",
			MailboxSize: 8,
		},
		Session: SessionConfig{
			TokenURL: "https://api.twitter.com/2/oauth2/token",
		},
		Social: SocialConfig{
			APIURL:    "https://api.twitter.com/2/tweets",
			UploadURL: "https://upload.twitter.com/1.1/media/upload.json",
			RateLimit: 1,
			Burst:     5,
			Timeout:   30 * time.Second,
		},
		Control: ControlConfig{
			Addr: "127.0.0.1:8089",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.timeout", cfg.Database.Timeout)

	v.SetDefault("feed.http_timeout", cfg.Feed.HTTPTimeout)
	v.SetDefault("feed.user_agent", cfg.Feed.UserAgent)
	v.SetDefault("feed.allow_private", cfg.Feed.AllowPrivate)

	v.SetDefault("scheduler.tick", cfg.Scheduler.Tick)
	v.SetDefault("scheduler.timezone", cfg.Scheduler.Timezone)
	v.SetDefault("scheduler.mailbox_size", cfg.Scheduler.MailboxSize)

	v.SetDefault("session.client_id", cfg.Session.ClientID)
	v.SetDefault("session.client_secret", cfg.Session.ClientSecret)
	v.SetDefault("session.token_url", cfg.Session.TokenURL)

	v.SetDefault("social.api_url", cfg.Social.APIURL)
	v.SetDefault("social.upload_url", cfg.Social.UploadURL)
	v.SetDefault("social.rate_limit", cfg.Social.RateLimit)
	v.SetDefault("social.burst", cfg.Social.Burst)
	v.SetDefault("social.timeout", cfg.Social.Timeout)

	v.SetDefault("media.endpoint", cfg.Media.Endpoint)
	v.SetDefault("media.access_key", cfg.Media.AccessKey)
	v.SetDefault("media.secret_key", cfg.Media.SecretKey)
	v.SetDefault("media.use_ssl", cfg.Media.UseSSL)

	v.SetDefault("control.addr", cfg.Control.Addr)
	v.SetDefault("control.admin_token", cfg.Control.AdminToken)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.path", cfg.Log.Path)
}

// Load reads configuration from configPath, or from config.toml in
// ~/.config/fwrdpost or the working directory when configPath is empty.
// Environment variables prefixed FWRDPOST_ override file values, with
// section separators written as underscores (FWRDPOST_DATABASE_DSN).
// A .env file in the working directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "fwrdpost")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "bolt":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the bolt driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive")
	}
	if c.Scheduler.MailboxSize <= 0 {
		return fmt.Errorf("scheduler.mailbox_size must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Scheduler.Timezone. Weekly schedules are evaluated in
// this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings for TOML readability
	v.Set("database", map[string]interface{}{
		"driver":  config.Database.Driver,
		"path":    config.Database.Path,
		"dsn":     config.Database.DSN,
		"timeout": config.Database.Timeout.String(),
	})
	v.Set("feed", map[string]interface{}{
		"http_timeout":  config.Feed.HTTPTimeout.String(),
		"user_agent":    config.Feed.UserAgent,
		"allow_private": config.Feed.AllowPrivate,
	})
	v.Set("scheduler", map[string]interface{}{
		"tick":         config.Scheduler.Tick.String(),
		"timezone":     config.Scheduler.Timezone,
		"mailbox_size": config.Scheduler.MailboxSize,
	})
	v.Set("session", map[string]interface{}{
		"client_id":     config.Session.ClientID,
		"client_secret": config.Session.ClientSecret,
		"token_url":     config.Session.TokenURL,
	})
	v.Set("social", map[string]interface{}{
		"api_url":    config.Social.APIURL,
		"upload_url": config.Social.UploadURL,
		"rate_limit": config.Social.RateLimit,
		"burst":      config.Social.Burst,
		"timeout":    config.Social.Timeout.String(),
	})
	v.Set("media", map[string]interface{}{
		"endpoint":   config.Media.Endpoint,
		"access_key": config.Media.AccessKey,
		"secret_key": config.Media.SecretKey,
		"use_ssl":    config.Media.UseSSL,
	})
	v.Set("control", map[string]interface{}{
		"addr":        config.Control.Addr,
		"admin_token": config.Control.AdminToken,
	})
	v.Set("log", map[string]interface{}{
		"level": config.Log.Level,
		"path":  config.Log.Path,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
