package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string           `yaml:"discord_token" env:"DISCORD_TOKEN"`
	ApplicationID string           `yaml:"application_id" env:"DISCORD_APPLICATION_ID"`
	DatabaseDSN   string           `yaml:"database_dsn" env:"DATABASE_URL"`
	LogLevel      string           `yaml:"log_level" env:"LOG_LEVEL"`
	RetentionDays int              `yaml:"retention_days" env:"RETENTION_DAYS"`
	MessagesPath  string           `yaml:"messages_path" env:"MESSAGES_PATH"`
	CommandPrefix string           `yaml:"command_prefix" env:"COMMAND_PREFIX"`
	AdminRoleName string           `yaml:"admin_role_name" env:"ADMIN_ROLE_NAME"`
	AdminUserIDs  []string         `yaml:"admin_user_ids" env:"ADMIN_USER_IDS" envSeparator:","`
	Health        HealthConfig     `yaml:"health"`
	Onboarding    OnboardingConfig `yaml:"onboarding"`
	Activity      ActivityConfig   `yaml:"activity"`
}

type HealthConfig struct {
	Enabled  bool   `yaml:"enabled" env:"HEALTH_ENABLED"`
	Addr     string `yaml:"addr" env:"HEALTH_ADDR"`
	Port     string `yaml:"-" env:"PORT"`
	MaxConns int    `yaml:"max_conns" env:"HEALTH_MAX_CONNS"`
}

type OnboardingConfig struct {
	ChannelPrefix        string `yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
	FollowUpDelaySeconds int    `yaml:"follow_up_delay_seconds" env:"FOLLOW_UP_DELAY_SECONDS"`
	DeleteGraceSeconds   int    `yaml:"delete_grace_seconds" env:"DELETE_GRACE_SECONDS"`
	RejoinWindowHours    int    `yaml:"rejoin_window_hours" env:"REJOIN_WINDOW_HOURS"`
	SyncConcurrency      int    `yaml:"sync_concurrency" env:"SYNC_CONCURRENCY"`
}

type ActivityConfig struct {
	Enabled         bool `yaml:"enabled" env:"ACTIVITY_ENABLED"`
	ReminderSeconds int  `yaml:"reminder_seconds" env:"ACTIVITY_REMINDER_SECONDS"`
	WarningSeconds  int  `yaml:"warning_seconds" env:"ACTIVITY_WARNING_SECONDS"`
	KickSeconds     int  `yaml:"kick_seconds" env:"ACTIVITY_KICK_SECONDS"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseDSN:   ":memory:",
		LogLevel:      "info",
		RetentionDays: 14,
		MessagesPath:  "messages.json",
		CommandPrefix: "!",
		AdminRoleName: "도라도라미",
		Health:        HealthConfig{Enabled: true, Addr: ":5000", MaxConns: 64},
		Onboarding: OnboardingConfig{
			ChannelPrefix:        "환영-",
			FollowUpDelaySeconds: 5,
			DeleteGraceSeconds:   3,
			RejoinWindowHours:    24,
			SyncConcurrency:      4,
		},
		Activity: ActivityConfig{Enabled: true, ReminderSeconds: 10, WarningSeconds: 7, KickSeconds: 15},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	normalize(&cfg)
	return cfg, nil
}

// normalize fills zero values left by partial config files and folds PORT
// into the health address.
func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Health.Port != "" {
		cfg.Health.Addr = ":" + strings.TrimPrefix(cfg.Health.Port, ":")
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = defaults.Health.Addr
	}
	if cfg.Health.MaxConns <= 0 {
		cfg.Health.MaxConns = defaults.Health.MaxConns
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = defaults.CommandPrefix
	}
	if cfg.MessagesPath == "" {
		cfg.MessagesPath = defaults.MessagesPath
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = defaults.DatabaseDSN
	}
	positive(&cfg.Onboarding.FollowUpDelaySeconds, defaults.Onboarding.FollowUpDelaySeconds)
	positive(&cfg.Onboarding.DeleteGraceSeconds, defaults.Onboarding.DeleteGraceSeconds)
	positive(&cfg.Onboarding.RejoinWindowHours, defaults.Onboarding.RejoinWindowHours)
	positive(&cfg.Onboarding.SyncConcurrency, defaults.Onboarding.SyncConcurrency)
	positive(&cfg.Activity.ReminderSeconds, defaults.Activity.ReminderSeconds)
	positive(&cfg.Activity.WarningSeconds, defaults.Activity.WarningSeconds)
	positive(&cfg.Activity.KickSeconds, defaults.Activity.KickSeconds)
}

func positive(value *int, fallback int) {
	if *value <= 0 {
		*value = fallback
	}
}

func (c OnboardingConfig) FollowUpDelay() time.Duration {
	return time.Duration(c.FollowUpDelaySeconds) * time.Second
}

func (c OnboardingConfig) DeleteGrace() time.Duration {
	return time.Duration(c.DeleteGraceSeconds) * time.Second
}

func (c OnboardingConfig) RejoinWindow() time.Duration {
	return time.Duration(c.RejoinWindowHours) * time.Hour
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
