package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is required")

type Config struct {
	DiscordToken  string         `yaml:"discord_token" toml:"discord_token"`
	LogLevel      string         `yaml:"log_level" toml:"log_level"`
	Timezone      string         `yaml:"timezone" toml:"timezone"`
	Database      DatabaseConfig `yaml:"database" toml:"database"`
	RetentionDays int            `yaml:"retention_days" toml:"retention_days"`
	Health        HealthConfig   `yaml:"health" toml:"health"`
	Leveling      LevelingConfig `yaml:"leveling" toml:"leveling"`
	Activity      ActivityConfig `yaml:"activity" toml:"activity"`
	RealmWar      RealmWarConfig `yaml:"realmwar" toml:"realmwar"`
	Giveaway      GiveawayConfig `yaml:"giveaway" toml:"giveaway"`
	Notifications NotifyConfig   `yaml:"notifications" toml:"notifications"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
	URL    string `yaml:"url" toml:"url"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

type LevelingConfig struct {
	MessageCooldownMs int     `yaml:"message_cooldown_ms" toml:"message_cooldown_ms"`
	NotifyCooldownMs  int     `yaml:"notify_cooldown_ms" toml:"notify_cooldown_ms"`
	MinBaseXP         int     `yaml:"min_base_xp" toml:"min_base_xp"`
	MaxBaseXP         int     `yaml:"max_base_xp" toml:"max_base_xp"`
	StartingXP        int     `yaml:"starting_xp" toml:"starting_xp"`
	XPPerLevel        int     `yaml:"xp_per_level" toml:"xp_per_level"`
	XPRate            float64 `yaml:"xp_rate" toml:"xp_rate"`
}

type ActivityConfig struct {
	RankWeekday         string `yaml:"rank_weekday" toml:"rank_weekday"`
	RankHour            int    `yaml:"rank_hour" toml:"rank_hour"`
	StartupDelaySeconds int    `yaml:"startup_delay_seconds" toml:"startup_delay_seconds"`
	RoleBatchSize       int    `yaml:"role_batch_size" toml:"role_batch_size"`
	WindowDays          int    `yaml:"window_days" toml:"window_days"`
}

type RealmWarConfig struct {
	RoundDelaySeconds int `yaml:"round_delay_seconds" toml:"round_delay_seconds"`
}

type GiveawayConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	MaxWinners          int `yaml:"max_winners" toml:"max_winners"`
}

type NotifyConfig struct {
	AuditToChannel bool        `yaml:"audit_to_channel" toml:"audit_to_channel"`
	EmbedColors    EmbedColors `yaml:"embed_colors" toml:"embed_colors"`
}

type EmbedColors struct {
	Action  int `yaml:"action" toml:"action"`
	Warning int `yaml:"warning" toml:"warning"`
	Error   int `yaml:"error" toml:"error"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		Timezone:      "UTC",
		Database:      DatabaseConfig{Driver: "sqlite", Path: "/data/realmkeeper.db"},
		RetentionDays: 30,
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Leveling: LevelingConfig{
			MessageCooldownMs: 3000,
			NotifyCooldownMs:  5000,
			MinBaseXP:         5,
			MaxBaseXP:         14,
			StartingXP:        1000,
			XPPerLevel:        500,
			XPRate:            1,
		},
		Activity: ActivityConfig{
			RankWeekday:         "sunday",
			RankHour:            0,
			StartupDelaySeconds: 5,
			RoleBatchSize:       20,
			WindowDays:          7,
		},
		RealmWar: RealmWarConfig{RoundDelaySeconds: 5},
		Giveaway: GiveawayConfig{PollIntervalSeconds: 15, MaxWinners: 50},
		Notifications: NotifyConfig{
			AuditToChannel: true,
			EmbedColors: EmbedColors{
				Action:  0x5865F2,
				Warning: 0xF59E0B,
				Error:   0xEF4444,
			},
		},
	}
}

// Load reads the config file named by CONFIG_PATH, then .env, then the
// process environment. Later sources win.
func Load() (Config, error) {
	cfg, err := LoadWithoutToken()
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, ErrMissingToken
	}
	return cfg, nil
}

// LoadWithoutToken is Load for maintenance commands that never connect to Discord.
func LoadWithoutToken() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := decodeFile(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	applyEnv(&cfg)
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Timezone = envString("TIMEZONE", cfg.Timezone)
	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = envString("DATABASE_PATH", cfg.Database.Path)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Leveling.MessageCooldownMs = envInt("XP_COOLDOWN_MS", cfg.Leveling.MessageCooldownMs)
	cfg.Leveling.NotifyCooldownMs = envInt("LEVELUP_COOLDOWN_MS", cfg.Leveling.NotifyCooldownMs)
	cfg.Leveling.StartingXP = envInt("STARTING_XP", cfg.Leveling.StartingXP)
	cfg.Leveling.XPPerLevel = envInt("XP_PER_LEVEL", cfg.Leveling.XPPerLevel)
	cfg.Leveling.XPRate = envFloat("XP_RATE", cfg.Leveling.XPRate)
	cfg.Activity.RankWeekday = envString("RANK_WEEKDAY", cfg.Activity.RankWeekday)
	cfg.Activity.RankHour = envInt("RANK_HOUR", cfg.Activity.RankHour)
	cfg.Activity.StartupDelaySeconds = envInt("RANK_STARTUP_DELAY_SECONDS", cfg.Activity.StartupDelaySeconds)
	cfg.Activity.RoleBatchSize = envInt("ROLE_BATCH_SIZE", cfg.Activity.RoleBatchSize)
	cfg.RealmWar.RoundDelaySeconds = envInt("REALMWAR_ROUND_DELAY_SECONDS", cfg.RealmWar.RoundDelaySeconds)
	cfg.Giveaway.PollIntervalSeconds = envInt("GIVEAWAY_POLL_SECONDS", cfg.Giveaway.PollIntervalSeconds)
	cfg.Notifications.AuditToChannel = envBool("AUDIT_TO_CHANNEL", cfg.Notifications.AuditToChannel)
	cfg.Notifications.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.Notifications.EmbedColors.Action)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c Config) RankWeekday() time.Weekday {
	switch strings.ToLower(c.Activity.RankWeekday) {
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}

func (c Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.URL
	}
	return c.Database.Path
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

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
