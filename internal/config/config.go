package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"suggestbot/internal/database/models"
	"suggestbot/pkg/chatapi"
)

// Supported chat platforms.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Supported storage backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	AppEnv  string
	Debug   bool
	Version string

	Platform         string
	DiscordToken     string
	TelegramBotToken string

	Store           string
	MongoDBURI      string
	MongoDBDatabase string
	RedisURL        string

	SentryDSN       string
	MetricsAddr     string
	OwnerIDs        []string
	DefaultLanguage string
	DefaultsFile    string
	ConfirmTimeout  time.Duration
	SubmitCooldown  time.Duration
}

// LoadDotEnv loads a .env file if one exists. Variables already set in the
// environment (e.g. by Docker) win over the file.
func LoadDotEnv(logger zerolog.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, relying on environment variables")
	}
}

// Flags are the global flags of the suggestbot command. Each one can also be
// set through its environment variable.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "app-env", Value: "development", EnvVars: []string{"APP_ENV"}, Usage: "deployment environment reported to Sentry"},
		&cli.BoolFlag{Name: "debug", EnvVars: []string{"DEBUG"}, Usage: "human-readable debug logging"},
		&cli.StringFlag{Name: "release", Value: "dev", EnvVars: []string{"VERSION"}, Usage: "release reported to Sentry"},
		&cli.StringFlag{Name: "platform", Value: PlatformDiscord, EnvVars: []string{"PLATFORM"}, Usage: "chat platform: discord or telegram"},
		&cli.StringFlag{Name: "discord-token", EnvVars: []string{"DISCORD_TOKEN"}, Usage: "Discord bot token"},
		&cli.StringFlag{Name: "telegram-token", EnvVars: []string{"TELEGRAM_BOT_TOKEN"}, Usage: "Telegram bot token"},
		&cli.StringFlag{Name: "store", Value: StoreMongo, EnvVars: []string{"STORE"}, Usage: "storage backend: memory, mongo or redis"},
		&cli.StringFlag{Name: "mongodb-uri", EnvVars: []string{"MONGODB_URI"}, Usage: "MongoDB connection string"},
		&cli.StringFlag{Name: "mongodb-database", Value: "suggestbot", EnvVars: []string{"MONGODB_DATABASE"}, Usage: "MongoDB database name"},
		&cli.StringFlag{Name: "redis-url", EnvVars: []string{"REDIS_URL"}, Usage: "Redis URL, e.g. redis://localhost:6379/0"},
		&cli.StringFlag{Name: "sentry-dsn", EnvVars: []string{"SENTRY_DSN"}, Usage: "Sentry DSN; error tracking is off without it"},
		&cli.StringFlag{Name: "metrics-addr", EnvVars: []string{"METRICS_ADDR"}, Usage: "listen address of the Prometheus endpoint, e.g. :9090"},
		&cli.StringSliceFlag{Name: "owner", EnvVars: []string{"OWNER_IDS"}, Usage: "user ids allowed to reset every server"},
		&cli.StringFlag{Name: "language", Value: "en", EnvVars: []string{"DEFAULT_LANGUAGE"}, Usage: "language of bot replies"},
		&cli.StringFlag{Name: "defaults-file", EnvVars: []string{"SETTINGS_DEFAULTS_FILE"}, Usage: "TOML file overriding the built-in settings defaults"},
		&cli.DurationFlag{Name: "confirm-timeout", Value: 30 * time.Second, EnvVars: []string{"CONFIRM_TIMEOUT"}, Usage: "how long reset prompts wait for an answer"},
		&cli.DurationFlag{Name: "submit-cooldown", Value: 10 * time.Second, EnvVars: []string{"SUBMIT_COOLDOWN"}, Usage: "minimum time between two suggestions of one user; 0 disables it"},
	}
}

// FromCLI reads and validates the configuration from parsed flags.
func FromCLI(c *cli.Context) (*Config, error) {
	cfg := &Config{
		AppEnv:           c.String("app-env"),
		Debug:            c.Bool("debug"),
		Version:          c.String("release"),
		Platform:         strings.ToLower(c.String("platform")),
		DiscordToken:     c.String("discord-token"),
		TelegramBotToken: c.String("telegram-token"),
		Store:            strings.ToLower(c.String("store")),
		MongoDBURI:       c.String("mongodb-uri"),
		MongoDBDatabase:  c.String("mongodb-database"),
		RedisURL:         c.String("redis-url"),
		SentryDSN:        c.String("sentry-dsn"),
		MetricsAddr:      c.String("metrics-addr"),
		OwnerIDs:         c.StringSlice("owner"),
		DefaultLanguage:  c.String("language"),
		DefaultsFile:     c.String("defaults-file"),
		ConfirmTimeout:   c.Duration("confirm-timeout"),
		SubmitCooldown:   c.Duration("submit-cooldown"),
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidatePlatform checks that the selected platform has its token.
// Commands that never connect to a chat platform skip it.
func (cfg *Config) ValidatePlatform() error {
	switch cfg.Platform {
	case PlatformDiscord:
		if cfg.DiscordToken == "" {
			return errors.New("DISCORD_TOKEN is required")
		}
	case PlatformTelegram:
		if cfg.TelegramBotToken == "" {
			return errors.New("TELEGRAM_BOT_TOKEN is required")
		}
	default:
		return errors.Errorf("unknown PLATFORM %q", cfg.Platform)
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.New("CONFIRM_TIMEOUT must be positive")
	}
	if cfg.SubmitCooldown < 0 {
		return errors.New("SUBMIT_COOLDOWN must not be negative")
	}
	return nil
}

func (cfg *Config) validateStore() error {
	switch cfg.Store {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoDBURI == "" {
			return errors.New("MONGODB_URI is required")
		}
		if cfg.MongoDBDatabase == "" {
			return errors.New("MONGODB_DATABASE is required")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required")
		}
	default:
		return errors.Errorf("unknown STORE %q", cfg.Store)
	}
	return nil
}

// LoadDefaults returns the built-in settings defaults overridden by the TOML
// file at path. An empty path returns the built-in defaults.
func LoadDefaults(path string) (models.Defaults, error) {
	d := models.BuiltinDefaults()
	if path == "" {
		return d, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return d, errors.Wrap(err, "open defaults file")
	}
	defer f.Close()

	md, err := toml.NewDecoder(f).Decode(&d)
	if err != nil {
		return d, errors.Wrapf(err, "decode %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return d, errors.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	for _, s := range []*chatapi.ButtonStyle{&d.UpButtonStyle, &d.DownButtonStyle} {
		style, ok := chatapi.ParseButtonStyle(string(*s))
		if !ok {
			return d, errors.Errorf("unknown button style %q in %s", *s, path)
		}
		*s = style
	}
	if d.UpvoteEmoji == "" || d.DownvoteEmoji == "" {
		return d, errors.Errorf("vote emoji in %s must not be empty", path)
	}
	return d, nil
}
