package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"suggestbot/internal/auth"
	"suggestbot/internal/config"
	"suggestbot/internal/database"
	"suggestbot/internal/discord"
	"suggestbot/internal/locales"
	"suggestbot/internal/metrics"
	"suggestbot/internal/suggestions"
	"suggestbot/internal/telegram"
	"suggestbot/pkg/chatapi"
)

// Outbound call budgets per second, below each platform's global limit.
const (
	discordCallsPerSecond  = 40
	telegramCallsPerSecond = 25
)

func main() {
	logger := newLogger(false)
	config.LoadDotEnv(logger)

	app := &cli.App{
		Name:   "suggestbot",
		Usage:  "Community suggestion voting for Discord servers and Telegram chats",
		Flags:  config.Flags(),
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to the chat platform and serve suggestions (default)",
				Action: run,
			},
			{
				Name:  "scrub-user",
				Usage: "Remove a user from every stored suggestion",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "platform user id to scrub"},
				},
				Action: scrubUser,
			},
			{
				Name:  "export",
				Usage: "Print the suggestions of a server as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "guild", Required: true, Usage: "server or chat id"},
				},
				Action: export,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("suggestbot failed")
	}
}

func newLogger(debug bool) zerolog.Logger {
	if debug {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// env is what every command needs: the configuration, a logger and an open store.
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store database.Store
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Debug)
	if err := locales.Init(cfg.DefaultLanguage); err != nil {
		return nil, errors.Wrap(err, "failed to load translations")
	}
	store, err := openStore(c.Context, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger, store: store}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.Close(ctx); err != nil {
		e.log.Error().Err(err).Msg("error closing store")
		sentry.CaptureException(err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (database.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using the in-memory store, suggestions are lost on restart")
		return database.NewMemoryStore(), nil
	case config.StoreRedis:
		return database.NewRedisStore(ctx, cfg.RedisURL)
	}
	client, db, err := database.ConnectDB(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, logger)
	if err != nil {
		return nil, err
	}
	store := database.NewMongoStore(client, db)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func managerOptions(cfg *config.Config, logger zerolog.Logger) ([]suggestions.Option, error) {
	defaults, err := config.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		return nil, err
	}
	return []suggestions.Option{
		suggestions.WithLogger(logger),
		suggestions.WithDefaults(defaults),
		suggestions.WithLanguage(cfg.DefaultLanguage),
		suggestions.WithOwners(cfg.OwnerIDs...),
		suggestions.WithConfirmTimeout(cfg.ConfirmTimeout),
		suggestions.WithSubmitCooldown(cfg.SubmitCooldown),
	}, nil
}

func run(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.log
	if err := cfg.ValidatePlatform(); err != nil {
		return err
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return errors.Wrap(err, "sentry.Init")
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := managerOptions(cfg, logger)
	if err != nil {
		return err
	}
	mt := metrics.New()
	opts = append(opts, suggestions.WithMetrics(mt))
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logger, mt.Collectors()...); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
				sentry.CaptureException(err)
			}
		}()
	}

	logger.Info().Str("platform", cfg.Platform).Str("store", cfg.Store).Str("version", cfg.Version).Msg("starting suggestbot")
	if cfg.Platform == config.PlatformTelegram {
		err = runTelegram(ctx, cfg, e.store, opts, logger)
	} else {
		err = runDiscord(ctx, cfg, e.store, opts, logger)
	}
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func runDiscord(ctx context.Context, cfg *config.Config, store database.Store, opts []suggestions.Option, logger zerolog.Logger) error {
	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "failed to look up the bot user")
	}
	tr := chatapi.NewLimited(discord.NewTransport(session, me.ID), discordCallsPerSecond)
	mgr := suggestions.NewManager(store, tr, opts...)
	b, err := discord.New(session, session, mgr, auth.WithOwners(nil, cfg.OwnerIDs...), logger)
	if err != nil {
		return err
	}
	return b.Start(ctx)
}

func newTelegoBot(cfg *config.Config) (*telego.Bot, error) {
	var (
		bot *telego.Bot
		err error
	)
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.TelegramBotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.TelegramBotToken, telego.WithDefaultLogger(false, false))
	}
	return bot, errors.Wrap(err, "failed to create telego bot")
}

func runTelegram(ctx context.Context, cfg *config.Config, store database.Store, opts []suggestions.Option, logger zerolog.Logger) error {
	bot, err := newTelegoBot(cfg)
	if err != nil {
		return err
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get bot info")
	}
	admins, err := auth.NewTelegramAdmins(bot, logger)
	if err != nil {
		return err
	}
	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start long polling")
	}

	tr := telegram.NewTransport(bot, me.ID)
	mgr := suggestions.NewManager(store, chatapi.NewLimited(tr, telegramCallsPerSecond), opts...)
	b, err := telegram.New(telegram.BotDeps{
		Bot:         bot,
		Transport:   tr,
		UpdatesChan: updates,
		Manager:     mgr,
		Admins:      auth.WithOwners(admins, cfg.OwnerIDs...),
		Username:    me.Username,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	return b.Start(ctx)
}

// offlineManager builds a Manager for maintenance commands. They only touch
// the store, so the transport is never asked to reach the platform.
func offlineManager(e *env) (*suggestions.Manager, error) {
	opts, err := managerOptions(e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	var tr chatapi.Transport
	switch e.cfg.Platform {
	case config.PlatformTelegram:
		bot, err := newTelegoBot(e.cfg)
		if err != nil {
			return nil, err
		}
		tr = telegram.NewTransport(bot, 0)
	default:
		session, err := discord.NewSession(e.cfg.DiscordToken)
		if err != nil {
			return nil, err
		}
		tr = discord.NewTransport(session, "")
	}
	return suggestions.NewManager(e.store, tr, opts...), nil
}

func scrubUser(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	mgr, err := offlineManager(e)
	if err != nil {
		return err
	}
	userID := c.String("user")
	report, err := mgr.DeleteUserData(c.Context, userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, mgr.Text(locales.MsgDataDeleted, map[string]any{
		"User":    userID,
		"Records": report.Records,
		"Guilds":  report.Guilds,
	}))
	return nil
}

func export(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	mgr, err := offlineManager(e)
	if err != nil {
		return err
	}
	recs, err := mgr.Export(c.Context, c.String("guild"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(recs), "encode suggestions")
}
