package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/api"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/booking"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/bot"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/lockfile"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/payment"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/questionnaire"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/session"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/store"
	"github.com/kiore73/telegram-ConsultOS-bot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ConsultOS state data
	DefaultStateDir = "/var/lib/consultos"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "consultos.db"
)

func main() {
	// Load environment configuration first so logging can honor $DEBUG
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ConsultOS bot with configured modules")
	if err := run(ctx, flags); err != nil && err != context.Canceled {
		slog.Error("ConsultOS bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ConsultOS bot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	SeedFile    string
	BotToken    string
	APIAddr     string
	RedisAddr   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	seedFile  *string
	botToken  *string
	apiAddr   *string
	redisAddr *string
	debugBot  *bool
}

// initializeLogger sets up structured logging; $DEBUG raises the level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("CONSULTOS_STATE_DIR"),
		SeedFile:    os.Getenv("SEED_FILE"),
		BotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		APIAddr:     os.Getenv("API_ADDR"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" && config.SeedFile == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CONSULTOS_STATE_DIR", config.StateDir,
		"SEED_FILE", config.SeedFile,
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"API_ADDR", config.APIAddr,
		"REDIS_ADDR_SET", config.RedisAddr != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for ConsultOS data (overrides $CONSULTOS_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL URL (overrides $DATABASE_URL)"),
		seedFile:  flag.String("seed-file", config.SeedFile, "YAML seed file with questionnaires and tariffs (overrides $SEED_FILE)"),
		botToken:  flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "admin API server address (overrides $API_ADDR)"),
		redisAddr: flag.String("redis-addr", config.RedisAddr, "Redis address for session storage (overrides $REDIS_ADDR)"),
		debugBot:  flag.Bool("debug-bot", util.ParseBoolEnv("TELEGRAM_DEBUG", false), "log Telegram API requests (overrides $TELEGRAM_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"seedFile", *flags.seedFile,
		"botTokenSet", *flags.botToken != "",
		"apiAddr", *flags.apiAddr,
		"redisAddr_set", *flags.redisAddr != "")

	return flags
}

func run(ctx context.Context, flags Flags) error {
	// Two bot instances polling the same token steal each other's updates,
	// so lock the state directory before touching anything else.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(ctx, flags)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := questionnaire.NewRegistry()
	if err := registry.Load(ctx, st); err != nil {
		return err
	}
	slog.Info("Questionnaires loaded", "names", registry.Names())

	sessions, closeSessions, err := buildSessionStore(ctx, flags)
	if err != nil {
		return err
	}
	defer closeSessions()

	ctrl := questionnaire.NewController(registry, sessions,
		questionnaire.WithAnswerRecorder(st))

	payments := buildPaymentProvider()
	bookings := booking.NewService(st)

	var botOpts []bot.Option
	if *flags.botToken != "" {
		botOpts = append(botOpts, bot.WithToken(*flags.botToken))
	}
	if *flags.debugBot {
		botOpts = append(botOpts, bot.WithDebug(true))
	}
	tgBot, err := bot.NewBot(ctrl, st, payments, bookings, botOpts...)
	if err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(registry, st, st, bookings, apiOpts...)

	errCh := make(chan error, 2)
	go func() { errCh <- server.Run(ctx) }()
	go func() { errCh <- tgBot.Run(ctx) }()

	// First failure (or context cancellation) wins; the shared context stops
	// the other component.
	return <-errCh
}

// buildStore selects the storage backend: seed-file in-memory mode when only
// a seed file is configured, otherwise SQLite or PostgreSQL by DSN shape.
// A seed file combined with a database DSN imports the seed at startup.
func buildStore(ctx context.Context, flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Info("No database DSN provided, using in-memory store from seed file", "seed_file", *flags.seedFile)
		seed, err := store.LoadSeedFile(*flags.seedFile)
		if err != nil {
			return nil, err
		}
		return store.NewInMemoryStoreFromSeed(seed)
	}

	var (
		st  store.Store
		err error
	)
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		st, err = store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		st, err = store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	}
	if err != nil {
		return nil, err
	}

	if *flags.seedFile != "" {
		seed, err := store.LoadSeedFile(*flags.seedFile)
		if err != nil {
			st.Close()
			return nil, err
		}
		if err := st.ImportSeed(ctx, seed); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// buildSessionStore selects Redis-backed sessions when an address is
// configured, in-memory sessions otherwise.
func buildSessionStore(ctx context.Context, flags Flags) (questionnaire.SessionStore, func(), error) {
	if *flags.redisAddr == "" {
		slog.Info("No Redis address provided, using in-memory session store")
		return session.NewInMemoryStore(), func() {}, nil
	}
	rs, err := session.NewRedisStore(ctx,
		session.WithAddr(*flags.redisAddr),
		session.WithTTL(util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL)))
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { rs.Close() }, nil
}

// buildPaymentProvider creates the YooKassa client, falling back to the mock
// provider when no shop credentials are configured so development runs do not
// require a payment account.
func buildPaymentProvider() payment.Provider {
	client, err := payment.NewClient()
	if err != nil {
		slog.Warn("YooKassa credentials not configured, using mock payment provider", "error", err)
		return payment.NewMockProvider()
	}
	return client
}
