package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/SleepAdvisor/internal/api"
	"github.com/BTreeMap/SleepAdvisor/internal/flow"
	"github.com/BTreeMap/SleepAdvisor/internal/genai"
	"github.com/BTreeMap/SleepAdvisor/internal/lockfile"
	"github.com/BTreeMap/SleepAdvisor/internal/messaging"
	"github.com/BTreeMap/SleepAdvisor/internal/predictor"
	"github.com/BTreeMap/SleepAdvisor/internal/scheduler"
	"github.com/BTreeMap/SleepAdvisor/internal/store"
	"github.com/BTreeMap/SleepAdvisor/internal/twiliowhatsapp"
	"github.com/BTreeMap/SleepAdvisor/internal/util"
	"github.com/BTreeMap/SleepAdvisor/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SleepAdvisor state data
	DefaultStateDir = "/var/lib/sleepadvisor"
	// DefaultWhatsAppDBFileName is the whatsmeow device store inside the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSessionIdleTTL drops questionnaires nobody has answered for this long
	DefaultSessionIdleTTL = 30 * time.Minute
	// DefaultJanitorSchedule is how often idle sessions are purged
	DefaultJanitorSchedule = "@every 1m"
	// DefaultPruneSchedule is how often expired results and dedup rows are deleted
	DefaultPruneSchedule = "@hourly"

	backendWhatsApp = "whatsapp"
	backendTwilio   = "twilio"
)

func main() {
	initializeLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SleepAdvisor with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("SleepAdvisor failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("SleepAdvisor exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	WhatsAppDSN      string
	PredictorURL     string
	PredictorTimeout time.Duration
	Backend          string
	TwilioSID        string
	TwilioToken      string
	TwilioFrom       string
	TwilioWebhookURL string
	OpenAIKey        string
	OpenAIModel      string
	APIAddr          string
	Pacing           time.Duration
	SessionIdleTTL   time.Duration
	CacheCapacity    int
	CacheTTL         time.Duration
	JanitorSchedule  string
	PruneSchedule    string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	whatsappDSN      *string
	predictorURL     *string
	predictorTimeout *time.Duration
	backend          *string
	twilioSID        *string
	twilioToken      *string
	twilioFrom       *string
	twilioWebhookURL *string
	openaiKey        *string
	openaiModel      *string
	apiAddr          *string
	pacing           *time.Duration
	sessionIdleTTL   *time.Duration
	cacheCapacity    *int
	cacheTTL         *time.Duration
	janitorSchedule  *string
	pruneSchedule    *string
}

// parseLogLevel maps LOG_LEVEL onto slog levels; anything unknown is debug.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// initializeLogger installs the default structured logger
func initializeLogger(w io.Writer, level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// defaultWhatsAppDSN is the SQLite device store inside stateDir.
func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         util.EnvOrDefault("SLEEPADVISOR_STATE_DIR", DefaultStateDir),
		DatabaseURL:      util.EnvOrDefault("DATABASE_URL", ""),
		WhatsAppDSN:      util.EnvOrDefault("WHATSAPP_DB_DSN", ""),
		PredictorURL:     util.EnvOrDefault("PREDICTOR_URL", ""),
		PredictorTimeout: util.ParseDurationEnv("PREDICTOR_TIMEOUT", predictor.DefaultTimeout),
		Backend:          strings.ToLower(util.EnvOrDefault("MESSAGING_BACKEND", backendWhatsApp)),
		TwilioSID:        util.EnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioToken:      util.EnvOrDefault("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       util.EnvOrDefault("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookURL: util.EnvOrDefault("TWILIO_WEBHOOK_URL", ""),
		OpenAIKey:        util.EnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:      util.EnvOrDefault("OPENAI_MODEL", ""),
		APIAddr:          util.EnvOrDefault("API_ADDR", api.DefaultAddr),
		Pacing:           util.ParseDurationEnv("PACING_DELAY", flow.DefaultPacing),
		SessionIdleTTL:   util.ParseDurationEnv("SESSION_IDLE_TTL", DefaultSessionIdleTTL),
		CacheCapacity:    util.ParseIntEnv("RESULT_CACHE_CAPACITY", store.DefaultResultCapacity),
		CacheTTL:         util.ParseDurationEnv("RESULT_CACHE_TTL", store.DefaultResultTTL),
		JanitorSchedule:  util.EnvOrDefault("SESSION_JANITOR_SCHEDULE", DefaultJanitorSchedule),
		PruneSchedule:    util.EnvOrDefault("STORE_PRUNE_SCHEDULE", DefaultPruneSchedule),
	}

	// The WhatsApp device store shares a Postgres database when one is configured.
	if config.WhatsAppDSN == "" {
		if config.DatabaseURL != "" && store.DetectDSNType(config.DatabaseURL) == "postgres" {
			config.WhatsAppDSN = config.DatabaseURL
			slog.Debug("Using DATABASE_URL as WHATSAPP_DB_DSN", "dsn_set", true)
		} else {
			config.WhatsAppDSN = defaultWhatsAppDSN(config.StateDir)
			slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "dsn", config.WhatsAppDSN)
		}
	}

	slog.Debug("environment variables loaded",
		"SLEEPADVISOR_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"PREDICTOR_URL", config.PredictorURL,
		"PREDICTOR_TIMEOUT", config.PredictorTimeout,
		"MESSAGING_BACKEND", config.Backend,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"TWILIO_AUTH_TOKEN_SET", config.TwilioToken != "",
		"TWILIO_WEBHOOK_URL", config.TwilioWebhookURL,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"PACING_DELAY", config.Pacing,
		"SESSION_IDLE_TTL", config.SessionIdleTTL,
		"RESULT_CACHE_CAPACITY", config.CacheCapacity,
		"RESULT_CACHE_TTL", config.CacheTTL,
		"SESSION_JANITOR_SCHEDULE", config.JanitorSchedule,
		"STORE_PRUNE_SCHEDULE", config.PruneSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:         fs.String("qr-output", "", "path to write login QR code"),
		numeric:          fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for SleepAdvisor data (overrides $SLEEPADVISOR_STATE_DIR)"),
		dbDSN:            fs.String("db-dsn", config.DatabaseURL, "result cache database, Postgres DSN or SQLite path; empty keeps results in memory (overrides $DATABASE_URL)"),
		whatsappDSN:      fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		predictorURL:     fs.String("predictor-url", config.PredictorURL, "sleep quality predictor endpoint (overrides $PREDICTOR_URL)"),
		predictorTimeout: fs.Duration("predictor-timeout", config.PredictorTimeout, "predictor call timeout (overrides $PREDICTOR_TIMEOUT)"),
		backend:          fs.String("backend", config.Backend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		twilioSID:        fs.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:      fs.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:       fs.String("twilio-from", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
		twilioWebhookURL: fs.String("twilio-webhook-url", config.TwilioWebhookURL, "public webhook URL used to verify Twilio signatures (overrides $TWILIO_WEBHOOK_URL)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key enabling personalised advice (overrides $OPENAI_API_KEY)"),
		openaiModel:      fs.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		pacing:           fs.Duration("pacing", config.Pacing, "delay before the first question and before analysis (overrides $PACING_DELAY)"),
		sessionIdleTTL:   fs.Duration("session-idle-ttl", config.SessionIdleTTL, "drop unanswered questionnaires after this long (overrides $SESSION_IDLE_TTL)"),
		cacheCapacity:    fs.Int("result-cache-capacity", config.CacheCapacity, "in-memory result cache size (overrides $RESULT_CACHE_CAPACITY)"),
		cacheTTL:         fs.Duration("result-cache-ttl", config.CacheTTL, "how long results answer /help (overrides $RESULT_CACHE_TTL)"),
		janitorSchedule:  fs.String("janitor-schedule", config.JanitorSchedule, "cron schedule for purging idle sessions (overrides $SESSION_JANITOR_SCHEDULE)"),
		pruneSchedule:    fs.String("prune-schedule", config.PruneSchedule, "cron schedule for deleting expired results (overrides $STORE_PRUNE_SCHEDULE)"),
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"predictorURL", *flags.predictorURL,
		"backend", *flags.backend,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"pacing", *flags.pacing)

	// Move the default device store along with an overridden state directory.
	if *flags.whatsappDSN == defaultWhatsAppDSN(config.StateDir) && *flags.stateDir != config.StateDir {
		*flags.whatsappDSN = defaultWhatsAppDSN(*flags.stateDir)
		slog.Debug("Updated WhatsApp DSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags, nil
}

// sqlitePath extracts the file path from a SQLite DSN such as "file:/x.db?_foreign_keys=on".
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// ensureDirectoriesExist creates parent directories of file-based databases
func ensureDirectoriesExist(flags Flags) error {
	dsns := []string{*flags.dbDSN}
	if *flags.backend == backendWhatsApp {
		dsns = append(dsns, *flags.whatsappDSN)
	}
	for _, dsn := range dsns {
		if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		dir := filepath.Dir(sqlitePath(dsn))
		slog.Debug("Creating directory for file-based database", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if *flags.twilioSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(*flags.twilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	storeOpts := []store.Option{
		store.WithCapacity(*flags.cacheCapacity),
		store.WithTTL(*flags.cacheTTL),
	}
	switch {
	case *flags.dbDSN == "":
		slog.Debug("No database DSN provided, will use in-memory store")
	case store.DetectDSNType(*flags.dbDSN) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildPredictorOptions constructs predictor client options
func buildPredictorOptions(flags Flags) []predictor.Option {
	return []predictor.Option{predictor.WithTimeout(*flags.predictorTimeout)}
}

// buildEngineOptions constructs conversation engine options. The enhancer is
// only attached when an OpenAI key is configured.
func buildEngineOptions(flags Flags) ([]flow.EngineOption, error) {
	engineOpts := []flow.EngineOption{flow.WithPacing(*flags.pacing)}
	if *flags.openaiKey == "" {
		slog.Info("OPENAI_API_KEY not set, personalised advice disabled")
		return engineOpts, nil
	}
	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return append(engineOpts, flow.WithAdviceEnhancer(flow.NewGenAIEnhancer(client))), nil
}

// buildMessagingService connects the selected backend. For Twilio it also
// returns the API option mounting the inbound webhook.
func buildMessagingService(ctx context.Context, flags Flags) (messaging.Service, []api.Option, error) {
	switch *flags.backend {
	case backendWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case backendTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(flags)...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var twOpts []messaging.TwilioOption
		if *flags.twilioWebhookURL != "" {
			twOpts = append(twOpts, messaging.WithSignatureValidation(*flags.twilioToken, *flags.twilioWebhookURL))
		} else {
			slog.Warn("TWILIO_WEBHOOK_URL not set, inbound webhook signatures are not verified")
		}
		svc := messaging.NewTwilioService(client, twOpts...)
		return svc, []api.Option{api.WithTwilioWebhook(svc.TwilioWebhookHandler)}, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}
}

// scheduleMaintenance registers the idle session purge and the store prune.
func scheduleMaintenance(ctx context.Context, sched *scheduler.Scheduler, flags Flags, sessions *store.SessionStore, pruner store.Pruner) error {
	if ttl := *flags.sessionIdleTTL; ttl > 0 {
		if err := sched.AddJob("purge-idle-sessions", *flags.janitorSchedule, func() {
			sessions.PurgeIdle(ttl)
		}); err != nil {
			return err
		}
	} else {
		slog.Info("SESSION_IDLE_TTL is 0, idle sessions are kept until restart")
	}
	return sched.AddJob("prune-store", *flags.pruneSchedule, func() {
		if n, err := pruner.Prune(ctx); err != nil {
			slog.Warn("Store prune failed", "error", err)
		} else if n > 0 {
			slog.Info("Store pruned expired rows", "removed", n)
		}
	})
}

// run wires every module and blocks until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if *flags.predictorURL == "" {
		return errors.New("PREDICTOR_URL is required")
	}

	backend, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	sessions := store.NewSessionStore()
	defer sessions.Clear()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := scheduleMaintenance(ctx, sched, flags, sessions, backend); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	pred, err := predictor.NewClient(*flags.predictorURL, buildPredictorOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create predictor client: %w", err)
	}

	engineOpts, err := buildEngineOptions(flags)
	if err != nil {
		return err
	}

	msgService, apiOpts, err := buildMessagingService(ctx, flags)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(sessions, backend, pred, msgService, engineOpts...)
	handler := messaging.NewResponseHandler(engine, msgService, messaging.WithDedup(backend))

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	handler.Start(ctx)

	server := api.NewServer(sessions, backend, apiOpts...)
	serveErr := server.Run(ctx, *flags.apiAddr)

	slog.Info("Shutting down SleepAdvisor", "active_sessions", sessions.Len())
	if err := msgService.Stop(); err != nil {
		slog.Warn("Failed to stop messaging service", "error", err)
	}
	handler.Wait()
	return serveErr
}
