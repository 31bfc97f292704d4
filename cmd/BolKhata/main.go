// Command BolKhata runs the voice-ledger assistant: the conversation engine,
// its HTTP API, the configured messaging channel, and the reminder dispatcher.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BolKhata/BolKhata/internal/api"
	"github.com/BolKhata/BolKhata/internal/engine"
	"github.com/BolKhata/BolKhata/internal/genai"
	"github.com/BolKhata/BolKhata/internal/intent"
	"github.com/BolKhata/BolKhata/internal/lockfile"
	"github.com/BolKhata/BolKhata/internal/messaging"
	"github.com/BolKhata/BolKhata/internal/patterns"
	"github.com/BolKhata/BolKhata/internal/processor"
	"github.com/BolKhata/BolKhata/internal/scheduler"
	"github.com/BolKhata/BolKhata/internal/store"
	"github.com/BolKhata/BolKhata/internal/twiliowhatsapp"
	"github.com/BolKhata/BolKhata/internal/util"
	"github.com/BolKhata/BolKhata/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BolKhata state data
	DefaultStateDir = "/var/lib/bolkhata"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bolkhata.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("BolKhata failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BolKhata exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir        string
	DatabaseURL     string
	WhatsAppDSN     string
	OpenAIKey       string
	APIAddr         string
	Channel         string
	OracleThreshold float64
	OracleTimeout   time.Duration
	SessionIdle     time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	openaiKey *string
	apiAddr   *string
	channel   *string
}

func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("BOLKHATA_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:        os.Getenv("BOLKHATA_STATE_DIR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		Channel:         os.Getenv("BOLKHATA_CHANNEL"),
		OracleThreshold: util.ParseFloatEnv("BOLKHATA_ORACLE_THRESHOLD", intent.DefaultConfidenceThreshold),
		OracleTimeout:   util.ParseDurationEnv("BOLKHATA_ORACLE_TIMEOUT", genai.DefaultTimeout),
		SessionIdle:     util.ParseDurationEnv("BOLKHATA_SESSION_IDLE", engine.DefaultIdleTimeout),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("environment loaded",
		"state_dir", config.StateDir,
		"database_url_set", config.DatabaseURL != "",
		"whatsapp_dsn_set", config.WhatsAppDSN != "",
		"openai_key_set", config.OpenAIKey != "",
		"api_addr", config.APIAddr,
		"channel", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for BolKhata data (overrides $BOLKHATA_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the record store (overrides $DATABASE_URL)"),
		waDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session (overrides $WHATSAPP_DB_DSN)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the NLU oracle (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:   flag.String("channel", config.Channel, "messaging channel: whatsapp, twilio or none (overrides $BOLKHATA_CHANNEL)"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// File-backed state must not be shared between instances.
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.NewStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	detector := patterns.NewDetector(st)
	router := processor.NewRouter(st, detector)

	var oracle engine.IntentClassifier
	if *flags.openaiKey != "" {
		gaClient, err := genai.NewClient(
			genai.WithAPIKey(*flags.openaiKey),
			genai.WithTimeout(config.OracleTimeout),
		)
		if err != nil {
			return err
		}
		oracle = intent.NewClassifier(gaClient, intent.WithConfidenceThreshold(config.OracleThreshold))
	} else {
		slog.Warn("main.run: no OpenAI API key, running with the deterministic parser only")
	}

	sessions := engine.NewSessionStore(config.SessionIdle)
	coord := engine.NewCoordinator(sessions, oracle, router, st)
	coord.StartSessionJanitor(ctx, time.Minute)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	var channel messaging.Service
	switch *flags.channel {
	case "whatsapp":
		var waOpts []whatsapp.Option
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return err
		}
		channel = messaging.NewWhatsAppService(waClient)
	case "twilio":
		twClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return err
		}
		twService := messaging.NewTwilioService(twClient)
		apiOpts = append(apiOpts, api.WithTwilioService(twService))
		channel = twService
	case "", "none":
		slog.Info("main.run: no messaging channel configured, HTTP API only")
	default:
		slog.Warn("main.run: unknown channel, running HTTP API only", "channel", *flags.channel)
	}

	if channel != nil {
		if err := channel.Start(ctx); err != nil {
			return err
		}
		defer channel.Stop()

		messaging.NewUtteranceRouter(channel, coord).Start(ctx)

		dispatcher := scheduler.NewDispatcher(st, channel)
		if err := dispatcher.Start(); err != nil {
			return err
		}
		defer dispatcher.Stop()
	}

	server := api.NewServer(coord, st, detector, apiOpts...)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("main.run: shutdown signal received", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("main.run: server shutdown failed", "error", err)
		}
		cancel()
	}()

	slog.Info("Bootstrapping BolKhata", "store_dsn_type", store.DetectDSNType(*flags.dbDSN), "oracle_enabled", oracle != nil, "channel", *flags.channel)
	return server.Run()
}
