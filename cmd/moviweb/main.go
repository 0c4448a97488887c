package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"moviweb/pkg/config"
	"moviweb/pkg/database"
	"moviweb/pkg/datamanager"
	"moviweb/pkg/logging"
	"moviweb/pkg/omdb"
	"moviweb/pkg/recommend"
	"moviweb/pkg/server"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type args struct {
	EnvFile     string
	Addr        string
	MigrateOnly bool
}

func parseArgs(argv []string) (args, error) {
	var (
		app = kingpin.New("moviweb", "Favourite movies web application.")

		envFile = app.Flag(
			"env-file", "file with environment variables to load").Default(".env").String()

		addr = app.Flag(
			"addr", "listen address, overrides APP_ADDR").String()

		migrateOnly = app.Flag(
			"migrate-only", "apply database migrations and exit").Bool()
	)

	if _, err := app.Parse(argv); err != nil {
		return args{}, err
	}
	return args{EnvFile: *envFile, Addr: *addr, MigrateOnly: *migrateOnly}, nil
}

func main() {
	a, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(a); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := config.Load(a.EnvFile)
	if err != nil {
		return err
	}
	if a.Addr != "" {
		cfg.Addr = a.Addr
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return err
	}
	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", zap.Error(err))
		return err
	}
	if a.MigrateOnly {
		logger.Info("Database migrated")
		return nil
	}

	if cfg.OMDb.APIKey == "" {
		logger.Warn("OMDB_API_KEY is not set, movie lookups will fail")
	}
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, recommendations are disabled")
	}

	srv := server.New(
		datamanager.New(db, logger),
		omdb.New(cfg.OMDb, logger),
		recommend.New(cfg.OpenAI, logger),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, cfg.Addr); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
