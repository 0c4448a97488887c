package database

import (
	"context"
	"fmt"
	"time"

	"moviweb/pkg/config"
	"moviweb/pkg/logging"
	"moviweb/pkg/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured database, retrying while the server comes
// up, and sizes the connection pool.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	logger = logger.With(
		zap.String(logging.FieldComponent, "database"),
		zap.String(logging.FieldType, cfg.Driver),
	)

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: NewLogger(logger)})
		if err == nil {
			break
		}
		logger.Warn("Database connection attempt failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", retries),
			zap.Error(err),
		)
		if i < retries-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	// sqlite has a single writer. Deferred transactions on separate
	// connections fail with SQLITE_BUSY when both upgrade to a write lock, so
	// all access goes through one connection.
	if cfg.Driver == "sqlite" && cfg.MaxOpenConns != 1 {
		logger.Debug("Pinning sqlite pool to one connection", zap.Int("configured", cfg.MaxOpenConns))
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// OpenMemory opens a private in-memory sqlite database with the schema
// applied. The pool is pinned to a single connection so every query sees the
// same database.
func OpenMemory(logger *zap.Logger) (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{
		Driver:         "sqlite",
		DSN:            "file::memory:?_foreign_keys=on",
		MaxOpenConns:   1,
		MaxIdleConns:   1,
		ConnectRetries: 1,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
