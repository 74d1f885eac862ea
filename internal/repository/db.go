package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/RealZimboGuy/leadflow/internal/config"
	"github.com/RealZimboGuy/leadflow/internal/migrations"
)

// Open runs the embedded migrations for the configured database type and
// returns a ready connection pool.
func Open(ctx context.Context) (*sql.DB, error) {
	var (
		driver       string
		dsn          string
		migrationDir string
		migrationURL string
	)
	switch databaseType() {
	case config.DATABASE_TYPE_POSTGRES:
		dbURL := config.GetSystemSettingString(config.DATABASE_URL)
		driver, dsn, migrationDir, migrationURL = "postgres", dbURL, "postgres", dbURL
		slog.Info("Using Postgres database")
	case config.DATABASE_TYPE_MYSQL:
		dbURL := config.GetSystemSettingString(config.DATABASE_URL)
		if !strings.Contains(dbURL, "parseTime=true") {
			return nil, fmt.Errorf("%s must contain 'parseTime=true' for MySQL", config.DATABASE_URL)
		}
		if !strings.HasPrefix(dbURL, "mysql://") {
			return nil, fmt.Errorf("%s must start with 'mysql://' for MySQL", config.DATABASE_URL)
		}
		if !strings.Contains(dbURL, "multiStatements=") {
			dbURL += "&multiStatements=true"
		}
		driver, dsn, migrationDir, migrationURL = "mysql", strings.TrimPrefix(dbURL, "mysql://"), "mysql", dbURL
		slog.Info("Using MySQL database")
	case config.DATABASE_TYPE_SQLLITE:
		fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
		driver, dsn, migrationDir, migrationURL = "sqlite3", fileName+"?_busy_timeout=5000&_foreign_keys=on", "sqlite3", "sqlite3://"+fileName
		slog.Info("Using SQLite database", "file", fileName)
	default:
		return nil, fmt.Errorf("unsupported database type %q", databaseType())
	}

	slog.Info("Running migrations")
	if err := RunMigrations(migrationDir, migrationURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// SQLite has a single writer; one connection avoids SQLITE_BUSY between workers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	ping := func() error { return db.PingContext(ctx) }
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(ping, policy, func(err error, wait time.Duration) {
		slog.Warn("Database not reachable, retrying", "error", err, "wait", wait)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations of one dialect directory.
func RunMigrations(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
