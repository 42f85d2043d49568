package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration
}

// NewConnection creates a new database connection
func NewConnection(cfg Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// TxOptions controls how Transaction runs its function
type TxOptions struct {
	Isolation  sql.IsolationLevel
	MaxRetries int
}

// ParseIsolation maps a configuration string onto a sql isolation level.
// Unknown values fall back to serializable.
func ParseIsolation(level string) sql.IsolationLevel {
	switch strings.ToLower(strings.ReplaceAll(level, "_", " ")) {
	case "read committed":
		return sql.LevelReadCommitted
	case "repeatable read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelSerializable
	}
}

// Transaction wraps a function in a database transaction. When the database
// aborts the transaction with a serialization failure or a deadlock the
// whole function is run again, up to opts.MaxRetries extra attempts.
func Transaction(ctx context.Context, db *gorm.DB, opts TxOptions, fn func(tx *gorm.DB) error) error {
	txOpts := &sql.TxOptions{Isolation: opts.Isolation}

	var err error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err = db.WithContext(ctx).Transaction(fn, txOpts)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// IsRetryable reports whether err is a postgres serialization failure
// (40001) or deadlock (40P01)
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation (23505)
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
