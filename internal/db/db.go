package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxOpenConns       = 25
	maxIdleConns       = 5
	connMaxLifetime    = 5 * time.Minute
	defaultPingTimeout = 5 * time.Second
)

// DB wraps a GORM database connection
type DB struct {
	*gorm.DB
}

// Options tunes the SQLite connection
type Options struct {
	// BusyTimeout is how long a writer waits for a competing writer to finish
	BusyTimeout time.Duration
	// ConnectionTimeout bounds the initial ping
	ConnectionTimeout time.Duration
	// EnableWAL switches the journal to write-ahead logging
	EnableWAL bool
}

// New creates a new database connection with WAL enabled.
// dbPath should be the path to the SQLite database file, e.g. "./data/lecturesfrom.db".
func New(dbPath string, busyTimeout time.Duration) (*DB, error) {
	return Open(dbPath, Options{BusyTimeout: busyTimeout, EnableWAL: true})
}

// Open creates a new database connection with GORM.
// Writers take the database lock when their transaction begins and wait up
// to opts.BusyTimeout for a competing writer to finish.
func Open(dbPath string, opts Options) (*DB, error) {
	journal := "DELETE"
	if opts.EnableWAL {
		journal = "WAL"
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d&_txlock=immediate",
		dbPath, journal, opts.BusyTimeout.Milliseconds())

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		// Disable default transaction for better performance
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	pingTimeout := opts.ConnectionTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: gormDB}, nil
}

// JournalMode reports the active SQLite journal mode
func (db *DB) JournalMode(ctx context.Context) (string, error) {
	var mode string
	if err := db.WithContext(ctx).Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil {
		return "", fmt.Errorf("failed to read journal mode: %w", err)
	}
	return strings.ToLower(mode), nil
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// GetSQLDB returns the underlying sql.DB for migrations
func (db *DB) GetSQLDB() (*sql.DB, error) {
	return db.DB.DB()
}
