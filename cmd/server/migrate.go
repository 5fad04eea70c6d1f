package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Applies pending schema migrations and reports the resulting version.
The serve command does this on startup as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		sqlDB, err := database.GetSQLDB()
		if err != nil {
			return err
		}
		version, dirty, err := db.MigrationVersion(sqlDB, cfg.Database.MigrationsPath)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}

		logger.Log.Info().
			Uint("version", version).
			Bool("dirty", dirty).
			Msg("Database schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// openDatabase connects to the configured database and applies migrations
func openDatabase() (*db.DB, error) {
	logger.Log.Info().Str("path", cfg.Database.Path).Msg("Connecting to database")

	database, err := db.Open(cfg.Database.Path, db.Options{
		BusyTimeout:       cfg.Database.BusyTimeout,
		ConnectionTimeout: cfg.Database.ConnectionTimeout,
		EnableWAL:         cfg.Database.EnableWAL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectionTimeout)
	defer cancel()
	if mode, err := database.JournalMode(ctx); err == nil {
		logger.Log.Info().Str("journal_mode", mode).Msg("Database connected")
	}

	sqlDB, err := database.GetSQLDB()
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	if err := db.RunMigrations(sqlDB, cfg.Database.MigrationsPath); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}
