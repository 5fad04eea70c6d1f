package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/lecturesfrom/internal/config"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
)

var (
	// Used for flags
	logLevel string
	port     int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lecturesfrom",
	Short: "Live event track queue service",
	Long: `Accepts track submissions for live events, keeps the approved queue
ordered and pushes every change to connected hosts and audiences.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		if port > 0 {
			loaded.Server.Port = port
		}
		cfg = loaded

		logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "server port (overrides configuration)")
}
