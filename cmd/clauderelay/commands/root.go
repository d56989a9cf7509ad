// Package commands provides the CLI commands for clauderelay.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clauderelay/clauderelay/internal/config"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
	directory string
)

var rootCmd = &cobra.Command{
	Use:   "clauderelay",
	Short: "clauderelay - HTTP relay for the Claude CLI",
	Long: `clauderelay fronts the Claude CLI with an HTTP API: chat execution
with multi-turn session continuation, durable session metadata with
timed backups, and automatic error recovery.

Run 'clauderelay serve' to start the server.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Optional .env file; missing is fine.
		_ = godotenv.Load()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-readable console logging")
	rootCmd.PersistentFlags().StringVar(&directory, "directory", "", "Project directory for config lookup")

	rootCmd.SetVersionTemplate(fmt.Sprintf("clauderelay %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(backupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the app config from the working directory and
// initializes logging from it, honoring flag overrides.
func loadConfig() (*types.Config, error) {
	dir := directory
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(level),
		Pretty: logPretty || cfg.LogPretty,
	})

	return cfg, nil
}
