package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clauderelay/clauderelay/internal/claude"
	"github.com/clauderelay/clauderelay/internal/config"
	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/internal/recovery"
	"github.com/clauderelay/clauderelay/internal/server"
	"github.com/clauderelay/clauderelay/internal/store"
	"github.com/clauderelay/clauderelay/internal/tracker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clauderelay HTTP server",
	Long: `Start the HTTP server fronting the Claude CLI.

The server tracks session liveness in memory, persists session
metadata with periodic backups, and recovers from failed CLI
invocations automatically.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	log := logging.Component("main")
	log.Info().Str("version", Version).Msg("starting clauderelay")

	bus := event.NewBus()

	tr, report := tracker.New(tracker.Options{
		SessionsDir:       cfg.Claude.SessionsDir,
		MaxRetries:        cfg.Tracker.MaxRetries,
		InactivityTimeout: time.Duration(cfg.Tracker.InactivityTimeoutMinutes) * time.Minute,
		SweepInterval:     time.Duration(cfg.Tracker.SweepIntervalMinutes) * time.Minute,
		Bus:               bus,
	})
	log.Info().
		Int("tracked", report.Tracked).
		Int("skipped", len(report.Skipped)).
		Msg("session tree scanned")

	if cfg.Tracker.Watch {
		if err := tr.StartWatching(); err != nil {
			log.Warn().Err(err).Msg("session watcher unavailable")
		}
	}

	st, err := store.New(store.Options{
		Path:           cfg.Store.Path,
		BackupsDir:     cfg.Store.BackupsDir,
		BackupInterval: time.Duration(cfg.Store.BackupIntervalMinutes) * time.Minute,
		MaxBackups:     cfg.Store.MaxBackups,
		Bus:            bus,
	})
	if err != nil {
		return err
	}

	eng := recovery.New(recovery.Options{Tracker: tr, Store: st, Bus: bus})

	inv := claude.New(claude.Options{
		Binary:  cfg.Claude.Binary,
		Timeout: time.Duration(cfg.Claude.TimeoutSeconds) * time.Second,
	})

	srvConfig := server.DefaultConfig()
	srvConfig.Port = cfg.Port
	srvConfig.MaxRetries = cfg.Tracker.MaxRetries

	srv := server.New(srvConfig, tr, st, eng, inv, bus)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	tr.Close()
	st.Close()
	bus.Close()

	log.Info().Msg("stopped")
	return nil
}
