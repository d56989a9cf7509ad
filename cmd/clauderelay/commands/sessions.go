package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clauderelay/clauderelay/internal/store"
	"github.com/clauderelay/clauderelay/pkg/types"
)

var (
	sessionsActive  bool
	sessionsAll     bool
	sessionsProject string
	sessionsJSON    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the persistent session store",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runSessionsList,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runSessionsStats,
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsActive, "active", false, "Only active sessions")
	sessionsListCmd.Flags().BoolVar(&sessionsAll, "all", false, "Include inactive sessions (default)")
	sessionsListCmd.Flags().StringVar(&sessionsProject, "project", "", "Filter by project path")
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "JSON output")
	sessionsStatsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "JSON output")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
}

// openStore opens the store read-only for CLI inspection: no backup
// timer, no watcher.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.New(store.Options{
		Path:       cfg.Store.Path,
		BackupsDir: cfg.Store.BackupsDir,
		MaxBackups: cfg.Store.MaxBackups,
	})
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	var filter types.SessionFilter
	if sessionsActive && !sessionsAll {
		active := true
		filter.IsActive = &active
	}
	filter.ProjectPath = sessionsProject

	sessions := st.List(&filter)

	if sessionsJSON {
		return json.NewEncoder(os.Stdout).Encode(sessions)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPROJECT\tACTIVE\tMESSAGES\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n",
			s.SessionID,
			s.ProjectPath,
			s.IsActive,
			s.MessageCount,
			time.UnixMilli(s.LastActivity).Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func runSessionsStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	stats := st.Stats()

	if sessionsJSON {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	fmt.Printf("total:        %d\n", stats.TotalSessions)
	fmt.Printf("active:       %d\n", stats.ActiveSessions)
	fmt.Printf("with errors:  %d\n", stats.SessionsWithErrors)
	fmt.Printf("avg messages: %.1f\n", stats.AverageMessageCount)
	return nil
}
