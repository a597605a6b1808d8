package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/commontrace/tracehook/internal/localstore"
	"github.com/commontrace/tracehook/internal/logger"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect locally recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rows, err := store.ListSessions(sessionsLimit)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if len(rows) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		for _, row := range rows {
			status := "open"
			if !row.EndedAt.IsZero() {
				status = row.EndedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %s\n", row.ID, row.ProjectPath)
			fmt.Printf("  started: %s  ended: %s\n", row.StartedAt.Format(time.RFC3339), status)
			fmt.Printf("  errors: %d  resolutions: %d  contributions: %d\n",
				row.ErrorCount, row.ResolutionCount, row.ContributionCount)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the recorded signals of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		events, err := store.SessionEvents(args[0])
		if err != nil {
			return fmt.Errorf("reading session events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No events recorded for this session.")
			return nil
		}

		for _, ev := range events {
			fmt.Printf("%s  %-24s %s\n", ev.CreatedAt.Format("15:04:05"), ev.Type, ev.Data)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded session history (keeps project fingerprints)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		n, err := store.Clear()
		if err != nil {
			return fmt.Errorf("clearing sessions: %w", err)
		}
		fmt.Printf("Deleted %d session(s)\n", n)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to list")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (*localstore.Store, error) {
	cfg := loadConfig()
	logger.InitQuiet()

	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	return store, nil
}
