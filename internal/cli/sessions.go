package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/session"
	"github.com/vibepruner/vibepruner/pkg/model"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect archived sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		mgr := session.NewManager(wd)
		sessions, err := mgr.ListSessions()
		if err != nil {
			fmtErr("list sessions: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(sessions)
			return
		}
		if len(sessions) == 0 {
			fmt.Println("No archived sessions")
			return
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-12s %s\n", s.StartedAt.Format(time.RFC3339), s.Status, s.ID)
		}
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one archived session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		mgr := session.NewManager(wd)
		sessions, err := mgr.ListSessions()
		if err != nil {
			fmtErr("list sessions: %v", err)
			os.Exit(1)
		}

		var found *model.Session
		for _, s := range sessions {
			if s.ID == args[0] {
				found = s
				break
			}
		}
		if found == nil {
			fmtErr("session not found: %s", args[0])
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(found)
			return
		}
		fmt.Printf("Session %s (%s)\n", found.ID, found.Status)
		fmt.Printf("  project: %s\n", found.ProjectPath)
		fmt.Printf("  started: %s\n", found.StartedAt.Format(time.RFC3339))
		if found.EndedAt != nil {
			fmt.Printf("  ended:   %s (%.1fs)\n", found.EndedAt.Format(time.RFC3339), found.DurationSeconds)
		}
		fmt.Printf("  phase:   %s\n", found.Phase)
		if found.Interrupted {
			fmt.Printf("  interrupted by signal: %s\n", found.InterruptSignal)
		}
		fmt.Printf("  checkpoints: %d, errors: %d\n", len(found.Checkpoints), len(found.Errors))
		for k, v := range found.Stats {
			fmt.Printf("  %-22s %d\n", k+":", v)
		}
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
