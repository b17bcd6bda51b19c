package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/rollback"
	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/color"
	"github.com/vibepruner/vibepruner/pkg/progress"
)

var (
	rollbackVerify   bool
	rollbackKeepDays int
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Create and restore rollback points",
}

var rollbackCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Create a rollback point",
	Long: `Create a rollback point marking the current moment. A later
'rollback to' reverses every migration recorded after this point.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()
		mgr := newRollbackManager(wd, false)

		description := ""
		if len(args) > 0 {
			description = args[0]
		}

		id, err := mgr.CreateRollbackPoint(description)
		if err != nil {
			fmtErr("create rollback point: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"rollback_id": id})
		} else {
			fmt.Printf("Created rollback point %s\n", color.Success(id))
		}
	},
}

var rollbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rollback points",
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()
		mgr := newRollbackManager(wd, false)

		points, err := mgr.ListRollbackPoints()
		if err != nil {
			fmtErr("list rollback points: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(points)
			return
		}
		if len(points) == 0 {
			fmt.Println("No rollback points")
			return
		}
		for _, p := range points {
			fmt.Printf("%s  %-9s %s\n", p.CreatedAt.Format(time.RFC3339), p.Status, p.ID)
			if p.Description != "" {
				fmt.Printf("  %s\n", p.Description)
			}
		}
	},
}

var rollbackToCmd = &cobra.Command{
	Use:   "to <rollback-id>",
	Short: "Reverse all migrations recorded after a rollback point",
	Long: `Reverse, in reverse chronological order, every migration recorded
after the rollback point was created. Individual reversal failures do
not abort the rest; they are itemized at the end. Use --verify to run
an integrity scan afterwards.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()
		mgr := newRollbackManager(wd, !jsonOutput)

		result, err := mgr.RollbackToPoint(args[0], rollbackVerify)
		if err != nil {
			fmtErr("rollback: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			fmt.Printf("Reversed %d migration(s)\n", result.MigrationsReversed)
			for _, e := range result.Errors {
				fmt.Printf("  %s\n", color.Error(e))
			}
			if result.Success {
				fmt.Println(color.Success("Rollback completed"))
			} else {
				fmt.Println(color.Warn("Rollback completed with errors"))
			}
		}

		if !result.Success {
			os.Exit(1)
		}
	},
}

var rollbackCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old rollback points",
	Run: func(cmd *cobra.Command, args []string) {
		wd, cfg := requireWorkdir()
		mgr := newRollbackManager(wd, false)

		days := rollbackKeepDays
		if days <= 0 {
			days = cfg.Rollback.KeepDays
		}

		cleaned, err := mgr.CleanupOldRollbackPoints(days)
		if err != nil {
			fmtErr("cleanup rollback points: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"cleaned": cleaned})
		} else {
			fmt.Printf("Removed %d old rollback point(s)\n", cleaned)
		}
	},
}

func newRollbackManager(wd *workdir.WorkDir, withProgress bool) *rollback.Manager {
	tr, err := tracker.New(wd)
	if err != nil {
		fmtErr("open migration log: %v", err)
		os.Exit(1)
	}

	var opts []rollback.Option
	if withProgress {
		opts = append(opts, rollback.WithProgress(progress.NewTerminal(true).Update))
	}
	mgr, err := rollback.New(wd, tr, opts...)
	if err != nil {
		fmtErr("open rollback manager: %v", err)
		os.Exit(1)
	}
	return mgr
}

func init() {
	rollbackToCmd.Flags().BoolVar(&rollbackVerify, "verify", false, "run an integrity scan after the rollback")
	rollbackCleanupCmd.Flags().IntVar(&rollbackKeepDays, "keep-days", 0, "override configured retention window in days")

	rollbackCmd.AddCommand(rollbackCreateCmd)
	rollbackCmd.AddCommand(rollbackListCmd)
	rollbackCmd.AddCommand(rollbackToCmd)
	rollbackCmd.AddCommand(rollbackCleanupCmd)
	rootCmd.AddCommand(rollbackCmd)
}
