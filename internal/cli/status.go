package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/pkg/metrics"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration log summary",
	Long: `Show a summary of the migration log: totals per status and per
operation, total bytes moved, and the active transaction if any.`,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		tr, err := tracker.New(wd)
		if err != nil {
			fmtErr("open migration log: %v", err)
			os.Exit(1)
		}

		summary := tr.GetMigrationSummary()
		if jsonOutput {
			outputJSON(map[string]any{
				"summary": summary,
				"metrics": metrics.Default().Snapshot(),
			})
			return
		}

		fmt.Printf("Migrations: %d total\n", summary.TotalMigrations)
		fmt.Printf("  successful:  %d\n", summary.Successful)
		fmt.Printf("  failed:      %d\n", summary.Failed)
		fmt.Printf("  pending:     %d\n", summary.Pending)
		fmt.Printf("  rolled back: %d\n", summary.RolledBack)
		fmt.Printf("Total size moved: %d bytes\n", summary.TotalSizeMoved)
		if len(summary.ByOperation) > 0 {
			fmt.Println("By operation:")
			for op, n := range summary.ByOperation {
				fmt.Printf("  %-16s %d\n", op, n)
			}
		}
		if id := tr.CurrentTransactionID(); id != "" {
			fmt.Printf("Active transaction: %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
