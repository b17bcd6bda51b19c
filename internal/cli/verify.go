package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/pkg/color"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify migration integrity",
	Long: `Re-hash every successfully migrated destination file and report
integrity findings:

  missing_destination  destination file no longer exists
  hash_mismatch        destination content changed since migration
  source_not_removed   source still exists after a move
  unknown_outcome      operation was recorded but never completed

Findings are reported, never auto-repaired. Exits non-zero when any
finding is present.`,
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		tr, err := tracker.New(wd)
		if err != nil {
			fmtErr("open migration log: %v", err)
			os.Exit(1)
		}

		issues := tr.VerifyMigrationIntegrity()
		if jsonOutput {
			outputJSON(map[string]any{
				"issues": issues,
				"clean":  len(issues) == 0,
			})
		} else if len(issues) == 0 {
			fmt.Println(color.Success("All migrations verified, no issues found"))
		} else {
			fmt.Printf("%s\n", color.Warn(fmt.Sprintf("%d integrity issue(s) found:", len(issues))))
			for _, issue := range issues {
				fmt.Printf("  [%s] %s\n", issue.Type, issue.Message)
			}
		}

		if len(issues) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
