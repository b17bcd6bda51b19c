package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/color"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a vibepruner work directory",
	Long: `Initialize a .vibepruner work directory in the given project path
(default: current directory).

This creates:
  - .vibepruner/ with transactions/, sessions/, audit/ and audit/archive/
  - format_version file (version 1)
  - a stable workdir_id

Running init on an already-initialized project keeps the existing identity.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectPath := "."
		if len(args) > 0 {
			projectPath = args[0]
		}

		wd, err := workdir.Init(projectPath)
		if err != nil {
			fmtErr("failed to initialize work directory: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"work_dir":       wd.Root,
				"format_version": wd.FormatVersion,
				"workdir_id":     wd.WorkdirID,
			})
		} else {
			fmt.Printf("Initialized vibepruner work directory in %s\n", color.Success(wd.Root))
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
