package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/audit"
	"github.com/vibepruner/vibepruner/pkg/model"
)

var (
	auditSince string
	auditUntil string
	auditTypes []string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail reporting and housekeeping",
}

var auditReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate the audit trail into a report",
	Long: `Stream every audit log file (active and archived) and aggregate
entries: counts by event type and severity, file operations by verb,
user decisions, test results, and recorded errors. Lines that fail to
parse or whose checksum does not verify are counted as corrupt.

--since and --until accept dates as YYYY-MM-DD. --type narrows the report
to the given event types (repeatable; e.g. file_operation, user_decision,
test_run, test_compare, error).`,
	Run: func(cmd *cobra.Command, args []string) {
		wd, cfg := requireWorkdir()
		logger := audit.New(wd, cfg)

		since, err := parseDateFlag(auditSince)
		if err != nil {
			fmtErr("invalid --since: %v", err)
			os.Exit(1)
		}
		until, err := parseDateFlag(auditUntil)
		if err != nil {
			fmtErr("invalid --until: %v", err)
			os.Exit(1)
		}

		types := make([]model.AuditEventType, 0, len(auditTypes))
		for _, t := range auditTypes {
			types = append(types, model.AuditEventType(t))
		}

		report, err := logger.GenerateReport(since, until, types...)
		if err != nil {
			fmtErr("generate audit report: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		fmt.Printf("Audit report (%d file(s) scanned)\n", report.FilesScanned)
		fmt.Printf("  entries: %d, corrupt lines: %d\n", report.TotalEntries, report.CorruptLines)
		if len(report.ByEventType) > 0 {
			fmt.Println("  by event type:")
			for et, n := range report.ByEventType {
				fmt.Printf("    %-20s %d\n", et, n)
			}
		}
		if len(report.FileOps) > 0 {
			fmt.Println("  file operations:")
			for op, n := range report.FileOps {
				fmt.Printf("    %-20s %d\n", op, n)
			}
		}
		fmt.Printf("  decisions: %d approved, %d rejected\n",
			report.Decisions.Approved, report.Decisions.Rejected)
		fmt.Printf("  tests: %d passed, %d failed\n",
			report.Tests.Passed, report.Tests.Failed)
		fmt.Printf("  comparisons: %d matched, %d diverged\n",
			report.Comparisons.Matched, report.Comparisons.Diverged)
		for _, e := range report.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	},
}

var auditCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove archived audit logs past the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		wd, cfg := requireWorkdir()
		logger := audit.New(wd, cfg)

		removed, err := logger.CleanupArchives()
		if err != nil {
			fmtErr("cleanup audit archives: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"removed": removed})
		} else {
			fmt.Printf("Removed %d archived audit log(s)\n", removed)
		}
	},
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func init() {
	auditReportCmd.Flags().StringVar(&auditSince, "since", "", "only include entries on or after this date (YYYY-MM-DD)")
	auditReportCmd.Flags().StringVar(&auditUntil, "until", "", "only include entries on or before this date (YYYY-MM-DD)")
	auditReportCmd.Flags().StringSliceVar(&auditTypes, "type", nil, "only include entries of these event types")

	auditCmd.AddCommand(auditReportCmd)
	auditCmd.AddCommand(auditCleanupCmd)
	rootCmd.AddCommand(auditCmd)
}
