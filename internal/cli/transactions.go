package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/pkg/color"
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Inspect and roll back transactions",
}

var transactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived transactions",
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		tr, err := tracker.New(wd)
		if err != nil {
			fmtErr("open migration log: %v", err)
			os.Exit(1)
		}

		txs, err := tr.ListTransactions()
		if err != nil {
			fmtErr("list transactions: %v", err)
			os.Exit(1)
		}
		sort.Slice(txs, func(i, j int) bool {
			return txs[i].StartTime.After(txs[j].StartTime)
		})

		if jsonOutput {
			outputJSON(txs)
			return
		}
		if len(txs) == 0 {
			fmt.Println("No transactions recorded")
			return
		}
		for _, tx := range txs {
			fmt.Printf("%s  %-16s %3d ops  %s\n",
				tx.StartTime.Format(time.RFC3339), tx.Status, len(tx.Operations), tx.Description)
			fmt.Printf("  id: %s\n", tx.ID)
		}
	},
}

var transactionsShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show one transaction with its operations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		tr, err := tracker.New(wd)
		if err != nil {
			fmtErr("open migration log: %v", err)
			os.Exit(1)
		}

		tx, err := tr.LoadTransaction(args[0])
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(tx)
			return
		}
		fmt.Printf("Transaction %s (%s)\n", tx.ID, tx.Status)
		fmt.Printf("  %s\n", tx.Description)
		fmt.Printf("  started: %s\n", tx.StartTime.Format(time.RFC3339))
		if tx.EndTime != nil {
			fmt.Printf("  ended:   %s\n", tx.EndTime.Format(time.RFC3339))
		}
		for _, op := range tx.Operations {
			fmt.Printf("  [%s] %s %s", op.Status, op.Operation, op.SourcePath)
			if op.DestPath != "" {
				fmt.Printf(" -> %s", op.DestPath)
			}
			fmt.Println()
			if op.Error != "" {
				fmt.Printf("      error: %s\n", color.Error(op.Error))
			}
		}
	},
}

var transactionsRollbackCmd = &cobra.Command{
	Use:   "rollback <transaction-id>",
	Short: "Reverse every successful operation of a transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		wd, _ := requireWorkdir()

		tr, err := tracker.New(wd)
		if err != nil {
			fmtErr("open migration log: %v", err)
			os.Exit(1)
		}

		tx, err := tr.RollbackTransaction(args[0])
		if err != nil {
			fmtErr("rollback transaction: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(tx)
			return
		}
		failed := 0
		for _, op := range tx.Operations {
			if op.RollbackError != "" {
				failed++
				fmt.Printf("  %s: %s\n", op.SourcePath, color.Error(op.RollbackError))
			}
		}
		if failed == 0 {
			fmt.Printf("%s transaction %s\n", color.Success("Rolled back"), tx.ID)
		} else {
			fmt.Printf("%s transaction %s with %d reversal error(s)\n",
				color.Warn("Partially rolled back"), tx.ID, failed)
			os.Exit(1)
		}
	},
}

func init() {
	transactionsCmd.AddCommand(transactionsListCmd)
	transactionsCmd.AddCommand(transactionsShowCmd)
	transactionsCmd.AddCommand(transactionsRollbackCmd)
	rootCmd.AddCommand(transactionsCmd)
}
