package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/meterfeed/pkg/models"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Long:  `Displays the run history from the local database, newest first.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Number of runs to show (0 = all)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(listLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Println("----------------------------------------------------------------------------------------------------")
	fmt.Printf("%-20s  %-12s  %-11s  %-23s  %6s  %8s  %9s  %s\n", "Started", "Outcome", "Duration", "Window", "Points", "Rows", "Size", "")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		fmt.Printf("%-20s  %-12s  %-11s  %-23s  %6d  %8s  %9s  %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Outcome,
			run.Duration().Round(time.Millisecond),
			window(run),
			run.Points,
			humanize.Comma(int64(run.Rows)),
			humanize.Bytes(uint64(run.Bytes)),
			notes(run),
		)
	}

	fmt.Println("----------------------------------------------------------------------------------------------------")

	counts, err := db.CountByOutcome()
	if err != nil {
		return fmt.Errorf("counting runs: %w", err)
	}
	fmt.Printf("Total: %d ok, %d auth failed, %d failed\n",
		counts[models.OutcomeOK], counts[models.OutcomeAuthFailed], counts[models.OutcomeFailed])

	last, err := db.LastSuccess()
	if err != nil {
		return fmt.Errorf("finding last success: %w", err)
	}
	if last != nil {
		fmt.Printf("Last successful publish: %s (%s)\n",
			last.FinishedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(last.FinishedAt))
	} else {
		fmt.Println("No successful publish recorded")
	}

	return nil
}

func window(run models.Run) string {
	if run.Since == "" {
		return "-"
	}
	return run.Since + ".." + run.Until
}

func notes(run models.Run) string {
	var s string
	if run.PastDue {
		s = "past due "
	}
	if run.Outcome == models.OutcomeAuthFailed && run.Published {
		s += "published [] "
	}
	if run.Error != "" {
		s += run.Error
	}
	return s
}
