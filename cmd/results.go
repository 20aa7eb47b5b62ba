package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/tilecloud/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	resultsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored layout results",
	Long: `Manage stored layout results including listing and cleaning old ones.
Results are written by "serve" and by "run --data-dir".`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	Long:  `Display all results with job ID, age, status, placement ratio, tile counts and disk size.`,
	RunE:  runListResults,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old results",
	Long: `Delete old results based on retention policy.
You can keep only the newest N results or delete results older than N days.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "./data", "Base directory for result storage")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N results (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete results older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tCREATED\tSTATUS\tSHAPE\tPLACED\tRATIO\tSIZE")
	fmt.Fprintln(w, "------\t-------\t------\t-----\t------\t-----\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := resultStore.DirSize(info.JobID); err == nil {
			sizeStr = humanize.Bytes(uint64(size))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.2f\t%s\n",
			shortID(info.JobID),
			humanize.Time(info.Timestamp),
			info.Status,
			info.Shape,
			info.Placed, info.Total,
			info.Ratio,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal results: %d\n", len(infos))
	return nil
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results to clean.")
		return nil
	}

	toDelete := selectResultsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Println("No results match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d result(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %s)\n", shortID(info.JobID), info.Status, humanize.Time(info.Timestamp))
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := resultStore.DeleteResult(info.JobID); err != nil {
			slog.Error("Failed to delete result", "job_id", info.JobID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted result", "job_id", info.JobID)
		deleted++
	}

	fmt.Printf("\nDeleted %d result(s), %d failed.\n", deleted, failed)
	return nil
}

// selectResultsForDeletion applies the retention policy: everything older than
// olderThanDays, plus everything beyond the newest keepLast. The returned
// slice is ordered oldest first and holds no duplicates.
func selectResultsForDeletion(infos []store.ResultInfo, keepLast, olderThanDays int, now time.Time) []store.ResultInfo {
	sorted := slices.Clone(infos)
	slices.SortStableFunc(sorted, func(a, b store.ResultInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.ResultInfo
	for i, info := range sorted {
		if i < excess || (!cutoff.IsZero() && info.Timestamp.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}
