// ABOUTME: Status command: ledger view of every source plus the in-flight set
// ABOUTME: Shows entry counts, retry state, and next scheduled refresh times

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"refeed/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show refresh state for all sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read source stats: %w", err)
		}

		if len(stats) == 0 {
			fmt.Println("No sources in the database.")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		for _, s := range stats {
			marker := green("v")
			if s.LastError != nil {
				marker = red("x")
			}
			fmt.Printf("%s [%d] %s (%s)\n", marker, s.ID, displayName(s), s.Mode)
			fmt.Printf("    entries: %d", s.EntryCount)
			if s.RetryCount > 0 {
				fmt.Printf("  retries: %s", red(s.RetryCount))
			}
			fmt.Println()
			fmt.Printf("    last refresh: %s  next: %s\n",
				formatTime(s.RefreshedAt), formatTime(s.NextDueAt))
			if s.LastError != nil {
				fmt.Printf("    error: %s\n", red(*s.LastError))
			}
		}

		totalEntries := lo.SumBy(stats, func(s store.SourceStats) int { return s.EntryCount })
		fmt.Printf("\n%d source(s), %d entries total\n", len(stats), totalEntries)

		inFlight := tracker.Snapshot()
		if len(inFlight) == 0 {
			fmt.Printf("In flight: %s\n", faint("none"))
			return nil
		}
		ids := lo.Map(inFlight, func(id int64, _ int) string { return fmt.Sprintf("%d", id) })
		fmt.Printf("In flight: %s\n", strings.Join(ids, ", "))
		return nil
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
