// ABOUTME: Refresh command: update one source by id or all due sources
// ABOUTME: Prints per-source outcomes with colored markers

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"refeed/internal/store"
	"refeed/internal/update"
)

var (
	refreshAll    bool
	refreshLaunch bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [source-id]",
	Short: "Refresh one source or all due sources",
	Long: `Refresh a single source by id, or with --all every source whose next
scheduled refresh has come due.

Fetches are conditional: a source with stored ETag or Last-Modified
validators is only re-downloaded when its content changed. Failures are
recorded on the source and retried later with backoff.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(update.RescheduleFunc(func() {}))

		if refreshAll {
			if len(args) != 0 {
				return fmt.Errorf("cannot combine --all with a source id")
			}
			if err := svc.RefreshOutdated(cmd.Context(), refreshLaunch); err != nil {
				return fmt.Errorf("batch refresh failed: %w", err)
			}
			return printSummary(cmd)
		}

		if len(args) != 1 {
			return fmt.Errorf("provide a source id or --all")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[0])
		}

		if err := svc.RefreshSource(cmd.Context(), id); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		return printOutcome(cmd, id)
	},
}

func printOutcome(cmd *cobra.Command, id int64) error {
	src, err := st.SourceByID(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Printf("%s no source with id %d\n", color.New(color.Faint).Sprint("-"), id)
		return nil
	}
	if err != nil {
		return err
	}

	if src.LastError != nil {
		fmt.Printf("%s %s: %s\n", color.RedString("x"), src.DisplayName(), *src.LastError)
		return nil
	}
	fmt.Printf("%s %s refreshed\n", color.GreenString("v"), src.DisplayName())
	return nil
}

func printSummary(cmd *cobra.Command) error {
	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read source stats: %w", err)
	}

	failed := lo.CountBy(stats, func(s store.SourceStats) bool { return s.LastError != nil })

	fmt.Printf("Summary: %d source(s), %d failing\n", len(stats), failed)
	for _, s := range stats {
		if s.LastError != nil {
			fmt.Printf("  %s %s: %s\n", color.RedString("x"), displayName(s), *s.LastError)
		}
	}
	return nil
}

func displayName(s store.SourceStats) string {
	if s.Title != nil && *s.Title != "" {
		return *s.Title
	}
	return s.URL
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "refresh every due source")
	refreshCmd.Flags().BoolVar(&refreshLaunch, "launch", false, "apply the launch due-criteria relaxation (with --all)")
}
