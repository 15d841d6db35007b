// ABOUTME: Source management commands for adding, listing, and removing feed sources
// ABOUTME: Handles source CRUD against the shared store opened in root.go

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"refeed/internal/models"
	"refeed/internal/store"
)

var sourceCmd = &cobra.Command{
	Use:     "source",
	Aliases: []string{"s"},
	Short:   "Manage feed sources",
	Long:    "Add, list, and remove the feed sources kept up to date by refresh",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a new feed source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		modeFlag, _ := cmd.Flags().GetString("mode")
		title, _ := cmd.Flags().GetString("title")

		mode, err := models.ParseUpdateMode(modeFlag)
		if err != nil {
			return err
		}

		// Check if the source already exists
		existing, err := st.SourceByURL(cmd.Context(), url)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check for existing source: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("source already exists: %s (id %d)", url, existing.ID)
		}

		src := models.NewSource(url)
		src.Mode = mode
		if title != "" {
			src.Title = &title
		}

		if err := st.CreateSource(cmd.Context(), src); err != nil {
			return fmt.Errorf("failed to create source: %w", err)
		}

		fmt.Printf("Added source: %s\n", url)
		fmt.Printf("Source ID: %d (mode %s)\n", src.ID, src.Mode)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all feed sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := st.ListSources(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		if len(sources) == 0 {
			fmt.Println("No sources found. Add one with 'refeed source add <url>'")
			return nil
		}

		fmt.Printf("Found %d source(s):\n\n", len(sources))
		for _, src := range sources {
			fmt.Printf("[%d] %s (%s)\n", src.ID, src.DisplayName(), src.Mode)
			fmt.Printf("  URL: %s\n\n", src.URL)
		}
		return nil
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove a feed source",
	Long:  "Remove a source and all of its stored entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("provide a source url")
		}
		url := args[0]

		src, err := st.SourceByURL(cmd.Context(), url)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("source not found: %s", url)
		}
		if err != nil {
			return fmt.Errorf("failed to get source: %w", err)
		}

		if err := st.DeleteSource(cmd.Context(), src.ID); err != nil {
			return fmt.Errorf("failed to remove source: %w", err)
		}

		fmt.Printf("Removed source: %s\n", src.DisplayName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)

	sourceAddCmd.Flags().String("mode", "", "update cadence: manual, frequent, hourly, daily (default hourly)")
	sourceAddCmd.Flags().String("title", "", "display title for the source")
}
