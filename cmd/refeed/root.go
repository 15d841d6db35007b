// ABOUTME: Root cobra command and shared pipeline wiring
// ABOUTME: Opens config, store, fetcher, and in-flight tracker for subcommands

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"refeed/internal/config"
	"refeed/internal/fetch"
	"refeed/internal/inflight"
	"refeed/internal/store"
	"refeed/internal/update"
)

var (
	dbPath  string
	verbose bool

	cfg     *config.Config
	st      *store.Store
	fetcher *fetch.Fetcher
	tracker *inflight.Tracker
	log     *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refeed",
	Short: "Feed refresher with conditional fetching and retry backoff",
	Long: `refeed keeps subscribed feed sources up to date.

It fetches feeds conditionally (ETag / Last-Modified), merges parsed entries
into a local database deduplicated per source, and tracks each source's
success, failures, and next scheduled refresh.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		log = logrus.New()
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}

		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		fetcher = fetch.New(cfg.HTTPTimeout, cfg.UserAgent)
		tracker = inflight.NewTracker()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if tracker != nil {
			tracker.Close()
		}
		if st != nil {
			if err := st.Close(); err != nil {
				return fmt.Errorf("failed to close database: %w", err)
			}
		}
		return nil
	},
}

// newService wires an orchestrator with the given batch-trigger rescheduler.
func newService(resched update.Rescheduler) *update.Service {
	return update.New(st, fetcher, tracker, resched, log, cfg.Concurrency)
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (default: ~/.local/share/refeed/refeed.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
