// ABOUTME: Serve command: long-running poll loop refreshing due sources
// ABOUTME: The orchestrator retimes the loop to the earliest scheduled source

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"refeed/internal/poll"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background refresh loop",
	Long: `Run refeed as a long-lived process. Due sources are refreshed in
batches; after each batch the loop retimes itself to the earliest scheduled
source. The first batch applies the launch due-criteria relaxation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The poller is the batch trigger the orchestrator reschedules.
		var poller *poll.Poller
		svc := newService(pollerRescheduler{&poller})
		poller = poll.New(svc, st, cfg.PollFloor, log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.WithField("db", cfg.DBPath).Info("refeed serving")
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("shutting down")
		return nil
	},
}

// pollerRescheduler defers the poller dereference until the first batch
// completes, breaking the construction cycle between service and poller.
type pollerRescheduler struct {
	poller **poll.Poller
}

func (r pollerRescheduler) Reschedule() {
	if p := *r.poller; p != nil {
		p.Reschedule()
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
