package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/crmsync"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/queue"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/resilience"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue worker that pushes qualified leads to Salesforce",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		breaker := resilience.NewBreaker(resilience.BreakerFromSettings("salesforce",
			cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSecs))
		handler := crmsync.NewHandler(st, sf, breaker, cfg.CRM.LeadSource)

		w, err := queue.NewWorker(cfg.Queue, handler)
		if err != nil {
			return eris.Wrap(err, "init worker")
		}

		zap.L().Info("starting worker",
			zap.String("command", "worker"),
			zap.String("queue", cfg.Queue.Name),
			zap.Int("concurrency", cfg.Queue.Concurrency),
		)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
