package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rescore companies that were never scored or whose score is stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Batch.Limit
		}
		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		proc, closeQueue, err := initProcessor(engine, st)
		if err != nil {
			return err
		}
		defer closeQueue()

		zap.L().Info("processing batch",
			zap.String("command", "batch"),
			zap.Int("limit", limit),
			zap.Int("concurrency", concurrency),
		)

		summary, err := proc.RunBatch(ctx, limit, concurrency)
		if err != nil {
			return eris.Wrap(err, "batch processing")
		}
		return writeJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of companies to score (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel scoring workers (default from config)")
	rootCmd.AddCommand(batchCmd)
}
