package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one company from a JSON input",
	Long: `Score a single company and print the result as JSON.

The input is a JSON object with entity_id, naics_code, employee_count or
employee_range, contact details and a contacts array. Pass --input - to read
it from stdin.

Examples:
  leadscore score --input company.json
  leadscore score --input company.json --variant variant_a
  leadscore score --input company.json --save --variant variant_a`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("input", "", "path to a JSON scoring input, or - for stdin (required)")
	f.String("variant", "", "score with this variant instead of the assigned one")
	f.Bool("save", false, "persist the score and enqueue CRM sync when it qualifies")
	_ = scoreCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	log := zap.L().With(zap.String("command", "score"))
	input, _ := cmd.Flags().GetString("input")
	variant, _ := cmd.Flags().GetString("variant")
	save, _ := cmd.Flags().GetBool("save")

	if err := cfg.Validate("score"); err != nil {
		return err
	}

	var in scorer.Input
	if err := readJSON(input, cmd.InOrStdin(), &in); err != nil {
		return err
	}

	engine, err := initEngine()
	if err != nil {
		return err
	}

	if !save {
		res, err := engine.ScoreOne(in, variant)
		if err != nil {
			return eris.Wrap(err, "score")
		}
		log.Debug("scored input", zap.String("entity_id", res.EntityID), zap.Int("total", res.TotalScore))
		return writeJSON(cmd.OutOrStdout(), res)
	}
	ctx := cmd.Context()
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

	out, err := proc.Process(ctx, in, variant)
	if err != nil {
		return eris.Wrap(err, "score and persist")
	}
	log.Info("score saved",
		zap.String("entity_id", in.EntityID),
		zap.String("lead_score_id", out.Score.ID),
		zap.Bool("crm_sync_queued", out.Enqueued),
	)
	return writeJSON(cmd.OutOrStdout(), out.Result)
}
