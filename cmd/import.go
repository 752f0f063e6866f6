package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
)

var importInput string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import companies and contacts from JSON into the store",
	Long: `Import a JSON array of {"company": {...}, "contacts": [...]} records.
Existing companies are updated in place and their contacts replaced.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var records []model.CompanyWithContacts
		if err := readJSON(importInput, cmd.InOrStdin(), &records); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var imported int
		for i, rec := range records {
			if _, err := st.UpsertCompany(ctx, rec.Company, rec.Contacts); err != nil {
				return eris.Wrapf(err, "import record %d (%s)", i, rec.Company.Name)
			}
			imported++
		}

		zap.L().Info("import complete",
			zap.String("command", "import"),
			zap.Int("imported", imported),
			zap.String("input", importInput),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importInput, "input", "", "path to JSON file, or - for stdin (required)")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}
