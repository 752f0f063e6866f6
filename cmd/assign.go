package main

import (
	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Print the scoring variant assigned to an entity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entity, _ := cmd.Flags().GetString("entity")
		test, _ := cmd.Flags().GetString("test")

		engine, err := initEngine()
		if err != nil {
			return err
		}
		if test == "" {
			test = engine.Config().ABTest.TestName
		}

		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"entity_id": entity,
			"test_name": test,
			"variant":   engine.Resolver().Assign(entity, test),
		})
	},
}

func init() {
	assignCmd.Flags().String("entity", "", "entity (company) id (required)")
	assignCmd.Flags().String("test", "", "test name (default from scoring.ab_test.test_name)")
	_ = assignCmd.MarkFlagRequired("entity")
	rootCmd.AddCommand(assignCmd)
}
