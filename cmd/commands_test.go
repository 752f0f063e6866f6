package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/config"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/leadflow"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

// useTestConfig points the commands at a temp SQLite database and an
// in-memory Redis.
func useTestConfig(t *testing.T) {
	t.Helper()
	mr := miniredis.RunT(t)
	prev := cfg
	cfg = &config.Config{
		Store:      config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "leadscore.db")},
		Queue:      config.QueueConfig{RedisURL: "redis://" + mr.Addr() + "/0", Name: "crm", MaxRetry: 3},
		CRM:        config.CRMConfig{SyncThreshold: 70, LeadSource: "Lead Scoring Engine"},
		Retry:      config.RetryConfig{MaxAttempts: 1},
		Batch:      config.BatchConfig{Limit: 10, Concurrency: 2, StaleAfterDays: 7},
		Experiment: config.ExperimentConfig{ConfidenceLevel: 0.95, Strategy: "threshold", WindowDays: 30},
		Scoring:    scorer.DefaultConfig(),
	}
	t.Cleanup(func() { cfg = prev })
}

// execute runs cmd's RunE with the given flag values and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, flags map[string]string) (string, error) {
	t.Helper()
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	defer func() {
		for name := range flags {
			f := cmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
		cmd.SetOut(nil)
	}()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, nil)
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exampleInputJSON(updated time.Time) string {
	return fmt.Sprintf(`{
		"entity_id": "comp-1",
		"name": "Riverside Family Clinic",
		"naics_code": "621111",
		"employee_count": 150,
		"website": "https://riverside.example",
		"phone": "555-0100",
		"email_domain": "riverside.example",
		"street_address": "1 Main St",
		"city": "Austin",
		"state": "TX",
		"last_updated_at": %q,
		"contacts": [{"is_decision_maker": true, "is_executive": true, "email_verified": true}]
	}`, updated.UTC().Format(time.RFC3339))
}

func TestScoreCommand_PrintsResult(t *testing.T) {
	useTestConfig(t)
	path := writeFile(t, "input.json", exampleInputJSON(time.Now()))

	out, err := execute(t, scoreCmd, map[string]string{"input": path})
	require.NoError(t, err)

	var res scorer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "comp-1", res.EntityID)
	assert.Equal(t, 75, res.TotalScore)
	assert.Equal(t, scorer.GradeB, res.Grade)
	assert.Equal(t, scorer.ControlVariant, res.Variant)
}

func TestScoreCommand_VariantOverride(t *testing.T) {
	useTestConfig(t)
	path := writeFile(t, "input.json", exampleInputJSON(time.Now()))

	out, err := execute(t, scoreCmd, map[string]string{"input": path, "variant": "variant_a"})
	require.NoError(t, err)

	var res scorer.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "variant_a", res.Variant)

	_, err = execute(t, scoreCmd, map[string]string{"input": path, "variant": "nope"})
	assert.Error(t, err)
}

func TestScoreCommand_Save(t *testing.T) {
	useTestConfig(t)
	path := writeFile(t, "input.json", exampleInputJSON(time.Now()))

	_, err := execute(t, scoreCmd, map[string]string{"input": path, "save": "true"})
	require.NoError(t, err)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	latest, err := st.LatestScore(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, 75, latest.TotalScore)
}

func TestScoreCommand_SaveWithVariant(t *testing.T) {
	useTestConfig(t)
	path := writeFile(t, "input.json", exampleInputJSON(time.Now()))

	_, err := execute(t, scoreCmd, map[string]string{"input": path, "save": "true", "variant": "variant_a"})
	require.NoError(t, err)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	latest, err := st.LatestScore(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, "variant_a", latest.Variant)
}

func TestScoreCommand_MissingFile(t *testing.T) {
	useTestConfig(t)
	_, err := execute(t, scoreCmd, map[string]string{"input": filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestImportThenBatch(t *testing.T) {
	useTestConfig(t)
	updated := time.Now().UTC().Format(time.RFC3339)
	records := fmt.Sprintf(`[
		{"company": {"id": "comp-1", "name": "Riverside Family Clinic", "naics_code": "621111",
			"employee_count_exact": 150, "website": "https://riverside.example", "phone": "555-0100",
			"email_domain": "riverside.example", "street_address": "1 Main St", "city": "Austin",
			"state": "TX", "updated_at": %q},
		 "contacts": [{"full_name": "Jane Doe", "is_decision_maker": true, "is_executive": true, "email_verified": true}]},
		{"company": {"id": "comp-2", "name": "Corner Shop", "employee_range": "1-4"}}
	]`, updated)

	_, err := execute(t, importCmd, map[string]string{"input": writeFile(t, "companies.json", records)})
	require.NoError(t, err)

	out, err := execute(t, batchCmd, nil)
	require.NoError(t, err)

	var summary leadflow.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Persisted)
	assert.Equal(t, 1, summary.Enqueued)
	assert.Zero(t, summary.Failed)

	// Both companies are fresh now.
	out, err = execute(t, batchCmd, nil)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Zero(t, summary.Selected)
}

func TestAssignCommand(t *testing.T) {
	useTestConfig(t)
	out, err := execute(t, assignCmd, map[string]string{"entity": "comp-7", "test": "weights_v2"})
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "comp-7", body["entity_id"])
	assert.Equal(t, "weights_v2", body["test_name"])
	assert.Equal(t, scorer.ControlVariant, body["variant"])
}

func seedHistory(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	at := time.Now().UTC().Add(-time.Hour)
	for i := range 40 {
		for _, v := range []struct {
			variant string
			highQ   int
		}{{"control", 10}, {"variant_a", 30}} {
			total := 50
			if i < v.highQ {
				total = 85
			}
			require.NoError(t, st.SaveScore(ctx, model.LeadScore{
				ID:                uuid.NewString(),
				CompanyID:         fmt.Sprintf("%s-%d", v.variant, i),
				TotalScore:        total,
				Grade:             string(scorer.GradeFor(total)),
				Variant:           v.variant,
				IndustryRiskLevel: "low",
				SizeCategory:      "medium",
				CreatedAt:         at,
			}))
		}
	}
}

func TestExperimentAnalyze_JSON(t *testing.T) {
	useTestConfig(t)
	seedHistory(t)

	out, err := execute(t, experimentAnalyzeCmd, map[string]string{
		"test": "weights_v2", "since": "24h", "strategy": "ztest", "format": "json",
	})
	require.NoError(t, err)

	var report struct {
		TestName       string `json:"test_name"`
		Strategy       string `json:"strategy"`
		Significant    bool   `json:"is_significant"`
		WinningVariant string `json:"winning_variant"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "weights_v2", report.TestName)
	assert.Equal(t, "ztest", report.Strategy)
	assert.True(t, report.Significant)
	assert.Equal(t, "variant_a", report.WinningVariant)
}

func TestExperimentAnalyze_TextAndYAML(t *testing.T) {
	useTestConfig(t)
	seedHistory(t)

	out, err := execute(t, experimentAnalyzeCmd, map[string]string{"test": "weights_v2"})
	require.NoError(t, err)
	assert.Contains(t, out, "VARIANT")
	assert.Contains(t, out, "variant_a vs control")
	assert.Contains(t, out, "Recommendation:")

	out, err = execute(t, experimentAnalyzeCmd, map[string]string{"test": "weights_v2", "format": "yaml"})
	require.NoError(t, err)
	assert.Contains(t, out, "test_name: weights_v2")
	assert.Contains(t, out, "variant_stats:")
}

func TestExperimentAnalyze_BadFlags(t *testing.T) {
	useTestConfig(t)
	_, err := execute(t, experimentAnalyzeCmd, map[string]string{"format": "csv"})
	assert.Error(t, err)

	_, err = execute(t, experimentAnalyzeCmd, map[string]string{"strategy": "bayes"})
	assert.Error(t, err)
}

func TestExperimentAnalyticsAndPerformance(t *testing.T) {
	useTestConfig(t)
	seedHistory(t)

	out, err := execute(t, experimentAnalyticsCmd, map[string]string{"format": "json"})
	require.NoError(t, err)
	var analytics struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &analytics))
	assert.Equal(t, 80, analytics.Total)

	out, err = execute(t, experimentPerformanceCmd, map[string]string{"test": "weights_v2"})
	require.NoError(t, err)
	assert.Contains(t, out, "weights_v2")
	assert.Contains(t, out, "QUALIFIED")
}

const testDefinition = `name: weights_v2
description: Heavier contact weighting
control: control
variants:
  control:
    version: "1.0"
    weights: {industry_weight: 0.4, size_weight: 0.3, contact_weight: 0.2, data_quality_weight: 0.1}
  variant_a:
    version: "1.1"
    weights: {industry_weight: 0.35, size_weight: 0.25, contact_weight: 0.3, data_quality_weight: 0.1}
traffic:
  - {variant: control, weight: 0.5}
  - {variant: variant_a, weight: 0.5}
`

func TestExperimentCreate(t *testing.T) {
	useTestConfig(t)
	path := writeFile(t, "test.yaml", testDefinition)

	out, err := execute(t, experimentCreateCmd, map[string]string{"file": path, "activate": "true"})
	require.NoError(t, err)
	assert.Contains(t, out, "ab_test:")
	assert.Contains(t, out, "test_name: weights_v2")
	assert.Contains(t, out, "enabled: true")

	bad := writeFile(t, "bad.yaml", testDefinition+"  - {variant: variant_a, weight: 0.5}\n")
	_, err = execute(t, experimentCreateCmd, map[string]string{"file": bad})
	assert.Error(t, err)
}

func TestBatchCommand_RejectsInvalidConfig(t *testing.T) {
	useTestConfig(t)
	cfg.Batch.StaleAfterDays = 0

	_, err := execute(t, batchCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.stale_after_days")
}
