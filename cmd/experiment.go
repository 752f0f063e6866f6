package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/experiment"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/store"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Create and analyze scoring A/B tests",
	Long:  "Commands for defining scoring experiments and comparing variant performance over persisted score history.",
}

var experimentAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare each variant against the control",
	Long: `Compare the high-quality lead rate of every variant against the control.

Examples:
  leadscore experiment analyze --test weights_v2 --since 720h
  leadscore experiment analyze --test weights_v2 --since 168h --strategy ztest --format yaml`,
	RunE: runExperimentAnalyze,
}

var experimentAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Break down scores by grade, industry risk and company size",
	RunE:  runExperimentAnalytics,
}

var experimentPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Per-variant funnel, segment and daily trend report",
	RunE:  runExperimentPerformance,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Validate a test definition and print its scoring config fragment",
	Long: `Validate a YAML test definition (name, control, variants, traffic,
start_date, end_date, success_metric) and print the scoring.ab_test fragment
to merge into config.yaml. The test is enabled only with --activate.`,
	RunE: runExperimentCreate,
}

func init() {
	for _, c := range []*cobra.Command{experimentAnalyzeCmd, experimentAnalyticsCmd, experimentPerformanceCmd} {
		c.Flags().Duration("since", 0, "analysis window ending now (default experiment.window_days)")
		c.Flags().String("format", "text", "output format: text, json or yaml")
	}
	for _, c := range []*cobra.Command{experimentAnalyzeCmd, experimentPerformanceCmd} {
		c.Flags().String("test", "", "test name (default scoring.ab_test.test_name)")
	}
	experimentAnalyzeCmd.Flags().Float64("confidence", 0, "confidence level (default experiment.confidence_level)")
	experimentAnalyzeCmd.Flags().String("strategy", "", "significance strategy: threshold or ztest (default experiment.strategy)")

	experimentCreateCmd.Flags().String("file", "", "path to a YAML test definition (required)")
	experimentCreateCmd.Flags().Bool("activate", false, "mark the test running so the fragment enables it")
	_ = experimentCreateCmd.MarkFlagRequired("file")

	experimentCmd.AddCommand(experimentAnalyzeCmd, experimentAnalyticsCmd, experimentPerformanceCmd, experimentCreateCmd)
	rootCmd.AddCommand(experimentCmd)
}

// analysisWindow resolves --since against the configured default.
func analysisWindow(cmd *cobra.Command, now time.Time) experiment.Window {
	since, _ := cmd.Flags().GetDuration("since")
	if since <= 0 {
		since = time.Duration(cfg.Experiment.WindowDays) * 24 * time.Hour
	}
	return experiment.Window{Since: now.Add(-since), Until: now}
}

func testName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("test")
	if name == "" {
		name = cfg.Scoring.ABTest.TestName
	}
	return name
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json", "yaml":
		return format, nil
	}
	return "", eris.Errorf("experiment: --format must be text, json or yaml (got %q)", format)
}

func loadHistory(ctx context.Context, w experiment.Window) ([]model.LeadScore, error) {
	if err := cfg.Validate("analyze"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	history, err := st.ListScores(ctx, store.ScoreFilter{Since: w.Since})
	if err != nil {
		return nil, eris.Wrap(err, "load score history")
	}
	return history, nil
}

func runExperimentAnalyze(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	strategyName, _ := cmd.Flags().GetString("strategy")
	if strategyName == "" {
		strategyName = cfg.Experiment.Strategy
	}
	strategy, ok := experiment.StrategyByName(strategyName)
	if !ok {
		return eris.Errorf("experiment: unknown strategy %q", strategyName)
	}
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	if confidence == 0 {
		confidence = cfg.Experiment.ConfidenceLevel
	}

	window := analysisWindow(cmd, time.Now().UTC())
	history, err := loadHistory(cmd.Context(), window)
	if err != nil {
		return err
	}

	report, err := experiment.Analyze(history, experiment.Options{
		TestName:        testName(cmd),
		Window:          window,
		ConfidenceLevel: confidence,
		Control:         cfg.Scoring.ABTest.Control,
		Strategy:        strategy,
	})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), format, report, func(w io.Writer) { printReport(w, report) })
}

func runExperimentAnalytics(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	window := analysisWindow(cmd, time.Now().UTC())
	history, err := loadHistory(cmd.Context(), window)
	if err != nil {
		return err
	}

	a := experiment.ScoringAnalytics(history)
	return render(cmd.OutOrStdout(), format, a, func(w io.Writer) { printAnalytics(w, a) })
}

func runExperimentPerformance(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	window := analysisWindow(cmd, time.Now().UTC())
	history, err := loadHistory(cmd.Context(), window)
	if err != nil {
		return err
	}

	p := experiment.PerformanceFor(history, testName(cmd), window)
	return render(cmd.OutOrStdout(), format, p, func(w io.Writer) { printFunnel(w, p) })
}

func runExperimentCreate(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	activate, _ := cmd.Flags().GetBool("activate")

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	var def experiment.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}

	t, err := experiment.NewTest(def, time.Now())
	if err != nil {
		return err
	}
	if activate {
		if err := t.Transition(experiment.StatusRunning); err != nil {
			return err
		}
	}

	out, err := t.ConfigYAML()
	if err != nil {
		return err
	}
	zap.L().Info("experiment defined",
		zap.String("command", "experiment create"),
		zap.String("test", t.Name),
		zap.String("status", string(t.Status)),
	)
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func render(out io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		return writeJSON(out, v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		text(out)
		return nil
	}
}

func printReport(out io.Writer, r *experiment.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Test:\t%s\n", r.TestName)
	_, _ = fmt.Fprintf(w, "Strategy:\t%s (confidence %.2f)\n", r.Strategy, r.ConfidenceLevel)
	_, _ = fmt.Fprintf(w, "Window:\t%s .. %s\n", r.Window.Since.Format(time.DateOnly), r.Window.Until.Format(time.DateOnly))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "VARIANT\tN\tAVG\tMEDIAN\tSTDDEV\tHIGH_Q\tHIGH_Q_RATE\tA/B/C/D")
	_, _ = fmt.Fprintln(w, "-------\t-\t---\t------\t------\t------\t-----------\t-------")
	for _, s := range r.Variants {
		d := s.Distribution
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\t%d\t%.1f%%\t%d/%d/%d/%d\n",
			s.Variant, s.SampleSize, s.MeanScore, s.MedianScore, s.StdDevScore,
			s.HighQualityCount, s.HighQualityRate*100, d.A, d.B, d.C, d.D)
	}
	_, _ = fmt.Fprintln(w)
	for _, c := range r.Comparisons {
		_, _ = fmt.Fprintf(w, "%s vs %s:\t%s\n", c.Challenger, c.Control, comparisonSummary(c))
	}
	_, _ = fmt.Fprintf(w, "Recommendation:\t%s\n", r.Recommendation)
	_ = w.Flush()
}

func comparisonSummary(c experiment.Comparison) string {
	if !c.Sufficient {
		return "insufficient data"
	}
	var parts []string
	if c.Significant {
		parts = append(parts, "significant")
	} else {
		parts = append(parts, "not significant")
	}
	if c.PValue != nil {
		parts = append(parts, fmt.Sprintf("p=%.4f", *c.PValue))
	}
	if c.Lift != nil {
		parts = append(parts, fmt.Sprintf("lift=%+.1f%%", *c.Lift))
	}
	if c.Winner != "" {
		parts = append(parts, "winner="+c.Winner)
	}
	return strings.Join(parts, ", ")
}

func printSegments(w io.Writer, title string, segs []experiment.SegmentStats) {
	_, _ = fmt.Fprintf(w, "%s\tCOUNT\tAVG\tHIGH_Q_RATE\n", title)
	for _, s := range segs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f%%\n", s.Key, s.Count, s.AverageScore, s.HighQualityRate*100)
	}
	_, _ = fmt.Fprintln(w)
}

func printAnalytics(out io.Writer, a *experiment.Analytics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total scores:\t%d\n\n", a.Total)
	printSegments(w, "GRADE", a.ByGrade)
	printSegments(w, "RISK_LEVEL", a.ByRiskLevel)
	printSegments(w, "SIZE", a.BySize)
	_ = w.Flush()
}

func printFunnel(out io.Writer, p *experiment.Performance) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Test:\t%s (%d days)\n\n", p.TestName, p.DurationDays)
	_, _ = fmt.Fprintln(w, "VARIANT\tTOTAL\tQUALIFIED\tHIGH_Q\tQUAL_RATE\tHIGH_Q_RATE\tAVG")
	for _, f := range p.Funnel {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t%.1f%%\t%.1f\n",
			f.Variant, f.Total, f.Qualified, f.HighQuality,
			f.QualificationRate*100, f.HighQualityRate*100, f.AverageScore)
	}
	_ = w.Flush()
}
