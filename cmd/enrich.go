package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/enrich"
	"github.com/mg-platform/enrich-cli/internal/model"
)

var enrichSampleSize int

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a sample of the dataset",
	Long:  "Selects the first eligible records of the dataset, enriches them, and writes the annotated spreadsheet and JSON report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyEnrichFlags(cmd, cfg)

		env, err := initEnrich(ctx, cfg, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		sess := enrich.NewSession(enrichSampleSize)
		go func() {
			for p := range sess.Events {
				zap.L().Debug("record decided",
					zap.Int("position", p.Position),
					zap.Int("done", p.Done),
					zap.Int("total", p.Total),
					zap.String("decision", string(p.Decision)),
				)
			}
		}()

		res, err := env.enrichSample(ctx, cfg.Enrich, enrichSampleSize, sess)
		if res != nil {
			formatBatchSummary(os.Stdout, res)
		}
		return err
	},
}

// applyEnrichFlags overlays the flags the user set on c.
func applyEnrichFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		c.Dataset.Path, _ = flags.GetString("dataset")
	}
	if flags.Changed("sheet") {
		c.Dataset.Sheet, _ = flags.GetString("sheet")
	}
	if flags.Changed("output-dir") {
		c.Output.Dir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("threshold") {
		c.Enrich.QualityThreshold, _ = flags.GetInt("threshold")
	}
	if flags.Changed("threshold-fallback") {
		c.Enrich.QualityThresholdFallback, _ = flags.GetInt("threshold-fallback")
	}
	if flags.Changed("mode") {
		c.Enrich.SearchMode, _ = flags.GetString("mode")
	}
	if flags.Changed("no-fallback") {
		off, _ := flags.GetBool("no-fallback")
		c.Enrich.FallbackEnabled = !off
	}
	if flags.Changed("seed") {
		c.Enrich.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("concurrency") {
		c.Enrich.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("delay") {
		c.Enrich.RateLimitDelay, _ = flags.GetDuration("delay")
	}
}

// formatBatchSummary writes the headline figures of a batch to out.
func formatBatchSummary(out io.Writer, res *model.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", res.Status)
	_, _ = fmt.Fprintf(w, "Processed:\t%d/%d\n", res.Processed, res.SampleSize)
	_, _ = fmt.Fprintf(w, "Enriched:\t%d\n", res.Enriched)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", res.Failed)
	_, _ = fmt.Fprintf(w, "Success rate:\t%.1f%%\n", res.Analytics.SuccessRate)
	if res.Enriched > 0 {
		_, _ = fmt.Fprintf(w, "Avg quality:\t%.1f\n", res.Analytics.AverageQualityScore)
	}
	if res.PartialSample {
		_, _ = fmt.Fprintln(w, "Partial sample:\tyes")
	}

	kinds := make([]string, 0, len(res.Analytics.ByDecision))
	for k := range res.Analytics.ByDecision {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", k, res.Analytics.ByDecision[model.DecisionKind(k)])
	}

	if res.OutputFile != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", res.OutputFile)
	}
	_ = w.Flush()
}

func init() {
	f := enrichCmd.Flags()
	f.String("dataset", "", "path to the .xlsx or .csv extract (default from config)")
	f.String("sheet", "", "worksheet name for .xlsx input")
	f.String("output-dir", "", "directory for the spreadsheet and report")
	f.IntVar(&enrichSampleSize, "sample-size", 10, "number of eligible records to enrich")
	f.Int("threshold", 85, "quality threshold for records with a declared name")
	f.Int("threshold-fallback", 60, "quality threshold for records searched by locality")
	f.String("mode", config.SearchModeReal, "search mode: real or simulation")
	f.Bool("no-fallback", false, "disable synthetic fallback data")
	f.Int64("seed", 0, "seed for synthetic data (0 = random)")
	f.Int("concurrency", 1, "records processed in parallel")
	f.Duration("delay", 0, "minimum delay between outbound requests")
	rootCmd.AddCommand(enrichCmd)
}
