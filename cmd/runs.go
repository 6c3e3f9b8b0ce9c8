package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect enrichment run history",
	Long:  "Commands for listing, viewing, and summarizing enrichment runs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.BatchStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if decisions, _ := cmd.Flags().GetBool("decisions"); decisions {
			logs, err := st.ListDecisions(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "runs show")
			}
			formatDecisions(os.Stdout, logs)
			return nil
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, cancelled, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsShowCmd.Flags().Bool("decisions", false, "print the decision log instead of the full run")

	runsStatsCmd.Flags().Int("limit", 1000, "number of most recent runs to aggregate")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Complete    int
	Cancelled   int
	Partial     int
	Processed   int
	Enriched    int
	Failed      int
	SuccessRate float64
	AvgQuality  float64
	AvgDurSecs  float64
}

// computeRunStats computes aggregate statistics from a list of runs. The
// success rate is taken over all processed records, and the average quality
// is weighted by each run's enriched count.
func computeRunStats(runs []store.RunSummary) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var qualitySum float64

	for _, r := range runs {
		switch r.Status {
		case model.BatchStatusComplete:
			s.Complete++
		case model.BatchStatusCancelled:
			s.Cancelled++
		}
		if r.PartialSample {
			s.Partial++
		}
		s.Processed += r.Processed
		s.Enriched += r.Enriched
		s.Failed += r.Failed
		qualitySum += r.AverageQualityScore * float64(r.Enriched)
		totalDur += r.FinishedAt.Sub(r.StartedAt)
	}

	if s.Processed > 0 {
		s.SuccessRate = float64(s.Enriched) / float64(s.Processed) * 100
	}
	if s.Enriched > 0 {
		s.AvgQuality = qualitySum / float64(s.Enriched)
	}
	if s.Total > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Total)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSAMPLE\tENRICHED\tFAILED\tSUCCESS\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t------\t-------\t-------\t--------")

	for _, r := range runs {
		sample := fmt.Sprintf("%d/%d", r.Processed, r.SampleSize)
		if r.PartialSample {
			sample += "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.1f%%\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			sample,
			r.Enriched,
			r.Failed,
			r.SuccessRate,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
		)
	}
	_ = w.Flush()
}

// formatDecisions writes one line per decision to out.
func formatDecisions(out io.Writer, logs []model.DecisionLog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSIRET\tDECISION\tSOURCE\tSCORE\tTHRESHOLD\tREASON")
	for _, d := range logs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			d.Index, d.Identifier, d.Decision, d.SearchMethod, d.QualityScore, d.Threshold, d.Reason)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.Cancelled)
	_, _ = fmt.Fprintf(w, "Partial samples:\t%d\n", s.Partial)
	_, _ = fmt.Fprintf(w, "Records processed:\t%d\n", s.Processed)
	_, _ = fmt.Fprintf(w, "  Enriched:\t%d\n", s.Enriched)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Success rate:\t%.1f%%\n", s.SuccessRate)
	if s.AvgQuality > 0 {
		_, _ = fmt.Fprintf(w, "Avg quality:\t%.1f\n", s.AvgQuality)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
