package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mg-platform/enrich-cli/internal/dataset"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Analyze the dataset before enriching it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("dataset"); path != "" {
			cfg.Dataset.Path = path
		}
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}

		ds, err := dataset.Load(cfg.Dataset.Path, dataset.Options{Sheet: cfg.Dataset.Sheet, Aliases: cfg.Dataset.Aliases})
		if err != nil {
			return err
		}

		summary := dataset.AnalyzeContext(ds)
		stats := dataset.ColumnStats(ds)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Context dataset.Context      `json:"context"`
				Columns []dataset.ColumnStat `json:"columns"`
			}{summary, stats})
		}

		formatContext(os.Stdout, summary)
		fmt.Fprintln(os.Stdout)
		formatColumnStats(os.Stdout, stats)
		return nil
	},
}

// formatContext writes the dataset overview to out.
func formatContext(out io.Writer, c dataset.Context) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Companies:\t%d\n", c.TotalCompanies)
	_, _ = fmt.Fprintf(w, "Columns:\t%d\n", c.ColumnsCount)
	_, _ = fmt.Fprintf(w, "Eligible:\t%d\n", c.Eligible)
	_, _ = fmt.Fprintf(w, "With declared name:\t%d\n", c.WithDeclaredName)
	_, _ = fmt.Fprintf(w, "Name withheld:\t%d\n", c.Withheld)
	_, _ = fmt.Fprintf(w, "Valid SIRET:\t%d (checksum ok: %d)\n", c.ValidSIRET, c.ChecksumSIRET)
	if c.EmailColumn != "" {
		_, _ = fmt.Fprintf(w, "Email column:\t%s (%d valid)\n", c.EmailColumn, c.ValidEmails)
	}
	if c.HasWebsiteColumn {
		_, _ = fmt.Fprintf(w, "Website column:\t%s (%.1f%% filled)\n", c.WebsiteColumn, c.WebsiteCompletion*100)
	} else {
		_, _ = fmt.Fprintln(w, "Website column:\tnone")
	}

	fields := make([]string, 0, len(c.ColumnMapping))
	for f := range c.ColumnMapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		_, _ = fmt.Fprintf(w, "  %s:\t%s\n", f, c.ColumnMapping[f])
	}
	_ = w.Flush()
}

// formatColumnStats writes one line per column to out.
func formatColumnStats(out io.Writer, stats []dataset.ColumnStat) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tFILLED\tMISSING\tUNIQUE\tSAMPLES")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t------\t-------")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%.1f%%\t%d\t%d\t%s\n",
			s.Column, s.CompletionRate, s.Missing, s.Unique, strings.Join(s.Samples, " | "))
	}
	_ = w.Flush()
}

func init() {
	inspectCmd.Flags().String("dataset", "", "path to the .xlsx or .csv extract (default from config)")
	inspectCmd.Flags().Bool("json", false, "print the analysis as JSON")
	rootCmd.AddCommand(inspectCmd)
}
