package main

import (
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vchan-in/vuln-correlator/internal/types"
)

var errExportDisabled = errors.New("export sink is not available")

func newCorrelateCmd() *cobra.Command {
	var export bool

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Run one correlation pass and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.processor.RunCorrelation(ctx)
			if err != nil {
				return err
			}

			printRunSummary(os.Stdout, stats)

			if !export {
				return nil
			}
			if a.exporter == nil {
				return errExportDisabled
			}

			result, err := a.exporter.Export(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("exported %d matches to %s\n", result.Matches, result.Location)
			return nil
		},
	}

	cmd.Flags().BoolVar(&export, "export", false, "write a match report after the run")

	return cmd
}

func printRunSummary(w io.Writer, stats *types.RunStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetRowLine(true)

	rows := [][]string{
		{"Run", stats.ID},
		{"Assets", strconv.Itoa(stats.TotalAssets)},
		{"Advisories", strconv.Itoa(stats.TotalAdvisories)},
		{"Matches", strconv.Itoa(stats.TotalMatches)},
		{"Exact", strconv.Itoa(stats.ExactMatches)},
		{"Version range", strconv.Itoa(stats.VersionRangeMatches)},
		{"Wildcard", strconv.Itoa(stats.WildcardMatches)},
		{"Skipped pairs", strconv.Itoa(stats.SkippedPairs)},
		{"Duration (ms)", strconv.FormatInt(stats.DurationMs, 10)},
	}
	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
}
