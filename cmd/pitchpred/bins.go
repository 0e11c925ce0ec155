package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/go-pitchpred/internal/pitch"
	"github.com/spf13/cobra"
)

type binRow struct {
	Index   int     `json:"index"`
	LowHz   float64 `json:"low_hz"`
	LogEdge float64 `json:"log_edge"`
	// CenterHz is half a log step above the lower edge.
	CenterHz float64 `json:"center_hz"`
}

func newBinsCmd() *cobra.Command {
	var (
		format string
		lookup []float64
	)

	cmd := &cobra.Command{
		Use:   "bins",
		Short: "Print the pitch bin table or look up the bins of f0 values in Hz",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			table, err := binTable(cfg.Pitch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(lookup) > 0 {
				return printLookup(out, table, lookup)
			}

			rows, err := binRows(table)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "BIN\tLOW_HZ\tCENTER_HZ\tLOG_EDGE")

			for _, r := range rows {
				_, _ = fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.6f\n", r.Index, r.LowHz, r.CenterHz, r.LogEdge)
			}

			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().Float64SliceVar(&lookup, "hz", nil, "Print the training-path bin of each f0 value instead of the table")

	return cmd
}

func binRows(table *pitch.BinTable) ([]binRow, error) {
	edges := table.Edges()
	hz := table.EdgesHz()
	rows := make([]binRow, len(edges))

	for i := range edges {
		center, err := table.Center(i)
		if err != nil {
			return nil, err
		}

		rows[i] = binRow{Index: i, LowHz: hz[i], LogEdge: edges[i], CenterHz: center}
	}

	return rows, nil
}

func printLookup(w io.Writer, table *pitch.BinTable, values []float64) error {
	for _, v := range values {
		idx, err := table.IndexHz(v)
		if err != nil {
			return fmt.Errorf("f0 %v: %w", v, err)
		}

		_, _ = fmt.Fprintf(w, "%g\t%d\n", v, idx)
	}

	return nil
}
