package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/parquet"
	"github.com/pkmeta/metaspot/schema"
)

// WriteSweepResults outputs the sweep combinations, dispatching based on the output format configured.
func WriteSweepResults(results []schema.SweepResult, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, results)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVSweep(w, results, intFmt)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.XLSXOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeXLSXSweep(w, results)
		}, "Wrote workbook"); err != nil {
			return fmt.Errorf("error writing XLSX output: %w", err)
		}
	case schema.ParquetOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return parquet.WriteSweep(w, results)
		}, "Wrote Parquet"); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSweepTable(w, results, fmtFloat, intFmt, duration)
		}, "Wrote table")
	}
	return nil
}

// writeSweepTable generates and writes the human-readable table.
func writeSweepTable(w io.Writer, results []schema.SweepResult, fmtFloat func(float64) string, intFmt string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Perplexity", "Epsilon", "Min Samples", "Clusters", "Reported", "Noise", "Noise %"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, r := range results {
		data = append(data, []string{
			fmt.Sprintf("%g", r.Perplexity),
			fmt.Sprintf("%g", r.Epsilon),
			fmt.Sprintf(intFmt, r.MinSamples),
			fmt.Sprintf(intFmt, r.Clusters),
			fmt.Sprintf(intFmt, r.Reported),
			fmt.Sprintf(intFmt, r.NoisePoints),
			fmtFloat(r.NoiseRatio),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Swept %d combinations in %v\n", len(results), duration); err != nil {
		return err
	}
	return nil
}

// writeCSVSweep writes one row per combination, noise ratio as a percentage.
func writeCSVSweep(w io.Writer, results []schema.SweepResult, intFmt string) error {
	header := []string{"perplexity", "epsilon", "min_samples", "clusters", "reported", "noise_points", "noise_ratio"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range results {
			rec := []string{
				fmt.Sprintf("%g", r.Perplexity),
				fmt.Sprintf("%g", r.Epsilon),
				fmt.Sprintf(intFmt, r.MinSamples),
				fmt.Sprintf(intFmt, r.Clusters),
				fmt.Sprintf(intFmt, r.Reported),
				fmt.Sprintf(intFmt, r.NoisePoints),
				fmt.Sprintf("%g", r.NoiseRatio),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
