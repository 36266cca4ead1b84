package outwriter

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/parquet"
	"github.com/pkmeta/metaspot/schema"
)

// WriteReportResults outputs a meta report, dispatching based on the output format configured.
func WriteReportResults(report *schema.MetaReport, cfg *contract.Config, duration time.Duration) error {
	// Create formatters using helper
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	// Dispatcher: Handle different output formats
	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSONReport(w, report)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVReport(w, report, fmtFloat, intFmt)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.XLSXOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeXLSXReport(w, report)
		}, "Wrote workbook"); err != nil {
			return fmt.Errorf("error writing XLSX output: %w", err)
		}
	case schema.ParquetOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return parquet.WriteReport(w, report.Entries)
		}, "Wrote Parquet"); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
	default:
		// Default to human-readable table
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportTable(w, report, cfg, fmtFloat, intFmt, duration)
		}, "Wrote table")
	}
	return nil
}

// writeReportTable generates and writes the human-readable table.
func writeReportTable(w io.Writer, report *schema.MetaReport, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)

	// 1. Define Headers
	table.Header([]string{"Rank", "Cluster", "Archetype", "Count", "Ratio %", "Winrate %", "Mean Rank", "Tier"})

	// 2. Configure Alignment
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	// 3. Populate Rows
	label := contract.GetPlainLabel
	if cfg.UseColors {
		label = contract.GetColorLabel
	}
	nameWidth := getMaxNameWidth(cfg)
	var data [][]string
	for i, e := range rankEntries(report.Entries) {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(e.ClusterID),
			contract.TruncateName(formatSignature(e.Categories), nameWidth),
			fmt.Sprintf(intFmt, e.Count),
			fmtFloat(e.Ratio),
			fmtFloat(e.Winrate),
			fmtFloat(e.MeanRank),
			label(e.Ratio),
		})
	}

	// 4. Render the table
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Showing %d archetypes from %d matches (clusters: %d, skipped: %d, noise: %d)\n",
		len(report.Entries), report.TotalMatches, report.Clusters, len(report.Skipped), report.NoisePoints); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Report %s (%s) completed in %v. Cache backend: %s\n",
		report.Name, report.ReportID, duration, cfg.CacheBackend); err != nil {
		return err
	}
	return nil
}

// writeCSVReport writes one row per archetype.
func writeCSVReport(w io.Writer, report *schema.MetaReport, fmtFloat func(float64) string, intFmt string) error {
	header := []string{
		"rank",
		"cluster_id",
		"count",
		"ratio",
		"winrate",
		"mean_rank",
		"label",
		"types",
		"pokemons",
		"synergies",
		"report_id",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for i, e := range rankEntries(report.Entries) {
			rec := []string{
				strconv.Itoa(i + 1),
				strconv.Itoa(e.ClusterID),
				fmt.Sprintf(intFmt, e.Count),
				fmtFloat(e.Ratio),
				fmtFloat(e.Winrate),
				fmtFloat(e.MeanRank),
				contract.GetPlainLabel(e.Ratio),
				formatCounts(e.Categories, fmtFloat, "|"),
				formatCounts(e.Entities, fmtFloat, "|"),
				formatSynergies(e.Synergies),
				e.ReportID,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeJSONReport writes the report with a rank and tier label on every entry.
func writeJSONReport(w io.Writer, report *schema.MetaReport) error {
	type jsonEntry struct {
		Rank  int    `json:"rank"`
		Label string `json:"label"`
		schema.MetaReportEntry
	}
	type jsonReport struct {
		schema.MetaReport
		Entries []jsonEntry `json:"entries"`
	}

	ranked := rankEntries(report.Entries)
	output := jsonReport{MetaReport: *report, Entries: make([]jsonEntry, len(ranked))}
	for i, e := range ranked {
		output.Entries[i] = jsonEntry{Rank: i + 1, Label: contract.GetPlainLabel(e.Ratio), MetaReportEntry: e}
	}
	return writeJSON(w, output)
}

// rankEntries orders archetypes by share of matches, largest first. Ties keep cluster order.
func rankEntries(entries []schema.MetaReportEntry) []schema.MetaReportEntry {
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, func(a, b schema.MetaReportEntry) int {
		return cmp.Compare(b.Ratio, a.Ratio)
	})
	return ranked
}
