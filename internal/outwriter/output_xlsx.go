package outwriter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Sheet names of the report workbook.
const (
	archetypeSheet = "Archetypes"
	teamSheet      = "Teams"
	sweepSheet     = "Sweep"
)

// sheet is one worksheet: a bold header row followed by data rows.
type sheet struct {
	name   string
	header []string
	rows   [][]any
}

// writeXLSXReport writes the archetypes and the teams behind them as two worksheets.
func writeXLSXReport(w io.Writer, report *schema.MetaReport) error {
	archetypes := sheet{
		name:   archetypeSheet,
		header: []string{"Rank", "Cluster", "Count", "Ratio %", "Winrate %", "Mean Rank", "Tier", "Types", "Pokemons", "Synergies"},
	}
	teams := sheet{
		name:   teamSheet,
		header: []string{"Cluster", "Rank", "X", "Y", "Pokemons"},
	}

	plain := func(v float64) string { return fmt.Sprintf("%g", v) }
	for i, e := range rankEntries(report.Entries) {
		archetypes.rows = append(archetypes.rows, []any{
			i + 1, e.ClusterID, e.Count, e.Ratio, e.Winrate, e.MeanRank,
			contract.GetPlainLabel(e.Ratio),
			formatCounts(e.Categories, plain, " "),
			formatCounts(e.Entities, plain, " "),
			formatSynergies(e.Synergies),
		})
		for _, t := range e.Teams {
			teams.rows = append(teams.rows, []any{t.ClusterID, t.Rank, t.X, t.Y, formatCounts(t.Entities, plain, " ")})
		}
	}
	return writeWorkbook(w, []sheet{archetypes, teams})
}

// writeXLSXSweep writes one row per sweep combination.
func writeXLSXSweep(w io.Writer, results []schema.SweepResult) error {
	s := sheet{
		name:   sweepSheet,
		header: []string{"Perplexity", "Epsilon", "Min Samples", "Clusters", "Reported", "Noise", "Noise %"},
	}
	for _, r := range results {
		s.rows = append(s.rows, []any{r.Perplexity, r.Epsilon, r.MinSamples, r.Clusters, r.Reported, r.NoisePoints, r.NoiseRatio})
	}
	return writeWorkbook(w, []sheet{s})
}

func writeWorkbook(w io.Writer, sheets []sheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			// Reuse the default sheet so the workbook has no empty leading tab
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}

		if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(s.header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
			return err
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return err
			}
		}
		lastCol, err := excelize.ColumnNumberToName(len(s.header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, "A", lastCol, 14); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
