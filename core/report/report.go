// Package report turns clustered matches into meta report entries.
package report

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/pkmeta/metaspot/core/dbscan"
	"github.com/pkmeta/metaspot/core/features"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Default thresholds.
const (
	DefaultMinCategoryMedian = 1.0
	DefaultMinEntityMean     = 0.333
	DefaultDecimals          = 5
)

// SynergyLookup maps a category and its median count to a reached trigger level.
type SynergyLookup interface {
	SynergyLevel(category string, count float64) int
}

// Options tunes how clusters are summarized.
type Options struct {
	ReportID          string
	MinCategoryMedian float64
	MinEntityMean     float64
	Decimals          int
	Synergies         SynergyLookup
}

// DefaultOptions returns the thresholds of a regular meta run.
func DefaultOptions() Options {
	return Options{
		MinCategoryMedian: DefaultMinCategoryMedian,
		MinEntityMean:     DefaultMinEntityMean,
		Decimals:          DefaultDecimals,
	}
}

// Build summarizes every non-noise cluster, ordered by cluster id.
//
// Clusters whose category medians are all at or below MinCategoryMedian have no recognizable
// signature; they are returned as skipped instead of as entries. Ratio and winrate are
// percentages of all matches, so a cluster's winrate is its share of all first places.
func Build(table *features.Table, labels []int, points []schema.Point, opts Options) ([]schema.MetaReportEntry, []schema.SkippedCluster, error) {
	total := table.Len()
	if len(labels) != total {
		return nil, nil, contract.AlignmentError("%d cluster labels for %d feature rows", len(labels), total)
	}
	if len(points) != total {
		return nil, nil, contract.AlignmentError("%d projected points for %d feature rows", len(points), total)
	}

	members := dbscan.Members(labels)
	var entries []schema.MetaReportEntry
	var skipped []schema.SkippedCluster
	for _, id := range dbscan.ClusterIDs(labels) {
		rows := members[id]
		categories := representativeCategories(table, rows, opts.MinCategoryMedian)
		if len(categories) == 0 {
			skipped = append(skipped, schema.SkippedCluster{ClusterID: id, Size: len(rows)})
			continue
		}
		entries = append(entries, buildEntry(table, points, id, rows, categories, total, opts))
	}
	return entries, skipped, nil
}

func buildEntry(table *features.Table, points []schema.Point, id int, rows []int, categories map[string]float64, total int, opts Options) schema.MetaReportEntry {
	ranks := make([]float64, len(rows))
	firsts := 0
	for k, r := range rows {
		rank := table.Rows[r].Rank
		ranks[k] = float64(rank)
		if rank == 1 {
			firsts++
		}
	}

	entry := schema.MetaReportEntry{
		ReportID:   opts.ReportID,
		ClusterID:  id,
		Count:      len(rows),
		Ratio:      Round(100*float64(len(rows))/float64(total), opts.Decimals),
		Winrate:    Round(100*float64(firsts)/float64(total), opts.Decimals),
		MeanRank:   Round(stat.Mean(ranks, nil), opts.Decimals),
		Categories: categories,
		Entities:   representativeEntities(table, rows, opts.MinEntityMean, opts.Decimals),
		Teams:      make([]schema.TeamDetail, len(rows)),
	}

	if opts.Synergies != nil {
		for category, median := range categories {
			if level := opts.Synergies.SynergyLevel(category, median); level > 0 {
				if entry.Synergies == nil {
					entry.Synergies = make(map[string]int)
				}
				entry.Synergies[category] = level
			}
		}
	}

	for k, r := range rows {
		entry.Teams[k] = schema.TeamDetail{
			ClusterID: id,
			Rank:      table.Rows[r].Rank,
			X:         points[r].X,
			Y:         points[r].Y,
			Entities:  table.NonZeroEntities(r),
		}
	}
	return entry
}

func representativeCategories(table *features.Table, rows []int, threshold float64) map[string]float64 {
	out := make(map[string]float64)
	values := make([]float64, len(rows))
	for c, name := range table.Schema.Categories {
		for k, r := range rows {
			values[k] = table.Rows[r].Counts[c]
		}
		if m := Median(values); m > threshold {
			out[name] = m
		}
	}
	return out
}

func representativeEntities(table *features.Table, rows []int, threshold float64, decimals int) map[string]float64 {
	out := make(map[string]float64)
	offset := len(table.Schema.Categories)
	values := make([]float64, len(rows))
	for e, name := range table.Schema.Entities {
		for k, r := range rows {
			values[k] = table.Rows[r].Counts[offset+e]
		}
		if m := stat.Mean(values, nil); m > threshold {
			out[name] = Round(m, decimals)
		}
	}
	return out
}

// Median returns the middle value of values, averaging the two middle values for an even
// count. The input is not modified. The median of no values is NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Round rounds v to the given number of decimals, half away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
