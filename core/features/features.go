package features

import (
	"sort"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Lookup resolves the categories of an entity.
type Lookup interface {
	EntityCategories(entity string) []string
}

// Row is one match: its rank and a dense count vector aligned with the table schema.
type Row struct {
	Rank   int
	Counts []float64
}

// Table is an ordered, column-aligned feature table. Row i always corresponds to input match i.
type Table struct {
	Schema *Schema
	Rows   []Row
}

// Extract builds the feature table of a batch of matches.
//
// Every occurrence of an entity adds one to that entity's column. The first occurrence of an
// entity within a match also adds one to each of its categories, so a category count is the
// number of distinct entities of that category in the match.
func Extract(matches []schema.MatchRecord, ref Lookup) (*Table, error) {
	type sparse struct {
		rank   int
		counts map[string]float64
	}

	rows := make([]sparse, len(matches))
	seenCategories := make(map[string]struct{})
	seenEntities := make(map[string]struct{})

	for i, m := range matches {
		counts := make(map[string]float64)
		present := make(map[string]struct{}, len(m.Entities))
		for _, occ := range m.Entities {
			counts[occ.Name]++
			seenEntities[occ.Name] = struct{}{}
			if _, again := present[occ.Name]; again {
				continue
			}
			present[occ.Name] = struct{}{}
			for _, category := range ref.EntityCategories(occ.Name) {
				counts[category]++
				seenCategories[category] = struct{}{}
			}
		}
		rows[i] = sparse{rank: m.Rank, counts: counts}
	}

	fs, err := NewSchema(sortedKeys(seenCategories), sortedKeys(seenEntities))
	if err != nil {
		return nil, err
	}

	table := &Table{Schema: fs, Rows: make([]Row, len(rows))}
	for i, r := range rows {
		dense := make([]float64, fs.Width())
		for name, v := range r.counts {
			pos, _ := fs.Index(name)
			dense[pos] = v
		}
		table.Rows[i] = Row{Rank: r.rank, Counts: dense}
	}
	return table, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// CategoryMatrix returns a copy of the category sub-table, one row per match.
func (t *Table) CategoryMatrix() [][]float64 {
	width := len(t.Schema.Categories)
	out := make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = append(make([]float64, 0, width), r.Counts[:width]...)
	}
	return out
}

// Column returns a copy of one count column.
func (t *Table) Column(name string) ([]float64, bool) {
	pos, ok := t.Schema.Index(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Counts[pos]
	}
	return out, true
}

// Value returns the count of a named column in one row; unknown columns read as 0.
func (t *Table) Value(row int, name string) float64 {
	pos, ok := t.Schema.Index(name)
	if !ok {
		return 0
	}
	return t.Rows[row].Counts[pos]
}

// Ranks returns the rank column.
func (t *Table) Ranks() []int {
	out := make([]int, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Rank
	}
	return out
}

// NonZeroEntities returns the entity counts of one row, omitting zeros.
func (t *Table) NonZeroEntities(row int) map[string]float64 {
	out := make(map[string]float64)
	offset := len(t.Schema.Categories)
	for i, name := range t.Schema.Entities {
		if v := t.Rows[row].Counts[offset+i]; v != 0 {
			out[name] = v
		}
	}
	return out
}

// Subset returns a new table holding the given rows, in the given order.
func (t *Table) Subset(rows []int) (*Table, error) {
	out := &Table{Schema: t.Schema, Rows: make([]Row, len(rows))}
	for i, r := range rows {
		if r < 0 || r >= len(t.Rows) {
			return nil, contract.AlignmentError("row %d out of range for a table of %d rows", r, len(t.Rows))
		}
		src := t.Rows[r]
		out.Rows[i] = Row{Rank: src.Rank, Counts: append([]float64(nil), src.Counts...)}
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
