// Package features turns ranked matches into a column-aligned numeric feature table.
package features

import (
	"github.com/pkmeta/metaspot/internal/contract"
)

// SchemaVersion is bumped whenever the column layout rules change, so that cached
// projections built from an older layout are not reused.
const SchemaVersion = 1

// ColumnKind tags a feature column.
type ColumnKind string

// Column kinds.
const (
	RankColumn     ColumnKind = "rank"
	CategoryColumn ColumnKind = "category"
	EntityColumn   ColumnKind = "entity"
)

// Column is one named, typed feature column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Schema is the explicit column layout of a Table: category columns first, then entity columns.
// The rank lives outside the count columns in Row.Rank.
type Schema struct {
	Version    int
	Categories []string
	Entities   []string
	index      map[string]int
}

// NewSchema validates and indexes a column layout. Names must be unique across both kinds.
func NewSchema(categories, entities []string) (*Schema, error) {
	s := &Schema{
		Version:    SchemaVersion,
		Categories: append([]string(nil), categories...),
		Entities:   append([]string(nil), entities...),
		index:      make(map[string]int, len(categories)+len(entities)),
	}
	for i, name := range s.Categories {
		if err := s.add(name, i); err != nil {
			return nil, err
		}
	}
	for i, name := range s.Entities {
		if err := s.add(name, len(s.Categories)+i); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(name string, pos int) error {
	if name == "" {
		return contract.ConfigurationError("feature column with an empty name")
	}
	if name == string(RankColumn) {
		return contract.ConfigurationError("feature column %q collides with the rank column", name)
	}
	if _, dup := s.index[name]; dup {
		return contract.ConfigurationError("feature column %q is both an entity and a category", name)
	}
	s.index[name] = pos
	return nil
}

// Width is the number of count columns.
func (s *Schema) Width() int { return len(s.Categories) + len(s.Entities) }

// Index returns the position of a count column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Columns lists every column in table order, rank first.
func (s *Schema) Columns() []Column {
	cols := make([]Column, 0, s.Width()+1)
	cols = append(cols, Column{Name: string(RankColumn), Kind: RankColumn})
	for _, c := range s.Categories {
		cols = append(cols, Column{Name: c, Kind: CategoryColumn})
	}
	for _, e := range s.Entities {
		cols = append(cols, Column{Name: e, Kind: EntityColumn})
	}
	return cols
}

// Kind returns the kind of a named column.
func (s *Schema) Kind(name string) (ColumnKind, bool) {
	if name == string(RankColumn) {
		return RankColumn, true
	}
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	if i < len(s.Categories) {
		return CategoryColumn, true
	}
	return EntityColumn, true
}
