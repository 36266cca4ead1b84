package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

type mapLookup map[string][]string

func (m mapLookup) EntityCategories(entity string) []string { return m[entity] }

func match(rank int, names ...string) schema.MatchRecord {
	m := schema.MatchRecord{Rank: rank}
	for _, n := range names {
		m.Entities = append(m.Entities, schema.EntityOccurrence{Name: n})
	}
	return m
}

func TestExtractCountsDistinctEntitiesPerCategory(t *testing.T) {
	ref := mapLookup{"A": {"fire"}, "B": {"fire", "flying"}}
	table, err := Extract([]schema.MatchRecord{match(1, "A", "A", "B")}, ref)
	require.NoError(t, err)

	assert.Equal(t, 2.0, table.Value(0, "fire"), "duplicates must not inflate the category count")
	assert.Equal(t, 1.0, table.Value(0, "flying"))
	assert.Equal(t, 2.0, table.Value(0, "A"))
	assert.Equal(t, 1.0, table.Value(0, "B"))
	assert.Equal(t, 1, table.Rows[0].Rank)
}

func TestExtractColumnCompleteness(t *testing.T) {
	ref := mapLookup{"A": {"fire"}, "C": {"water"}}
	matches := []schema.MatchRecord{
		match(3, "A"),
		match(1, "C", "D"),
		match(8),
	}
	table, err := Extract(matches, ref)
	require.NoError(t, err)

	assert.Equal(t, []string{"fire", "water"}, table.Schema.Categories)
	assert.Equal(t, []string{"A", "C", "D"}, table.Schema.Entities)
	require.Equal(t, 3, table.Len())
	for _, row := range table.Rows {
		assert.Len(t, row.Counts, table.Schema.Width())
	}
	assert.Equal(t, []float64{1, 0, 1, 0, 0}, table.Rows[0].Counts)
	assert.Equal(t, []float64{0, 1, 0, 1, 1}, table.Rows[1].Counts)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, table.Rows[2].Counts)
	assert.Equal(t, []int{3, 1, 8}, table.Ranks())
}

func TestExtractUnknownEntityHasNoCategories(t *testing.T) {
	table, err := Extract([]schema.MatchRecord{match(2, "missingno")}, mapLookup{})
	require.NoError(t, err)
	assert.Empty(t, table.Schema.Categories)
	assert.Equal(t, []string{"missingno"}, table.Schema.Entities)
}

func TestExtractRejectsEntityNamedLikeCategory(t *testing.T) {
	_, err := Extract([]schema.MatchRecord{match(1, "fire", "A")}, mapLookup{"A": {"fire"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrConfiguration)
}

func TestExtractDoesNotMutateInput(t *testing.T) {
	matches := []schema.MatchRecord{match(1, "A", "A")}
	_, err := Extract(matches, mapLookup{"A": {"fire"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A"}, matches[0].EntityNames())
}

func TestTableAccessors(t *testing.T) {
	ref := mapLookup{"A": {"fire"}, "B": {"water"}}
	table, err := Extract([]schema.MatchRecord{match(1, "A", "B", "B"), match(4, "A")}, ref)
	require.NoError(t, err)

	m := table.CategoryMatrix()
	assert.Equal(t, [][]float64{{1, 1}, {1, 0}}, m)
	m[0][0] = 99
	assert.Equal(t, 1.0, table.Value(0, "fire"), "CategoryMatrix must return a copy")

	col, ok := table.Column("B")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 0}, col)
	_, ok = table.Column("nope")
	assert.False(t, ok)
	assert.Equal(t, 0.0, table.Value(0, "nope"))

	assert.Equal(t, map[string]float64{"A": 1, "B": 2}, table.NonZeroEntities(0))
	assert.Equal(t, map[string]float64{"A": 1}, table.NonZeroEntities(1))

	sub, err := table.Subset([]int{1})
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Rows[0].Rank)
	_, err = table.Subset([]int{5})
	assert.ErrorIs(t, err, contract.ErrAlignment)
}

func TestSchema(t *testing.T) {
	s, err := NewSchema([]string{"fire"}, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, s.Version)
	assert.Equal(t, []Column{
		{Name: "rank", Kind: RankColumn},
		{Name: "fire", Kind: CategoryColumn},
		{Name: "A", Kind: EntityColumn},
	}, s.Columns())

	kind, ok := s.Kind("A")
	assert.True(t, ok)
	assert.Equal(t, EntityColumn, kind)
	kind, ok = s.Kind("rank")
	assert.True(t, ok)
	assert.Equal(t, RankColumn, kind)
	_, ok = s.Kind("B")
	assert.False(t, ok)

	_, err = NewSchema([]string{"rank"}, nil)
	assert.ErrorIs(t, err, contract.ErrConfiguration)
	_, err = NewSchema([]string{""}, nil)
	assert.ErrorIs(t, err, contract.ErrConfiguration)
}
