// Package fixture generates synthetic ranked matches for seeding and demos.
package fixture

import (
	"fmt"
	"slices"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Defaults for generated lobbies.
const (
	DefaultTeamSize = 6
	DefaultMaxRank  = 8
)

// Options controls generated matches.
type Options struct {
	Count    int
	TeamSize int
	MaxRank  int
	// NoiseShare is the fraction of matches whose roster is drawn from every pool at once.
	NoiseShare float64
	From       time.Time
	To         time.Time
	Seed       int64 // 0 picks a random seed
}

// CategoryLookup is the part of the reference data used to build archetype pools.
type CategoryLookup interface {
	Entities() []string
	EntityCategories(entity string) []string
}

// Pools groups entities by their first category, giving one archetype per category.
// Pools are ordered by category name.
func Pools(ref CategoryLookup) [][]string {
	byCategory := make(map[string][]string)
	for _, e := range ref.Entities() {
		cats := ref.EntityCategories(e)
		if len(cats) == 0 {
			continue
		}
		byCategory[cats[0]] = append(byCategory[cats[0]], e)
	}
	names := make([]string, 0, len(byCategory))
	for c := range byCategory {
		names = append(names, c)
	}
	slices.Sort(names)

	pools := make([][]string, len(names))
	for i, c := range names {
		pools[i] = byCategory[c]
	}
	return pools
}

// Generate draws opts.Count matches. Each roster comes from one pool, except for the
// NoiseShare of matches which mix all pools. The output is deterministic for a non-zero seed.
func Generate(pools [][]string, opts Options) ([]schema.MatchRecord, error) {
	if opts.Count <= 0 {
		return nil, contract.ConfigurationError("match count must be positive, got %d", opts.Count)
	}
	var all []string
	for i, p := range pools {
		if len(p) == 0 {
			return nil, contract.ConfigurationError("pool %d is empty", i)
		}
		all = append(all, p...)
	}
	if len(all) == 0 {
		return nil, contract.ConfigurationError("at least one entity pool is required")
	}
	if opts.TeamSize <= 0 {
		opts.TeamSize = DefaultTeamSize
	}
	if opts.MaxRank <= 0 {
		opts.MaxRank = DefaultMaxRank
	}
	if opts.To.IsZero() {
		opts.To = time.Now()
	}
	if opts.From.IsZero() {
		opts.From = opts.To.Add(-contract.DefaultWindow)
	}
	if !opts.From.Before(opts.To) {
		return nil, contract.ConfigurationError("invalid time range %s to %s", opts.From.Format(time.RFC3339), opts.To.Format(time.RFC3339))
	}

	faker := gofakeit.New(opts.Seed)
	matches := make([]schema.MatchRecord, opts.Count)
	for i := range matches {
		pool := pools[faker.Number(0, len(pools)-1)]
		if faker.Float64Range(0, 1) < opts.NoiseShare {
			pool = all
		}
		roster := make([]schema.EntityOccurrence, opts.TeamSize)
		for j := range roster {
			roster[j] = schema.EntityOccurrence{Name: faker.RandomString(pool)}
		}
		matches[i] = schema.MatchRecord{
			Time:     faker.DateRange(opts.From, opts.To).Truncate(time.Millisecond),
			Rank:     faker.Number(1, opts.MaxRank),
			Entities: roster,
		}
	}
	slices.SortStableFunc(matches, func(a, b schema.MatchRecord) int { return a.Time.Compare(b.Time) })
	return matches, nil
}

// Describe summarizes generated matches for log output.
func Describe(matches []schema.MatchRecord) string {
	if len(matches) == 0 {
		return "no matches"
	}
	return fmt.Sprintf("%d matches from %s to %s", len(matches),
		matches[0].Time.Format(contract.DateTimeFormat), matches[len(matches)-1].Time.Format(contract.DateTimeFormat))
}
