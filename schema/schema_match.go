package schema

import "time"

// EntityOccurrence is one slot of a team roster.
// Source documents may carry more fields (items, level); only the name is used.
type EntityOccurrence struct {
	Name string `json:"name" bson:"name"`
}

// MatchRecord is one ranked match as supplied by the match source.
type MatchRecord struct {
	Time     time.Time          `json:"time"`
	Rank     int                `json:"rank"`
	Entities []EntityOccurrence `json:"pokemons"`
}

// EntityNames returns the roster names in slot order, duplicates included.
func (m MatchRecord) EntityNames() []string {
	names := make([]string, len(m.Entities))
	for i, e := range m.Entities {
		names[i] = e.Name
	}
	return names
}
