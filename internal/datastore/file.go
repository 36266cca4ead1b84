package datastore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// maxLineBytes bounds a single JSON line.
const maxLineBytes = 1 << 20

// FileMatchStore reads and appends matches in a JSON lines file.
// Each line is {"time": <epoch ms>, "rank": <int>, "pokemons": [{"name": ...}]}.
type FileMatchStore struct {
	path string
}

var _ contract.MatchSource = &FileMatchStore{} // Compile-time check

// NewFileMatchStore returns a store backed by path. The file is opened lazily.
func NewFileMatchStore(path string) *FileMatchStore {
	return &FileMatchStore{path: path}
}

// FetchMatches implements contract.MatchSource. Matches are returned oldest first.
func (s *FileMatchStore) FetchMatches(ctx context.Context, since time.Time, limit int) ([]schema.MatchRecord, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, contract.DataSourceError(err, "open match file %s", s.path)
	}
	defer func() { _ = f.Close() }()

	cutoff := since.UnixMilli()
	var docs []matchDocument
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc matchDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, contract.DataSourceError(err, "%s:%d", s.path, line)
		}
		if doc.Time > cutoff {
			docs = append(docs, doc)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, contract.DataSourceError(err, "read match file %s", s.path)
	}

	slices.SortStableFunc(docs, func(a, b matchDocument) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}

	matches := make([]schema.MatchRecord, len(docs))
	for i, d := range docs {
		matches[i] = d.record()
	}
	return matches, nil
}

// WriteMatches implements MatchWriter by appending one line per match.
func (s *FileMatchStore) WriteMatches(ctx context.Context, matches []schema.MatchRecord) (err error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return contract.DataSourceError(err, "open match file %s", s.path)
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(toDocument(m)); err != nil {
			return fmt.Errorf("failed to encode match: %w", err)
		}
	}
	return w.Flush()
}

// Close implements contract.MatchSource.
func (s *FileMatchStore) Close() error { return nil }
