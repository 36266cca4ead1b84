package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/iocache"
	"github.com/pkmeta/metaspot/schema"
)

// SQLMatchStore reads and writes matches in a SQL table with the columns
// played_at (epoch ms), match_rank and pokemons (JSON roster).
type SQLMatchStore struct {
	db        *sql.DB
	backend   schema.DatabaseBackend
	tableName string
}

var _ contract.MatchSource = &SQLMatchStore{} // Compile-time check

// NewSQLMatchStore opens the match table, creating it when missing.
func NewSQLMatchStore(backend schema.DatabaseBackend, connStr, tableName string) (*SQLMatchStore, error) {
	if err := iocache.ValidateTableName(tableName); err != nil {
		return nil, contract.WrapConfiguration(err, "match table")
	}
	db, err := iocache.OpenDB(backend, connStr, contract.GetMatchDBFilePath())
	if err != nil {
		return nil, contract.DataSourceError(err, "open %s match source", backend)
	}
	if _, err := db.Exec(getCreateMatchTableQuery(tableName, backend)); err != nil {
		_ = db.Close()
		return nil, contract.DataSourceError(err, "create table %s", tableName)
	}
	return &SQLMatchStore{db: db, backend: backend, tableName: tableName}, nil
}

// getCreateMatchTableQuery returns the CREATE TABLE query for the given backend.
func getCreateMatchTableQuery(tableName string, backend schema.DatabaseBackend) string {
	quoted := iocache.QuoteTableName(tableName, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				match_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				played_at BIGINT NOT NULL,
				match_rank INT NOT NULL,
				pokemons TEXT NOT NULL,
				INDEX idx_played_at (played_at)
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				match_id BIGSERIAL PRIMARY KEY,
				played_at BIGINT NOT NULL,
				match_rank INT NOT NULL,
				pokemons TEXT NOT NULL
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				match_id INTEGER PRIMARY KEY AUTOINCREMENT,
				played_at INTEGER NOT NULL,
				match_rank INTEGER NOT NULL,
				pokemons TEXT NOT NULL
			);
		`, quoted)
	}
}

// FetchMatches implements contract.MatchSource. Matches are returned oldest first.
func (s *SQLMatchStore) FetchMatches(ctx context.Context, since time.Time, limit int) ([]schema.MatchRecord, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT played_at, match_rank, pokemons FROM %s WHERE played_at > %s ORDER BY played_at, match_id LIMIT %s`,
		iocache.QuoteTableName(s.tableName, s.backend), iocache.Placeholder(s.backend, 1), iocache.Placeholder(s.backend, 2))
	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli(), limit)
	if err != nil {
		return nil, contract.DataSourceError(err, "query %s", s.tableName)
	}
	defer func() { _ = rows.Close() }()

	var matches []schema.MatchRecord
	for rows.Next() {
		var doc matchDocument
		var roster string
		if err := rows.Scan(&doc.Time, &doc.Rank, &roster); err != nil {
			return nil, contract.DataSourceError(err, "scan match")
		}
		if err := json.Unmarshal([]byte(roster), &doc.Pokemons); err != nil {
			return nil, contract.DataSourceError(err, "decode roster of match at %d", doc.Time)
		}
		matches = append(matches, doc.record())
	}
	if err := rows.Err(); err != nil {
		return nil, contract.DataSourceError(err, "iterate matches")
	}
	return matches, nil
}

// WriteMatches implements MatchWriter in a single transaction.
func (s *SQLMatchStore) WriteMatches(ctx context.Context, matches []schema.MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.DataSourceError(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (played_at, match_rank, pokemons) VALUES (%s)`,
		iocache.QuoteTableName(s.tableName, s.backend), iocache.Placeholders(s.backend, 1, 3))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return contract.DataSourceError(err, "prepare match insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range matches {
		doc := toDocument(m)
		roster, err := json.Marshal(doc.Pokemons)
		if err != nil {
			return fmt.Errorf("failed to encode roster: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, doc.Time, doc.Rank, string(roster)); err != nil {
			return contract.DataSourceError(err, "insert match")
		}
	}
	if err := tx.Commit(); err != nil {
		return contract.DataSourceError(err, "commit matches")
	}
	return nil
}

// Close implements contract.MatchSource.
func (s *SQLMatchStore) Close() error {
	return s.db.Close()
}
