// Package datastore connects the pipeline to where matches come from and where reports go.
package datastore

import (
	"context"
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// DefaultMongoDatabase is used when no database is configured for a MongoDB backend.
const DefaultMongoDatabase = "test"

// MatchWriter stores match records, e.g. to seed a development database.
type MatchWriter interface {
	WriteMatches(ctx context.Context, matches []schema.MatchRecord) error
	Close() error
}

// matchDocument is the stored form of a match: the timestamp is epoch milliseconds.
type matchDocument struct {
	Time     int64                     `json:"time" bson:"time"`
	Rank     int                       `json:"rank" bson:"rank"`
	Pokemons []schema.EntityOccurrence `json:"pokemons" bson:"pokemons"`
}

func toDocument(m schema.MatchRecord) matchDocument {
	entities := m.Entities
	if entities == nil {
		entities = []schema.EntityOccurrence{}
	}
	return matchDocument{Time: m.Time.UnixMilli(), Rank: m.Rank, Pokemons: entities}
}

func (d matchDocument) record() schema.MatchRecord {
	return schema.MatchRecord{Time: time.UnixMilli(d.Time).UTC(), Rank: d.Rank, Entities: d.Pokemons}
}

func checkLimit(limit int) error {
	if limit <= 0 || limit > contract.MaxMatchWindow {
		return contract.ConfigurationError("limit must be between 1 and %d (received %d)", contract.MaxMatchWindow, limit)
	}
	return nil
}

// OpenMatchSource opens the configured match source.
func OpenMatchSource(ctx context.Context, cfg *contract.Config) (contract.MatchSource, error) {
	switch cfg.SourceBackend {
	case schema.FileBackend:
		return NewFileMatchStore(cfg.SourceConnect), nil
	case schema.MongoDBBackend:
		return NewMongoMatchStore(ctx, cfg.SourceConnect, cfg.SourceDatabase, cfg.SourceTable)
	case schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend:
		return NewSQLMatchStore(cfg.SourceBackend, cfg.SourceConnect, cfg.SourceTable)
	default:
		return nil, contract.ConfigurationError("unsupported source backend: %s", cfg.SourceBackend)
	}
}

// OpenMatchWriter opens the configured match source for writing.
func OpenMatchWriter(ctx context.Context, cfg *contract.Config) (MatchWriter, error) {
	switch cfg.SourceBackend {
	case schema.FileBackend:
		return NewFileMatchStore(cfg.SourceConnect), nil
	case schema.MongoDBBackend:
		return NewMongoMatchStore(ctx, cfg.SourceConnect, cfg.SourceDatabase, cfg.SourceTable)
	case schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend:
		return NewSQLMatchStore(cfg.SourceBackend, cfg.SourceConnect, cfg.SourceTable)
	default:
		return nil, contract.ConfigurationError("unsupported source backend: %s", cfg.SourceBackend)
	}
}

// OpenReportSink opens the configured report sink. The none backend returns a nil sink.
func OpenReportSink(ctx context.Context, cfg *contract.Config) (contract.ReportSink, error) {
	switch cfg.SinkBackend {
	case schema.NoneBackend, "":
		return nil, nil
	case schema.MongoDBBackend:
		return NewMongoReportSink(ctx, cfg.SinkConnect, cfg.SinkDatabase)
	case schema.SQLiteBackend, schema.MySQLBackend, schema.PostgreSQLBackend:
		return NewSQLReportSink(cfg.SinkBackend, cfg.SinkConnect)
	default:
		return nil, contract.ConfigurationError("unsupported sink backend: %s", cfg.SinkBackend)
	}
}
