package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/iocache"
	"github.com/pkmeta/metaspot/schema"
)

// reportsTable holds one row per archetype of every named report.
const reportsTable = "metaspot_reports"

// SQLReportSink stores meta reports in a SQL table, one JSON document per archetype.
type SQLReportSink struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.ReportSink = &SQLReportSink{} // Compile-time check

// NewSQLReportSink opens the report table, creating it when missing.
func NewSQLReportSink(backend schema.DatabaseBackend, connStr string) (*SQLReportSink, error) {
	db, err := iocache.OpenDB(backend, connStr, contract.GetMatchDBFilePath())
	if err != nil {
		return nil, contract.DataSourceError(err, "open %s report sink", backend)
	}
	if _, err := db.Exec(getCreateReportsQuery(backend)); err != nil {
		_ = db.Close()
		return nil, contract.DataSourceError(err, "create table %s", reportsTable)
	}
	return &SQLReportSink{db: db, backend: backend}, nil
}

// getCreateReportsQuery returns the CREATE TABLE query for the given backend.
func getCreateReportsQuery(backend schema.DatabaseBackend) string {
	quoted := iocache.QuoteTableName(reportsTable, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				report_name VARCHAR(255) NOT NULL,
				cluster_id INT NOT NULL,
				report_id VARCHAR(64) NOT NULL,
				match_count INT NOT NULL,
				ratio DOUBLE NOT NULL,
				winrate DOUBLE NOT NULL,
				mean_rank DOUBLE NOT NULL,
				document LONGTEXT NOT NULL,
				PRIMARY KEY (report_name, cluster_id)
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				report_name TEXT NOT NULL,
				cluster_id INT NOT NULL,
				report_id TEXT NOT NULL,
				match_count INT NOT NULL,
				ratio DOUBLE PRECISION NOT NULL,
				winrate DOUBLE PRECISION NOT NULL,
				mean_rank DOUBLE PRECISION NOT NULL,
				document TEXT NOT NULL,
				PRIMARY KEY (report_name, cluster_id)
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				report_name TEXT NOT NULL,
				cluster_id INTEGER NOT NULL,
				report_id TEXT NOT NULL,
				match_count INTEGER NOT NULL,
				ratio REAL NOT NULL,
				winrate REAL NOT NULL,
				mean_rank REAL NOT NULL,
				document TEXT NOT NULL,
				PRIMARY KEY (report_name, cluster_id)
			);
		`, quoted)
	}
}

// ReplaceReport deletes every archetype stored under name and inserts entries, atomically.
func (s *SQLReportSink) ReplaceReport(ctx context.Context, name string, entries []schema.MetaReportEntry) error {
	if name == "" {
		return contract.ConfigurationError("report name cannot be empty")
	}

	// Encode first so a bad entry never opens a transaction
	documents := make([]string, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode cluster %d: %w", e.ClusterID, err)
		}
		documents[i] = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.DataSourceError(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	quoted := iocache.QuoteTableName(reportsTable, s.backend)
	del := fmt.Sprintf(`DELETE FROM %s WHERE report_name = %s`, quoted, iocache.Placeholder(s.backend, 1))
	if _, err := tx.ExecContext(ctx, del, name); err != nil {
		return contract.DataSourceError(err, "delete report %q", name)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (report_name, cluster_id, report_id, match_count, ratio, winrate, mean_rank, document) VALUES (%s)`,
		quoted, iocache.Placeholders(s.backend, 1, 8))
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, insert, name, e.ClusterID, e.ReportID, e.Count, e.Ratio, e.Winrate, e.MeanRank, documents[i]); err != nil {
			return contract.DataSourceError(err, "insert cluster %d", e.ClusterID)
		}
	}

	if err := tx.Commit(); err != nil {
		return contract.DataSourceError(err, "commit report %q", name)
	}
	return nil
}

// ReadReport returns the archetypes stored under name ordered by cluster id.
func (s *SQLReportSink) ReadReport(ctx context.Context, name string) ([]schema.MetaReportEntry, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE report_name = %s ORDER BY cluster_id`,
		iocache.QuoteTableName(reportsTable, s.backend), iocache.Placeholder(s.backend, 1))
	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, contract.DataSourceError(err, "query report %q", name)
	}
	defer func() { _ = rows.Close() }()

	var entries []schema.MetaReportEntry
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, contract.DataSourceError(err, "scan report")
		}
		var e schema.MetaReportEntry
		if err := json.Unmarshal([]byte(document), &e); err != nil {
			return nil, contract.DataSourceError(err, "decode report document")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, contract.DataSourceError(err, "iterate report")
	}
	return entries, nil
}

// Close implements contract.ReportSink.
func (s *SQLReportSink) Close() error {
	return s.db.Close()
}
