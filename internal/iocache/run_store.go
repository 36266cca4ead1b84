package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Table names for run tracking.
const (
	runsTable        = "metaspot_runs"
	runClustersTable = "metaspot_run_clusters"
)

// RunStoreImpl implements the RunStore interface.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore creates a new RunStore with the specified backend.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	if backend == schema.NoneBackend {
		// Return a no-op store for disabled tracking
		return &RunStoreImpl{backend: backend}, nil
	}
	if _, ok := schema.ValidStoreBackends[backend]; !ok {
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}

	db, err := OpenDB(backend, connStr, GetRunsDBFilePath())
	if err != nil {
		return nil, err
	}

	if err := createRunTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create run tables: %w", err)
	}

	return &RunStoreImpl{db: db, backend: backend}, nil
}

// createRunTables creates the run tracking tables.
func createRunTables(db *sql.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{runsTable, getCreateRunsQuery(backend)},
		{runClustersTable, getCreateRunClustersQuery(backend)},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}
	return nil
}

// getCreateRunsQuery returns the CREATE TABLE query for metaspot_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := QuoteTableName(runsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				report_id VARCHAR(64),
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms INT,
				total_matches INT NOT NULL DEFAULT 0,
				total_clusters INT NOT NULL DEFAULT 0,
				reported INT NOT NULL DEFAULT 0,
				skipped INT NOT NULL DEFAULT 0,
				noise_points INT NOT NULL DEFAULT 0,
				config_params TEXT,
				error_message TEXT
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				report_id TEXT,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms INT,
				total_matches INT NOT NULL DEFAULT 0,
				total_clusters INT NOT NULL DEFAULT 0,
				reported INT NOT NULL DEFAULT 0,
				skipped INT NOT NULL DEFAULT 0,
				noise_points INT NOT NULL DEFAULT 0,
				config_params TEXT,
				error_message TEXT
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				report_id TEXT,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				total_matches INTEGER NOT NULL DEFAULT 0,
				total_clusters INTEGER NOT NULL DEFAULT 0,
				reported INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				noise_points INTEGER NOT NULL DEFAULT 0,
				config_params TEXT,
				error_message TEXT
			);
		`, quotedTableName)
	}
}

// getCreateRunClustersQuery returns the CREATE TABLE query for metaspot_run_clusters.
func getCreateRunClustersQuery(backend schema.DatabaseBackend) string {
	quotedTableName := QuoteTableName(runClustersTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				cluster_id INT NOT NULL,
				match_count INT NOT NULL,
				ratio DOUBLE NOT NULL,
				winrate DOUBLE NOT NULL,
				mean_rank DOUBLE NOT NULL,
				signature VARCHAR(512) NOT NULL,
				PRIMARY KEY (run_id, cluster_id)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				cluster_id INT NOT NULL,
				match_count INT NOT NULL,
				ratio DOUBLE PRECISION NOT NULL,
				winrate DOUBLE PRECISION NOT NULL,
				mean_rank DOUBLE PRECISION NOT NULL,
				signature TEXT NOT NULL,
				PRIMARY KEY (run_id, cluster_id)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				cluster_id INTEGER NOT NULL,
				match_count INTEGER NOT NULL,
				ratio REAL NOT NULL,
				winrate REAL NOT NULL,
				mean_rank REAL NOT NULL,
				signature TEXT NOT NULL,
				PRIMARY KEY (run_id, cluster_id)
			);
		`, quotedTableName)
	}
}

// BeginRun creates a new run and returns its unique ID.
func (rs *RunStoreImpl) BeginRun(startTime time.Time, configParams map[string]any) (int64, error) {
	// Skip for NoneBackend
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quotedTableName := QuoteTableName(runsTable, rs.backend)

	var runID int64
	switch rs.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (start_time, config_params) VALUES ($1, $2) RETURNING run_id`, quotedTableName)
		err = rs.db.QueryRow(query, startTime, string(configJSON)).Scan(&runID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (start_time, config_params) VALUES (?, ?)`, quotedTableName)
		var result sql.Result
		result, err = rs.db.Exec(query, formatTime(startTime, rs.backend), string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}

	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun updates the run with its completion data.
func (rs *RunStoreImpl) EndRun(runID int64, endTime time.Time, summary schema.RunSummary) error {
	// Skip for NoneBackend
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil
	}

	quotedTableName := QuoteTableName(runsTable, rs.backend)
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, quotedTableName, Placeholder(rs.backend, 1))
	startTime, err := rs.scanTime(rs.db.QueryRow(query, runID))
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	var reportID, errorMessage any
	if summary.ReportID != "" {
		reportID = summary.ReportID
	}
	if summary.Error != "" {
		errorMessage = summary.Error
	}

	update := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, report_id = %s, total_matches = %s,
		total_clusters = %s, reported = %s, skipped = %s, noise_points = %s, error_message = %s WHERE run_id = %s`,
		quotedTableName,
		Placeholder(rs.backend, 1), Placeholder(rs.backend, 2), Placeholder(rs.backend, 3), Placeholder(rs.backend, 4),
		Placeholder(rs.backend, 5), Placeholder(rs.backend, 6), Placeholder(rs.backend, 7), Placeholder(rs.backend, 8),
		Placeholder(rs.backend, 9), Placeholder(rs.backend, 10))
	_, err = rs.db.Exec(update,
		formatTime(endTime, rs.backend), endTime.Sub(startTime).Milliseconds(), reportID, summary.TotalMatches,
		summary.TotalClusters, summary.Reported, summary.Skipped, summary.NoisePoints, errorMessage, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordClusters stores one row per reported archetype of a run.
func (rs *RunStoreImpl) RecordClusters(runID int64, entries []schema.MetaReportEntry) error {
	// Skip for NoneBackend
	if rs.backend == schema.NoneBackend || rs.db == nil || len(entries) == 0 {
		return nil
	}

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (run_id, cluster_id, match_count, ratio, winrate, mean_rank, signature) VALUES (%s)`,
		QuoteTableName(runClustersTable, rs.backend), Placeholders(rs.backend, 1, 7))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.Exec(runID, e.ClusterID, e.Count, e.Ratio, e.Winrate, e.MeanRank, Signature(e.Categories)); err != nil {
			return fmt.Errorf("failed to insert cluster %d: %w", e.ClusterID, err)
		}
	}
	return tx.Commit()
}

// Signature names an archetype by its representative categories.
func Signature(categories map[string]float64) string {
	return strings.Join(slices.Sorted(maps.Keys(categories)), "+")
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}

	if rs.backend == schema.NoneBackend || rs.db == nil {
		return status, nil
	}

	quotedRuns := QuoteTableName(runsTable, rs.backend)
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedRuns)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := rs.db.QueryRow(fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY run_id DESC LIMIT 1", quotedRuns))
		var lastTime any
		if err := row.Scan(&status.LastRunID, &lastTime); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		t, err := asTime(lastTime)
		if err != nil {
			return status, fmt.Errorf("failed to parse last run time: %w", err)
		}
		status.LastRunTime = t

		oldest, err := rs.scanTime(rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", quotedRuns)))
		if err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.OldestRunTime = oldest

		row = rs.db.QueryRow(fmt.Sprintf("SELECT COALESCE(SUM(total_matches), 0) FROM %s", quotedRuns))
		if err := row.Scan(&status.TotalMatchesSeen); err != nil {
			return status, fmt.Errorf("failed to get total matches: %w", err)
		}
	}

	for _, table := range []string{runsTable, runClustersTable} {
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteTableName(table, rs.backend))
		if err := rs.db.QueryRow(query).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllRuns retrieves all runs from the store.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	// Skip for NoneBackend
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, report_id, start_time, end_time, run_duration_ms, total_matches, total_clusters,
		reported, skipped, noise_points, config_params, error_message FROM %s ORDER BY run_id`, QuoteTableName(runsTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		var startTime, endTime any
		if err := rows.Scan(&record.RunID, &record.ReportID, &startTime, &endTime, &record.RunDurationMs,
			&record.TotalMatches, &record.TotalClusters, &record.Reported, &record.Skipped, &record.NoisePoints,
			&record.ConfigParams, &record.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if record.StartTime, err = asTime(startTime); err != nil {
			return nil, fmt.Errorf("failed to parse start_time: %w", err)
		}
		if endTime != nil {
			t, err := asTime(endTime)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end_time: %w", err)
			}
			record.EndTime = &t
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllClusters retrieves all recorded archetypes from the store.
func (rs *RunStoreImpl) GetAllClusters() ([]schema.ClusterRecord, error) {
	// Skip for NoneBackend
	if rs.backend == schema.NoneBackend || rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, cluster_id, match_count, ratio, winrate, mean_rank, signature
		FROM %s ORDER BY run_id, cluster_id`, QuoteTableName(runClustersTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query run clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.ClusterRecord
	for rows.Next() {
		var r schema.ClusterRecord
		if err := rows.Scan(&r.RunID, &r.ClusterID, &r.Count, &r.Ratio, &r.Winrate, &r.MeanRank, &r.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan run cluster: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run clusters: %w", err)
	}
	return results, nil
}

func (rs *RunStoreImpl) scanTime(row *sql.Row) (time.Time, error) {
	var v any
	if err := row.Scan(&v); err != nil {
		return time.Time{}, err
	}
	return asTime(v)
}

// asTime handles the different time storage formats per backend.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", v)
	}
}
