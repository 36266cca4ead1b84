package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/iocache"
	"github.com/pkmeta/metaspot/schema"
)

// runsBackendFromViper reads the run tracking backend, treating an empty value as none.
func runsBackendFromViper() (schema.DatabaseBackend, string, error) {
	backend := schema.NoneBackend
	if s := viper.GetString("runs-backend"); s != "" {
		backend = schema.DatabaseBackend(s)
	}
	connStr := viper.GetString("runs-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// runsSetup loads minimal configuration needed for run history operations.
// This is used by commands that need the run store without full shared setup.
func runsSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend, connStr, err := runsBackendFromViper()
	if err != nil {
		return err
	}

	// Initialize stores with the loaded config (no projection cache for runs commands)
	if err := iocache.InitCaching("", "", backend, connStr); err != nil {
		return fmt.Errorf("failed to initialize run tracking: %w", err)
	}

	cfg.RunsBackend = backend
	cfg.RunsDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")

	return nil
}

// runsSetupWrapper wraps runsSetup to provide PreRunE for runs commands.
func runsSetupWrapper(_ *cobra.Command, _ []string) error {
	return runsSetup()
}

// runsMigrateSetup loads minimal configuration needed for migrate operations.
// This is a specialized setup that does NOT initialize stores or create tables,
// allowing migrations to run on a fresh database.
func runsMigrateSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend, connStr, err := runsBackendFromViper()
	if err != nil {
		return err
	}

	// For SQLite backend with empty connection string, use default path
	if backend == schema.SQLiteBackend && connStr == "" {
		connStr = iocache.GetRunsDBFilePath()
	}

	cfg.RunsBackend = backend
	cfg.RunsDBConnect = connStr

	return nil
}

// runsMigrateSetupWrapper wraps runsMigrateSetup to provide PreRunE for migrate command.
func runsMigrateSetupWrapper(_ *cobra.Command, _ []string) error {
	return runsMigrateSetup()
}

// runsCmd focused on run history management.
//
// Note: Runs subcommands use minimal initialization (runsSetup) instead of
// the full sharedSetup used by pipeline commands.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage pipeline run history and exports",
	Long: `Manage the history of meta analysis runs.

When enabled with --runs-backend, metaspot records every run:
- Run metadata (timestamps, parameters, outcome, counts)
- Every reported archetype with its ratio, winrate and mean rank

This makes it possible to follow how the meta shifts between runs.

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled, the default)

Subcommands:
  status  - Show run tracking statistics
  export  - Export run history to Parquet
  clear   - Remove all run history
  migrate - Run database schema migrations

Examples:
  # Check tracking status
  metaspot runs status --runs-backend sqlite

  # Export for analysis in pandas/DuckDB
  metaspot runs export --runs-backend sqlite --output-file meta-history`,
}

// runsClearCmd clears the run history.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded pipeline runs",
	Long: `Delete all stored runs and their archetype records.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  # Export before clearing
  metaspot runs export --runs-backend sqlite --output-file backup
  metaspot runs clear --runs-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearRuns(cfg.RunsBackend, sqlitePath(cfg.RunsBackend, cfg.RunsDBConnect, iocache.GetRunsDBFilePath()), cfg.RunsDBConnect); err != nil {
			contract.LogFatal("Failed to clear run history", err)
		}
		fmt.Println("Run history cleared successfully.")
	},
}

// runsStatusCmd shows run tracking status.
var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run tracking statistics and connection details",
	Long: `Show detailed information about the run history.

Displays:
- Backend type and connection status
- Total number of recorded runs
- Last and oldest run timestamps
- Database table sizes

Examples:
  metaspot runs status --runs-backend sqlite`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetRunStore()
		if store == nil {
			contract.LogFatal("Failed to get run status", fmt.Errorf("runs backend %q is not configured", cfg.RunsBackend))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get run status", err)
		}
		iocache.PrintRunStatus(os.Stdout, status)
	},
}

// runsExportCmd exports run history to Parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to Parquet for BI tools and analytics",
	Long: `Export all recorded runs to Parquet format.

Exports two datasets next to the --output-file prefix:
- <prefix>.runs.parquet     - one row per run
- <prefix>.clusters.parquet - one row per reported archetype

Requires: --output-file parameter

Examples:
  metaspot runs export --runs-backend sqlite --output-file meta
  duckdb -c "SELECT * FROM read_parquet('meta.clusters.parquet') LIMIT 10"`,
	PreRunE: runsSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ExecuteRunsExport(os.Stdout, iocache.Manager.GetRunStore(), cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export run history", err)
		}
	},
}

// runsMigrateCmd runs database migrations for the run store.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the run history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  metaspot runs migrate --runs-backend sqlite

  # Rollback to initial state
  metaspot runs migrate --runs-backend sqlite --target-version 0`,
	PreRunE: runsMigrateSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		v, err := iocache.MigrateRuns(cfg.RunsBackend, cfg.RunsDBConnect, targetVersion)
		if err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
		fmt.Printf("Run store is at schema version %d.\n", v)
	},
}
