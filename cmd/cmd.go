// Package cmd defines the command-line interface for metaspot.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/fixture"
	"github.com/pkmeta/metaspot/schema"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(mcpCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsClearCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file")
	pf.String("profile", "", "Enable profiling and write profiles to files with this prefix")
	pf.String("since", "15 days", "Only use matches after this point: ISO8601 date or time ago (e.g. '15 days')")
	pf.IntP("limit", "l", contract.MaxMatchWindow, "Maximum number of matches to load")
	pf.String("perplexity", fmt.Sprint(contract.DefaultPerplexity), "t-SNE perplexity; a comma-separated list for sweep")
	pf.Int("max-iter", contract.DefaultMaxIter, "t-SNE optimization rounds")
	pf.String("method", "barnes_hut", "t-SNE gradient method: barnes_hut or exact")
	pf.Int64("seed", 0, "Random seed for the projection and for generated matches (0 = random)")
	pf.String("epsilon", "3", "DBSCAN neighborhood radius; a comma-separated list for sweep")
	pf.String("min-samples", "10", "DBSCAN minimum neighborhood size; a comma-separated list for sweep")
	pf.String("output", string(schema.TextOut), "Output format: text or json or csv or xlsx or parquet")
	pf.String("output-file", "", "Optional path to write output to")
	pf.Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	pf.Int("width", 0, "Terminal width override (0 = auto-detect)")
	pf.String("report-name", contract.DefaultReportName, "Name of the report collection to replace")
	pf.String("category-file", "json/type_pokemon.json", "Category document (TYPE_POKEMON)")
	pf.String("entity-file", "", "Optional entity document (POKEMON)")
	pf.String("trigger-file", "", "Optional trigger document (TYPE_TRIGGER)")
	pf.String("source-backend", string(schema.SQLiteBackend), "Match source: sqlite or mysql or postgresql or mongodb or file")
	pf.String("source-connect", "", "Match source connection string or JSON lines file")
	pf.String("source-table", contract.DefaultMatchTable, "Match table or collection name")
	pf.String("source-database", "", "MongoDB database of the match collection")
	pf.String("sink-backend", string(schema.SQLiteBackend), "Report sink: sqlite or mysql or postgresql or mongodb or none")
	pf.String("sink-connect", "", "Report sink connection string")
	pf.String("sink-database", "", "MongoDB database of the report collections")
	pf.String("cache-backend", string(schema.SQLiteBackend), "Projection cache backend: sqlite or mysql or postgresql or none")
	pf.String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	pf.String("runs-backend", string(schema.NoneBackend), "Run tracking backend: sqlite or mysql or postgresql or none")
	pf.String("runs-db-connect", "", "Database connection string for run tracking (must differ from cache-db-connect)")
	pf.String("pushgateway", "", "Prometheus Pushgateway URL for run metrics")
	pf.String("log-level", "info", "Log level: debug or info or warn or error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	pf.String("emoji", "no", "Enable emojis in output (yes/no/true/false/1/0)")
	if err := viper.BindPFlags(pf); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of seedCmd to Viper
	seedCmd.Flags().Int("count", 1000, "Number of matches to generate")
	seedCmd.Flags().Int("team-size", fixture.DefaultTeamSize, "Entities per team")
	seedCmd.Flags().Int("max-rank", fixture.DefaultMaxRank, "Players per lobby")
	seedCmd.Flags().Float64("noise-share", 0.1, "Fraction of teams mixing every archetype")
	if err := viper.BindPFlags(seedCmd.Flags()); err != nil {
		contract.LogFatal("Error binding seed flags", err)
	}

	// Bind all flags of runsMigrateCmd to Viper
	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(runsMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs migrate flags", err)
	}
}
