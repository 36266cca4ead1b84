package contract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkmeta/metaspot/schema"
)

// Default values for configuration.
const (
	DefaultWindow       = 15 * 24 * time.Hour
	DefaultPerplexity   = 20.0
	DefaultMaxIter      = 4000
	DefaultEpsilon      = 3.0
	DefaultMinSamples   = 10
	DefaultPrecision    = 2
	DefaultReportName   = "meta"
	DefaultMatchTable   = "ranked_matches"
	MaxPrecision        = 5
	MinProjectionRounds = 250
)

// DateTimeFormat is the default date time representation.
var DateTimeFormat = time.RFC3339

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a pipeline run.
// This struct remains the "final, validated" config.
type Config struct {
	Since      time.Time
	Limit      int
	Perplexity float64
	MaxIter    int
	Epsilon    float64
	MinSamples int
	Seed       int64
	Method     string

	Precision  int
	Width      int
	Output     schema.OutputMode
	OutputFile string
	ReportName string

	CategoryFile string
	EntityFile   string
	TriggerFile  string

	SourceBackend  schema.DatabaseBackend
	SourceConnect  string // Please use env var as this is plaintext
	SourceTable    string
	SourceDatabase string
	SinkBackend    schema.DatabaseBackend
	SinkConnect    string // Please use env var as this is plaintext
	SinkDatabase   string
	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext
	RunsBackend    schema.DatabaseBackend
	RunsDBConnect  string // Please use env var as this is plaintext
	PushgatewayURL string
	LogLevel       string
	LogFormat      string
	UseColors      bool
	UseEmojis      bool

	SweepPerplexities []float64
	SweepEpsilons     []float64
	SweepMinSamples   []int
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	CategoryFile  string `mapstructure:"category-file"`
	EntityFile    string `mapstructure:"entity-file"`
	TriggerFile   string `mapstructure:"trigger-file"`
	CacheBackend  string `mapstructure:"cache-backend"`
	CacheConnect  string `mapstructure:"cache-db-connect"`
	RunsBackend   string `mapstructure:"runs-backend"`
	RunsConnect   string `mapstructure:"runs-db-connect"`
	SourceBackend string `mapstructure:"source-backend"`
	SourceConnect string `mapstructure:"source-connect"`
	SourceTable   string `mapstructure:"source-table"`
	SourceDB      string `mapstructure:"source-database"`
	LogLevel      string `mapstructure:"log-level"`
	LogFormat     string `mapstructure:"log-format"`
	Emoji         string `mapstructure:"emoji"`
	Color         string `mapstructure:"color"`

	// --- Fields from runCmd.Flags() and sweepCmd.Flags() ---
	Since       string `mapstructure:"since"`
	Limit       int    `mapstructure:"limit"`
	Perplexity  string `mapstructure:"perplexity"`
	MaxIter     int    `mapstructure:"max-iter"`
	Epsilon     string `mapstructure:"epsilon"`
	MinSamples  string `mapstructure:"min-samples"`
	Seed        int64  `mapstructure:"seed"`
	Method      string `mapstructure:"method"`
	Precision   int    `mapstructure:"precision"`
	Width       int    `mapstructure:"width"`
	Output      string `mapstructure:"output"`
	OutputFile  string `mapstructure:"output-file"`
	ReportName  string `mapstructure:"report-name"`
	SinkBackend string `mapstructure:"sink-backend"`
	SinkConnect string `mapstructure:"sink-connect"`
	SinkDB      string `mapstructure:"sink-database"`
	Pushgateway string `mapstructure:"pushgateway"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.SweepPerplexities != nil {
		clone.SweepPerplexities = append([]float64(nil), c.SweepPerplexities...)
	}
	if c.SweepEpsilons != nil {
		clone.SweepEpsilons = append([]float64(nil), c.SweepEpsilons...)
	}
	if c.SweepMinSamples != nil {
		clone.SweepMinSamples = append([]int(nil), c.SweepMinSamples...)
	}
	return &clone
}

// Params returns the algorithm parameters that identify a run, for run tracking.
func (c *Config) Params() map[string]any {
	return map[string]any{
		"since":       c.Since.Format(DateTimeFormat),
		"perplexity":  c.Perplexity,
		"max_iter":    c.MaxIter,
		"epsilon":     c.Epsilon,
		"min_samples": c.MinSamples,
		"seed":        c.Seed,
		"method":      c.Method,
		"source":      string(c.SourceBackend),
	}
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct. Every failure is a ConfigurationError.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return WrapConfiguration(err, "invalid settings")
	}
	if err := processAlgorithmParams(cfg, input); err != nil {
		return WrapConfiguration(err, "invalid algorithm parameters")
	}
	if err := processTimeWindow(cfg, input); err != nil {
		return WrapConfiguration(err, "invalid time window")
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return WrapConfiguration(err, "invalid backend")
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of connection strings
// for MySQL, PostgreSQL and MongoDB backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend, schema.FileBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	case schema.MongoDBBackend:
		if !strings.HasPrefix(connStr, "mongodb://") && !strings.HasPrefix(connStr, "mongodb+srv://") {
			return fmt.Errorf("MongoDB connection string must start with 'mongodb://' or 'mongodb+srv://'")
		}
	}
	return nil
}

// validateSimpleInputs transfers output and logging fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.CategoryFile = strings.TrimSpace(input.CategoryFile)
	cfg.EntityFile = strings.TrimSpace(input.EntityFile)
	cfg.TriggerFile = strings.TrimSpace(input.TriggerFile)
	cfg.PushgatewayURL = strings.TrimSpace(input.Pushgateway)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(input.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(input.LogFormat))

	cfg.ReportName = strings.TrimSpace(input.ReportName)
	if cfg.ReportName == "" {
		cfg.ReportName = DefaultReportName
	}

	emojis, err := ParseBoolString(input.Emoji)
	if err != nil {
		return fmt.Errorf("invalid --emoji value: %w", err)
	}
	cfg.UseEmojis = emojis

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Precision < 0 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 0 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	if input.Width < 0 {
		return fmt.Errorf("width cannot be negative (received %d)", input.Width)
	}
	cfg.Width = input.Width

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, json, csv, xlsx, parquet", input.Output)
	}
	if (cfg.Output == schema.XLSXOut || cfg.Output == schema.ParquetOut) && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for %s output", cfg.Output)
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level '%s'. must be debug, info, warn, error", input.LogLevel)
	}
	switch cfg.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format '%s'. must be console, json", input.LogFormat)
	}
	return nil
}

// processAlgorithmParams validates the projection and clustering parameters.
// --epsilon and --min-samples accept a comma-separated list so the sweep command can share them;
// the first value is the one used by a regular run.
func processAlgorithmParams(cfg *Config, input *ConfigRawInput) error {
	if input.Limit <= 0 || input.Limit > MaxMatchWindow {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxMatchWindow, input.Limit)
	}
	cfg.Limit = input.Limit

	if err := setPerplexities(cfg, input.Perplexity); err != nil {
		return err
	}

	if input.MaxIter < MinProjectionRounds {
		return fmt.Errorf("max-iter must be at least %d (received %d)", MinProjectionRounds, input.MaxIter)
	}
	cfg.MaxIter = input.MaxIter
	cfg.Seed = input.Seed

	cfg.Method = strings.ToLower(strings.TrimSpace(input.Method))
	switch cfg.Method {
	case "":
		cfg.Method = "barnes_hut"
	case "barnes_hut", "exact":
	default:
		return fmt.Errorf("invalid method '%s'. must be barnes_hut, exact", input.Method)
	}

	if err := setEpsilons(cfg, input.Epsilon); err != nil {
		return err
	}
	return setMinSamples(cfg, input.MinSamples)
}

// setPerplexities parses a comma-separated perplexity list. The first value drives a single run.
func setPerplexities(cfg *Config, s string) error {
	perplexities, err := parseFloatList(s)
	if err != nil {
		return fmt.Errorf("invalid perplexity: %w", err)
	}
	for _, p := range perplexities {
		if p <= 0 {
			return fmt.Errorf("perplexity must be greater than 0 (received %g)", p)
		}
	}
	cfg.SweepPerplexities = perplexities
	cfg.Perplexity = perplexities[0]
	return nil
}

// setEpsilons parses a comma-separated epsilon list. The first value drives a single run.
func setEpsilons(cfg *Config, s string) error {
	epsilons, err := parseFloatList(s)
	if err != nil {
		return fmt.Errorf("invalid epsilon: %w", err)
	}
	for _, eps := range epsilons {
		if eps <= 0 {
			return fmt.Errorf("epsilon must be greater than 0 (received %g)", eps)
		}
	}
	cfg.SweepEpsilons = epsilons
	cfg.Epsilon = epsilons[0]
	return nil
}

// setMinSamples parses a comma-separated min-samples list. The first value drives a single run.
func setMinSamples(cfg *Config, s string) error {
	samples, err := parseIntList(s)
	if err != nil {
		return fmt.Errorf("invalid min-samples: %w", err)
	}
	for _, n := range samples {
		if n < 1 {
			return fmt.Errorf("min-samples must be at least 1 (received %d)", n)
		}
	}
	cfg.SweepMinSamples = samples
	cfg.MinSamples = samples[0]
	return nil
}

// AlgorithmOverrides are per-request changes to a validated Config. Zero values keep the
// current setting.
type AlgorithmOverrides struct {
	Since      string
	Limit      int
	Perplexity string
	Epsilon    string
	MinSamples string
	Seed       int64
}

// RevalidateAlgorithm applies overrides to cfg with the same rules as ProcessAndValidate.
func RevalidateAlgorithm(cfg *Config, o AlgorithmOverrides) error {
	if o.Since != "" {
		since, err := ParseSince(o.Since, time.Now())
		if err != nil {
			return WrapConfiguration(err, "invalid time window")
		}
		cfg.Since = since
	}
	if o.Limit != 0 {
		if o.Limit < 0 || o.Limit > MaxMatchWindow {
			return ConfigurationError("limit must be greater than 0 and cannot exceed %d (received %d)", MaxMatchWindow, o.Limit)
		}
		cfg.Limit = o.Limit
	}
	if o.Perplexity != "" {
		if err := setPerplexities(cfg, o.Perplexity); err != nil {
			return WrapConfiguration(err, "invalid algorithm parameters")
		}
	}
	if o.Epsilon != "" {
		if err := setEpsilons(cfg, o.Epsilon); err != nil {
			return WrapConfiguration(err, "invalid algorithm parameters")
		}
	}
	if o.MinSamples != "" {
		if err := setMinSamples(cfg, o.MinSamples); err != nil {
			return WrapConfiguration(err, "invalid algorithm parameters")
		}
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	return nil
}

// processTimeWindow resolves the match cutoff.
func processTimeWindow(cfg *Config, input *ConfigRawInput) error {
	now := time.Now()
	since, err := ParseSince(input.Since, now)
	if err != nil {
		return err
	}
	if since.After(now) {
		return fmt.Errorf("since (%s) cannot be in the future", since.Format(DateTimeFormat))
	}
	cfg.Since = since
	return nil
}

// validateBackendConfigs validates source, sink, runs and cache backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Source Backend Validation ---
	cfg.SourceBackend = schema.DatabaseBackend(strings.ToLower(input.SourceBackend))
	if _, ok := schema.ValidSourceBackends[cfg.SourceBackend]; !ok {
		return fmt.Errorf("invalid source backend '%s'. must be sqlite, mysql, postgresql, mongodb, file", input.SourceBackend)
	}
	cfg.SourceConnect = input.SourceConnect
	if err := ValidateDatabaseConnectionString(cfg.SourceBackend, cfg.SourceConnect); err != nil {
		return err
	}
	if cfg.SourceBackend == schema.FileBackend && cfg.SourceConnect == "" {
		return fmt.Errorf("source-connect must name a JSON lines file when using the file backend")
	}
	cfg.SourceTable = strings.TrimSpace(input.SourceTable)
	if cfg.SourceTable == "" {
		cfg.SourceTable = DefaultMatchTable
	}
	cfg.SourceDatabase = strings.TrimSpace(input.SourceDB)

	// --- Sink Backend Validation ---
	cfg.SinkBackend = schema.DatabaseBackend(strings.ToLower(input.SinkBackend))
	if _, ok := schema.ValidSinkBackends[cfg.SinkBackend]; !ok {
		return fmt.Errorf("invalid sink backend '%s'. must be sqlite, mysql, postgresql, mongodb, none", input.SinkBackend)
	}
	cfg.SinkConnect = input.SinkConnect
	if err := ValidateDatabaseConnectionString(cfg.SinkBackend, cfg.SinkConnect); err != nil {
		return err
	}
	cfg.SinkDatabase = strings.TrimSpace(input.SinkDB)

	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if _, ok := schema.ValidStoreBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Runs Backend Validation ---
	cfg.RunsBackend = schema.DatabaseBackend(strings.ToLower(input.RunsBackend))
	if _, ok := schema.ValidStoreBackends[cfg.RunsBackend]; !ok {
		return fmt.Errorf("invalid runs backend '%s'. must be sqlite, mysql, postgresql, none", input.RunsBackend)
	}
	cfg.RunsDBConnect = input.RunsConnect
	if err := ValidateDatabaseConnectionString(cfg.RunsBackend, cfg.RunsDBConnect); err != nil {
		return err
	}

	// For SQLite, resolve to actual file paths to catch default path conflicts
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunsBackend == schema.SQLiteBackend {
		cachePath := cfg.CacheDBConnect
		if cachePath == "" {
			cachePath = GetCacheDBFilePath()
		}
		runsPath := cfg.RunsDBConnect
		if runsPath == "" {
			runsPath = GetRunsDBFilePath()
		}
		if cachePath == runsPath {
			return fmt.Errorf("cache and run storage must use different SQLite database files. Both resolve to %q", cachePath)
		}
	}
	return nil
}

func parseFloatList(s string) ([]float64, error) {
	var out []float64
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one value is required")
	}
	return out, nil
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one value is required")
	}
	return out, nil
}

// ProcessProfilingConfig enables profiling when a file prefix is given.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	profilePrefix = strings.TrimSpace(profilePrefix)
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
