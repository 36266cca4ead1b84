// Package schema holds the plain data types shared across metaspot.
package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents a storage backend for matches, reports, runs or the cache.
	DatabaseBackend string
)

// All output modes supported.
const (
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	CSVOut     OutputMode = "csv"
	XLSXOut    OutputMode = "xlsx"
	ParquetOut OutputMode = "parquet"
)

// All backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	MongoDBBackend    DatabaseBackend = "mongodb"
	FileBackend       DatabaseBackend = "file"
	NoneBackend       DatabaseBackend = "none"
)

// NoiseClusterID is the label DBSCAN gives to points outside every dense region.
const NoiseClusterID = -1

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut:    {},
	JSONOut:    {},
	CSVOut:     {},
	XLSXOut:    {},
	ParquetOut: {},
}

// ValidSourceBackends lists the backends that can supply match records.
var ValidSourceBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	MongoDBBackend:    {},
	FileBackend:       {},
}

// ValidSinkBackends lists the backends that can receive a meta report.
var ValidSinkBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	MongoDBBackend:    {},
	NoneBackend:       {},
}

// ValidStoreBackends lists the SQL backends usable for run tracking and the projection cache.
var ValidStoreBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// IsSQL reports whether the backend is served through database/sql.
func (b DatabaseBackend) IsSQL() bool {
	switch b {
	case SQLiteBackend, MySQLBackend, PostgreSQLBackend:
		return true
	default:
		return false
	}
}
