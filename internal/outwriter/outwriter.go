// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the commands.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteReport prints a meta report using the configured output format.
func (ow *OutWriter) WriteReport(report *schema.MetaReport, cfg *contract.Config, duration time.Duration) error {
	return WriteReportResults(report, cfg, duration)
}

// WriteSweep prints the outcome of a parameter sweep using the configured output format.
func (ow *OutWriter) WriteSweep(results []schema.SweepResult, cfg *contract.Config, duration time.Duration) error {
	return WriteSweepResults(results, cfg, duration)
}
