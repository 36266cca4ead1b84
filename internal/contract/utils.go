package contract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Meta tier label constants.
const (
	DominantValue = "Dominant" // Dominant value
	StrongValue   = "Strong"   // Strong value
	ViableValue   = "Viable"   // Viable value
	NicheValue    = "Niche"    // Niche value
)

// Color variables for console output.
var (
	DominantColor = color.New(color.FgRed, color.Bold)     // DominantColor marks archetypes that define the meta.
	StrongColor   = color.New(color.FgMagenta, color.Bold) // StrongColor marks clearly popular archetypes.
	ViableColor   = color.New(color.FgYellow)              // ViableColor marks playable archetypes.
	NicheColor    = color.New(color.FgCyan)                // NicheColor marks rare archetypes.
)

// GetPlainLabel returns a plain text tier for an archetype based on its ratio of all matches.
// This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(ratio float64) string {
	switch {
	case ratio >= 20:
		return DominantValue
	case ratio >= 10:
		return StrongValue
	case ratio >= 5:
		return ViableValue
	default:
		return NicheValue
	}
}

// GetColorLabel returns a colored tier label for console output (table).
func GetColorLabel(ratio float64) string {
	text := GetPlainLabel(ratio)

	switch text {
	case DominantValue:
		return DominantColor.Sprint(text)
	case StrongValue:
		return StrongColor.Sprint(text)
	case ViableValue:
		return ViableColor.Sprint(text)
	default: // "Niche"
		return NicheColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
// Pipeline errors are printed with their kind so the user can tell configuration
// problems from data problems.
func LogFatal(msg string, err error) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		_, _ = fmt.Fprintf(os.Stderr, "❌ %s: %s\n", pe.Kind(), pe.Message())
		os.Exit(1)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for projection cache storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".metaspot_cache.db"
	}
	return filepath.Join(homeDir, ".metaspot_cache.db")
}

// GetRunsDBFilePath returns the path to the SQLite DB file for run tracking.
func GetRunsDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".metaspot_runs.db"
	}
	return filepath.Join(homeDir, ".metaspot_runs.db")
}

// GetMatchDBFilePath returns the path to the default SQLite match store, which is
// also where the report sink writes when it shares the sqlite backend.
func GetMatchDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".metaspot_matches.db"
	}
	return filepath.Join(homeDir, ".metaspot_matches.db")
}

// TruncateName truncates a label to a maximum width with an ellipsis suffix.
// Requires maxWidth > 3 to ensure there's space for both the "..." and at least one character.
func TruncateName(name string, maxWidth int) string {
	runes := []rune(name)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return name
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
