// Package main provides a performance benchmarking tool for the metaspot CLI.
// It seeds JSON lines datasets of increasing size and measures run and sweep times,
// running each test multiple times, treating the first successful run as cold and averaging the rest as warm,
// generating CSV output for performance analysis and documentation.
//
// Prerequisites:
// - metaspot binary installed and available in PATH
// - Run from the project root so json/ reference files resolve
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Directory where the generated datasets are written
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Dataset     string
	Command     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir     string
	Timeout     time.Duration
	NoCacheRuns int
	CacheRuns   int
	Sizes       []int
	SweepArgs   []string
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir:     os.Args[1],
		Timeout:     10 * time.Minute,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Sizes:       []int{500, 2000, 5000, 10000},
		SweepArgs:   []string{"--epsilon", "2,3,4,5", "--min-samples", "5,10,20"},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that the metaspot binary and the work directory exist
func checkPrerequisites(config BenchmarkConfig) error {
	if _, err := exec.LookPath("metaspot"); err != nil {
		return fmt.Errorf("metaspot binary not found in PATH")
	}
	if _, err := os.Stat("json/type_pokemon.json"); err != nil {
		return fmt.Errorf("reference data not found, run from the project root: %w", err)
	}
	return os.MkdirAll(config.WorkDir, 0o755)
}

// runBenchmarks seeds every dataset and benchmarks the run and sweep commands on it
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d datasets, %v timeout, no-cache: %d runs, cache: %d runs\n",
		len(config.Sizes), config.Timeout, config.NoCacheRuns, config.CacheRuns)

	for _, size := range config.Sizes {
		dataset := fmt.Sprintf("matches-%d", size)
		path := filepath.Join(config.WorkDir, dataset+".jsonl")
		fmt.Printf("Seeding %s\n", dataset)
		if err := seedDataset(path, size); err != nil {
			fmt.Printf("Warning: failed to seed %s: %v\n", dataset, err)
			continue
		}

		sourceArgs := []string{"--source-backend", "file", "--source-connect", path, "--seed", "1"}
		results = append(results, runBenchmarkSuite(config, dataset, "run", "meta analysis", append(sourceArgs, "--sink-backend", "none")))
		results = append(results, runBenchmarkSuite(config, dataset, "sweep", "parameter sweep", append(sourceArgs, config.SweepArgs...)))
	}

	return results
}

// seedDataset writes a fresh JSON lines file with size generated matches
func seedDataset(path string, size int) error {
	_ = os.Remove(path)
	cmd := exec.Command("metaspot", "seed", "--source-backend", "file", "--source-connect", path,
		"--count", fmt.Sprint(size), "--since", "14 days", "--seed", "1", "--cache-backend", "none")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, dataset, command, description string, extraArgs []string) BenchmarkResult {
	fmt.Printf("Running %s on %s\n", description, dataset)

	// Helper to run a benchmark phase
	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, command, extraArgs, cacheBackend, numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avg := sum / float64(len(times))
			avgTime = fmt.Sprintf("%.3fs", avg)
		}
		return cold, avgTime
	}

	// Phase 1: No-cache runs
	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")

	// Phase 2: Cache runs on a private cache file so the first run is always cold
	cacheFile := filepath.Join(config.WorkDir, dataset+"-"+command+".cache.db")
	_ = os.Remove(cacheFile)
	coldTime, warmAvg := runPhase("sqlite:"+cacheFile, config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Dataset:     dataset,
		Command:     command,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes a metaspot command multiple times with specified cache backend and returns cold time and warm times.
// cacheBackend is either a backend name or "sqlite:<path>".
func runBenchmark(config BenchmarkConfig, command string, extraArgs []string, cacheBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	// Prepare command arguments
	args := []string{command}
	if backend, path, ok := strings.Cut(cacheBackend, ":"); ok {
		args = append(args, "--cache-backend", backend, "--cache-db-connect", path)
	} else {
		args = append(args, "--cache-backend", cacheBackend)
	}
	args = append(args, extraArgs...)

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("metaspot", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && isSuccess(output, command) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			// Timeout - don't add to times
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// isSuccess checks if command output indicates successful completion
func isSuccess(output []byte, command string) bool {
	outputStr := string(output)
	if command == "sweep" {
		return strings.Contains(outputStr, "Swept") && strings.Contains(outputStr, "combinations in")
	}
	return strings.Contains(outputStr, "completed in") && strings.Contains(outputStr, "Cache backend")
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/metaspot_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"dataset", "cmd", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Dataset, result.Command, result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")

	printCommandSummary(results, "run", "Meta Analysis:")
	printCommandSummary(results, "sweep", "Parameter Sweep:")

	fmt.Printf("Benchmark script completed successfully\n")
}

// printCommandSummary displays results for a specific command type
func printCommandSummary(results []BenchmarkResult, command, title string) {
	fmt.Printf("%s\n", title)
	for _, result := range results {
		if result.Command == command {
			fmt.Printf("  %-14s: No-cache: %s, Cold: %s, Warm: %s\n", result.Dataset, result.NoCacheTime, result.ColdTime, result.WarmTime)
		}
	}
}
