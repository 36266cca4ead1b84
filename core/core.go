// Package core wires the meta analysis pipeline: fetch, extract, project, cluster and report.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkmeta/metaspot/core/dbscan"
	"github.com/pkmeta/metaspot/core/features"
	"github.com/pkmeta/metaspot/core/report"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/metrics"
	"github.com/pkmeta/metaspot/internal/reference"
	"github.com/pkmeta/metaspot/schema"
)

// Stage names used in progress logs and metrics.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageProject = "project"
	StageCluster = "cluster"
	StageReport  = "report"
	StageSink    = "sink"
)

// Deps are the collaborators of a run. Source and Reference are required; every other field
// may be left nil.
type Deps struct {
	Source    contract.MatchSource
	Sink      contract.ReportSink
	Reference *reference.Data
	Cache     contract.CacheManager
	Projector Projector
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

func (d *Deps) withDefaults(cfg *contract.Config) *Deps {
	out := *d
	if out.Logger == nil {
		out.Logger = contract.NopLogger()
	}
	if out.Metrics == nil {
		out.Metrics = metrics.NewRecorder()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.NewID == nil {
		out.NewID = uuid.NewString
	}
	if out.Projector == nil {
		out.Projector = NewTSNEProjector(cfg)
	}
	return &out
}

// prepared is the shared front half of a run: the matches, their features and their projection.
type prepared struct {
	matches []schema.MatchRecord
	table   *features.Table
	points  []schema.Point
}

// RunMetaAnalysis runs the whole pipeline once and replaces the named report in the sink.
// Any error aborts the run before the sink is touched.
func RunMetaAnalysis(ctx context.Context, cfg *contract.Config, deps Deps) (*schema.MetaReport, error) {
	d := deps.withDefaults(cfg)
	if d.Source == nil || d.Reference == nil {
		return nil, contract.ConfigurationError("a match source and reference data are required")
	}
	start := d.Now()

	var runs contract.RunStore
	if d.Cache != nil {
		runs = d.Cache.GetRunStore()
	}
	runID := beginRun(runs, cfg, start)
	if runID > 0 {
		ctx = withRunID(ctx, runID)
	}

	result, err := runPipeline(ctx, cfg, d)
	endRun(runs, runID, d.Now(), result, err)

	if err != nil {
		d.Metrics.MarkFailure(string(contract.ErrorKind(err)))
		pushMetrics(ctx, cfg, d)
		return nil, err
	}

	d.Metrics.MarkSuccess(d.Now())
	pushMetrics(ctx, cfg, d)
	logStage(ctx, d.Logger, "meta analysis complete",
		zap.String("report_id", result.ReportID),
		zap.Int("archetypes", len(result.Entries)),
		zap.Duration("elapsed", d.Now().Sub(start)))
	return result, nil
}

func runPipeline(ctx context.Context, cfg *contract.Config, d *Deps) (*schema.MetaReport, error) {
	prep, err := prepare(ctx, cfg, d)
	if err != nil {
		return nil, err
	}

	logStage(ctx, d.Logger, "applying DBSCAN", zap.Float64("epsilon", cfg.Epsilon), zap.Int("min_samples", cfg.MinSamples))
	t := d.Now()
	labels, err := dbscan.Cluster(prep.points, cfg.Epsilon, cfg.MinSamples)
	if err != nil {
		return nil, err
	}
	clusters, noise := dbscan.CountClusters(labels)
	d.Metrics.ObserveStage(StageCluster, d.Now().Sub(t))
	d.Metrics.ObserveClusters(clusters, noise, len(labels))

	logStage(ctx, d.Logger, "create meta report", zap.Int("clusters", clusters), zap.Int("noise", noise))
	t = d.Now()
	opts := report.DefaultOptions()
	opts.ReportID = d.NewID()
	opts.Synergies = d.Reference
	entries, skipped, err := report.Build(prep.table, labels, prep.points, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		logStage(ctx, d.Logger, fmt.Sprintf("skip undefined cluster %d with size %d", s.ClusterID, s.Size))
	}
	d.Metrics.ObserveStage(StageReport, d.Now().Sub(t))
	d.Metrics.ObserveReport(len(entries), len(skipped))

	result := &schema.MetaReport{
		ReportID:     opts.ReportID,
		Name:         cfg.ReportName,
		GeneratedAt:  d.Now(),
		Since:        cfg.Since,
		TotalMatches: len(prep.matches),
		Clusters:     clusters,
		NoisePoints:  noise,
		Entries:      entries,
		Skipped:      skipped,
	}

	if d.Sink != nil {
		logStage(ctx, d.Logger, "write report", zap.String("collection", cfg.ReportName))
		t = d.Now()
		if err := d.Sink.ReplaceReport(ctx, cfg.ReportName, entries); err != nil {
			if contract.ErrorKind(err) == "" {
				err = contract.DataSourceError(err, "replace report %q", cfg.ReportName)
			}
			return nil, err
		}
		d.Metrics.ObserveStage(StageSink, d.Now().Sub(t))
	}

	if runs := runStore(d); runs != nil {
		if id := runIDFromContext(ctx); id > 0 {
			if err := runs.RecordClusters(id, entries); err != nil {
				contract.LogWarn("Failed to record run clusters", err)
			}
		}
	}
	return result, nil
}

// prepare fetches the matches, builds their features and projects the category columns.
func prepare(ctx context.Context, cfg *contract.Config, d *Deps) (*prepared, error) {
	prep, err := load(ctx, cfg, d)
	if err != nil {
		return nil, err
	}
	if prep.points, err = project(ctx, cfg.Perplexity, d, prep.table); err != nil {
		return nil, err
	}
	return prep, nil
}

// load fetches the matches and builds their feature table.
func load(ctx context.Context, cfg *contract.Config, d *Deps) (*prepared, error) {
	logStage(ctx, d.Logger, "load matches", zap.Time("since", cfg.Since), zap.Int("limit", cfg.Limit))
	t := d.Now()
	matches, err := d.Source.FetchMatches(ctx, cfg.Since, cfg.Limit)
	if err != nil {
		if contract.ErrorKind(err) == "" {
			err = contract.DataSourceError(err, "fetch matches")
		}
		return nil, err
	}
	d.Metrics.ObserveStage(StageFetch, d.Now().Sub(t))

	logStage(ctx, d.Logger, "creating feature table", zap.Int("matches", len(matches)))
	t = d.Now()
	table, err := features.Extract(matches, d.Reference)
	if err != nil {
		return nil, err
	}
	d.Metrics.ObserveStage(StageExtract, d.Now().Sub(t))
	d.Metrics.ObserveMatches(len(matches), table.Schema.Width())

	return &prepared{matches: matches, table: table}, nil
}

// project embeds the category columns of table with d.Projector.
func project(ctx context.Context, perplexity float64, d *Deps, table *features.Table) ([]schema.Point, error) {
	logStage(ctx, d.Logger, "applying t-SNE",
		zap.Int("categories", len(table.Schema.Categories)),
		zap.Float64("perplexity", perplexity))
	t := d.Now()
	points, err := cachedProjection(ctx, d, table)
	if err != nil {
		return nil, err
	}
	if len(points) != table.Len() {
		return nil, contract.AlignmentError("%d projected points for %d feature rows", len(points), table.Len())
	}
	d.Metrics.ObserveStage(StageProject, d.Now().Sub(t))
	return points, nil
}

func runStore(d *Deps) contract.RunStore {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.GetRunStore()
}

func logStage(ctx context.Context, logger *zap.Logger, msg string, fields ...zap.Field) {
	if shouldSuppressProgress(ctx) {
		return
	}
	logger.Info(msg, fields...)
}

func pushMetrics(ctx context.Context, cfg *contract.Config, d *Deps) {
	if err := d.Metrics.Push(ctx, cfg.PushgatewayURL, cfg.ReportName); err != nil {
		contract.LogWarn("Metrics push failed", err)
	}
}
