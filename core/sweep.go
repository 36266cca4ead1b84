package core

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/pkmeta/metaspot/core/dbscan"
	"github.com/pkmeta/metaspot/core/features"
	"github.com/pkmeta/metaspot/core/report"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

type sweepJob struct {
	index      int
	projection int
	epsilon    float64
	minSamples int
}

// projection is the embedding of the feature table under one perplexity.
type projection struct {
	perplexity float64
	points     []schema.Point
}

// ExecuteSweep fetches the matches once, projects them once per value of cfg.SweepPerplexities
// and clusters every projection for every combination of cfg.SweepEpsilons and cfg.SweepMinSamples.
// Results are ordered by perplexity, then epsilon, then min samples, each in the configured order.
// Nothing is written to the report sink.
func ExecuteSweep(ctx context.Context, cfg *contract.Config, deps Deps) ([]schema.SweepResult, error) {
	d := deps.withDefaults(cfg)
	if d.Source == nil || d.Reference == nil {
		return nil, contract.ConfigurationError("a match source and reference data are required")
	}
	if len(cfg.SweepEpsilons) == 0 || len(cfg.SweepMinSamples) == 0 {
		return nil, contract.ConfigurationError("sweep needs at least one epsilon and one min-samples value")
	}
	perplexities := cfg.SweepPerplexities
	if len(perplexities) == 0 {
		perplexities = []float64{cfg.Perplexity}
	}
	tuner, tunable := d.Projector.(PerplexityTuner)
	if len(perplexities) > 1 && !tunable {
		return nil, contract.ConfigurationError("projector %T cannot sweep perplexity", d.Projector)
	}

	prep, err := load(ctx, cfg, d)
	if err != nil {
		d.Metrics.MarkFailure(string(contract.ErrorKind(err)))
		return nil, err
	}

	projections := make([]projection, len(perplexities))
	for i, perplexity := range perplexities {
		pd := *d
		if tunable {
			pd.Projector = tuner.WithPerplexity(perplexity)
		}
		points, err := project(ctx, perplexity, &pd, prep.table)
		if err != nil {
			d.Metrics.MarkFailure(string(contract.ErrorKind(err)))
			return nil, err
		}
		projections[i] = projection{perplexity: perplexity, points: points}
	}

	jobs := make([]sweepJob, 0, len(projections)*len(cfg.SweepEpsilons)*len(cfg.SweepMinSamples))
	for p := range projections {
		for _, eps := range cfg.SweepEpsilons {
			for _, n := range cfg.SweepMinSamples {
				jobs = append(jobs, sweepJob{index: len(jobs), projection: p, epsilon: eps, minSamples: n})
			}
		}
	}

	results := make([]schema.SweepResult, len(jobs))
	errs := make([]error, len(jobs))
	jobCh := make(chan sweepJob, len(jobs))
	var wg sync.WaitGroup

	quiet := withSuppressProgress(ctx)
	for range min(runtime.GOMAXPROCS(0), len(jobs)) {
		wg.Go(func() {
			for job := range jobCh {
				results[job.index], errs[job.index] = sweepOne(quiet, prep.table, projections[job.projection], job)
			}
		})
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			d.Metrics.MarkFailure(string(contract.ErrorKind(err)))
			return nil, err
		}
		d.Logger.Info("sweep combination",
			zap.Float64("perplexity", results[i].Perplexity),
			zap.Float64("epsilon", results[i].Epsilon),
			zap.Int("min_samples", results[i].MinSamples),
			zap.Int("clusters", results[i].Clusters),
			zap.Int("reported", results[i].Reported),
			zap.Int("noise", results[i].NoisePoints))
	}
	return results, nil
}

func sweepOne(ctx context.Context, table *features.Table, proj projection, job sweepJob) (schema.SweepResult, error) {
	if err := ctx.Err(); err != nil {
		return schema.SweepResult{}, err
	}
	labels, err := dbscan.Cluster(proj.points, job.epsilon, job.minSamples)
	if err != nil {
		return schema.SweepResult{}, err
	}
	clusters, noise := dbscan.CountClusters(labels)
	entries, _, err := report.Build(table, labels, proj.points, report.DefaultOptions())
	if err != nil {
		return schema.SweepResult{}, err
	}
	ratio := 0.0
	if len(labels) > 0 {
		ratio = report.Round(100*float64(noise)/float64(len(labels)), report.DefaultDecimals)
	}
	return schema.SweepResult{
		Perplexity:  proj.perplexity,
		Epsilon:     job.epsilon,
		MinSamples:  job.minSamples,
		Clusters:    clusters,
		Reported:    len(entries),
		NoisePoints: noise,
		NoiseRatio:  ratio,
	}, nil
}
