package core

import (
	"context"
	"fmt"

	"github.com/pkmeta/metaspot/core/tsne"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// Projector embeds feature rows into the plane.
type Projector interface {
	Project(ctx context.Context, x [][]float64) ([]schema.Point, error)
	// Fingerprint identifies the parameters that affect the output. An empty fingerprint
	// disables projection caching.
	Fingerprint() string
}

// PerplexityTuner is a Projector that can be rebuilt with another neighborhood size.
// A sweep over several perplexities needs one.
type PerplexityTuner interface {
	WithPerplexity(perplexity float64) Projector
}

// TSNEProjector is the default Projector.
type TSNEProjector struct {
	Options tsne.Options
}

// NewTSNEProjector builds a projector from the run configuration.
func NewTSNEProjector(cfg *contract.Config) *TSNEProjector {
	opts := tsne.DefaultOptions()
	if cfg != nil {
		opts.Perplexity = cfg.Perplexity
		opts.MaxIter = cfg.MaxIter
		opts.Seed = cfg.Seed
		if cfg.Method != "" {
			opts.Method = tsne.Method(cfg.Method)
		}
	}
	return &TSNEProjector{Options: opts}
}

// Project implements Projector.
func (p *TSNEProjector) Project(ctx context.Context, x [][]float64) ([]schema.Point, error) {
	return tsne.Project(ctx, x, p.Options)
}

// WithPerplexity implements PerplexityTuner.
func (p *TSNEProjector) WithPerplexity(perplexity float64) Projector {
	o := p.Options
	o.Perplexity = perplexity
	return &TSNEProjector{Options: o}
}

// Fingerprint implements Projector.
func (p *TSNEProjector) Fingerprint() string {
	o := p.Options
	return fmt.Sprintf("tsne:%g:%d:%s:%s:%g:%g:%g:%d",
		o.Perplexity, o.MaxIter, o.Init, o.Method, o.Theta, o.EarlyExaggeration, o.LearningRate, o.Seed)
}
