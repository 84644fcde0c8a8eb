package usecase

import (
	"context"

	"github.com/naka-gawa/mrnag/internal/config"
	"github.com/naka-gawa/mrnag/internal/domain"
	"github.com/naka-gawa/mrnag/internal/formatter"
)

// Report is the outcome of one run: the filtered result and its rendering.
type Report struct {
	Result      domain.AggregationResult
	Payload     []byte
	ContentType string
}

// Runner chains aggregation, filtering, and rendering.
type Runner struct {
	aggregator *Aggregator
	formatters *formatter.Registry
}

// NewRunner creates a Runner. A nil registry means formatter.DefaultRegistry.
func NewRunner(aggregator *Aggregator, formatters *formatter.Registry) *Runner {
	if formatters == nil {
		formatters = formatter.DefaultRegistry()
	}
	return &Runner{aggregator: aggregator, formatters: formatters}
}

// Run aggregates cfg, applies filters and renders the result as format.
// An unknown format is reported before any forge is contacted.
func (r *Runner) Run(ctx context.Context, cfg *config.Config, filters []Filter, format string, opts formatter.Options) (Report, error) {
	f, err := r.formatters.Get(format)
	if err != nil {
		return Report{}, err
	}

	result := Apply(filters, r.aggregator.Aggregate(ctx, cfg))
	payload, err := f.Render(result, opts)
	if err != nil {
		return Report{Result: result}, err
	}
	return Report{Result: result, Payload: payload, ContentType: f.ContentType()}, nil
}
