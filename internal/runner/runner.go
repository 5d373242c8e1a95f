// Package runner drives the batch: selects records from a capture and
// processes each through the minimizer under bounded concurrency.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/internal/filtering"
	"github.com/usestring/harslim/internal/minimize"
	"github.com/usestring/harslim/pkg/har"
)

// Runner processes selected capture records.
type Runner struct {
	cfg       *config.Config
	selector  *filtering.Selector
	minimizer *minimize.Minimizer
}

// New builds a runner over an already-constructed minimizer.
func New(cfg *config.Config, selector *filtering.Selector, minimizer *minimize.Minimizer) *Runner {
	return &Runner{cfg: cfg, selector: selector, minimizer: minimizer}
}

// Select returns the records the configured criteria admit, in capture
// order.
func (r *Runner) Select(capture *har.Capture) []*har.RequestRecord {
	return r.selector.Select(capture.Records())
}

// Run minimizes every selected record. A failed record (dead baseline,
// failed cross-validation) yields an unmatched result and never aborts
// the batch; results keep capture order. The error is non-nil only when
// the context is cancelled.
func (r *Runner) Run(ctx context.Context, capture *har.Capture) ([]*har.ProcessedRequest, error) {
	records := r.Select(capture)
	slog.Info("starting batch",
		slog.Int("total", len(capture.Records())),
		slog.Int("selected", len(records)),
		slog.Int("concurrency", r.workers()),
	)

	start := time.Now()
	results := make([]*har.ProcessedRequest, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i, rec := range records {
		i, rec := i, rec

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			baseline, outcome := r.minimizer.Minimize(ctx, rec)
			results[i] = &har.ProcessedRequest{Record: rec, Baseline: baseline, Outcome: outcome}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logSummary(results, time.Since(start))
	return results, nil
}

func (r *Runner) workers() int {
	if r.cfg.Concurrency > 1 {
		return r.cfg.Concurrency
	}
	return 1
}

func (r *Runner) logSummary(results []*har.ProcessedRequest, elapsed time.Duration) {
	var matched, headersRemoved int
	var bodyBytesRemoved uint64
	for _, p := range results {
		if p == nil || p.Outcome == nil {
			continue
		}
		if !p.Outcome.Matched {
			continue
		}
		matched++
		headersRemoved += len(p.Record.Headers) - p.Outcome.FinalHeaders
		if p.Record.Body != nil && p.Outcome.Body != nil {
			if saved := len(*p.Record.Body) - len(*p.Outcome.Body); saved > 0 {
				bodyBytesRemoved += uint64(saved)
			}
		}
	}
	slog.Info("batch complete",
		slog.Int("processed", len(results)),
		slog.Int("matched", matched),
		slog.Int("headers_removed", headersRemoved),
		slog.String("body_removed", humanize.Bytes(bodyBytesRemoved)),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
}
