// Package matching pairs lost reports with found reports and ranks the pairs
// by similarity.
package matching

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
)

type Options struct {
	// Workers bounds concurrently scored lost reports. Zero means runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
}

// Rank scores every lost/found pair and returns the compatible ones sorted
// by descending score.
func Rank(ctx context.Context, scorer *scoring.Scorer, lost, found []*report.Report, opts Options) (*Candidates, error) {
	if scorer == nil {
		scorer = scoring.Default()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	perLost := make([][]*Candidate, len(lost))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, l := range lost {
		if l == nil {
			continue
		}
		g.Go(func() error {
			var out []*Candidate
			for _, f := range found {
				if err := gctx.Err(); err != nil {
					return err
				}
				if f == nil {
					continue
				}

				breakdown := scorer.Breakdown(l, f)
				if breakdown.Incompatible {
					continue
				}
				out = append(out, &Candidate{
					Lost:      l,
					Found:     f,
					Score:     breakdown.Total(),
					Breakdown: breakdown,
				})
			}
			perLost[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, items := range perLost {
		total += len(items)
	}

	candidates := &Candidates{Items: make([]*Candidate, 0, total)}
	for _, items := range perLost {
		candidates.Items = append(candidates.Items, items...)
	}
	candidates.Sort()

	log.Debug("ranked candidates",
		zap.Int("lost", len(lost)),
		zap.Int("found", len(found)),
		zap.Int("candidates", candidates.Len()),
		zap.Int("workers", workers),
	)

	return candidates, nil
}
