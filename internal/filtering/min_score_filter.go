package filtering

import (
	"context"
	"strconv"

	"github.com/spigell/pawmatch/internal/matching"
)

type minScoreFilter struct {
	threshold float64
	enabled   bool
	reason    string
}

// NewMinScore drops candidates scoring below threshold. A non-positive
// threshold disables the step.
func NewMinScore(threshold float64) Filter {
	f := &minScoreFilter{threshold: threshold, enabled: threshold > 0}
	if !f.enabled {
		f.reason = "no threshold configured"
	}
	return f
}

func (f *minScoreFilter) Name() string { return "min_score" }

func (f *minScoreFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *minScoreFilter) IsEnabled() bool { return f.enabled }

func (f *minScoreFilter) Validate() error { return nil }

func (f *minScoreFilter) Apply(_ context.Context, c *matching.Candidates) (*matching.Candidates, Step, error) {
	initial := c.Len()
	c.Retain(func(candidate *matching.Candidate) bool {
		return candidate.Score >= f.threshold
	})
	return c, stepOf(initial, c), nil
}

func (f *minScoreFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.enabled,
		Reason:  f.reason,
		Details: map[string]string{"threshold": strconv.FormatFloat(f.threshold, 'f', -1, 64)},
	}
}
