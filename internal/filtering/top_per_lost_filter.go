package filtering

import (
	"context"
	"strconv"

	"github.com/spigell/pawmatch/internal/matching"
)

type topPerLostFilter struct {
	n       int
	enabled bool
	reason  string
}

// NewTopPerLost keeps the n best candidates of every lost report.
func NewTopPerLost(n int) Filter {
	f := &topPerLostFilter{n: n, enabled: n > 0}
	if !f.enabled {
		f.reason = "no limit configured"
	}
	return f
}

func (f *topPerLostFilter) Name() string { return "top_per_lost" }

func (f *topPerLostFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *topPerLostFilter) IsEnabled() bool { return f.enabled }

func (f *topPerLostFilter) Validate() error { return nil }

func (f *topPerLostFilter) Apply(_ context.Context, c *matching.Candidates) (*matching.Candidates, Step, error) {
	initial := c.Len()
	c.Sort()
	c.TopPerLost(f.n)
	return c, stepOf(initial, c), nil
}

func (f *topPerLostFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.enabled,
		Reason:  f.reason,
		Details: map[string]string{"top": strconv.Itoa(f.n)},
	}
}
