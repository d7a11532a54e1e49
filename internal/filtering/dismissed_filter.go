package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/matching"
)

type dismissedFilter struct {
	path   string
	logger *zap.Logger
}

// NewDismissed removes pairs recorded in the dismissed-pairs file at path.
func NewDismissed(path string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dismissedFilter{path: strings.TrimSpace(path), logger: logger}
}

func (f *dismissedFilter) Name() string { return "dismissed" }

func (f *dismissedFilter) Disable(string) {}

func (f *dismissedFilter) IsEnabled() bool { return true }

func (f *dismissedFilter) Validate() error { return nil }

func (f *dismissedFilter) Apply(_ context.Context, c *matching.Candidates) (*matching.Candidates, Step, error) {
	initial := c.Len()
	if f.path == "" {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	dismissed, err := matching.LoadDismissedPairs(f.path)
	if err != nil {
		return c, Step{}, fmt.Errorf("getting dismissed pairs from file: %w", err)
	}

	removed := c.Exclude(dismissed.Keys())
	if len(removed) > 0 {
		f.logger.Info("excluding candidates based on dismissed pairs file",
			zap.String("path", f.path),
			zap.Strings("excluded_pairs", keyStrings(removed)),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(removed), Left: c.Len()}, nil
}

func (f *dismissedFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
