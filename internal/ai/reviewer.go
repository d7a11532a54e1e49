package ai

import (
	"context"

	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
)

// Assessment is a model's opinion on whether a lost and a found report
// describe the same animal.
type Assessment struct {
	Same       bool    `json:"same"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Raw        string  `json:"-"`
	Error      string  `json:"error,omitempty"`
}

type Reviewer interface {
	Review(ctx context.Context, lost, found *report.Report, breakdown scoring.Breakdown) (*Assessment, error)
}
