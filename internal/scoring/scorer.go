// Package scoring computes the compatibility score between a lost and a found
// pet report.
//
// The score is a plain sum of independent contributions (species, breed,
// color, markings, proximity, recency). Two reports of the same kind are
// never candidates and score negative infinity.
package scoring

import (
	"math"
	"time"

	"github.com/spigell/pawmatch/internal/geo"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/textmatch"
)

const day = 24 * time.Hour

// Incompatible is the score of a pair that must never be offered as a match.
var Incompatible = math.Inf(-1)

// Scorer is safe for concurrent use.
type Scorer struct {
	weights Weights
}

// New returns a scorer using w.
func New(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Default returns a scorer with DefaultWeights.
func Default() *Scorer {
	return New(DefaultWeights())
}

// Weights returns the weights the scorer was built with.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns the compatibility of a and b using the default weights.
func Score(a, b *report.Report) float64 {
	return Default().Score(a, b)
}

// Score returns the compatibility of a and b, or Incompatible.
func (s *Scorer) Score(a, b *report.Report) float64 {
	return s.Breakdown(a, b).Total()
}

// Breakdown describes every contribution of a scored pair.
type Breakdown struct {
	Incompatible bool `json:"incompatible,omitempty"`

	Species  float64 `json:"species"`
	Breed    float64 `json:"breed"`
	Color    float64 `json:"color"`
	Markings float64 `json:"markings"`

	Proximity float64 `json:"proximity"`
	// DistanceMeters is nil when either report lacks a usable coordinate.
	DistanceMeters *float64 `json:"distance_meters,omitempty"`

	Recency float64 `json:"recency"`
	// DaysApart is nil when either report lacks a usable instant.
	DaysApart *float64 `json:"days_apart,omitempty"`
}

// Total sums the contributions.
func (b Breakdown) Total() float64 {
	if b.Incompatible {
		return Incompatible
	}
	return b.Species + b.Breed + b.Color + b.Markings + b.Proximity + b.Recency
}

// Breakdown scores a and b term by term.
func (s *Scorer) Breakdown(a, b *report.Report) Breakdown {
	if a == nil || b == nil || !a.Kind.Valid() || !b.Kind.Valid() || a.Kind == b.Kind {
		return Breakdown{Incompatible: true}
	}

	w := s.weights
	var out Breakdown

	if textmatch.Equal(a.Species, b.Species) {
		out.Species = w.Species
	}
	if textmatch.Equal(a.Breed, b.Breed) {
		out.Breed = w.Breed
	}
	if textmatch.Overlap(a.Color, b.Color) {
		out.Color = w.Color
	}
	if textmatch.Overlap(a.Markings, b.Markings) {
		out.Markings = w.Markings
	}

	if pa, ok := a.Location(); ok {
		if pb, ok := b.Location(); ok {
			d := geo.Distance(pa, pb)
			out.DistanceMeters = &d
			out.Proximity = ProximityPoints(d, w)
		}
	}

	if ta, ok := a.Instant(); ok {
		if tb, ok := b.Instant(); ok {
			days := DaysApart(ta, tb)
			out.DaysApart = &days
			out.Recency = RecencyPoints(days, w)
		}
	}

	return out
}

// ProximityPoints decays linearly from w.Proximity at zero distance and never
// goes negative.
func ProximityPoints(meters float64, w Weights) float64 {
	perPoint := w.ProximityMetersPerPoint
	if perPoint <= 0 {
		perPoint = DefaultProximityMetersPerPoint
	}
	return math.Max(0, w.Proximity-meters/perPoint)
}

// RecencyPoints decays linearly from w.Recency at zero days and never goes
// negative.
func RecencyPoints(days float64, w Weights) float64 {
	return math.Max(0, w.Recency-w.RecencyPointsPerDay*days)
}

// DaysApart returns the absolute, fractional number of days between a and b.
func DaysApart(a, b time.Time) float64 {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	return float64(delta) / float64(day)
}
