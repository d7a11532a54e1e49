package scoring

import (
	"errors"
	"fmt"
)

// Default contribution of each signal. These are fixed heuristics, not
// calibrated values.
const (
	DefaultSpeciesWeight  = 50.0
	DefaultBreedWeight    = 30.0
	DefaultColorWeight    = 20.0
	DefaultMarkingsWeight = 10.0

	// DefaultProximityWeight is awarded at zero distance and loses one point
	// every DefaultProximityMetersPerPoint meters.
	DefaultProximityWeight         = 30.0
	DefaultProximityMetersPerPoint = 100.0

	// DefaultRecencyWeight is awarded for same-instant reports and loses
	// DefaultRecencyPointsPerDay points per day apart.
	DefaultRecencyWeight       = 20.0
	DefaultRecencyPointsPerDay = 2.0
)

// Weights configures the additive heuristic.
type Weights struct {
	Species  float64 `mapstructure:"species" json:"species"`
	Breed    float64 `mapstructure:"breed" json:"breed"`
	Color    float64 `mapstructure:"color" json:"color"`
	Markings float64 `mapstructure:"markings" json:"markings"`

	Proximity               float64 `mapstructure:"proximity" json:"proximity"`
	ProximityMetersPerPoint float64 `mapstructure:"proximity-meters-per-point" json:"proximity_meters_per_point"`

	Recency             float64 `mapstructure:"recency" json:"recency"`
	RecencyPointsPerDay float64 `mapstructure:"recency-points-per-day" json:"recency_points_per_day"`
}

// DefaultWeights returns the stock 50/30/20/10/30/20 policy.
func DefaultWeights() Weights {
	return Weights{
		Species:                 DefaultSpeciesWeight,
		Breed:                   DefaultBreedWeight,
		Color:                   DefaultColorWeight,
		Markings:                DefaultMarkingsWeight,
		Proximity:               DefaultProximityWeight,
		ProximityMetersPerPoint: DefaultProximityMetersPerPoint,
		Recency:                 DefaultRecencyWeight,
		RecencyPointsPerDay:     DefaultRecencyPointsPerDay,
	}
}

// Max is the highest score attainable with these weights.
func (w Weights) Max() float64 {
	return w.Species + w.Breed + w.Color + w.Markings + w.Proximity + w.Recency
}

// Validate rejects negative weights and non-positive decay rates.
func (w Weights) Validate() error {
	var errs []error

	named := []struct {
		name  string
		value float64
	}{
		{"species", w.Species},
		{"breed", w.Breed},
		{"color", w.Color},
		{"markings", w.Markings},
		{"proximity", w.Proximity},
		{"recency", w.Recency},
		{"recency-points-per-day", w.RecencyPointsPerDay},
	}
	for _, n := range named {
		if n.value < 0 {
			errs = append(errs, fmt.Errorf("%s weight must not be negative, got %v", n.name, n.value))
		}
	}

	if w.ProximityMetersPerPoint <= 0 {
		errs = append(errs, fmt.Errorf("proximity-meters-per-point must be positive, got %v", w.ProximityMetersPerPoint))
	}

	return errors.Join(errs...)
}
