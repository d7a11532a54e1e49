package geo

import (
	"math"
	"math/rand/v2"
)

const (
	// DefaultObfuscationRadius is the maximum displacement applied to a public coordinate.
	DefaultObfuscationRadius = 300.0

	// metersPerDegree is the length of one degree of arc on the sphere used by
	// Distance.
	metersPerDegree = EarthRadius * math.Pi / 180

	// roundingSlack covers the six-decimal rounding applied to both axes.
	roundingSlack = 0.1

	// shrinkSteps bounds the retries that pull an outlying draw back inside the disk.
	shrinkSteps  = 64
	shrinkFactor = 0.98

	// minMeridianScale keeps the longitude correction finite at the poles.
	minMeridianScale = 1e-6

	outputPrecision = 1e6
)

// Obfuscator draws a uniformly random point inside a disk around a coordinate.
type Obfuscator struct {
	// Radius is the disk radius in meters. Zero or negative means DefaultObfuscationRadius.
	Radius float64
	// Float returns a uniform number in [0, 1). Nil means math/rand/v2.Float64.
	Float func() float64
}

// Obfuscate displaces p by a random offset of at most DefaultObfuscationRadius meters.
func Obfuscate(p Point) Point {
	return Obfuscator{}.Obfuscate(p)
}

// Obfuscate displaces p inside the configured disk. The result is rounded to six
// decimal places and always a valid coordinate.
func (o Obfuscator) Obfuscate(p Point) Point {
	radius := o.Radius
	if radius <= 0 {
		radius = DefaultObfuscationRadius
	}
	uniform := o.Float
	if uniform == nil {
		uniform = rand.Float64
	}

	u, v := uniform(), uniform()
	meters := math.Max(0, radius-roundingSlack) * math.Sqrt(u)
	theta := 2 * math.Pi * v

	// Near the poles the flat offset can land farther than radius once
	// clamped, so every draw is checked against Distance.
	for i := 0; i < shrinkSteps; i++ {
		q := displace(p, meters/metersPerDegree, theta)
		if Distance(p, q) <= radius {
			return q
		}
		meters *= shrinkFactor
	}

	return Point{Lat: round(clampLat(p.Lat)), Lon: round(wrapLon(p.Lon))}
}

// displace moves p by r degrees of arc in direction theta, measured
// counterclockwise from east.
func displace(p Point, r, theta float64) Point {
	scale := math.Cos(radians(p.Lat))
	if math.Abs(scale) < minMeridianScale {
		scale = minMeridianScale
	}

	lat := p.Lat + r*math.Sin(theta)
	lon := p.Lon + r*math.Cos(theta)/scale

	return Point{
		Lat: round(clampLat(lat)),
		Lon: round(wrapLon(lon)),
	}
}

func round(v float64) float64 {
	return math.Round(v*outputPrecision) / outputPrecision
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
