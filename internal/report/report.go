// Package report describes the lost and found pet reports consumed by the matcher.
package report

import (
	"strings"
	"time"

	"github.com/spigell/pawmatch/internal/geo"
)

// Kind tells whether a report describes a missing or a recovered animal.
type Kind string

const (
	KindLost  Kind = "lost"
	KindFound Kind = "found"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindLost || k == KindFound
}

// ParseKind normalizes a free-form kind value.
func ParseKind(s string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(s)))
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Report is a read-only lost or found record. Optional numeric fields are nil
// when absent.
type Report struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name,omitempty"`
	Species  string `json:"species,omitempty"`
	Breed    string `json:"breed,omitempty"`
	Color    string `json:"color,omitempty"`
	Markings string `json:"markings,omitempty"`
	Address  string `json:"address,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`

	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	PublicLatitude  *float64 `json:"publicLatitude,omitempty"`
	PublicLongitude *float64 `json:"publicLongitude,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	LastSeen  string     `json:"lastSeen,omitempty"`
	DateFound string     `json:"dateFound,omitempty"`
}

// Location returns the coordinate other users may see: the public pair when
// it is usable, otherwise the raw pair. Every reader of report coordinates
// goes through here so the raw location never leaks when a public one exists.
func (r *Report) Location() (geo.Point, bool) {
	if r == nil {
		return geo.Point{}, false
	}
	if p, ok := pair(r.PublicLatitude, r.PublicLongitude); ok {
		return p, true
	}
	return pair(r.Latitude, r.Longitude)
}

// HasPublicLocation reports whether an obfuscated coordinate is available.
func (r *Report) HasPublicLocation() bool {
	if r == nil {
		return false
	}
	_, ok := pair(r.PublicLatitude, r.PublicLongitude)
	return ok
}

// Instant resolves the moment the report refers to: the creation time when
// known, otherwise the kind-specific date string.
func (r *Report) Instant() (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	if r.CreatedAt != nil && !r.CreatedAt.IsZero() {
		return r.CreatedAt.UTC(), true
	}

	var fallback string
	switch r.Kind {
	case KindLost:
		fallback = r.LastSeen
	case KindFound:
		fallback = r.DateFound
	}

	return ParseDate(fallback)
}

// ParseDate parses a calendar date or timestamp string. Values without a zone
// are interpreted in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func pair(lat, lon *float64) (geo.Point, bool) {
	if lat == nil || lon == nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: *lat, Lon: *lon}
	if !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}
