package matching

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spigell/pawmatch/internal/ai"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
)

// Key identifies a lost/found pair.
type Key struct {
	LostID  string `json:"lost_id"`
	FoundID string `json:"found_id"`
}

func (k Key) String() string {
	return k.LostID + "/" + k.FoundID
}

// PhotoMatch holds the perceptual comparison of both photos.
type PhotoMatch struct {
	LostHash  string `json:"lost_hash,omitempty"`
	FoundHash string `json:"found_hash,omitempty"`
	// Distance is nil when either photo could not be hashed.
	Distance *int   `json:"distance,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Candidate is a scored lost/found pair.
type Candidate struct {
	Lost      *report.Report    `json:"-"`
	Found     *report.Report    `json:"-"`
	Score     float64           `json:"score"`
	Breakdown scoring.Breakdown `json:"breakdown"`
	Photo     *PhotoMatch       `json:"photo,omitempty"`
	Review    *ai.Assessment    `json:"review,omitempty"`
}

func (c *Candidate) Key() Key {
	return Key{LostID: c.Lost.ID, FoundID: c.Found.ID}
}

// Candidates is an ordered list of scored pairs.
type Candidates struct {
	Items []*Candidate
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Sort orders candidates by descending score, then by lost ID and found ID.
func (c *Candidates) Sort() {
	slices.SortStableFunc(c.Items, func(a, b *Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if n := strings.Compare(a.Lost.ID, b.Lost.ID); n != 0 {
			return n
		}
		return strings.Compare(a.Found.ID, b.Found.ID)
	})
}

func (c *Candidates) Keys() []Key {
	keys := make([]Key, 0, c.Len())
	for _, candidate := range c.Items {
		keys = append(keys, candidate.Key())
	}
	return keys
}

// Find returns the candidate for key or nil.
func (c *Candidates) Find(key Key) *Candidate {
	for _, candidate := range c.Items {
		if candidate.Key() == key {
			return candidate
		}
	}
	return nil
}

// Exclude removes the listed pairs and returns the keys actually removed.
// Order of the remaining candidates is preserved.
func (c *Candidates) Exclude(keys []Key) []Key {
	if len(keys) == 0 {
		return nil
	}

	targets := make(map[Key]struct{}, len(keys))
	for _, key := range keys {
		targets[key] = struct{}{}
	}

	return c.Retain(func(candidate *Candidate) bool {
		_, drop := targets[candidate.Key()]
		return !drop
	})
}

// Retain keeps candidates for which keep returns true and returns the keys
// of the dropped ones.
func (c *Candidates) Retain(keep func(*Candidate) bool) []Key {
	var dropped []Key
	kept := c.Items[:0]
	for _, candidate := range c.Items {
		if keep(candidate) {
			kept = append(kept, candidate)
			continue
		}
		dropped = append(dropped, candidate.Key())
	}
	clear(c.Items[len(kept):])
	c.Items = kept
	return dropped
}

// TopPerLost keeps the first n candidates of every lost report in the current
// order. Non-positive n keeps everything.
func (c *Candidates) TopPerLost(n int) []Key {
	if n <= 0 {
		return nil
	}

	seen := make(map[string]int)
	return c.Retain(func(candidate *Candidate) bool {
		seen[candidate.Lost.ID]++
		return seen[candidate.Lost.ID] <= n
	})
}

// ReportByLost groups candidates by lost report for display. Only public
// coordinates are shown.
func (c *Candidates) ReportByLost() map[string][]map[string]string {
	out := make(map[string][]map[string]string)
	for _, candidate := range c.Items {
		key := fmt.Sprintf("%s (%s)", displayName(candidate.Lost), candidate.Lost.ID)

		entry := map[string]string{
			"found":    fmt.Sprintf("%s (%s)", displayName(candidate.Found), candidate.Found.ID),
			"score":    strconv.FormatFloat(candidate.Score, 'f', 1, 64),
			"species":  candidate.Found.Species,
			"breed":    candidate.Found.Breed,
			"color":    candidate.Found.Color,
			"distance": "unknown",
			"days":     "unknown",
		}
		if d := candidate.Breakdown.DistanceMeters; d != nil {
			entry["distance"] = fmt.Sprintf("%.0f m", *d)
		}
		if d := candidate.Breakdown.DaysApart; d != nil {
			entry["days"] = strconv.FormatFloat(*d, 'f', 1, 64)
		}
		if candidate.Found.HasPublicLocation() {
			p, _ := candidate.Found.Location()
			entry["location"] = fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
		}
		if photo := candidate.Photo; photo != nil {
			switch {
			case photo.Distance != nil:
				entry["photo distance"] = strconv.Itoa(*photo.Distance)
			case photo.Error != "":
				entry["photo error"] = photo.Error
			}
		}
		if review := candidate.Review; review != nil {
			if review.Error != "" {
				entry["ai error"] = review.Error
			} else {
				entry["ai"] = fmt.Sprintf("same=%t confidence=%.2f %s", review.Same, review.Confidence, review.Reason)
			}
		}

		out[key] = append(out[key], entry)
	}
	return out
}

func displayName(r *report.Report) string {
	for _, v := range []string{r.Name, r.Breed, r.Species} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "unnamed"
}

type dumpEntry struct {
	Key
	*Candidate
}

// DumpToTmpFile writes the candidates as indented JSON into a new temp file
// and returns its path.
func (c *Candidates) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "pawmatch_candidates_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	entries := make([]dumpEntry, 0, c.Len())
	for _, candidate := range c.Items {
		entries = append(entries, dumpEntry{Key: candidate.Key(), Candidate: candidate})
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return "", err
	}
	return file.Name(), nil
}
