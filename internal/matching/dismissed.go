package matching

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

const (
	DismissedByUser = "user"
	DismissedByAI   = "ai"
)

// DismissedPairs is the persisted list of pairs an operator or the AI
// reviewer ruled out.
type DismissedPairs struct {
	Items []*DismissedPair `json:"items"`
}

type DismissedPair struct {
	LostID      string    `json:"lost_id"`
	FoundID     string    `json:"found_id"`
	DismissedBy string    `json:"dismissed_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DismissedAt time.Time `json:"dismissed_at"`
}

// ToDismissed converts the candidates into dismissal records.
func (c *Candidates) ToDismissed(actor, reason string) *DismissedPairs {
	dismissed := &DismissedPairs{}
	now := time.Now().UTC()
	for _, candidate := range c.Items {
		dismissed.Items = append(dismissed.Items, &DismissedPair{
			LostID:      candidate.Lost.ID,
			FoundID:     candidate.Found.ID,
			DismissedBy: actor,
			Reason:      reason,
			DismissedAt: now,
		})
	}
	return dismissed
}

// LoadDismissedPairs reads path. A missing or empty file yields an empty list.
func LoadDismissedPairs(path string) (*DismissedPairs, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &DismissedPairs{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &DismissedPairs{}, nil
	}

	var dismissed DismissedPairs
	if err := json.NewDecoder(file).Decode(&dismissed); err != nil {
		return nil, err
	}
	return &dismissed, nil
}

// Append adds the records of s that are not present yet.
func (d *DismissedPairs) Append(s *DismissedPairs) {
	known := make(map[Key]struct{}, len(d.Items))
	for _, key := range d.Keys() {
		known[key] = struct{}{}
	}
	for _, pair := range s.Items {
		key := Key{LostID: pair.LostID, FoundID: pair.FoundID}
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		d.Items = append(d.Items, pair)
	}
}

func (d *DismissedPairs) Keys() []Key {
	keys := make([]Key, 0, len(d.Items))
	for _, pair := range d.Items {
		keys = append(keys, Key{LostID: pair.LostID, FoundID: pair.FoundID})
	}
	return keys
}

func (d *DismissedPairs) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// AppendToFile merges s into the list stored at path.
func AppendToFile(path string, s *DismissedPairs) error {
	existing, err := LoadDismissedPairs(path)
	if err != nil {
		return err
	}
	existing.Append(s)
	return existing.ToFile(path)
}
