package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Reports is a loaded set of reports. Records that could not be used are kept
// in Rejected instead of failing the whole load.
type Reports struct {
	Items    []*Report
	Rejected []Rejected
}

// Rejected describes an input record that was skipped.
type Rejected struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// LoadFile reads reports from a JSON file holding either an array of records
// or an object with a "reports" array.
func LoadFile(path string) (*Reports, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reports file %q: %w", path, err)
	}

	reports, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing reports file %q: %w", path, err)
	}

	return reports, nil
}

// Parse decodes reports from JSON.
func Parse(data []byte) (*Reports, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var records []any
	switch v := doc.(type) {
	case []any:
		records = v
	case map[string]any:
		list, ok := v["reports"].([]any)
		if !ok {
			return nil, errors.New(`expected an array or an object with a "reports" array`)
		}
		records = list
	default:
		return nil, errors.New(`expected an array or an object with a "reports" array`)
	}

	reports := &Reports{Items: make([]*Report, 0, len(records))}
	for i, record := range records {
		raw, ok := record.(map[string]any)
		if !ok {
			reports.Rejected = append(reports.Rejected, Rejected{Index: i, Reason: "record is not an object"})
			continue
		}

		r, err := Decode(raw)
		if err != nil {
			rejected := Rejected{Index: i, Reason: err.Error()}
			if r != nil {
				rejected.ID = r.ID
			}
			reports.Rejected = append(reports.Rejected, rejected)
			continue
		}

		if r.ID == "" {
			r.ID = uuid.NewString()
		}

		reports.Items = append(reports.Items, r)
	}

	return reports, nil
}

func (r *Reports) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// FindByID returns the report with the given ID or nil.
func (r *Reports) FindByID(id string) *Report {
	for _, item := range r.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// ByKind returns the reports of the given kind in load order.
func (r *Reports) ByKind(kind Kind) []*Report {
	out := make([]*Report, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Kind == kind {
			out = append(out, item)
		}
	}
	return out
}

func (r *Reports) IDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		ids = append(ids, item.ID)
	}
	return ids
}
