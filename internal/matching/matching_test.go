package matching

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spigell/pawmatch/internal/ai"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
)

func coord(v float64) *float64 { return &v }

func lostReport(id, species, breed, color string) *report.Report {
	return &report.Report{ID: id, Kind: report.KindLost, Species: species, Breed: breed, Color: color, LastSeen: "2024-05-01"}
}

func foundReport(id, species, breed, color string) *report.Report {
	return &report.Report{ID: id, Kind: report.KindFound, Species: species, Breed: breed, Color: color, DateFound: "2024-05-02"}
}

func fixtures() ([]*report.Report, []*report.Report) {
	lost := []*report.Report{
		lostReport("l1", "dog", "labrador", "black"),
		lostReport("l2", "cat", "siamese", "cream"),
	}
	found := []*report.Report{
		foundReport("f1", "dog", "labrador", "black"),
		foundReport("f2", "dog", "poodle", "white"),
		foundReport("f3", "cat", "siamese", "cream"),
		lostReport("l9", "dog", "labrador", "black"),
	}
	return lost, found
}

func TestRankOrdersAndExcludesIncompatible(t *testing.T) {
	lost, found := fixtures()

	candidates, err := Rank(context.Background(), scoring.Default(), lost, found, Options{Workers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := candidates.Keys()
	want := []Key{
		{LostID: "l1", FoundID: "f1"},
		{LostID: "l2", FoundID: "f3"},
		{LostID: "l1", FoundID: "f2"},
		{LostID: "l1", FoundID: "f3"},
		{LostID: "l2", FoundID: "f1"},
		{LostID: "l2", FoundID: "f2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order:\n got %v\nwant %v", got, want)
	}

	for _, candidate := range candidates.Items {
		if math.IsInf(candidate.Score, -1) {
			t.Fatalf("incompatible pair %s must be excluded", candidate.Key())
		}
		if candidate.Score != candidate.Breakdown.Total() {
			t.Fatalf("score and breakdown disagree for %s", candidate.Key())
		}
	}
}

func TestRankIsDeterministicAcrossWorkerCounts(t *testing.T) {
	lost, found := fixtures()

	base, err := Rank(context.Background(), nil, lost, found, Options{Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, workers := range []int{0, 3, 16} {
		other, err := Rank(context.Background(), nil, lost, found, Options{Workers: workers})
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		if !reflect.DeepEqual(base.Keys(), other.Keys()) {
			t.Fatalf("workers=%d changed the order: %v vs %v", workers, base.Keys(), other.Keys())
		}
	}
}

func TestRankTiesBreakByIDs(t *testing.T) {
	lost := []*report.Report{lostReport("b", "dog", "", ""), lostReport("a", "dog", "", "")}
	found := []*report.Report{foundReport("z", "dog", "", ""), foundReport("y", "dog", "", "")}

	candidates, err := Rank(context.Background(), nil, lost, found, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Key{{"a", "y"}, {"a", "z"}, {"b", "y"}, {"b", "z"}}
	if !reflect.DeepEqual(candidates.Keys(), want) {
		t.Fatalf("unexpected tie order: %v", candidates.Keys())
	}
}

func TestRankHonorsCancellation(t *testing.T) {
	lost, found := fixtures()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Rank(ctx, nil, lost, found, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRankSkipsNilReports(t *testing.T) {
	candidates, err := Rank(context.Background(), nil,
		[]*report.Report{nil, lostReport("l1", "dog", "", "")},
		[]*report.Report{foundReport("f1", "dog", "", ""), nil},
		Options{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if candidates.Len() != 1 {
		t.Fatalf("expected a single candidate, got %d", candidates.Len())
	}
}

func TestCandidatesExcludeAndTopPerLost(t *testing.T) {
	lost, found := fixtures()
	candidates, err := Rank(context.Background(), nil, lost, found, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removed := candidates.Exclude([]Key{{LostID: "l1", FoundID: "f1"}, {LostID: "nope", FoundID: "f1"}})
	if len(removed) != 1 || removed[0] != (Key{LostID: "l1", FoundID: "f1"}) {
		t.Fatalf("unexpected removed keys: %v", removed)
	}
	if candidates.Find(Key{LostID: "l1", FoundID: "f1"}) != nil {
		t.Fatalf("excluded pair is still present")
	}

	dropped := candidates.TopPerLost(1)
	if len(dropped) != 3 {
		t.Fatalf("expected 3 dropped, got %v", dropped)
	}

	want := []Key{{LostID: "l2", FoundID: "f3"}, {LostID: "l1", FoundID: "f2"}}
	if !reflect.DeepEqual(candidates.Keys(), want) {
		t.Fatalf("unexpected remaining keys: %v", candidates.Keys())
	}

	if dropped := candidates.TopPerLost(0); dropped != nil {
		t.Fatalf("non-positive n must keep everything, dropped %v", dropped)
	}
}

func TestReportByLostShowsOnlyPublicLocation(t *testing.T) {
	lost := lostReport("l1", "dog", "labrador", "black")
	lost.Name = "Rex"
	lost.Latitude, lost.Longitude = coord(52.52), coord(13.40)

	found := foundReport("f1", "dog", "labrador", "black")
	found.Latitude, found.Longitude = coord(52.530011), coord(13.410022)
	found.PublicLatitude, found.PublicLongitude = coord(52.5311), coord(13.4087)

	hidden := foundReport("f2", "dog", "", "")
	hidden.Latitude, hidden.Longitude = coord(52.5), coord(13.3)

	distance := 3
	candidates, err := Rank(context.Background(), nil, []*report.Report{lost}, []*report.Report{found, hidden}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	candidates.Items[0].Photo = &PhotoMatch{Distance: &distance}
	candidates.Items[0].Review = &ai.Assessment{Same: true, Confidence: 0.9, Reason: "same collar"}

	rep := candidates.ReportByLost()
	entries, ok := rep["Rex (l1)"]
	if !ok {
		t.Fatalf("expected lost key in report, got %v", rep)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first["found"] != "labrador (f1)" {
		t.Fatalf("unexpected found label: %q", first["found"])
	}
	if first["location"] != "52.531100,13.408700" {
		t.Fatalf("expected public location, got %q", first["location"])
	}
	if first["photo distance"] != "3" {
		t.Fatalf("unexpected photo distance: %q", first["photo distance"])
	}
	if !strings.Contains(first["ai"], "same collar") {
		t.Fatalf("expected AI reason, got %q", first["ai"])
	}
	if first["days"] != "1.0" {
		t.Fatalf("unexpected days: %q", first["days"])
	}

	if _, ok := entries[1]["location"]; ok {
		t.Fatalf("raw location must not be shown: %v", entries[1])
	}
}

func TestDumpToTmpFile(t *testing.T) {
	lost, found := fixtures()
	candidates, err := Rank(context.Background(), nil, lost, found, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := candidates.DumpToTmpFile()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if len(entries) != candidates.Len() {
		t.Fatalf("expected %d entries, got %d", candidates.Len(), len(entries))
	}
	if entries[0]["lost_id"] != "l1" || entries[0]["found_id"] != "f1" {
		t.Fatalf("unexpected first entry: %v", entries[0])
	}
	if _, ok := entries[0]["breakdown"]; !ok {
		t.Fatalf("expected breakdown in dump: %v", entries[0])
	}
}

func TestDismissedPairsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dismissed.json")

	empty, err := LoadDismissedPairs(path)
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(empty.Items))
	}

	candidates := &Candidates{Items: []*Candidate{
		{Lost: lostReport("l1", "dog", "", ""), Found: foundReport("f1", "dog", "", "")},
		{Lost: lostReport("l1", "dog", "", ""), Found: foundReport("f2", "dog", "", "")},
	}}

	if err := AppendToFile(path, candidates.ToDismissed(DismissedByUser, "")); err != nil {
		t.Fatalf("append: %v", err)
	}
	again := (&Candidates{Items: candidates.Items[:1]}).ToDismissed(DismissedByAI, "different animal")
	if err := AppendToFile(path, again); err != nil {
		t.Fatalf("append again: %v", err)
	}

	loaded, err := LoadDismissedPairs(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []Key{{LostID: "l1", FoundID: "f1"}, {LostID: "l1", FoundID: "f2"}}
	if !reflect.DeepEqual(loaded.Keys(), want) {
		t.Fatalf("unexpected keys: %v", loaded.Keys())
	}
	if loaded.Items[0].DismissedBy != DismissedByUser {
		t.Fatalf("first dismissal must be kept, got %q", loaded.Items[0].DismissedBy)
	}
	if loaded.Items[0].DismissedAt.IsZero() {
		t.Fatalf("expected dismissal time")
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDismissedPairs(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
