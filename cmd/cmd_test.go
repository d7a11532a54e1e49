package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/imagehash"
	"github.com/spigell/pawmatch/internal/scoring"
)

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	configure(v)

	config, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if config.Scoring != scoring.DefaultWeights() {
		t.Fatalf("unexpected weights: %+v", config.Scoring)
	}
	if config.Matching.Top != 5 {
		t.Fatalf("expected top 5, got %d", config.Matching.Top)
	}
	if config.Images.GridSize != imagehash.DefaultGridSize {
		t.Fatalf("expected grid %d, got %d", imagehash.DefaultGridSize, config.Images.GridSize)
	}
	if config.Images.FetchTimeout != imagehash.DefaultFetchTimeout {
		t.Fatalf("expected fetch timeout %s, got %s", imagehash.DefaultFetchTimeout, config.Images.FetchTimeout)
	}
	if config.AI.Gemini == nil || config.AI.Gemini.Model == "" {
		t.Fatalf("expected gemini defaults, got %+v", config.AI.Gemini)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PAWMATCH_SCORING_SPECIES", "70")
	t.Setenv("PAWMATCH_IMAGES_FETCH_TIMEOUT", "2s")
	t.Setenv("PAWMATCH_MATCHING_DISMISSED_FILE", "/tmp/dismissed.json")

	v := viper.New()
	configure(v)

	config, err := loadConfig(v)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if config.Scoring.Species != 70 {
		t.Fatalf("expected species weight 70, got %v", config.Scoring.Species)
	}
	if config.Images.FetchTimeout != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %s", config.Images.FetchTimeout)
	}
	if config.Matching.DismissedFile != "/tmp/dismissed.json" {
		t.Fatalf("unexpected dismissed file %q", config.Matching.DismissedFile)
	}
}

func TestLoadConfigRejectsInvalidWeights(t *testing.T) {
	v := viper.New()
	configure(v)
	v.Set("scoring.breed", -1)

	if _, err := loadConfig(v); err == nil {
		t.Fatal("expected an error for a negative weight")
	}
}

func TestPrintBreakdown(t *testing.T) {
	distance := 250.0
	var buf bytes.Buffer
	printBreakdown(&buf, scoring.Breakdown{
		Species:        50,
		Breed:          30,
		Proximity:      27.5,
		DistanceMeters: &distance,
	})

	out := buf.String()
	for _, want := range []string{"species", "(250 m)", "(no date)", "107.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	printBreakdown(&buf, scoring.Breakdown{Incompatible: true})
	if !strings.Contains(buf.String(), "incompatible") {
		t.Fatalf("expected incompatible marker, got %q", buf.String())
	}
}

func TestHashAllContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()

	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for x := 0; x < 8; x++ {
		for y := 0; y < 16; y++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	good := filepath.Join(dir, "good.png")
	f, err := os.Create(good)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var buf bytes.Buffer
	failed := hashAll(context.Background(), &buf, zap.NewNop(), imagehash.NewFetcher(nil), 8, []string{bad, good})
	if failed != 1 {
		t.Fatalf("expected one failure, got %d", failed)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "not a decodable image") {
		t.Fatalf("expected decode failure first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], good+"\t") {
		t.Fatalf("expected hash of good image, got %q", lines[1])
	}
}
