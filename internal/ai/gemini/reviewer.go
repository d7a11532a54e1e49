package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/ai"
	"github.com/spigell/pawmatch/internal/logger"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
	"github.com/spigell/pawmatch/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Reviewer asks Gemini whether a candidate pair is the same animal.
type Reviewer struct {
	generator     contentGenerator
	minConfidence float64
	logger        *zap.Logger
	maxLogLen     int
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

func NewReviewer(generator contentGenerator, minConfidence float64, maxLogLength int, log *zap.Logger) *Reviewer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	model := ""
	if generator != nil {
		model = generator.Model()
	}

	return &Reviewer{
		generator:     generator,
		minConfidence: minConfidence,
		logger:        logger.WithCommonFields(log, providerName, model),
		maxLogLen:     maxLogLength,
	}
}

type reportView struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Name     string    `json:"name,omitempty"`
	Species  string    `json:"species,omitempty"`
	Breed    string    `json:"breed,omitempty"`
	Color    string    `json:"color,omitempty"`
	Markings string    `json:"markings,omitempty"`
	Date     string    `json:"date,omitempty"`
	Location *location `json:"location,omitempty"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type pairPayload struct {
	Lost  reportView        `json:"lost"`
	Found reportView        `json:"found"`
	Score scoring.Breakdown `json:"score"`
}

// view exposes only the obfuscated coordinate of r.
func view(r *report.Report) reportView {
	v := reportView{
		ID:       r.ID,
		Kind:     string(r.Kind),
		Name:     r.Name,
		Species:  r.Species,
		Breed:    r.Breed,
		Color:    r.Color,
		Markings: r.Markings,
	}
	if instant, ok := r.Instant(); ok {
		v.Date = instant.UTC().Format(time.RFC3339)
	}
	if r.HasPublicLocation() {
		p, _ := r.Location()
		v.Location = &location{Latitude: p.Lat, Longitude: p.Lon}
	}
	return v
}

func (r *Reviewer) Review(ctx context.Context, lost, found *report.Report, breakdown scoring.Breakdown) (*ai.Assessment, error) {
	if r.generator == nil {
		return nil, fmt.Errorf("gemini generator is not configured")
	}
	if lost == nil || found == nil {
		return nil, fmt.Errorf("both reports are required")
	}

	payload, err := json.MarshalIndent(pairPayload{Lost: view(lost), Found: view(found), Score: breakdown}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pair payload: %w", err)
	}
	message := string(payload)

	log := logger.WithPair(r.logger, lost.ID, found.ID)
	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, promptTemplate, message)
	if err != nil {
		return nil, err
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if assessment.Same && assessment.Confidence < r.minConfidence {
		log.Debug("set same to false by confidence threshold",
			zap.Float64("confidence", assessment.Confidence),
			zap.Float64("threshold", r.minConfidence),
		)
		assessment.Same = false
	}

	assessment.Raw = raw
	return assessment, nil
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	confidence := coerceFloat(data["confidence"])
	if math.IsNaN(confidence) {
		confidence = 0
	}
	confidence = math.Max(0, math.Min(1, confidence))

	return &ai.Assessment{
		Same:       coerceBool(data["same"]),
		Confidence: confidence,
		Reason:     coerceString(data["reason"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		if strings.HasSuffix(strings.TrimSpace(val), "%") {
			f /= 100
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
