package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/ai"
	"github.com/spigell/pawmatch/internal/logger"
	"github.com/spigell/pawmatch/internal/matching"
)

type aiReviewFilter struct {
	enabled bool
	reason  string
	config  *AIReviewFilterConfig
	deps    *AIReviewFilterDeps
}

type AIReviewFilterDeps struct {
	Logger   *zap.Logger
	Reviewer ai.Reviewer
	// DismissedFile receives pairs the reviewer rejected. Empty disables it.
	DismissedFile string
}

type AIReviewFilterConfig struct {
	Enabled           bool
	Provider          string
	MinimumConfidence float64
	Gemini            *AIGeminiConfig
}

// AIGeminiConfig stores Gemini provider configuration.
type AIGeminiConfig struct {
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// NewAIReview creates the AI-based review step.
func NewAIReview(cfg *AIReviewFilterConfig, deps *AIReviewFilterDeps) Filter {
	return &aiReviewFilter{
		enabled: cfg != nil && cfg.Enabled,
		deps:    deps,
		config:  cfg,
	}
}

func (f *aiReviewFilter) Name() string { return "ai_review" }

func (f *aiReviewFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *aiReviewFilter) IsEnabled() bool { return f.enabled }

func (f *aiReviewFilter) Validate() error {
	if f.deps == nil || f.deps.Reviewer == nil {
		return fmt.Errorf("deps are not initialized: filter is not usable")
	}
	if f.config == nil {
		return fmt.Errorf("ai configuration is required when ai filter is enabled")
	}
	if f.config.Gemini == nil {
		return fmt.Errorf("gemini configuration is required when ai filter is enabled")
	}
	if strings.TrimSpace(f.config.Gemini.Model) == "" {
		return fmt.Errorf("gemini model is required when ai filter is enabled")
	}
	return nil
}

func (f *aiReviewFilter) Apply(ctx context.Context, c *matching.Candidates) (*matching.Candidates, Step, error) {
	initial := c.Len()
	log := logger.WithFields(f.deps.Logger)

	var rejected []*matching.Candidate
	approved := make([]*matching.Candidate, 0, initial)

	for _, candidate := range c.Items {
		if err := ctx.Err(); err != nil {
			return c, Step{}, err
		}

		pairLog := logger.WithPair(log, candidate.Lost.ID, candidate.Found.ID)

		assessment, err := f.deps.Reviewer.Review(ctx, candidate.Lost, candidate.Found, candidate.Breakdown)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c, Step{}, ctxErr
			}
			pairLog.Warn("AI review failed", zap.Error(err))
			candidate.Review = &ai.Assessment{Error: err.Error()}
			approved = append(approved, candidate)
			continue
		}

		candidate.Review = assessment

		if !assessment.Same {
			pairLog.Info("pair rejected by AI provider",
				zap.Float64("confidence", assessment.Confidence),
				zap.String("reason", assessment.Reason),
			)
			rejected = append(rejected, candidate)
			continue
		}

		pairLog.Info("pair approved by AI", zap.Float64("confidence", assessment.Confidence))
		approved = append(approved, candidate)
	}

	c.Items = approved

	if err := f.appendToDismissedFile(rejected); err != nil {
		log.Warn("failed to append rejected pairs to dismissed file", zap.Error(err))
	}

	log.Info("AI review completed",
		zap.Int("initial_candidates", initial),
		zap.Int("approved_candidates", len(approved)),
	)

	return c, stepOf(initial, c), nil
}

func (f *aiReviewFilter) appendToDismissedFile(rejected []*matching.Candidate) error {
	path := strings.TrimSpace(f.deps.DismissedFile)
	if path == "" || len(rejected) == 0 {
		return nil
	}

	dismissed := &matching.DismissedPairs{}
	for _, candidate := range rejected {
		one := (&matching.Candidates{Items: []*matching.Candidate{candidate}}).ToDismissed(matching.DismissedByAI, candidate.Review.Reason)
		dismissed.Append(one)
	}

	if err := matching.AppendToFile(path, dismissed); err != nil {
		return fmt.Errorf("write dismissed pairs: %w", err)
	}
	return nil
}

func (f *aiReviewFilter) Status() Status {
	details := map[string]string{}
	if f.config != nil {
		details["minimum_confidence"] = fmt.Sprintf("%.2f", f.config.MinimumConfidence)
		if f.config.Provider != "" {
			details["provider"] = f.config.Provider
		}
		if f.config.Gemini != nil {
			details["model"] = f.config.Gemini.Model
			details["max_retries"] = strconv.Itoa(f.config.Gemini.MaxRetries)
			details["max_log_length"] = strconv.Itoa(f.config.Gemini.MaxLogLength)
		}
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
