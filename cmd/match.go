package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/ai/gemini"
	"github.com/spigell/pawmatch/internal/filtering"
	"github.com/spigell/pawmatch/internal/imagehash"
	"github.com/spigell/pawmatch/internal/logger"
	"github.com/spigell/pawmatch/internal/matching"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
	"github.com/spigell/pawmatch/internal/secrets"
)

const (
	PromptShowMatches   = "Show matches"
	PromptReportByLost  = "Report by lost pet"
	PromptMatchesToFile = "Dump matches to file"
	PromptDismissShown  = "Dismiss shown pairs"
	PromptExit          = "Exit"

	geminiAPIKeyEnv = "GEMINI_API_KEY"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowMatches, PromptReportByLost, PromptMatchesToFile, PromptDismissShown, PromptExit},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank found reports against lost reports",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("reports", "r", "", "JSON file with lost and found reports")
	matchCmd.Flags().StringP("lost", "l", "", "only match the lost report with this id")
	matchCmd.Flags().IntP("top", "t", 0, "keep the best N matches per lost report (default from config)")
	matchCmd.Flags().Float64P("min-score", "m", 0, "drop matches scoring below this value (default from config)")
	matchCmd.Flags().Bool("photos", false, "compare report photos by perceptual hash")
	matchCmd.Flags().Bool("ai", false, "ask the AI reviewer about every remaining match")
	matchCmd.Flags().BoolP("auto-approve", "y", false, "print the matches and exit without the interactive menu")
	matchCmd.Flags().StringP("dismissed-file", "e", "", "file with dismissed pairs. Default is unset.")

	matchCmd.MarkFlagRequired("reports")

	viper.BindPFlag("matching.top", matchCmd.Flags().Lookup("top"))
	viper.BindPFlag("matching.min-score", matchCmd.Flags().Lookup("min-score"))
	viper.BindPFlag("matching.dismissed-file", matchCmd.Flags().Lookup("dismissed-file"))
	viper.BindPFlag("images.enabled", matchCmd.Flags().Lookup("photos"))
	viper.BindPFlag("ai.enabled", matchCmd.Flags().Lookup("ai"))
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the pawmatch", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	path, _ := cmd.Flags().GetString("reports")
	reports, err := report.LoadFile(path)
	if err != nil {
		logger.Fatal("loading reports", zap.String("path", path), zap.Error(err))
	}
	for _, rejected := range reports.Rejected {
		logger.Warn("skipping report",
			zap.Int("index", rejected.Index),
			zap.String("report_id", rejected.ID),
			zap.String("reason", rejected.Reason),
		)
	}

	lost := reports.ByKind(report.KindLost)
	if id, _ := cmd.Flags().GetString("lost"); id != "" {
		selected := reports.FindByID(id)
		if selected == nil || selected.Kind != report.KindLost {
			logger.Fatal("lost report with given id not found", zap.String("report_id", id))
		}
		lost = []*report.Report{selected}
	}
	found := reports.ByKind(report.KindFound)

	logger.Info("loaded reports",
		zap.Int("total", reports.Len()),
		zap.Int("lost", len(lost)),
		zap.Int("found", len(found)),
	)

	candidates, err := matching.Rank(ctx, scoring.New(config.Scoring), lost, found, matching.Options{
		Workers: config.Matching.Workers,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("ranking candidates", zap.Error(err))
	}

	if candidates.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no candidate pairs"))
		return
	}

	filters := prepareFilters(ctx, config, logger)
	for _, status := range filters.Describe() {
		logger.Debug("filter status",
			zap.String("name", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.String("reason", status.Reason),
			zap.Any("details", status.Details),
		)
	}

	candidates, err = filters.RunFilters(ctx, candidates)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if candidates.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no candidates left after filters"))
		return
	}

	if auto, _ := cmd.Flags().GetBool("auto-approve"); auto {
		printMatches(os.Stdout, candidates)
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		logger.Info("current list of matches", zap.Int("count", candidates.Len()))

		if err := handleAction(action, logger, config, candidates); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, logger *zap.Logger, config *Config, candidates *matching.Candidates) error {
	switch action {
	case PromptShowMatches:
		printMatches(os.Stdout, candidates)
		return nil
	case PromptReportByLost:
		pretty, _ := json.MarshalIndent(candidates.ReportByLost(), "", "  ")
		logger.Info(string(pretty), zap.Int("matches count", candidates.Len()))
		return nil
	case PromptMatchesToFile:
		filename, err := candidates.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptDismissShown:
		return dismissShown(logger, config, candidates)
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func dismissShown(logger *zap.Logger, config *Config, candidates *matching.Candidates) error {
	path := strings.TrimSpace(config.Matching.DismissedFile)
	if path == "" {
		logger.Warn("dismissed file is not configured",
			zap.String("hint", "set matching.dismissed-file or pass --dismissed-file"),
		)
		return nil
	}

	if err := matching.AppendToFile(path, candidates.ToDismissed(matching.DismissedByUser, "")); err != nil {
		return fmt.Errorf("append to dismissed file: %w", err)
	}

	logger.Info("appended to dismissed file", zap.String("filename", path), zap.Int("count", candidates.Len()))
	candidates.Exclude(candidates.Keys())
	return errExit
}

func printMatches(w io.Writer, candidates *matching.Candidates) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "LOST\tFOUND\tSCORE\tDISTANCE\tDAYS\tPHOTO\tAI")
	for _, c := range candidates.Items {
		distance, days, photo, review := "-", "-", "-", "-"
		if d := c.Breakdown.DistanceMeters; d != nil {
			distance = fmt.Sprintf("%.0fm", *d)
		}
		if d := c.Breakdown.DaysApart; d != nil {
			days = fmt.Sprintf("%.1f", *d)
		}
		if p := c.Photo; p != nil {
			if p.Distance != nil {
				photo = fmt.Sprintf("%d", *p.Distance)
			} else {
				photo = "error"
			}
		}
		if r := c.Review; r != nil {
			if r.Error != "" {
				review = "error"
			} else {
				review = fmt.Sprintf("%.2f", r.Confidence)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n", c.Lost.ID, c.Found.ID, c.Score, distance, days, photo, review)
	}
}

func newFetcher(cfg *ImagesConfig, logger *zap.Logger) *imagehash.Fetcher {
	fetcher := imagehash.NewFetcher(logger)
	if cfg == nil {
		return fetcher
	}
	if cfg.FetchTimeout > 0 {
		fetcher.Timeout = cfg.FetchTimeout
	}
	if cfg.UserAgent != "" {
		fetcher.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBytes > 0 {
		fetcher.MaxBytes = cfg.MaxBytes
	}
	if cfg.Retries > 0 {
		fetcher.Retries = cfg.Retries
	}
	return fetcher
}

func newAIReviewer(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Reviewer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  geminiAPIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or %s)", err, geminiAPIKeyEnv)
	}

	genLogger := logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	minConfidence := cfg.MinimumConfidence
	if minConfidence < 0 {
		minConfidence = 0
	}

	reviewerLogger := logger.With(zap.Float64("minimum_confidence", minConfidence))

	return gemini.NewReviewer(generator, minConfidence, cfg.Gemini.MaxLogLength, reviewerLogger), nil
}

func prepareFilters(ctx context.Context, config *Config, logger *zap.Logger) *filtering.Filters {
	fetcher := newFetcher(config.Images, logger)
	photoFilter := filtering.NewPhotoSimilarity(&filtering.PhotoFilterConfig{
		Enabled:     config.Images.Enabled,
		GridSize:    config.Images.GridSize,
		MaxDistance: config.Images.MaxDistance,
		Workers:     config.Matching.Workers,
	}, &filtering.PhotoFilterDeps{
		Logger:  logger,
		Cache:   imagehash.NewCache(fetcher, config.Images.GridSize),
		Fetcher: fetcher,
	})

	aiFilter, err := prepareAIFilter(ctx, config, logger)
	if err != nil {
		logger.Warn("skipping AI filter", zap.Error(err))
		aiFilter.Disable(err.Error())
	}

	steps := []filtering.Filter{
		filtering.NewMinScore(config.Matching.MinScore),
		filtering.NewDismissed(config.Matching.DismissedFile, logger),
		photoFilter,
		filtering.NewTopPerLost(config.Matching.Top),
		aiFilter,
	}

	return filtering.New(steps, logger)
}

func prepareAIFilter(ctx context.Context, config *Config, logger *zap.Logger) (filtering.Filter, error) {
	cfg := config.AI
	aiConfig := &filtering.AIReviewFilterConfig{
		Enabled:           cfg.Enabled,
		Provider:          cfg.Provider,
		MinimumConfidence: cfg.MinimumConfidence,
		Gemini: &filtering.AIGeminiConfig{
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			MaxLogLength: cfg.Gemini.MaxLogLength,
		},
	}

	deps := &filtering.AIReviewFilterDeps{
		Logger:        logger,
		DismissedFile: config.Matching.DismissedFile,
	}
	aiFilter := filtering.NewAIReview(aiConfig, deps)

	if !cfg.Enabled {
		return aiFilter, nil
	}

	reviewer, err := newAIReviewer(ctx, cfg, logger)
	if err != nil {
		return aiFilter, fmt.Errorf("building ai reviewer: %w", err)
	}
	deps.Reviewer = reviewer

	return aiFilter, nil
}
