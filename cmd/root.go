package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/pawmatch/internal/imagehash"
	"github.com/spigell/pawmatch/internal/scoring"
)

const (
	app       = "pawmatch"
	envPrefix = "PAWMATCH"
)

type Config struct {
	Scoring  scoring.Weights `mapstructure:"scoring"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Images   *ImagesConfig   `mapstructure:"images"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type MatchingConfig struct {
	Workers       int     `mapstructure:"workers"`
	MinScore      float64 `mapstructure:"min-score"`
	Top           int     `mapstructure:"top"`
	DismissedFile string  `mapstructure:"dismissed-file"`
}

type ImagesConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	GridSize     int           `mapstructure:"grid-size"`
	MaxDistance  int           `mapstructure:"max-distance"`
	FetchTimeout time.Duration `mapstructure:"fetch-timeout"`
	UserAgent    string        `mapstructure:"user-agent"`
	MaxBytes     int64         `mapstructure:"max-bytes"`
	Retries      int           `mapstructure:"retries"`
}

type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Provider          string        `mapstructure:"provider"`
	MinimumConfidence float64       `mapstructure:"minimum-confidence"`
	Gemini            *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "pawmatch ranks found pets against lost pet reports",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is pawmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	configure(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config the defaults are enough.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

// configure registers defaults and environment overrides. Every key needs a
// default so PAWMATCH_* variables reach Unmarshal.
func configure(v *viper.Viper) {
	weights := scoring.DefaultWeights()
	v.SetDefault("scoring.species", weights.Species)
	v.SetDefault("scoring.breed", weights.Breed)
	v.SetDefault("scoring.color", weights.Color)
	v.SetDefault("scoring.markings", weights.Markings)
	v.SetDefault("scoring.proximity", weights.Proximity)
	v.SetDefault("scoring.proximity-meters-per-point", weights.ProximityMetersPerPoint)
	v.SetDefault("scoring.recency", weights.Recency)
	v.SetDefault("scoring.recency-points-per-day", weights.RecencyPointsPerDay)

	v.SetDefault("matching.workers", 0)
	v.SetDefault("matching.min-score", 0)
	v.SetDefault("matching.top", 5)
	v.SetDefault("matching.dismissed-file", "")

	v.SetDefault("images.enabled", false)
	v.SetDefault("images.grid-size", imagehash.DefaultGridSize)
	v.SetDefault("images.max-distance", 10)
	v.SetDefault("images.fetch-timeout", imagehash.DefaultFetchTimeout)
	v.SetDefault("images.user-agent", imagehash.DefaultUserAgent)
	v.SetDefault("images.max-bytes", imagehash.DefaultMaxBytes)
	v.SetDefault("images.retries", 1)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.minimum-confidence", 0.5)
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-pro")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func getConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := config.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.Images == nil {
		config.Images = &ImagesConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}

	return config, nil
}
