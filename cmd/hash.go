package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/imagehash"
	"github.com/spigell/pawmatch/internal/logger"
)

var hashCmd = &cobra.Command{
	Use:   "hash REF...",
	Short: "Print the perceptual hash of image files or URLs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash(cmd, args)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare REF_A REF_B",
	Short: "Print the Hamming distance between two images",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		compare(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(compareCmd)

	for _, c := range []*cobra.Command{hashCmd, compareCmd} {
		c.Flags().IntP("grid", "g", 0, "grid size, the hash has grid*grid bits (default from config)")
		c.Flags().Duration("timeout", 0, "fetch timeout for URLs (default from config)")
	}
}

// imageTools builds the logger, fetcher and grid size shared by hash and compare.
func imageTools(cmd *cobra.Command) (*zap.Logger, *imagehash.Fetcher, int) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	fetcher := newFetcher(config.Images, logger)
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		fetcher.Timeout = timeout
	}

	grid := config.Images.GridSize
	if g, _ := cmd.Flags().GetInt("grid"); g > 0 {
		grid = g
	}
	if grid <= 0 {
		grid = imagehash.DefaultGridSize
	}

	return logger, fetcher, grid
}

func hash(cmd *cobra.Command, refs []string) {
	logger, fetcher, grid := imageTools(cmd)

	failed := hashAll(cmd.Context(), os.Stdout, logger, fetcher, grid, refs)
	if failed > 0 {
		logger.Warn("some images were skipped", zap.Int("failed", failed), zap.Int("total", len(refs)))
	}
}

// hashAll prints one line per reference and returns the number of failures.
func hashAll(ctx context.Context, w io.Writer, logger *zap.Logger, fetcher *imagehash.Fetcher, grid int, refs []string) int {
	if ctx == nil {
		ctx = context.Background()
	}

	failed := 0
	for _, ref := range refs {
		h, err := imagehash.ComputeHash(ctx, imagehash.ParseSource(ref, fetcher), grid)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Fatal("hashing interrupted", zap.Error(err))
			}
			failed++
			logger.Warn("hashing image failed", zap.String("ref", ref), zap.String("failure", describeImageError(err)), zap.Error(err))
			fmt.Fprintf(w, "%s\terror: %s\n", ref, describeImageError(err))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", ref, h.Hex())
	}
	return failed
}

func compare(cmd *cobra.Command, refA, refB string) {
	logger, fetcher, grid := imageTools(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var hashes [2]imagehash.Hash
	for i, ref := range []string{refA, refB} {
		h, err := imagehash.ComputeHash(ctx, imagehash.ParseSource(ref, fetcher), grid)
		if err != nil {
			logger.Fatal("hashing image failed", zap.String("ref", ref), zap.String("failure", describeImageError(err)), zap.Error(err))
		}
		hashes[i] = h
	}

	fmt.Printf("%s\t%s\n", refA, hashes[0].Hex())
	fmt.Printf("%s\t%s\n", refB, hashes[1].Hex())
	fmt.Printf("distance\t%d/%d\n", imagehash.HammingDistance(hashes[0], hashes[1]), max(hashes[0].Len(), hashes[1].Len()))
}

func describeImageError(err error) string {
	var timeoutErr *imagehash.TimeoutError
	var decodeErr *imagehash.DecodeError
	switch {
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("timed out after %s", timeoutErr.After)
	case errors.As(err, &decodeErr):
		return "not a decodable image"
	default:
		return "could not be loaded"
	}
}
