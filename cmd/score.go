package cmd

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/logger"
	"github.com/spigell/pawmatch/internal/report"
	"github.com/spigell/pawmatch/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score ID_A ID_B",
	Short: "Print the similarity breakdown of two reports",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		score(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("reports", "r", "", "JSON file with lost and found reports")
	scoreCmd.MarkFlagRequired("reports")
}

func score(cmd *cobra.Command, idA, idB string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	path, _ := cmd.Flags().GetString("reports")
	reports, err := report.LoadFile(path)
	if err != nil {
		logger.Fatal("loading reports", zap.String("path", path), zap.Error(err))
	}

	a, b := reports.FindByID(idA), reports.FindByID(idB)
	if a == nil || b == nil {
		logger.Fatal("report with given id not found",
			zap.String("first", idA),
			zap.String("second", idB),
			zap.Strings("known ids", reports.IDs()),
		)
	}

	printBreakdown(os.Stdout, scoring.New(config.Scoring).Breakdown(a, b))
}

func printBreakdown(w io.Writer, b scoring.Breakdown) {
	if b.Incompatible {
		fmt.Fprintf(w, "incompatible pair, score %v\n", math.Inf(-1))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "species\t%.1f\n", b.Species)
	fmt.Fprintf(tw, "breed\t%.1f\n", b.Breed)
	fmt.Fprintf(tw, "color\t%.1f\n", b.Color)
	fmt.Fprintf(tw, "markings\t%.1f\n", b.Markings)
	if b.DistanceMeters != nil {
		fmt.Fprintf(tw, "proximity\t%.1f\t(%.0f m)\n", b.Proximity, *b.DistanceMeters)
	} else {
		fmt.Fprintf(tw, "proximity\t%.1f\t(no location)\n", b.Proximity)
	}
	if b.DaysApart != nil {
		fmt.Fprintf(tw, "recency\t%.1f\t(%.1f days)\n", b.Recency, *b.DaysApart)
	} else {
		fmt.Fprintf(tw, "recency\t%.1f\t(no date)\n", b.Recency)
	}
	fmt.Fprintf(tw, "total\t%.1f\n", b.Total())
}
