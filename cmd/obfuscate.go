package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/geo"
	"github.com/spigell/pawmatch/internal/logger"
)

var obfuscateCmd = &cobra.Command{
	Use:   "obfuscate",
	Short: "Print a randomized public coordinate for a private one",
	Run: func(cmd *cobra.Command, _ []string) {
		obfuscate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(obfuscateCmd)

	obfuscateCmd.Flags().Float64("lat", 0, "latitude in degrees")
	obfuscateCmd.Flags().Float64("lon", 0, "longitude in degrees")
	obfuscateCmd.Flags().Float64("radius", geo.DefaultObfuscationRadius, "maximum displacement in meters")

	obfuscateCmd.MarkFlagRequired("lat")
	obfuscateCmd.MarkFlagRequired("lon")
}

func obfuscate(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	radius, _ := cmd.Flags().GetFloat64("radius")

	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		logger.Fatal("invalid coordinate", zap.Float64("lat", lat), zap.Float64("lon", lon))
	}
	if radius <= 0 {
		logger.Fatal("radius must be positive", zap.Float64("radius", radius))
	}

	public := geo.Obfuscator{Radius: radius}.Obfuscate(p)
	logger.Debug("obfuscated coordinate", zap.Float64("displacement_meters", geo.Distance(p, public)))

	fmt.Printf("%.6f,%.6f\n", public.Lat, public.Lon)
}
