// Command thresholds computes per-crop rainfall thresholds from the merged
// rainfall/price dataset and writes <crop>_thresholds.json next to the models.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/price"
)

func main() {
	input := flag.String("input", "merged.csv", "merged rainfall/price CSV")
	out := flag.String("models", "models", "directory holding the crop models")
	flag.Parse()

	logger, err := observability.NewLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.Flush(logger) }()

	if err := run(*input, *out, logger); err != nil {
		logger.Fatal("thresholds", zap.Error(err))
	}
}

func run(input, dir string, logger *zap.Logger) error {
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	byCrop, err := price.ComputeThresholds(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	crops := make([]string, 0, len(byCrop))
	for c := range byCrop {
		crops = append(crops, c)
	}
	sort.Strings(crops)
	for _, c := range crops {
		t := byCrop[c]
		if err := price.WriteThresholds(dir, c, t); err != nil {
			return err
		}
		logger.Info("thresholds written",
			zap.String("crop", c),
			zap.Float64("mean_rainfall", t.MeanRainfall),
			zap.Float64("std_rainfall", t.StdRainfall))
	}
	return nil
}
