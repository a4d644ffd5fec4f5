package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/sandeepkv93/concurrent-sales-pipeline/leibnizpi"
)

var (
	terms      = flag.Int64("terms", 2_000_000_000, "Number of Leibniz series terms")
	workers    = flag.Int("workers", 0, "Worker count (0 = number of CPUs)")
	sequential = flag.Bool("sequential", false, "Also run the sequential baseline")
)

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	estimator, err := leibnizpi.NewEstimator(*workers, *terms)
	if err != nil {
		logger.Fatal("Invalid parameters", zap.Error(err))
	}

	result := estimator.Estimate()
	logger.Info("Parallel estimate",
		zap.Float64("pi", result.EstimatedPi),
		zap.Float64("error", math.Abs(result.EstimatedPi-math.Pi)),
		zap.Int64("terms", result.Terms),
		zap.Duration("elapsed", result.Duration),
	)
	for _, wr := range result.WorkerResults {
		logger.Info("Worker block",
			zap.Int("worker", wr.WorkerID),
			zap.Int64("firstTerm", wr.FirstTerm),
			zap.Int64("terms", wr.TermCount),
			zap.Duration("elapsed", wr.Duration),
		)
	}

	if *sequential {
		baseline := leibnizpi.EstimateSequential(*terms)
		logger.Info("Sequential baseline",
			zap.Float64("pi", baseline.EstimatedPi),
			zap.Duration("elapsed", baseline.Duration),
		)
	}
}
