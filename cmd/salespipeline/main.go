package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sandeepkv93/concurrent-sales-pipeline/config"
	"github.com/sandeepkv93/concurrent-sales-pipeline/livefeed"
	"github.com/sandeepkv93/concurrent-sales-pipeline/metrics"
	"github.com/sandeepkv93/concurrent-sales-pipeline/pipeline"
)

var (
	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Path to configuration file (defaults apply when empty)")
	logLevel   = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger, err := initLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
	}

	logger.Info("Starting sales pipeline",
		zap.Int("capacity", cfg.Queue.Capacity),
		zap.Int("producers", cfg.Workers.Producers),
		zap.Int("consumers", cfg.Workers.Consumers),
		zap.Int("itemsPerProducer", cfg.Workers.ItemsPerProducer),
		zap.Bool("batchManager", cfg.Workers.BatchManager),
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var feed *livefeed.Feed
	if cfg.Feed.Enabled {
		feed = livefeed.New(logger)
		go startFeedServer(feed, registry, cfg.Feed.Port, logger)
	}

	pipelineCfg := pipeline.Config{
		Capacity:         cfg.Queue.Capacity,
		Producers:        cfg.Workers.Producers,
		Consumers:        cfg.Workers.Consumers,
		ItemsPerProducer: cfg.Workers.ItemsPerProducer,
		BatchManager:     cfg.Workers.BatchManager,
		MinAmount:        cfg.Sales.MinAmount,
		MaxAmount:        cfg.Sales.MaxAmount,
		Logger:           logger,
		Metrics:          collector,
	}
	if feed != nil {
		pipelineCfg.Events = feed
	}

	p, err := pipeline.New(pipelineCfg)
	if err != nil {
		logger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	summary, err := p.Run()
	if err != nil {
		logger.Fatal("Pipeline run failed", zap.Error(err))
	}

	logger.Info("Simulation complete",
		zap.Int("salesProduced", summary.SalesProduced),
		zap.Int("salesConsumed", summary.SalesConsumed),
		zap.Float64("totalProduced", summary.TotalProduced),
		zap.Float64("totalConsumed", summary.TotalConsumed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	for _, r := range summary.Managers {
		logger.Info("Manager summary",
			zap.String("worker", r.Worker),
			zap.Int("sales", r.Items),
			zap.Float64("average", r.Average()),
		)
	}

	if feed != nil {
		feed.Close()
	}
}

// startFeedServer serves the live event feed, metrics and health endpoints.
func startFeedServer(feed *livefeed.Feed, registry *prometheus.Registry, port int, logger *zap.Logger) {
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting feed server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, feed.Handler(registry)); err != nil {
		logger.Error("Feed server failed", zap.Error(err))
	}
}

// initLogger initializes the zap logger based on the log level.
func initLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	case "info", "warn", "error":
		cfg = zap.NewProductionConfig()
		cfg.Level = parseLogLevel(level)
	default:
		cfg = zap.NewProductionConfig()
	}

	return cfg.Build()
}

// parseLogLevel parses the log level string.
func parseLogLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
