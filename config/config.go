package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config represents the simulation configuration. Everything is fixed at
// startup; nothing is reconfigurable mid-run.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Workers WorkersConfig `mapstructure:"workers"`
	Sales   SalesConfig   `mapstructure:"sales"`
	Feed    FeedConfig    `mapstructure:"feed"`
}

// QueueConfig sizes the shared bounded queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// WorkersConfig fixes the worker population.
type WorkersConfig struct {
	Producers        int  `mapstructure:"producers"`
	Consumers        int  `mapstructure:"consumers"`
	ItemsPerProducer int  `mapstructure:"itemsPerProducer"`
	BatchManager     bool `mapstructure:"batchManager"`
}

// SalesConfig bounds the generated sale amounts.
type SalesConfig struct {
	MinAmount float64 `mapstructure:"minAmount"`
	MaxAmount float64 `mapstructure:"maxAmount"`
}

// FeedConfig configures the optional live feed and metrics server.
type FeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Default returns the configuration used when no file is given: the classic
// small simulation.
func Default() *Config {
	return &Config{
		Queue:   QueueConfig{Capacity: 5},
		Workers: WorkersConfig{Producers: 6, Consumers: 2, ItemsPerProducer: 10},
		Sales:   SalesConfig{MinAmount: 1, MaxAmount: 1000},
		Feed:    FeedConfig{Enabled: false, Port: 9090},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("queue.capacity", defaults.Queue.Capacity)
	v.SetDefault("workers.producers", defaults.Workers.Producers)
	v.SetDefault("workers.consumers", defaults.Workers.Consumers)
	v.SetDefault("workers.itemsPerProducer", defaults.Workers.ItemsPerProducer)
	v.SetDefault("sales.minAmount", defaults.Sales.MinAmount)
	v.SetDefault("sales.maxAmount", defaults.Sales.MaxAmount)
	v.SetDefault("feed.port", defaults.Feed.Port)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate rejects configurations the pipeline would reject at construction,
// so mistakes surface before any worker starts.
func (c *Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Workers.Producers <= 0 {
		return fmt.Errorf("producer count must be positive, got %d", c.Workers.Producers)
	}
	if c.Workers.Consumers <= 0 {
		return fmt.Errorf("consumer count must be positive, got %d", c.Workers.Consumers)
	}
	if c.Workers.ItemsPerProducer < 0 {
		return fmt.Errorf("items per producer must not be negative, got %d", c.Workers.ItemsPerProducer)
	}
	if c.Workers.BatchManager && c.Workers.Consumers != 1 {
		return fmt.Errorf("batch manager mode requires exactly one consumer, got %d", c.Workers.Consumers)
	}
	if c.Sales.MinAmount > c.Sales.MaxAmount {
		return fmt.Errorf("sale amount range [%v, %v] is inverted", c.Sales.MinAmount, c.Sales.MaxAmount)
	}
	if c.Feed.Enabled && (c.Feed.Port <= 0 || c.Feed.Port > 65535) {
		return fmt.Errorf("feed port %d out of range", c.Feed.Port)
	}
	return nil
}
