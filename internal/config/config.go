// Package config loads bountyd settings.
//
// Sources, later ones winning:
//
//  1. built-in defaults
//  2. an optional YAML file
//  3. a .env file (variables already set in the environment are kept)
//  4. BOUNTY_* environment variables
//
// Command-line flags are applied on top by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvDatabase    = "BOUNTY_DB"
	EnvHTTPAddr    = "BOUNTY_HTTP_ADDR"
	EnvEngineID    = "BOUNTY_ENGINE_ID"
	EnvAPIToken    = "BOUNTY_API_TOKEN"
	EnvFeedPoll    = "BOUNTY_FEED_POLL"
	EnvFeedBatch   = "BOUNTY_FEED_BATCH"
	EnvRepairEvery = "BOUNTY_REPAIR_EVERY"
)

// Config holds every bountyd setting.
type Config struct {
	// Database is the SQLite file shared with other clients.
	Database string `yaml:"database"`

	// HTTPAddr is the web API listen address. Empty disables the web API.
	HTTPAddr string `yaml:"http-addr"`

	// APIToken is the shared secret web clients send. Empty disables the
	// check.
	APIToken string `yaml:"api-token"`

	// EngineID labels activity entries this process writes. The loop guard
	// relies on the entry origin, not this label.
	EngineID string `yaml:"engine-id"`

	FeedPoll    time.Duration `yaml:"feed-poll"`
	FeedBatch   int           `yaml:"feed-batch"`
	Consumer    string        `yaml:"consumer"`
	RepairEvery time.Duration `yaml:"repair-every"`

	// Retries bounds ConcurrentModification retries per request.
	Retries int `yaml:"retries"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:    "bountyboard.db",
		HTTPAddr:    ":8080",
		EngineID:    "bountyboard-engine",
		FeedPoll:    time.Second,
		FeedBatch:   64,
		Consumer:    "reconciler",
		RepairEvery: 5 * time.Minute,
		Retries:     2,
	}
}

// Load builds a Config. file and envFile may be empty. A named file that
// does not exist is an error; a missing envFile is not.
func Load(file, envFile string) (Config, error) {
	cfg := Default()

	if file != "" {
		data, err := os.ReadFile(file) // #nosec G304 - operator-supplied config path
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", file, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvDatabase, &c.Database)
	str(EnvHTTPAddr, &c.HTTPAddr)
	str(EnvEngineID, &c.EngineID)
	str(EnvAPIToken, &c.APIToken)

	for key, dst := range map[string]*time.Duration{
		EnvFeedPoll:    &c.FeedPoll,
		EnvRepairEvery: &c.RepairEvery,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvFeedBatch); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFeedBatch, err)
		}
		c.FeedBatch = n
	}
	return nil
}

// Validate rejects settings bountyd cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.EngineID == "" {
		errs = append(errs, errors.New("engine id is required"))
	}
	if c.Consumer == "" {
		errs = append(errs, errors.New("consumer name is required"))
	}
	if c.FeedPoll <= 0 {
		errs = append(errs, fmt.Errorf("feed poll must be positive, got %s", c.FeedPoll))
	}
	if c.FeedBatch <= 0 {
		errs = append(errs, fmt.Errorf("feed batch must be positive, got %d", c.FeedBatch))
	}
	if c.RepairEvery <= 0 {
		errs = append(errs, fmt.Errorf("repair interval must be positive, got %s", c.RepairEvery))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	return errors.Join(errs...)
}
