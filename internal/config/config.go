package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// InitialChannels are registered at startup and after every reset.
	InitialChannels []string `json:"initialChannels"`
	// FallbackChannel names the overview when no channel exists.
	FallbackChannel    string `json:"fallbackChannel"`
	ChannelNameRegex   string `json:"channelNameRegex"`
	ThroughputWindowMs int64  `json:"throughputWindowMs"`
	RecentEvents       int    `json:"recentEvents"`
	ResetOnStart       bool   `json:"resetOnStart"`
	StrictCommit       bool   `json:"strictCommit"`
	Limits             Limits `json:"limits"`
}

// Limits bound what a single transport request may ask for.
type Limits struct {
	MaxBodyBytes int64 `json:"maxBodyBytes"`
	MaxPollLimit int   `json:"maxPollLimit"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		InitialChannels:    []string{"general"},
		FallbackChannel:    "general",
		ChannelNameRegex:   `^[A-Za-z0-9._:-]{1,128}$`,
		ThroughputWindowMs: 60_000,
		RecentEvents:       10,
		Limits: Limits{
			MaxBodyBytes: 1 << 20,
			MaxPollLimit: 1000,
		},
	}
}

// ThroughputWindow returns the throughput window as a duration.
func (c Config) ThroughputWindow() time.Duration {
	return time.Duration(c.ThroughputWindowMs) * time.Millisecond
}

// Validate checks the configuration for values the store cannot use.
func (c Config) Validate() error {
	re, err := regexp.Compile(c.ChannelNameRegex)
	if err != nil {
		return fmt.Errorf("channelNameRegex: %w", err)
	}
	// '/' separates key segments; the store rejects it whatever the regex says.
	for _, name := range c.InitialChannels {
		if strings.ContainsRune(name, '/') {
			return fmt.Errorf("initial channel %q must not contain '/'", name)
		}
		if !re.MatchString(name) {
			return fmt.Errorf("initial channel %q does not match channelNameRegex", name)
		}
	}
	if c.ThroughputWindowMs <= 0 {
		return errors.New("throughputWindowMs must be positive")
	}
	if c.Limits.MaxBodyBytes <= 0 || c.Limits.MaxPollLimit <= 0 {
		return errors.New("limits must be positive")
	}
	return nil
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
