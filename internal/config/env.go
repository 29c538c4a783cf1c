package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays BUS_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("BUS_INITIAL_CHANNELS"); v != "" {
		cfg.InitialChannels = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.InitialChannels = append(cfg.InitialChannels, p)
			}
		}
	}
	if v := os.Getenv("BUS_FALLBACK_CHANNEL"); v != "" {
		cfg.FallbackChannel = v
	}
	if v := os.Getenv("BUS_CHANNEL_NAME_REGEX"); v != "" {
		cfg.ChannelNameRegex = v
	}
	if v := os.Getenv("BUS_THROUGHPUT_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ThroughputWindowMs = n
		}
	}
	if v := os.Getenv("BUS_RECENT_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RecentEvents = n
		}
	}
	if v := os.Getenv("BUS_RESET_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ResetOnStart = b
		}
	}
	if v := os.Getenv("BUS_STRICT_COMMIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StrictCommit = b
		}
	}
	if v := os.Getenv("BUS_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("BUS_MAX_POLL_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxPollLimit = n
		}
	}
}
