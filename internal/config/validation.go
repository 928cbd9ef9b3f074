package config

import (
	"fmt"

	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
)

// Validate checks the configuration for values the daemon cannot run with.
// Defaults have already been applied, so only genuinely missing or
// contradictory settings fail here.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return configError("client_id is required")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return configError("provider entry missing name")
		}
		if seen[p.Name] {
			return configError(fmt.Sprintf("duplicate provider %q", p.Name))
		}
		seen[p.Name] = true
		if p.Secret == "" {
			return configError(fmt.Sprintf("provider %q has no secret; webhooks from it would always be rejected", p.Name))
		}
	}

	if c.Batching.ImmediateBuildThreshold >= c.Batching.MaxBatchSize {
		return configError("batching.immediate_build_threshold must be below batching.max_batch_size")
	}
	if c.Batching.NormalWindow > c.Batching.MaxBatchAge {
		return configError("batching.normal_window must not exceed batching.max_batch_age")
	}
	if c.Batching.BulkWindow < c.Batching.NormalWindow {
		return configError("batching.bulk_window must be at least batching.normal_window")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return configError("nats.enabled requires nats.url")
	}

	if c.Build.Endpoint == "" {
		return configError("build.endpoint is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return configError(fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return configError(fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}

	return nil
}

func configError(msg string) error {
	return berrors.ConfigError(msg).Build()
}
