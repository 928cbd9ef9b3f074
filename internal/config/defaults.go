package config

import "time"

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = ":9090"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20 // 1 MiB
	}

	if c.Store.Path == "" {
		c.Store.Path = "buildrelay.db"
	}
	if c.Store.SweepInterval <= 0 {
		c.Store.SweepInterval = time.Hour
	}

	if c.Gate.MaxTimestampSkew <= 0 {
		c.Gate.MaxTimestampSkew = 5 * time.Minute
	}
	if c.Gate.ReceiptTTL <= 0 {
		c.Gate.ReceiptTTL = 24 * time.Hour
	}
	if c.Gate.SecretCacheTTL <= 0 {
		c.Gate.SecretCacheTTL = 15 * time.Minute
	}

	if c.Batching.ImmediateBuildThreshold <= 0 {
		c.Batching.ImmediateBuildThreshold = 3
	}
	if c.Batching.MaxBatchSize <= 0 {
		c.Batching.MaxBatchSize = 50
	}
	if c.Batching.MaxBatchAge <= 0 {
		c.Batching.MaxBatchAge = 10 * time.Minute
	}
	if c.Batching.NormalWindow <= 0 {
		c.Batching.NormalWindow = 30 * time.Second
	}
	if c.Batching.BulkWindow <= 0 {
		c.Batching.BulkWindow = 60 * time.Second
	}
	if c.Batching.BulkUpdateThreshold <= 0 {
		c.Batching.BulkUpdateThreshold = 10
	}
	if c.Batching.SingleProviderBurst <= 0 {
		c.Batching.SingleProviderBurst = 5
	}
	if c.Batching.BatchTTL <= 0 {
		c.Batching.BatchTTL = 24 * time.Hour
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "content.events"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "buildrelay"
	}

	if c.Build.Timeout <= 0 {
		c.Build.Timeout = 30 * time.Second
	}
	if c.Build.FullRebuildThreshold <= 0 {
		c.Build.FullRebuildThreshold = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
