// Package daemon wires the buildrelay components into a running service:
// durable store, webhook gate, provider registry, event publisher, batch
// orchestrator, build dispatcher, trigger scheduler, and the HTTP surface.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildrelay/internal/batch"
	"git.home.luguber.info/inful/buildrelay/internal/config"
	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/dispatch"
	"git.home.luguber.info/inful/buildrelay/internal/gate"
	"git.home.luguber.info/inful/buildrelay/internal/logfields"
	"git.home.luguber.info/inful/buildrelay/internal/metrics"
	"git.home.luguber.info/inful/buildrelay/internal/provider"
	"git.home.luguber.info/inful/buildrelay/internal/publish"
	"git.home.luguber.info/inful/buildrelay/internal/retry"
	"git.home.luguber.info/inful/buildrelay/internal/scheduler"
	"git.home.luguber.info/inful/buildrelay/internal/server"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

// Daemon composes and runs all buildrelay components.
type Daemon struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	store        *store.Store
	gate         *gate.Gate
	registry     *provider.Registry
	classifier   *content.Classifier
	publisher    publish.Publisher
	scheduler    *scheduler.GocronScheduler
	dispatcher   *dispatch.Dispatcher
	orchestrator *batch.Orchestrator
	recorder     metrics.Recorder
	httpServer   *server.Server
}

// New builds a fully wired daemon from configuration. configPath enables the
// live-reload watcher; empty disables it.
func New(cfg *config.Config, configPath string, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := provider.NewDefaultRegistry()
	secrets := gate.NewSecretCache(gate.StaticSecrets(cfg.Secrets()), cfg.Gate.SecretCacheTTL)
	g := gate.New(secrets, st, registry.Supports, gate.Config{
		MaxTimestampSkew:      cfg.Gate.MaxTimestampSkew,
		ReceiptTTL:            cfg.Gate.ReceiptTTL,
		AllowUnknownProviders: cfg.Gate.AllowUnknownProviders,
	}, logger)

	var publisher publish.Publisher = publish.NoopPublisher{}
	if cfg.NATS.Enabled {
		p, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("nats publisher: %w", err)
		}
		publisher = p
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	sched, err := scheduler.New()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	builds := dispatch.NewHTTPBuildService(cfg.Build.Endpoint, cfg.Build.Token, cfg.Build.Timeout).
		WithRetryPolicy(retryPolicy(cfg.Build.Retry))
	dispatcher := dispatch.New(st, builds, sched, nil, recorder, cfg.Build.FullRebuildThreshold, logger)
	orchestrator := batch.New(st, dispatcher, sched, recorder, batchConfig(cfg.Batching), logger)

	d := &Daemon{
		cfg:          cfg,
		configPath:   configPath,
		logger:       logger,
		store:        st,
		gate:         g,
		registry:     registry,
		classifier:   content.NewClassifier(cfg.ClientID, cfg.Environment),
		publisher:    publisher,
		scheduler:    sched,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		recorder:     recorder,
	}
	d.httpServer = server.New(cfg.Server, d, st, metricsHandler, logger)
	return d, nil
}

// Start brings up the maintenance jobs, config watcher, and HTTP listeners.
// Active batches whose window elapsed while the process was down are picked
// up by the overdue sweep.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.scheduler.Every(d.cfg.Store.SweepInterval, "ttl-sweep", d.sweepExpired); err != nil {
		return err
	}
	if err := d.scheduler.Every(30*time.Second, "overdue-batches", d.triggerOverdueBatches); err != nil {
		return err
	}

	if d.configPath != "" {
		go func() {
			if err := config.WatchFile(ctx, d.configPath, d.logger, d.applyConfig); err != nil {
				d.logger.Warn("Config watcher stopped", logfields.Error(err))
			}
		}()
	}

	if err := d.httpServer.Start(ctx); err != nil {
		return err
	}

	d.logger.Info("buildrelay started",
		logfields.ClientID(d.cfg.ClientID),
		slog.String("environment", d.cfg.Environment),
		slog.Any("providers", d.registry.Providers()))
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()
	return d.Stop(shutdownCtx)
}

// Stop shuts everything down in reverse dependency order.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error
	if err := d.httpServer.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := d.scheduler.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	if closer, ok := d.publisher.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.logger.Info("buildrelay stopped")
	return firstErr
}

// applyConfig picks up reloadable settings from a new config version. Only
// the batching thresholds are live; everything else needs a restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.orchestrator.SetConfig(batchConfig(cfg.Batching))
	d.logger.Info("Applied reloaded batching thresholds",
		slog.Int("immediate_build_threshold", cfg.Batching.ImmediateBuildThreshold),
		slog.Int("max_batch_size", cfg.Batching.MaxBatchSize))
}

// sweepExpired purges idempotency receipts and terminal batches past TTL.
func (d *Daemon) sweepExpired(ctx context.Context) {
	now := time.Now().UTC()
	receipts, err := d.store.PurgeExpiredReceipts(ctx, now)
	if err != nil {
		d.logger.Error("Receipt sweep failed", logfields.Error(err))
	}
	batches, err := d.store.PurgeExpiredBatches(ctx, now)
	if err != nil {
		d.logger.Error("Batch sweep failed", logfields.Error(err))
	}
	if receipts > 0 || batches > 0 {
		d.logger.Info("Swept expired rows",
			slog.Int64("receipts", receipts), slog.Int64("batches", batches))
	}
}

// triggerOverdueBatches fires builds for active batches whose scheduled time
// passed without an in-memory trigger, which happens after a restart.
func (d *Daemon) triggerOverdueBatches(ctx context.Context) {
	overdue, err := d.store.ListOverdueBatches(ctx, time.Now().UTC())
	if err != nil {
		d.logger.Error("Overdue batch scan failed", logfields.Error(err))
		return
	}
	for _, b := range overdue {
		buildID, err := d.dispatcher.TriggerBatch(ctx, b.BatchID)
		if err != nil {
			d.logger.Error("Overdue batch trigger failed",
				logfields.BatchID(b.BatchID), logfields.Error(err))
			continue
		}
		d.logger.Info("Triggered overdue batch",
			logfields.BatchID(b.BatchID), logfields.BuildID(buildID))
	}
}

func retryPolicy(r config.RetryConfig) retry.Policy {
	if r == (config.RetryConfig{}) {
		return retry.DefaultPolicy()
	}
	return retry.NewPolicy(retry.BackoffMode(r.Mode), r.Initial, r.Max, r.MaxRetries)
}

func batchConfig(b config.BatchingConfig) batch.Config {
	return batch.Config{
		ImmediateBuildThreshold: b.ImmediateBuildThreshold,
		MaxBatchSize:            b.MaxBatchSize,
		MaxBatchAge:             b.MaxBatchAge,
		NormalWindow:            b.NormalWindow,
		BulkWindow:              b.BulkWindow,
		BulkUpdateThreshold:     b.BulkUpdateThreshold,
		SingleProviderBurst:     b.SingleProviderBurst,
		BatchTTL:                b.BatchTTL,
	}
}
