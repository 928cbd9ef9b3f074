// Package batch is the build-batching decision engine. Given a group of
// content events for a client and the client's currently active batch (if
// any), it decides to build immediately, create or extend a batch, trigger
// an existing batch, or skip.
//
// All coordination runs through the durable store's conditional writes: the
// single-active-batch invariant is the store's partial unique index, and
// extends are compare-and-swap updates. Losing a race is never an error here,
// it is a signal to re-read and retry the decision.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/logfields"
	"git.home.luguber.info/inful/buildrelay/internal/metrics"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

// Strategy labels the orchestrator's decision for observability.
type Strategy string

const (
	StrategyBuildImmediately Strategy = "build_immediately"
	StrategyBatchCreated     Strategy = "batch_created"
	StrategyBatchExtended    Strategy = "batch_extended"
	StrategyTriggerBatchNow  Strategy = "trigger_batch_now"
	StrategySkipBuild        Strategy = "skip_build"
)

// Outcome is the orchestrator's structured decision result.
type Outcome struct {
	Strategy   Strategy
	Reason     string
	BatchID    string
	BuildID    string
	EventCount int
}

// Config tunes the decision thresholds.
type Config struct {
	// ImmediateBuildThreshold: groups of at most this many build-worthy
	// events build immediately when no batch is active.
	ImmediateBuildThreshold int
	// MaxBatchSize triggers a batch once its projected size reaches it.
	MaxBatchSize int
	// MaxBatchAge is the hard bound on how long content can wait in a batch.
	MaxBatchAge time.Duration
	// NormalWindow and BulkWindow are the batch accumulation windows.
	NormalWindow time.Duration
	BulkWindow   time.Duration
	// BulkUpdateThreshold: incoming groups of at least this many events get
	// the bulk window.
	BulkUpdateThreshold int
	// SingleProviderBurst: more than this many events from one provider in a
	// group also counts as bulk.
	SingleProviderBurst int
	// BatchTTL bounds how long terminal batch records are retained.
	BatchTTL time.Duration
	// MaxAttempts bounds the re-read/retry loop under contention.
	MaxAttempts int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ImmediateBuildThreshold: 3,
		MaxBatchSize:            50,
		MaxBatchAge:             10 * time.Minute,
		NormalWindow:            30 * time.Second,
		BulkWindow:              60 * time.Second,
		BulkUpdateThreshold:     10,
		SingleProviderBurst:     5,
		BatchTTL:                24 * time.Hour,
		MaxAttempts:             4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ImmediateBuildThreshold <= 0 {
		c.ImmediateBuildThreshold = d.ImmediateBuildThreshold
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxBatchAge <= 0 {
		c.MaxBatchAge = d.MaxBatchAge
	}
	if c.NormalWindow <= 0 {
		c.NormalWindow = d.NormalWindow
	}
	if c.BulkWindow <= 0 {
		c.BulkWindow = d.BulkWindow
	}
	if c.BulkUpdateThreshold <= 0 {
		c.BulkUpdateThreshold = d.BulkUpdateThreshold
	}
	if c.SingleProviderBurst <= 0 {
		c.SingleProviderBurst = d.SingleProviderBurst
	}
	if c.BatchTTL <= 0 {
		c.BatchTTL = d.BatchTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// BatchStore is the slice of the durable store the orchestrator needs.
type BatchStore interface {
	GetActiveBatch(ctx context.Context, clientID string) (*store.Batch, error)
	CreateBatch(ctx context.Context, b *store.Batch) error
	ExtendBatch(ctx context.Context, batchID string, expectedCount int, events []content.Event) (bool, error)
}

// Builder triggers builds; implemented by the dispatcher.
type Builder interface {
	TriggerImmediate(ctx context.Context, clientID string, events []content.Event, reason string) (string, error)
	TriggerBatch(ctx context.Context, batchID string) (string, error)
}

// TriggerScheduler arms batch-expiry triggers.
type TriggerScheduler interface {
	Schedule(id string, fireAt time.Time, fn func(ctx context.Context)) error
}

// Orchestrator owns the batch lifecycle up to the building transition.
type Orchestrator struct {
	batches  BatchStore
	builder  Builder
	triggers TriggerScheduler
	recorder metrics.Recorder
	cfg      Config
	logger   *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// New constructs an Orchestrator. recorder may be nil.
func New(batches BatchStore, builder Builder, triggers TriggerScheduler, recorder metrics.Recorder, cfg Config, logger *slog.Logger) *Orchestrator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		batches:  batches,
		builder:  builder,
		triggers: triggers,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetConfig swaps the decision thresholds; used by live config reload.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.cfg = cfg.withDefaults()
}

// Process evaluates one group of content events for a client and carries out
// the decision. The decision rules are evaluated in strict priority order;
// the first matching rule wins.
func (o *Orchestrator) Process(ctx context.Context, clientID string, events []content.Event) (Outcome, error) {
	if len(events) == 0 {
		return Outcome{Strategy: StrategySkipBuild, Reason: "no events"}, nil
	}

	buildWorthy := filterBuildWorthy(events)

	// Rule 1: priority bypass. Business-critical changes never wait on a
	// cost-driven window, active batch or not.
	if hasHighPriority(events) {
		group := buildWorthy
		if len(group) == 0 {
			group = events
		}
		return o.buildImmediately(ctx, clientID, group, "priority_bypass")
	}

	// Rule 6 short-circuits early: with nothing build-worthy there is no
	// batch to create or extend. A first-class outcome, not an error.
	if len(buildWorthy) == 0 {
		o.recorder.IncDecision(string(StrategySkipBuild))
		return Outcome{Strategy: StrategySkipBuild, Reason: "no build-worthy events"}, nil
	}

	outcome, err := o.decide(ctx, clientID, buildWorthy)
	if err != nil {
		// Failure semantics: never strand events. Whatever went wrong with
		// batching, the affected events get an immediate build attempt.
		o.logger.Error("Batching failed, falling back to immediate build",
			logfields.ClientID(clientID), logfields.EventCount(len(buildWorthy)), logfields.Error(err))
		return o.buildImmediately(ctx, clientID, buildWorthy, "batching_failure")
	}
	return outcome, nil
}

// decide runs rules 2 through 5 with a bounded re-read/retry loop for
// optimistic-concurrency races.
func (o *Orchestrator) decide(ctx context.Context, clientID string, events []content.Event) (Outcome, error) {
	var lastErr error
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		active, err := o.batches.GetActiveBatch(ctx, clientID)
		if err != nil {
			lastErr = err
			continue
		}

		if active == nil {
			// Rule 2: small groups are not worth a window.
			if len(events) <= o.cfg.ImmediateBuildThreshold {
				return o.buildImmediately(ctx, clientID, events, "small_change")
			}
			// Rule 5: create a batch.
			outcome, retry, err := o.createBatch(ctx, clientID, events)
			if err != nil {
				lastErr = err
				continue
			}
			if retry {
				// Lost the creation race; the next pass extends the winner.
				continue
			}
			return outcome, nil
		}

		// Rule 3: evaluate the active batch's trigger conditions in order;
		// the first true condition is the recorded reason.
		if reason, due := o.triggerReason(active, len(events)); due {
			return o.triggerNow(ctx, active, events, reason)
		}

		// Rule 4: extend.
		ok, err := o.batches.ExtendBatch(ctx, active.BatchID, active.EventCount, events)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok {
			// Concurrent extend or trigger; re-read and retry.
			continue
		}
		o.recorder.IncDecision(string(StrategyBatchExtended))
		o.logger.Info("Batch extended",
			logfields.ClientID(clientID),
			logfields.BatchID(active.BatchID),
			logfields.EventCount(active.EventCount+len(events)))
		return Outcome{
			Strategy:   StrategyBatchExtended,
			Reason:     "window open",
			BatchID:    active.BatchID,
			EventCount: active.EventCount + len(events),
		}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("batch decision retries exhausted for client %s", clientID)
	}
	return Outcome{}, lastErr
}

// triggerReason evaluates the three trigger conditions in their fixed order:
// projected size, hard age bound, then the batch's own window.
func (o *Orchestrator) triggerReason(b *store.Batch, incoming int) (string, bool) {
	if b.EventCount+incoming >= o.cfg.MaxBatchSize {
		return "size_limit", true
	}
	age := o.now().Sub(b.CreatedAt)
	if age >= o.cfg.MaxBatchAge {
		return "max_age", true
	}
	if age >= time.Duration(b.BatchWindowSeconds)*time.Second {
		return "window_elapsed", true
	}
	return "", false
}

func (o *Orchestrator) triggerNow(ctx context.Context, active *store.Batch, events []content.Event, reason string) (Outcome, error) {
	// Ride the new events along before triggering; when the swap loses the
	// batch is being handled concurrently and the events fall back to an
	// immediate build. The outcome reports the build covering the incoming
	// events, so a failed join carries the fallback build's ID and count.
	eventCount := active.EventCount + len(events)
	var fallbackBuildID string
	joined, err := o.batches.ExtendBatch(ctx, active.BatchID, active.EventCount, events)
	if err != nil || !joined {
		o.logger.Warn("Could not join events to triggering batch, building them immediately",
			logfields.BatchID(active.BatchID), logfields.EventCount(len(events)), logfields.Error(err))
		fbID, berr := o.builder.TriggerImmediate(ctx, active.ClientID, events, "trigger_join_failed")
		if berr != nil {
			return Outcome{}, berr
		}
		fallbackBuildID = fbID
		eventCount = len(events)
	}

	buildID, err := o.builder.TriggerBatch(ctx, active.BatchID)
	if err != nil {
		// A conflict means another invocation triggered it first; the events
		// are in the batch (or already built by the fallback) and nothing is
		// lost.
		if isBenignTriggerConflict(err) {
			o.logger.Debug("Batch concurrently triggered", logfields.BatchID(active.BatchID))
			return Outcome{
				Strategy:   StrategyTriggerBatchNow,
				Reason:     reason,
				BatchID:    active.BatchID,
				BuildID:    fallbackBuildID,
				EventCount: eventCount,
			}, nil
		}
		return Outcome{}, err
	}

	if fallbackBuildID != "" {
		buildID = fallbackBuildID
	}
	o.recorder.IncDecision(string(StrategyTriggerBatchNow))
	return Outcome{
		Strategy:   StrategyTriggerBatchNow,
		Reason:     reason,
		BatchID:    active.BatchID,
		BuildID:    buildID,
		EventCount: eventCount,
	}, nil
}

// createBatch inserts a new active batch and arms its expiry trigger. retry
// is true when another writer won the per-client active slot.
func (o *Orchestrator) createBatch(ctx context.Context, clientID string, events []content.Event) (Outcome, bool, error) {
	now := o.now().UTC()
	window := o.cfg.NormalWindow
	bulk := o.isBulk(events)
	if bulk {
		window = o.cfg.BulkWindow
	}

	b := &store.Batch{
		BatchID:            uuid.NewString(),
		ClientID:           clientID,
		EventCount:         len(events),
		Events:             events,
		CreatedAt:          now,
		UpdatedAt:          now,
		ScheduledBuildTime: now.Add(window),
		BatchWindowSeconds: int(window / time.Second),
		IsBulkOperation:    bulk,
		ExpiresAt:          now.Add(o.cfg.BatchTTL),
	}

	if err := o.batches.CreateBatch(ctx, b); err != nil {
		if errors.Is(err, store.ErrActiveBatchExists) {
			return Outcome{}, true, nil
		}
		return Outcome{}, false, err
	}

	if err := o.triggers.Schedule(b.BatchID, b.ScheduledBuildTime, func(ctx context.Context) {
		o.onExpiry(ctx, b.BatchID)
	}); err != nil {
		// The batch exists but its trigger does not; the max-age bound on
		// the next delivery is the backstop. Surface loudly.
		o.logger.Error("Failed to arm batch expiry trigger",
			logfields.BatchID(b.BatchID), logfields.Error(err))
	}

	o.recorder.IncDecision(string(StrategyBatchCreated))
	o.logger.Info("Batch created",
		logfields.ClientID(clientID),
		logfields.BatchID(b.BatchID),
		logfields.EventCount(len(events)),
		slog.Bool("bulk", bulk),
		slog.Duration("window", window))
	return Outcome{
		Strategy:   StrategyBatchCreated,
		Reason:     createReason(bulk),
		BatchID:    b.BatchID,
		EventCount: len(events),
	}, false, nil
}

// onExpiry handles a fired window trigger. Late fires against a batch that
// already left active are benign.
func (o *Orchestrator) onExpiry(ctx context.Context, batchID string) {
	buildID, err := o.builder.TriggerBatch(ctx, batchID)
	if err != nil {
		if isBenignTriggerConflict(err) {
			o.logger.Debug("Expiry trigger fired on non-active batch", logfields.BatchID(batchID))
			return
		}
		o.logger.Error("Expiry-triggered build failed",
			logfields.BatchID(batchID), logfields.Error(err))
		return
	}
	o.logger.Info("Batch window expired, build triggered",
		logfields.BatchID(batchID), logfields.BuildID(buildID))
}

func (o *Orchestrator) buildImmediately(ctx context.Context, clientID string, events []content.Event, reason string) (Outcome, error) {
	buildID, err := o.builder.TriggerImmediate(ctx, clientID, events, reason)
	if err != nil {
		return Outcome{}, err
	}
	o.recorder.IncDecision(string(StrategyBuildImmediately))
	return Outcome{
		Strategy:   StrategyBuildImmediately,
		Reason:     reason,
		BuildID:    buildID,
		EventCount: len(events),
	}, nil
}

// isBulk detects large imports: a big incoming group, or a burst from one
// provider, gets the longer window to avoid many small batches during
// migrations.
func (o *Orchestrator) isBulk(events []content.Event) bool {
	if len(events) >= o.cfg.BulkUpdateThreshold {
		return true
	}
	perProvider := make(map[string]int)
	for _, evt := range events {
		perProvider[evt.ProviderName]++
		if perProvider[evt.ProviderName] > o.cfg.SingleProviderBurst {
			return true
		}
	}
	return false
}

// isBenignTriggerConflict reports whether a trigger failed only because the
// batch already left the active state.
func isBenignTriggerConflict(err error) bool {
	return berrors.HasCategory(err, berrors.CategoryConflict) ||
		errors.Is(err, store.ErrBatchNotFound)
}

func createReason(bulk bool) string {
	if bulk {
		return "bulk_window"
	}
	return "normal_window"
}

func filterBuildWorthy(events []content.Event) []content.Event {
	var out []content.Event
	for _, evt := range events {
		if evt.RequiresBuild {
			out = append(out, evt)
		}
	}
	return out
}

func hasHighPriority(events []content.Event) bool {
	for _, evt := range events {
		if evt.Priority == content.PriorityHigh {
			return true
		}
	}
	return false
}
