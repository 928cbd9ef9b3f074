// Package dispatch turns accumulated content events into build-service
// invocations and owns the building/completed/failed tail of the batch
// lifecycle.
package dispatch

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/logfields"
	"git.home.luguber.info/inful/buildrelay/internal/metrics"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

// BatchStore is the slice of the durable store the dispatcher needs.
type BatchStore interface {
	GetBatch(ctx context.Context, batchID string) (*store.Batch, error)
	MarkBuilding(ctx context.Context, batchID string) (bool, error)
	CompleteBatch(ctx context.Context, batchID, buildID string) (bool, error)
	FailBatch(ctx context.Context, batchID, errMsg string) (bool, error)
}

// TriggerCanceller disarms a batch's scheduled expiry trigger.
type TriggerCanceller interface {
	Cancel(id string)
}

// Notifier receives build-started notifications.
type Notifier interface {
	BuildStarted(ctx context.Context, buildID string, bc BuildContext)
}

// LogNotifier reports build starts through slog.
type LogNotifier struct{}

func (LogNotifier) BuildStarted(_ context.Context, buildID string, bc BuildContext) {
	slog.Info("Build started",
		logfields.BuildID(buildID),
		logfields.ClientID(bc.ClientID),
		slog.String("build_type", string(bc.BuildType)),
		logfields.EventCount(bc.TotalEvents),
		slog.Bool("full_rebuild", bc.RequiresFullRebuild))
}

// Dispatcher invokes the build service for immediate and batch builds.
type Dispatcher struct {
	batches  BatchStore
	builds   BuildService
	triggers TriggerCanceller
	notifier Notifier
	recorder metrics.Recorder
	logger   *slog.Logger

	// fullRebuildThreshold is the event count above which a build is too
	// large to apply incrementally.
	fullRebuildThreshold int
}

// New constructs a Dispatcher. notifier and recorder may be nil.
func New(batches BatchStore, builds BuildService, triggers TriggerCanceller, notifier Notifier, recorder metrics.Recorder, fullRebuildThreshold int, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fullRebuildThreshold <= 0 {
		fullRebuildThreshold = 100
	}
	return &Dispatcher{
		batches:              batches,
		builds:               builds,
		triggers:             triggers,
		notifier:             notifier,
		recorder:             recorder,
		logger:               logger,
		fullRebuildThreshold: fullRebuildThreshold,
	}
}

// TriggerImmediate invokes the build service for a group of events outside
// any batch.
func (d *Dispatcher) TriggerImmediate(ctx context.Context, clientID string, events []content.Event, reason string) (string, error) {
	bc := aggregateContext(BuildImmediate, clientID, events, d.fullRebuildThreshold)

	buildID, err := d.builds.StartBuild(ctx, bc)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryBuild, "immediate build failed").
			WithContext("client_id", clientID).
			WithContext("reason", reason).Build()
	}

	d.recorder.IncBuildTriggered(string(BuildImmediate))
	d.notifier.BuildStarted(ctx, buildID, bc)
	d.logger.Info("Immediate build triggered",
		logfields.BuildID(buildID),
		logfields.ClientID(clientID),
		logfields.Reason(reason),
		logfields.EventCount(len(events)))
	return buildID, nil
}

// TriggerBatch transitions a batch to building, invokes the build service
// with its aggregated events, and completes it. A batch that is no longer
// active is a reported, benign abort: expiry triggers firing late against a
// building or completed batch land here. Any failure after the transition
// marks the batch failed rather than leaving it stuck.
func (d *Dispatcher) TriggerBatch(ctx context.Context, batchID string) (string, error) {
	b, err := d.batches.GetBatch(ctx, batchID)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryStore, "load batch for trigger").
			WithContext("batch_id", batchID).Build()
	}

	if b.Status != store.BatchActive {
		d.logger.Debug("Batch trigger skipped, batch not active",
			logfields.BatchID(batchID), slog.String("status", string(b.Status)))
		return "", errors.ConflictError("batch is not active").Warning().
			WithContext("batch_id", batchID).
			WithContext("status", string(b.Status)).Build()
	}

	ok, err := d.batches.MarkBuilding(ctx, batchID)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryStore, "mark batch building").
			WithContext("batch_id", batchID).Build()
	}
	if !ok {
		// Lost the transition race to a concurrent trigger.
		return "", errors.ConflictError("batch already transitioned").Warning().
			WithContext("batch_id", batchID).Build()
	}

	// Re-read after the transition. Extends CAS on status=active, so once
	// the batch is building this snapshot is final; the pre-transition read
	// may be missing events appended in between.
	b, err = d.batches.GetBatch(ctx, batchID)
	if err != nil {
		if _, ferr := d.batches.FailBatch(ctx, batchID, err.Error()); ferr != nil {
			d.logger.Error("Failed to mark batch failed",
				logfields.BatchID(batchID), logfields.Error(ferr))
		}
		d.triggers.Cancel(batchID)
		return "", errors.WrapError(err, errors.CategoryStore, "reload batch after transition").
			WithContext("batch_id", batchID).Build()
	}

	bc := aggregateContext(BuildBatch, b.ClientID, b.Events, d.fullRebuildThreshold)

	buildID, err := d.builds.StartBuild(ctx, bc)
	if err != nil {
		if _, ferr := d.batches.FailBatch(ctx, batchID, err.Error()); ferr != nil {
			d.logger.Error("Failed to mark batch failed",
				logfields.BatchID(batchID), logfields.Error(ferr))
		}
		d.triggers.Cancel(batchID)
		return "", errors.WrapError(err, errors.CategoryBuild, "batch build failed").
			WithContext("batch_id", batchID).Build()
	}

	if _, err := d.batches.CompleteBatch(ctx, batchID, buildID); err != nil {
		d.logger.Error("Build started but batch completion not recorded",
			logfields.BatchID(batchID), logfields.BuildID(buildID), logfields.Error(err))
	}
	d.triggers.Cancel(batchID)

	d.recorder.IncBuildTriggered(string(BuildBatch))
	d.recorder.ObserveBatchSize(b.EventCount)
	d.notifier.BuildStarted(ctx, buildID, bc)
	d.logger.Info("Batch build triggered",
		logfields.BatchID(batchID),
		logfields.BuildID(buildID),
		logfields.ClientID(b.ClientID),
		logfields.EventCount(b.EventCount))
	return buildID, nil
}
