// Package scheduler arms and disarms one-shot batch-expiry triggers. It must
// tolerate double-cancel and late or duplicate firing: the batch state
// machine treats those as benign no-ops.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildrelay/internal/logfields"
)

// TriggerScheduler is the contract the batch orchestrator depends on.
type TriggerScheduler interface {
	// Schedule arms a one-shot trigger. Re-scheduling an armed id replaces it.
	Schedule(id string, fireAt time.Time, fn func(ctx context.Context)) error
	// Cancel disarms a trigger. Cancelling an unknown or already-fired id is
	// not an error.
	Cancel(id string)
}

// GocronScheduler implements TriggerScheduler on gocron one-time jobs.
type GocronScheduler struct {
	scheduler gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// New creates a started scheduler.
func New() (*GocronScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	s.Start()
	return &GocronScheduler{scheduler: s, jobs: make(map[string]uuid.UUID)}, nil
}

// Schedule arms a one-shot trigger for fireAt.
func (g *GocronScheduler) Schedule(id string, fireAt time.Time, fn func(ctx context.Context)) error {
	g.Cancel(id)

	job, err := g.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(fireAt)),
		gocron.NewTask(func() {
			// The job has fired; forget it before running so a concurrent
			// Cancel is a no-op rather than a removal of a live job.
			g.mu.Lock()
			delete(g.jobs, id)
			g.mu.Unlock()
			fn(context.Background())
		}),
		gocron.WithName(id),
	)
	if err != nil {
		return fmt.Errorf("schedule trigger %s: %w", id, err)
	}

	g.mu.Lock()
	g.jobs[id] = job.ID()
	g.mu.Unlock()

	slog.Debug("Armed expiry trigger", logfields.BatchID(id), slog.Time("fire_at", fireAt))
	return nil
}

// Cancel disarms a trigger. Unknown ids and already-fired triggers are
// silently ignored.
func (g *GocronScheduler) Cancel(id string) {
	g.mu.Lock()
	jobID, ok := g.jobs[id]
	if ok {
		delete(g.jobs, id)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	if err := g.scheduler.RemoveJob(jobID); err != nil {
		// The job may have fired between lookup and removal.
		slog.Debug("Trigger already gone on cancel", logfields.BatchID(id), logfields.Error(err))
	}
}

// Every runs fn at a fixed interval, starting one interval from now. Used
// for maintenance jobs like TTL sweeps; these are not tracked by id and live
// until Shutdown.
func (g *GocronScheduler) Every(interval time.Duration, name string, fn func(ctx context.Context)) error {
	_, err := g.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { fn(context.Background()) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Shutdown stops the scheduler and drops all armed triggers.
func (g *GocronScheduler) Shutdown() error {
	return g.scheduler.Shutdown()
}
