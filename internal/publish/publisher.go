// Package publish emits content events to downstream subscribers. Publishing
// is per-item: one failed event never blocks its siblings, and callers get a
// report listing each outcome.
package publish

import (
	"context"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

// Publisher delivers one content event to the event stream.
type Publisher interface {
	Publish(ctx context.Context, evt content.Event) error
}

// ItemResult records the outcome of publishing one event.
type ItemResult struct {
	EventID string
	Err     error
}

// Report collects per-item publish outcomes for one webhook delivery.
type Report struct {
	Results []ItemResult
}

// Published counts successful items.
func (r Report) Published() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the failed items.
func (r Report) Failed() []ItemResult {
	var failed []ItemResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// PublishAll publishes each event, collecting outcomes. Partial success is a
// designed outcome: the report, not an error, tells the caller what happened.
func PublishAll(ctx context.Context, p Publisher, events []content.Event) Report {
	report := Report{Results: make([]ItemResult, 0, len(events))}
	for _, evt := range events {
		report.Results = append(report.Results, ItemResult{
			EventID: evt.EventID,
			Err:     p.Publish(ctx, evt),
		})
	}
	return report
}

// NoopPublisher discards events; used when no event stream is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, content.Event) error { return nil }
