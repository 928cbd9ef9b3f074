package daemon

import (
	"context"
	"net/http"

	"git.home.luguber.info/inful/buildrelay/internal/batch"
	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/gate"
	"git.home.luguber.info/inful/buildrelay/internal/logfields"
	"git.home.luguber.info/inful/buildrelay/internal/metrics"
	"git.home.luguber.info/inful/buildrelay/internal/publish"
	"git.home.luguber.info/inful/buildrelay/internal/server"
)

// IngestWebhook runs the full pipeline for one delivery: gate, normalize,
// persist, classify, publish, orchestrate. Soft outcomes (duplicate, replay,
// skip) come back as results, not errors; the HTTP layer answers 200 so
// providers do not retry them.
func (d *Daemon) IngestWebhook(ctx context.Context, providerName string, body []byte, headers http.Header) (server.IngestResult, error) {
	decision := d.gate.Check(ctx, providerName, body, headers)
	d.recorder.IncWebhook(providerName, metrics.OutcomeLabel(decision.Outcome))

	if !decision.Accept {
		switch decision.Outcome {
		case gate.OutcomeDuplicate:
			d.logger.Debug("Duplicate delivery ignored",
				logfields.Provider(providerName), logfields.EventID(decision.EventID))
			return server.IngestResult{Status: "duplicate", Reason: decision.Reason}, nil
		case gate.OutcomeReplay:
			d.logger.Warn("Stale delivery ignored",
				logfields.Provider(providerName), logfields.Reason(decision.Reason))
			return server.IngestResult{Status: "replay", Reason: decision.Reason}, nil
		default:
			return server.IngestResult{}, rejectionError(providerName, decision)
		}
	}

	items, err := d.registry.Normalize(providerName, body, headers)
	if err != nil {
		d.recorder.IncNormalizationFailure(providerName)
		return server.IngestResult{}, err
	}

	events := d.persistAndClassify(ctx, items)
	if len(events) == 0 {
		return server.IngestResult{
			Status: "skipped",
			Reason: "payload yielded no content changes",
		}, nil
	}

	report := publish.PublishAll(ctx, d.publisher, events)
	for i, res := range report.Results {
		if res.Err == nil {
			d.recorder.IncEventPublished(providerName, string(events[i].Type))
		} else {
			d.logger.Error("Event publish failed",
				logfields.EventID(res.EventID), logfields.Error(res.Err))
		}
	}

	outcome, err := d.orchestrator.Process(ctx, d.cfg.ClientID, events)
	if err != nil {
		return server.IngestResult{}, err
	}

	status := "processed"
	if outcome.Strategy == batch.StrategySkipBuild {
		status = "skipped"
	}
	return server.IngestResult{
		Status:          status,
		EventsPublished: report.Published(),
		Strategy:        string(outcome.Strategy),
		Reason:          outcome.Reason,
		BatchID:         outcome.BatchID,
		BuildID:         outcome.BuildID,
	}, nil
}

// persistAndClassify upserts each normalized item and derives its event. A
// store failure on one item does not abort its siblings.
func (d *Daemon) persistAndClassify(ctx context.Context, items []content.Content) []content.Event {
	events := make([]content.Event, 0, len(items))
	for _, item := range items {
		hadPrior, err := d.store.UpsertContent(ctx, item)
		if err != nil {
			d.logger.Error("Content upsert failed, skipping item",
				logfields.ContentID(item.ID), logfields.Provider(item.ProviderName),
				logfields.Error(err))
			continue
		}
		events = append(events, d.classifier.Classify(item, hadPrior))
	}
	return events
}

func rejectionError(providerName string, decision gate.Decision) error {
	if decision.Reason == "unknown provider" {
		return berrors.ValidationError("unknown provider").
			WithContext("provider", providerName).Build()
	}
	return berrors.AuthError(decision.Reason).
		WithContext("provider", providerName).Build()
}
