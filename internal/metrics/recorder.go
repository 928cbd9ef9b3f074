package metrics

// OutcomeLabel enumerates webhook gate outcomes for counters.
type OutcomeLabel string

const (
	OutcomeAccepted  OutcomeLabel = "accepted"
	OutcomeDuplicate OutcomeLabel = "duplicate"
	OutcomeReplay    OutcomeLabel = "replay"
	OutcomeRejected  OutcomeLabel = "rejected"
)

// Recorder defines observability hooks for the ingestion pipeline.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder allows optional injection.
type Recorder interface {
	IncWebhook(provider string, outcome OutcomeLabel)
	IncNormalizationFailure(provider string)
	IncEventPublished(provider, eventType string)
	IncDecision(strategy string)
	IncBuildTriggered(buildType string) // buildType: immediate|batch
	ObserveBatchSize(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) IncWebhook(string, OutcomeLabel)  {}
func (NoopRecorder) IncNormalizationFailure(string)   {}
func (NoopRecorder) IncEventPublished(string, string) {}
func (NoopRecorder) IncDecision(string)               {}
func (NoopRecorder) IncBuildTriggered(string)         {}
func (NoopRecorder) ObserveBatchSize(int)             {}
