package metrics

import (
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncWebhook("shopify", OutcomeAccepted)
	r.IncDecision("skip_build")
	r.ObserveBatchSize(10)
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncWebhook("shopify", OutcomeDuplicate)
	r.IncWebhook("shopify", OutcomeDuplicate)
	r.IncBuildTriggered("immediate")
	r.ObserveBatchSize(12)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	require.Contains(t, joined, "buildrelay_webhooks_total")
	require.Contains(t, joined, "buildrelay_builds_triggered_total")
	require.Contains(t, joined, "buildrelay_batch_size_events")

	for _, f := range families {
		if f.GetName() == "buildrelay_webhooks_total" {
			require.EqualValues(t, 2, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestNilPrometheusRecorderMethodsAreSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncWebhook("x", OutcomeRejected)
	r.IncDecision("skip_build")
	r.ObserveBatchSize(1)
}
