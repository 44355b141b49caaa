package metrics_test

import (
	"testing"

	"github.com/Nzyazin/lnmo/internal/core/metrics"
	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	rec.CallbackProcessed(models.OutcomeApplied)
	rec.CallbackProcessed(models.OutcomeApplied)
	rec.CallbackProcessed(models.OutcomeUnmatched)
	rec.PushInitiated(true)
	rec.OrphanedPush()

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			values[key] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 2.0, values["lnmo_callbacks_total/applied"])
	assert.Equal(t, 1.0, values["lnmo_callbacks_total/unmatched"])
	assert.Equal(t, 1.0, values["lnmo_push_requests_total/ok"])
	assert.Equal(t, 1.0, values["lnmo_orphaned_push_total"])
}
