package metrics

import (
	"github.com/Nzyazin/lnmo/internal/core/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives lifecycle events worth alerting on.
type Recorder interface {
	CallbackProcessed(outcome models.CallbackOutcome)
	PushInitiated(ok bool)
	OrphanedPush()
}

type prometheusRecorder struct {
	callbacks *prometheus.CounterVec
	pushes    *prometheus.CounterVec
	orphaned  prometheus.Counter
}

func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	r := &prometheusRecorder{
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lnmo",
			Name:      "callbacks_total",
			Help:      "Payment result callbacks by outcome.",
		}, []string{"outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lnmo",
			Name:      "push_requests_total",
			Help:      "Outbound push requests by result.",
		}, []string{"result"}),
		orphaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnmo",
			Name:      "orphaned_push_total",
			Help:      "Push requests accepted by the provider that could not be recorded locally.",
		}),
	}
	reg.MustRegister(r.callbacks, r.pushes, r.orphaned)
	return r
}

func (r *prometheusRecorder) CallbackProcessed(outcome models.CallbackOutcome) {
	r.callbacks.WithLabelValues(string(outcome)).Inc()
}

func (r *prometheusRecorder) PushInitiated(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	r.pushes.WithLabelValues(result).Inc()
}

func (r *prometheusRecorder) OrphanedPush() {
	r.orphaned.Inc()
}

type nopRecorder struct{}

func NewNop() Recorder { return nopRecorder{} }

func (nopRecorder) CallbackProcessed(models.CallbackOutcome) {}
func (nopRecorder) PushInitiated(bool)                       {}
func (nopRecorder) OrphanedPush()                            {}
