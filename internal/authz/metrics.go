package authz

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts vote outcomes.
type Metrics struct {
	votes  *prometheus.CounterVec
	errors prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the vote metrics against the provided registerer. When
// the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(string(d.Reason), strconv.FormatBool(d.Granted)).Inc()
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	votes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_votes_total",
		Help: "Authorization votes partitioned by deciding step and verdict.",
	}, []string{"reason", "granted"})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_authz_vote_errors_total",
		Help: "Authorization votes aborted by storage failures.",
	})
	registerer.MustRegister(votes, errs)
	return &Metrics{votes: votes, errors: errs}
}
