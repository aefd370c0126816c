package checkout

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess  = "success"
	outcomeReplayed = "replayed"
	outcomeUnknown  = "error"
)

type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Duration        prometheus.Histogram
	GatewayDuration prometheus.Histogram
}

// NewMetrics builds the checkout collectors and registers them with reg when
// it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "results_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "duration_seconds",
			Help:      "End-to-end checkout latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "gateway_charge_duration_seconds",
			Help:      "Payment gateway charge latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Outcomes, m.Duration, m.GatewayDuration)
	}
	return m
}

func outcomeOf(err error, replayed bool) string {
	if err == nil {
		if replayed {
			return outcomeReplayed
		}
		return outcomeSuccess
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return outcomeUnknown
}
