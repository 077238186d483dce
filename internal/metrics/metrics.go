package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dialer metrics. Labels are kept low-cardinality: no phone numbers, no
// channel ids, no campaign ids.
var (
	Originations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_originations_total",
			Help: "Customer-leg originations partitioned by result",
		},
		[]string{"result"},
	)

	CallEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_call_events_total",
			Help: "Call events consumed partitioned by type and handling outcome",
		},
		[]string{"type", "outcome"},
	)

	Dispositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_dispositions_total",
			Help: "Closed calls partitioned by disposition label",
		},
		[]string{"disposition"},
	)

	BridgeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_bridge_failures_total",
			Help: "Answered calls that could not be connected to an agent, by stage",
		},
		[]string{"stage"},
	)

	PacingCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialer_pacing_cycles_total",
			Help: "Pacing cycles partitioned by outcome",
		},
		[]string{"outcome"},
	)

	RetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_retries_scheduled_total",
			Help: "Leads returned to pending with a next attempt",
		},
	)

	PersistenceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialer_persistence_errors_total",
			Help: "Storage failures that caused an event or update to be dropped",
		},
	)

	EventStreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialer_event_stream_connected",
			Help: "1 while the call-control event stream is connected",
		},
	)
)

// Outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// SetStreamConnected is an EventStream.OnState callback.
func SetStreamConnected(connected bool) {
	if connected {
		EventStreamConnected.Set(1)
		return
	}
	EventStreamConnected.Set(0)
}
