// Package metrics holds the Prometheus collectors of a relay server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "relay"
)

// Lifecycle event labels.
const (
	EventStarted  = "started"
	EventFlipped  = "flipped"
	EventAcked    = "acked"
	EventAccepted = "accepted"
	EventResumed  = "resumed"
	EventAborted  = "aborted"
	EventReleased = "released"
)

// Output decision labels.
const (
	DecisionDeliver  = "deliver"
	DecisionSkip     = "skip"
	DecisionFailSafe = "failsafe"
)

var (
	// MigrationEvents counts lifecycle transitions
	MigrationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_events_total",
			Help:      "Total number of migration lifecycle events",
		},
		[]string{"event"},
	)

	// FlipAcks counts received flip acknowledgements
	FlipAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flip_acks_total",
			Help:      "Total number of flip acknowledgements received",
		},
		[]string{"result"}, // advanced/ignored
	)

	// OutputDecisions counts output responsibility decisions
	OutputDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_decisions_total",
			Help:      "Total number of output decisions for migrating clients",
		},
		[]string{"decision"},
	)

	// InvariantViolations counts protocol logic errors
	InvariantViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Total number of migration invariant violations",
		},
	)

	// ActiveMigrations tracks live migration records
	ActiveMigrations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_migrations",
			Help:      "Number of live migration records",
		},
	)

	// BufferedLines tracks output lines buffered for clients migrating here
	BufferedLines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_lines",
			Help:      "Number of output lines buffered for migrating clients",
		},
	)

	// RPCs counts server-to-server messages
	RPCs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_total",
			Help:      "Total number of server-to-server messages",
		},
		[]string{"command", "direction"}, // direction: in/out
	)

	// LocalClients tracks connected clients
	LocalClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_clients",
			Help:      "Number of locally connected clients",
		},
	)
)

// RecordEvent records a lifecycle event and keeps ActiveMigrations in sync.
func RecordEvent(event string) {
	MigrationEvents.WithLabelValues(event).Inc()
	switch event {
	case EventStarted, EventAccepted:
		ActiveMigrations.Inc()
	case EventResumed, EventAborted, EventReleased:
		ActiveMigrations.Dec()
	}
}

// RecordAck records a flip acknowledgement.
func RecordAck(advanced bool) {
	if advanced {
		FlipAcks.WithLabelValues("advanced").Inc()
	} else {
		FlipAcks.WithLabelValues("ignored").Inc()
	}
}

// RecordDecision records an output decision for a migrating client.
func RecordDecision(decision string) {
	OutputDecisions.WithLabelValues(decision).Inc()
	if decision == DecisionFailSafe {
		InvariantViolations.Inc()
	}
}

// RecordRPC records a server-to-server message.
func RecordRPC(command string, inbound bool) {
	direction := "out"
	if inbound {
		direction = "in"
	}
	RPCs.WithLabelValues(command, direction).Inc()
}
