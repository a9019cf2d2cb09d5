package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "bridge"

// Metrics holds the counters updated by Executor and Acceptor. A nil *Metrics
// records nothing.
type Metrics struct {
	TasksSpawned        prometheus.Counter
	TasksFailed         prometheus.Counter
	TasksRunning        prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	AcceptErrors        prometheus.Counter
}

// NewMetrics creates the adapter metrics and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TasksSpawned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "tasks_spawned_total",
			Help:      "Total number of tasks submitted to the executor",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that returned an error or panicked",
		}),
		TasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "tasks_running",
			Help:      "Number of tasks currently running",
		}),
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "acceptor",
			Name:      "connections_accepted_total",
			Help:      "Total number of connections yielded by the acceptor",
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "acceptor",
			Name:      "accept_errors_total",
			Help:      "Total number of transient accept failures",
		}),
	}
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.TasksSpawned.Inc()
	m.TasksRunning.Inc()
}

func (m *Metrics) taskFinished(failed bool) {
	if m == nil {
		return
	}
	m.TasksRunning.Dec()
	if failed {
		m.TasksFailed.Inc()
	}
}

func (m *Metrics) connectionAccepted() {
	if m != nil {
		m.ConnectionsAccepted.Inc()
	}
}

func (m *Metrics) acceptFailed() {
	if m != nil {
		m.AcceptErrors.Inc()
	}
}
