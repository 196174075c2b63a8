// Package metrics registers the Prometheus gauges and counters that back
// INFO/DEBUG introspection (§4.13) and exposes them on the side metrics
// listener, grounded on the teacher's pkg/metrics/metrics.go
// (package-level prometheus.New*Vec vars + init() registration + a
// promhttp.Handler()-backed Handler()).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_connected_clients",
			Help: "Number of client connections currently attached",
		},
	)

	CommandsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_commands_processed_total",
			Help: "Total commands dispatched, by command name",
		},
		[]string{"command"},
	)

	ExpiredKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_expired_keys_total",
			Help: "Total keys removed because their TTL elapsed",
		},
	)

	EvictedKeysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_evicted_keys_total",
			Help: "Total keys evicted to reclaim memory",
		},
	)

	UsedMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_used_memory_bytes",
			Help: "Approximate resident memory usage reported by the runtime",
		},
	)

	KeyspaceHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_keyspace_hits_total",
			Help: "Total successful key lookups",
		},
	)

	KeyspaceMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_keyspace_misses_total",
			Help: "Total failed key lookups",
		},
	)

	ReplicaCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_replica_count",
			Help: "Number of replicas currently attached to this primary",
		},
	)

	VMSwappedObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_vm_swapped_objects",
			Help: "Number of values currently swapped to disk by the VM subsystem",
		},
	)

	DirtySinceSave = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_dirty_since_save",
			Help: "Number of changes to the dataset since the last save point",
		},
	)

	KeysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_keys_total",
			Help: "Number of keys currently held, by database index",
		},
		[]string{"db"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_command_duration_seconds",
			Help:    "Command execution duration in seconds, by command name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(CommandsProcessedTotal)
	prometheus.MustRegister(ExpiredKeysTotal)
	prometheus.MustRegister(EvictedKeysTotal)
	prometheus.MustRegister(UsedMemoryBytes)
	prometheus.MustRegister(KeyspaceHitsTotal)
	prometheus.MustRegister(KeyspaceMissesTotal)
	prometheus.MustRegister(ReplicaCount)
	prometheus.MustRegister(VMSwappedObjects)
	prometheus.MustRegister(DirtySinceSave)
	prometheus.MustRegister(KeysTotal)
	prometheus.MustRegister(CommandDuration)
}

// Handler returns the Prometheus scrape handler for the side metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for later observation against a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
