// Package metrics exposes record-store and map activity to Prometheus.
package metrics

import (
	"net/http"

	"bnn-rehab/internal/mapview"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bnn_rehab"

// Collectors implements store.Observer and a map reconcile hook on a private registry.
type Collectors struct {
	registry           *prometheus.Registry
	snapshots          prometheus.Counter
	records            prometheus.Gauge
	writes             *prometheus.CounterVec
	markers            prometheus.Gauge
	subscriptionErrors prometheus.Counter
}

// New registers the collectors plus Go runtime and process metrics.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots applied to the record list.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the published list.",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Write-through mutations by operation and result.",
		}, []string{"op", "result"}),
		markers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markers",
			Help:      "Markers placed by the last reconciliation.",
		}),
		subscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_errors_total",
			Help:      "Failures of the record subscription.",
		}),
	}
	c.registry.MustRegister(
		c.snapshots,
		c.records,
		c.writes,
		c.markers,
		c.subscriptionErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collectors) SnapshotApplied(records int) {
	c.snapshots.Inc()
	c.records.Set(float64(records))
}

func (c *Collectors) WriteCompleted(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.writes.WithLabelValues(op, result).Inc()
}

func (c *Collectors) SubscriptionFailed() {
	c.subscriptionErrors.Inc()
}

// MarkersReconciled is a mapview.ReconcileHook.
func (c *Collectors) MarkersReconciled(markers []mapview.Marker) {
	c.markers.Set(float64(len(markers)))
}

// Registry returns the private registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
