// Package metrics exposes the bridge's Prometheus metrics: a struct of
// promauto counters and gauges covering engine and connection activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every Prometheus metric the bridge exports.
type Registry struct {
	reads             prometheus.Counter
	writes            prometheus.Counter
	writeErrors       prometheus.Counter
	browses           prometheus.Counter
	monitoredItems    prometheus.Counter
	connectionDestroys *prometheus.CounterVec
	liveConnections   prometheus.Gauge
	changeNotifications prometheus.Counter
}

// NewRegistry constructs and registers all metrics.
func NewRegistry() *Registry {
	return &Registry{
		reads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_reads_total",
			Help: "Total number of getTagsValues requests served",
		}),
		writes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_writes_total",
			Help: "Total number of setTagsValues requests served",
		}),
		writeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_write_errors_total",
			Help: "Total number of setTagsValues requests that failed",
		}),
		browses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_browses_total",
			Help: "Total number of completed address-space browses",
		}),
		monitoredItems: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_monitored_items_created_total",
			Help: "Total number of OPC UA monitored items created",
		}),
		connectionDestroys: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "opcua_bridge_connection_destroys_total",
			Help: "Total number of connection records destroyed, labeled by reason",
		}, []string{"reason"}),
		liveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_bridge_live_connections",
			Help: "Current number of connection records in the Subscribed state",
		}),
		changeNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_bridge_change_notifications_total",
			Help: "Total number of data-change notifications processed by the Change Pump",
		}),
	}
}

func (r *Registry) IncReads()              { r.reads.Inc() }
func (r *Registry) IncWrites()             { r.writes.Inc() }
func (r *Registry) IncWriteErrors()        { r.writeErrors.Inc() }
func (r *Registry) IncBrowses()            { r.browses.Inc() }
func (r *Registry) IncMonitoredItems()     { r.monitoredItems.Inc() }
func (r *Registry) IncChangeNotifications() { r.changeNotifications.Inc() }

func (r *Registry) IncConnectionDestroys(reason string) {
	r.connectionDestroys.WithLabelValues(reason).Inc()
}

func (r *Registry) SetLiveConnections(n int) {
	r.liveConnections.Set(float64(n))
}
