package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	relayConnections prometheus.Gauge
	roomsActive      prometheus.Gauge

	eventsRelayed *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	joinsTotal    prometheus.Counter
	leavesTotal   prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return NewPrometheusCollectorWith(prometheus.DefaultRegisterer)
}

// NewPrometheusCollectorWith registers the metrics on a caller-owned
// registry.
func NewPrometheusCollectorWith(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		relayConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesession_relay_connections",
			Help: "Number of currently connected relay participants",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesession_rooms_active",
			Help: "Number of sessions with at least one connected participant",
		}),

		eventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_events_relayed_total",
			Help: "Total events fanned out, by event name",
		}, []string{"event"}),

		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_events_dropped_total",
			Help: "Total events dropped, by reason",
		}, []string{"reason"}),

		joinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesession_joins_total",
			Help: "Total successful relay joins",
		}),

		leavesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesession_leaves_total",
			Help: "Total relay leaves and disconnects",
		}),
	}
}

func (p *PrometheusCollector) RecordJoin() {
	p.relayConnections.Inc()
	p.joinsTotal.Inc()
}

func (p *PrometheusCollector) RecordLeave() {
	p.relayConnections.Dec()
	p.leavesTotal.Inc()
}

func (p *PrometheusCollector) RecordRoomOpened() { p.roomsActive.Inc() }
func (p *PrometheusCollector) RecordRoomClosed() { p.roomsActive.Dec() }

func (p *PrometheusCollector) RecordEventRelayed(event string) {
	p.eventsRelayed.WithLabelValues(event).Inc()
}

// RecordEventDropped counts events not delivered: slow subscribers,
// malformed payloads, rate limiting.
func (p *PrometheusCollector) RecordEventDropped(reason string) {
	p.eventsDropped.WithLabelValues(reason).Inc()
}
