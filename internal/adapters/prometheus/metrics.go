// Package prometheus implements ports.Metrics with github.com/prometheus/client_golang.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/corey/dashhub/internal/ports"
)

type Metrics struct {
	activeSessions     prometheus.Gauge
	subscribers        *prometheus.GaugeVec
	rawEvents          *prometheus.CounterVec
	settles            *prometheus.CounterVec
	frames             *prometheus.CounterVec
	droppedSubscribers *prometheus.CounterVec
	attachFailures     prometheus.Counter
	watcherFailures    prometheus.Counter
	notifications      *prometheus.CounterVec
}

// NewMetrics registers the hub collectors on registerer (the default
// registerer when nil).
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashhub_watch_sessions",
			Help: "Current number of active project watch sessions",
		}),
		subscribers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dashhub_subscribers",
				Help: "Current number of open streaming connections",
			},
			[]string{"topic"},
		),
		rawEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashhub_watch_raw_events_total",
				Help: "Total filesystem events that reached a watch session",
			},
			[]string{"project"},
		),
		settles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashhub_watch_settles_total",
				Help: "Total debounced git-change broadcasts",
			},
			[]string{"project"},
		),
		frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashhub_frames_published_total",
				Help: "Total frames published, by kind",
			},
			[]string{"kind"},
		),
		droppedSubscribers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashhub_dropped_subscribers_total",
				Help: "Total subscribers removed after a failed write",
			},
			[]string{"topic"},
		),
		attachFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashhub_watch_attach_failures_total",
			Help: "Total watcher attach failures",
		}),
		watcherFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashhub_watch_runtime_failures_total",
			Help: "Total watchers that failed after starting",
		}),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashhub_notifications_total",
				Help: "Total notifications stored and broadcast",
			},
			[]string{"severity"},
		),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) SetSubscribers(topicKind string, n int) {
	m.subscribers.WithLabelValues(topicKind).Set(float64(n))
}

func (m *Metrics) ObserveRawEvent(projectID string) {
	m.rawEvents.WithLabelValues(projectID).Inc()
}

func (m *Metrics) ObserveSettle(projectID string) {
	m.settles.WithLabelValues(projectID).Inc()
}

func (m *Metrics) ObserveFrame(kind string) {
	m.frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDroppedSubscriber(topicKind string) {
	m.droppedSubscribers.WithLabelValues(topicKind).Inc()
}

func (m *Metrics) ObserveAttachFailure() {
	m.attachFailures.Inc()
}

func (m *Metrics) ObserveWatcherFailure() {
	m.watcherFailures.Inc()
}

func (m *Metrics) ObserveNotification(severity string) {
	m.notifications.WithLabelValues(severity).Inc()
}

var _ ports.Metrics = (*Metrics)(nil)
