// ABOUTME: Prometheus metrics for the visualization output
// ABOUTME: Tracks client admission, reaping, echo traffic and playback lead
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so components can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	ClientsConnected prometheus.Gauge
	ClientsAccepted  prometheus.Counter
	ClientsRejected  prometheus.Counter
	ClientsReaped    prometheus.Counter
	BytesPlayed      prometheus.Counter
	BytesEchoed      prometheus.Counter
	PlayCalls        prometheus.Counter
	PlayLead         prometheus.Gauge
	ServerOpen       prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates the collectors and registers them on registry
func NewWithRegistry(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()

	collectors := []prometheus.Collector{
		m.ClientsConnected,
		m.ClientsAccepted,
		m.ClientsRejected,
		m.ClientsReaped,
		m.BytesPlayed,
		m.BytesEchoed,
		m.PlayCalls,
		m.PlayLead,
		m.ServerOpen,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register visualization metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.ClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vis_clients_connected",
		Help: "Number of visualization clients currently held by the server",
	})
	m.ClientsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_clients_accepted_total",
		Help: "Total number of admitted visualization connections",
	})
	m.ClientsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_clients_rejected_total",
		Help: "Total number of connections rejected by max_clients",
	})
	m.ClientsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_clients_reaped_total",
		Help: "Total number of closed clients removed by the reaper",
	})
	m.BytesPlayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_bytes_played_total",
		Help: "Total number of audio bytes handed to the output",
	})
	m.BytesEchoed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_bytes_echoed_total",
		Help: "Total number of bytes echoed back to clients",
	})
	m.PlayCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vis_play_calls_total",
		Help: "Total number of Play calls",
	})
	m.PlayLead = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vis_play_lead_seconds",
		Help: "Audio time delivered minus wall time elapsed since playback started",
	})
	m.ServerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vis_server_open",
		Help: "1 while the visualization server is listening",
	})
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// SetClientsConnected records the current client count
func (m *Metrics) SetClientsConnected(n int) {
	if m == nil {
		return
	}
	m.ClientsConnected.Set(float64(n))
}

// IncrementAccepted counts an admitted connection
func (m *Metrics) IncrementAccepted() {
	if m == nil {
		return
	}
	m.ClientsAccepted.Inc()
}

// IncrementRejected counts a rejected connection
func (m *Metrics) IncrementRejected() {
	if m == nil {
		return
	}
	m.ClientsRejected.Inc()
}

// AddReaped counts clients removed by one reaper pass
func (m *Metrics) AddReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ClientsReaped.Add(float64(n))
}

// ObservePlay records one Play call of size bytes
func (m *Metrics) ObservePlay(size int) {
	if m == nil {
		return
	}
	m.PlayCalls.Inc()
	m.BytesPlayed.Add(float64(size))
}

// SetPlayLead records the current playback lead in seconds
func (m *Metrics) SetPlayLead(seconds float64) {
	if m == nil {
		return
	}
	m.PlayLead.Set(seconds)
}

// AddEchoed counts bytes written back to a client
func (m *Metrics) AddEchoed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesEchoed.Add(float64(n))
}

// SetServerOpen records whether the server is listening
func (m *Metrics) SetServerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.ServerOpen.Set(1)
	} else {
		m.ServerOpen.Set(0)
	}
}
