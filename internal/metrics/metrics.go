// -----------------------------------------------------------------------
// Metrics - Prometheus collectors fed by the session event bus
// -----------------------------------------------------------------------

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Collector owns the jobpilot metrics and their registry
type Collector struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsClosed  prometheus.Counter
	applications    *prometheus.CounterVec
	checkpoints     prometheus.Counter
	jobsDiscovered  prometheus.Counter
	transitions     *prometheus.CounterVec
}

// NewCollector creates the collectors. activeSessions and activeHandles are
// sampled at scrape time; either may be nil.
func NewCollector(activeSessions, activeHandles func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobpilot_sessions_started_total",
			Help: "Sessions that acquired a browser",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobpilot_sessions_closed_total",
			Help: "Sessions that reached the closed state",
		}),
		applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpilot_applications_total",
			Help: "Finished apply attempts by status",
		}, []string{"status"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobpilot_checkpoints_total",
			Help: "Security checkpoints handed to a human",
		}),
		jobsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobpilot_jobs_discovered_total",
			Help: "New job records stored by extraction passes",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobpilot_session_transitions_total",
			Help: "Session state transitions by target state",
		}, []string{"to"}),
	}

	c.registry.MustRegister(
		c.sessionsStarted,
		c.sessionsClosed,
		c.applications,
		c.checkpoints,
		c.jobsDiscovered,
		c.transitions,
	)
	if activeSessions != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jobpilot_sessions_active",
			Help: "Sessions that are not closed",
		}, func() float64 { return float64(activeSessions()) }))
	}
	if activeHandles != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jobpilot_browser_handles_active",
			Help: "Browser processes currently held",
		}, func() float64 { return float64(activeHandles()) }))
	}
	return c
}

// Registry exposes the registry for tests and extra collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Subscribe wires the collector to session events
func (c *Collector) Subscribe(events interfaces.EventService) error {
	handlers := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventSessionStarted: func(ctx context.Context, e interfaces.Event) error {
			c.sessionsStarted.Inc()
			return nil
		},
		interfaces.EventSessionClosed: func(ctx context.Context, e interfaces.Event) error {
			c.sessionsClosed.Inc()
			return nil
		},
		interfaces.EventApplicationCompleted: func(ctx context.Context, e interfaces.Event) error {
			c.RecordApplication(field(e, "status"))
			return nil
		},
		interfaces.EventCheckpointEntered: func(ctx context.Context, e interfaces.Event) error {
			c.checkpoints.Inc()
			return nil
		},
		interfaces.EventJobsFetched: func(ctx context.Context, e interfaces.Event) error {
			if payload, ok := e.Payload.(map[string]interface{}); ok {
				if n, ok := payload["new"].(int); ok && n > 0 {
					c.jobsDiscovered.Add(float64(n))
				}
			}
			return nil
		},
		interfaces.EventSessionStateChanged: func(ctx context.Context, e interfaces.Event) error {
			if to := field(e, "to"); to != "" {
				c.transitions.WithLabelValues(to).Inc()
			}
			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := events.Subscribe(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

// RecordApplication counts one finished attempt
func (c *Collector) RecordApplication(status string) {
	if status == "" {
		status = "unknown"
	}
	c.applications.WithLabelValues(status).Inc()
}

func field(e interfaces.Event, key string) string {
	payload, ok := e.Payload.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}
