// Package metrics exposes broker activity as Prometheus gauges and
// counters. Collector satisfies broker.Metrics structurally; the broker
// package never imports this one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector wires broker lifecycle events into Prometheus metrics.
type Collector struct {
	sessionsActive  prometheus.Gauge
	usersOnline     prometheus.Gauge
	messagesTotal   *prometheus.CounterVec
	broadcastsTotal *prometheus.CounterVec
	sessionsReaped  prometheus.Counter
	usersReaped     prometheus.Counter
}

// New creates a Collector and registers its metrics against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_sessions_active",
			Help: "Number of sessions currently held in memory.",
		}),
		usersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_users_online",
			Help: "Number of users with at least one open socket.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_messages_received_total",
			Help: "Inbound messages processed by the broker, by type.",
		}, []string{"type"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_broadcasts_total",
			Help: "Outbound broadcast fan-outs performed, by message type.",
		}, []string{"type"}),
		sessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadence_sessions_reaped_total",
			Help: "Sessions deleted by the cleanup ticker.",
		}),
		usersReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadence_users_reaped_total",
			Help: "Users removed by the cleanup ticker after an offline timeout.",
		}),
	}

	reg.MustRegister(c.sessionsActive, c.usersOnline, c.messagesTotal, c.broadcastsTotal, c.sessionsReaped, c.usersReaped)
	return c
}

func (c *Collector) SessionsActive(n int) { c.sessionsActive.Set(float64(n)) }
func (c *Collector) UsersOnline(n int)    { c.usersOnline.Set(float64(n)) }

func (c *Collector) MessageReceived(msgType string) { c.messagesTotal.WithLabelValues(msgType).Inc() }
func (c *Collector) Broadcast(msgType string)       { c.broadcastsTotal.WithLabelValues(msgType).Inc() }

func (c *Collector) SessionsReaped(n int) { c.sessionsReaped.Add(float64(n)) }
func (c *Collector) UsersReaped(n int)    { c.usersReaped.Add(float64(n)) }
