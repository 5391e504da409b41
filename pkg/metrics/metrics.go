// Package metrics holds the prometheus instruments shared by the
// announcer, the dispatcher and the transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for received messages.
const (
	OutcomeRegistration = "registration"
	OutcomeNotification = "notification"
	OutcomeDecodeError  = "decode_error"
	OutcomeSigError     = "signature_error"
	OutcomeCategory     = "unexpected_category"
)

// Metrics groups all instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AnnouncementsSent   prometheus.Counter
	AnnouncementsFailed prometheus.Counter
	MessagesReceived    *prometheus.CounterVec
	KnownSites          prometheus.Gauge
	Peers               prometheus.Gauge
	DuplicatesDropped   prometheus.Counter
}

// New creates the instruments and registers them with reg, if non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnnouncementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitegossip",
			Name:      "announcements_sent_total",
			Help:      "Signed envelopes handed to the transport.",
		}),
		AnnouncementsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitegossip",
			Name:      "announcements_failed_total",
			Help:      "Envelopes the transport refused to send.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitegossip",
			Name:      "messages_received_total",
			Help:      "Inbound transport events by outcome.",
		}, []string{"outcome"}),
		KnownSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitegossip",
			Name:      "known_sites",
			Help:      "Distinct sites in the directory.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitegossip",
			Name:      "peers",
			Help:      "Currently connected gossip peers.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitegossip",
			Name:      "gossip_duplicates_dropped_total",
			Help:      "Gossip frames dropped by the duplicate filter.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.AnnouncementsSent,
			m.AnnouncementsFailed,
			m.MessagesReceived,
			m.KnownSites,
			m.Peers,
			m.DuplicatesDropped,
		)
	}
	return m
}

func (m *Metrics) Sent() {
	if m != nil {
		m.AnnouncementsSent.Inc()
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.AnnouncementsFailed.Inc()
	}
}

func (m *Metrics) Received(outcome string) {
	if m != nil {
		m.MessagesReceived.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetKnownSites(n int) {
	if m != nil {
		m.KnownSites.Set(float64(n))
	}
}

func (m *Metrics) SetPeers(n int) {
	if m != nil {
		m.Peers.Set(float64(n))
	}
}

func (m *Metrics) DuplicateDropped() {
	if m != nil {
		m.DuplicatesDropped.Inc()
	}
}
