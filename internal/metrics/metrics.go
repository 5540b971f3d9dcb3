package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the dispatch engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecipientsTotal  *prometheus.CounterVec
	MessagesSent     prometheus.Counter
	AttachmentsSent  prometheus.Counter
	CampaignRunning  prometheus.Gauge
	CampaignsStarted prometheus.Counter
	ChannelRestarts  prometheus.Counter
	ChannelState     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with every collector registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		RecipientsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wablast_recipients_total",
				Help: "Recipients processed, by outcome (sent, unreachable, failed)",
			},
			[]string{"outcome"},
		),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wablast_messages_sent_total",
			Help: "Text messages delivered to the channel",
		}),
		AttachmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wablast_attachments_sent_total",
			Help: "Media messages delivered to the channel",
		}),
		CampaignRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wablast_campaign_running",
			Help: "1 while a campaign is running",
		}),
		CampaignsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wablast_campaigns_started_total",
			Help: "Campaigns accepted by the controller",
		}),
		ChannelRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wablast_channel_restarts_total",
			Help: "Channel restart cycles triggered by disconnects or auth failures",
		}),
		ChannelState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wablast_channel_state",
				Help: "1 for the current channel connection state",
			},
			[]string{"state"},
		),
		registry: reg,
	}
	reg.MustRegister(
		m.RecipientsTotal,
		m.MessagesSent,
		m.AttachmentsSent,
		m.CampaignRunning,
		m.CampaignsStarted,
		m.ChannelRestarts,
		m.ChannelState,
	)
	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRecipient(outcome string) {
	if m != nil {
		m.RecipientsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncMessage() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) IncAttachment() {
	if m != nil {
		m.AttachmentsSent.Inc()
	}
}

func (m *Metrics) IncCampaign() {
	if m != nil {
		m.CampaignsStarted.Inc()
	}
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.CampaignRunning.Set(1)
	} else {
		m.CampaignRunning.Set(0)
	}
}

func (m *Metrics) IncRestart() {
	if m != nil {
		m.ChannelRestarts.Inc()
	}
}

// SetChannelState marks state as current and clears the others.
func (m *Metrics) SetChannelState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ChannelState.WithLabelValues(s).Set(v)
	}
}
