package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsconsole_messages_dispatched_total",
			Help: "Bulk SMS dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsconsole_webhook_events_total",
			Help: "Gateway webhook events received by type",
		},
		[]string{"type"},
	)

	DeliveryRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smsconsole_delivery_retries_total",
			Help: "Delivery retries issued through the gateway",
		},
	)

	CampaignDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smsconsole_campaign_dispatch_duration_seconds",
			Help:    "Wall time of one bulk campaign dispatch pass",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func Register() {
	prometheus.MustRegister(MessagesDispatched, WebhookEvents, DeliveryRetries, CampaignDuration)
}
