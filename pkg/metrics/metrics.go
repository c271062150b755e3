package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alumni"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency by route.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route", "status"},
	)
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payments_total", Help: "Payment state transitions by method and resulting status."},
		[]string{"method", "status"},
	)
	DonationVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "donation_volume_cents_total", Help: "Completed payment volume in minor units by currency."},
		[]string{"currency"},
	)
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payment_webhooks_total", Help: "Payment provider callbacks by provider and result."},
		[]string{"provider", "result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(HTTPRequestDuration)
	reg.MustRegister(PaymentsTotal)
	reg.MustRegister(DonationVolume)
	reg.MustRegister(WebhooksTotal)
}
