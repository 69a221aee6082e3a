package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignatureRequestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "signing",
		Name:      "requests_sent_total",
		Help:      "Signature requests submitted, by kind (new or reissued).",
	}, []string{"kind"})

	SigningCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "signing",
		Name:      "completions_total",
		Help:      "Completion attempts by source and outcome.",
	}, []string{"source", "outcome"})

	PollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "signing",
		Name:      "poll_attempts_total",
		Help:      "Signed-artifact download attempts by result.",
	}, []string{"result"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "signing",
		Name:      "compensations_total",
		Help:      "Uploaded documents rolled back after a failed or lost completion.",
	}, []string{"result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Signature provider callbacks by event type and HTTP status.",
	}, []string{"event_type", "status"})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apartner",
		Subsystem: "outbox",
		Name:      "messages_total",
		Help:      "Outbox messages relayed by result.",
	}, []string{"result"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
