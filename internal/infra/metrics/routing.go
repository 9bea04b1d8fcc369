package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(messagesRoutedTotal, escalationsTotal, fanoutEventsTotal) }

var messagesRoutedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_messages_routed_total",
		Help: "Inbound messages by routing path (bot/agent) and outcome.",
	},
	[]string{"path", "outcome"}, // path="bot"|"agent", outcome="ok"|"error"
)

var escalationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chat_escalations_total",
		Help: "Sessions enqueued for human support.",
	},
)

var fanoutEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_fanout_events_total",
		Help: "Fanout bus events consumed, by topic family.",
	},
	[]string{"topic"}, // "chat"|"escalation"|"switch"|"unknown"
)

func IncRouted(path string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	messagesRoutedTotal.WithLabelValues(norm(path), outcome).Inc()
}

func IncEscalation() { escalationsTotal.Inc() }

func IncFanoutEvent(topicFamily string) {
	fanoutEventsTotal.WithLabelValues(norm(topicFamily)).Inc()
}
