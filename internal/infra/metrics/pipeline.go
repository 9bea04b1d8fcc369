package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(pipelineStageTotal, aiCallLatencyMs) }

var pipelineStageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_stage_total",
		Help: "Response pipeline resolutions by stage (exact_match, intent label, unanswered).",
	},
	[]string{"stage"},
)

var aiCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ai_calls_latency_ms",
		Help:    "AI call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
	[]string{"provider", "op", "success"}, // op="chat"|"embed"
)

func IncPipelineStage(stage string) {
	pipelineStageTotal.WithLabelValues(norm(stage)).Inc()
}

func ObserveAICall(provider, op string, latencyMs int, success bool) {
	aiCallLatencyMs.WithLabelValues(norm(provider), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
