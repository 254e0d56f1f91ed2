package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiStreamLatencyMs,
		aiFirstDeltaMs,
		aiStreamsInFlight,
		aiStreamsTotal,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Estimated prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Estimated completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiStreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_stream_latency_ms",
			Help:    "Full chat stream duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"provider", "model", "outcome"},
	)

	aiFirstDeltaMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_first_delta_ms",
			Help:    "Time to first upstream delta in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"provider", "model"},
	)

	aiStreamsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ai_streams_in_flight",
			Help: "Upstream chat streams currently open.",
		},
	)

	aiStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_streams_total",
			Help: "Chat streams by outcome (ok, upstream_error, cancelled, discarded).",
		},
		[]string{"outcome"},
	)
)

func StreamOpened() { aiStreamsInFlight.Inc() }
func StreamClosed() { aiStreamsInFlight.Dec() }

func ObserveFirstDelta(provider, model string, ms int64) {
	aiFirstDeltaMs.WithLabelValues(norm(provider), norm(model)).Observe(float64(ms))
}

// ObserveChatStream records one finished stream.
func ObserveChatStream(provider, model string, tokensIn, tokensOut int, latencyMs int64, outcome string) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiStreamLatencyMs.WithLabelValues(norm(provider), norm(model), norm(outcome)).Observe(float64(latencyMs))
	aiStreamsTotal.WithLabelValues(norm(outcome)).Inc()
}
