package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(fileIngestTotal, fileIngestLatencyMs, sessionsActive) }

var (
	fileIngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_ingest_total",
			Help: "File ingestions by kind and result (ok/unsupported/empty/upstream_error).",
		},
		[]string{"kind", "result"},
	)

	fileIngestLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "file_ingest_latency_ms",
			Help:    "Parse/OCR collaborator latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"kind"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Conversations held in the in-memory store.",
		},
	)
)

func IncFileIngest(kind, result string) {
	fileIngestTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func ObserveIngestLatency(kind string, ms int64) {
	fileIngestLatencyMs.WithLabelValues(norm(kind)).Observe(float64(ms))
}

func SetSessions(n int) { sessionsActive.Set(float64(n)) }
