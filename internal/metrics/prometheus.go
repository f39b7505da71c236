package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kb_assistant_gateway_request_duration_seconds",
			Help:    "Duration of calls to the RAG backend in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation", "outcome"},
	)

	GatewayRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_assistant_gateway_requests_total",
			Help: "Total calls to the RAG backend",
		},
		[]string{"operation", "outcome"},
	)

	WorkflowResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kb_assistant_workflow_results_total",
			Help: "Upload/create workflows that reached a result",
		},
		[]string{"result"},
	)

	RetrievedFragments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kb_assistant_retrieved_fragments",
			Help:    "Number of fragments per retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kb_assistant_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(GatewayRequestDuration)
		prometheus.MustRegister(GatewayRequestTotal)
		prometheus.MustRegister(WorkflowResults)
		prometheus.MustRegister(RetrievedFragments)
		prometheus.MustRegister(ActiveSessions)
	})
}

// ObserveGatewayCall records one backend call
func ObserveGatewayCall(operation, outcome string, elapsed time.Duration) {
	GatewayRequestDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
	GatewayRequestTotal.WithLabelValues(operation, outcome).Inc()
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
