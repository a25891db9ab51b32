package metrics

import "github.com/prometheus/client_golang/prometheus"

// Orchestrator Prometheus metrics.
var (
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnidex",
			Name:      "backend_requests_total",
			Help:      "Total number of backend sub-query dispatches",
		},
		[]string{"backend", "status"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnidex",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend sub-query duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	BackendItemsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnidex",
			Name:      "backend_items_returned",
			Help:      "Items returned per successful backend call",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"backend"},
	)

	FusionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "omnidex",
			Name:      "fusion_duration_seconds",
			Help:      "Result fusion duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	FusionResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "omnidex",
			Name:      "fusion_results",
			Help:      "Number of fused results per query",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnidex",
			Name:      "result_cache_total",
			Help:      "Result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ConversationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "omnidex",
			Name:      "conversations_active",
			Help:      "Number of conversations currently held in memory",
		},
	)

	ConversationEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnidex",
			Name:      "conversation_evictions_total",
			Help:      "Total conversations evicted from memory",
		},
		[]string{"reason"}, // "idle" / "capacity" / "cleared"
	)

	GenerativeTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnidex",
			Name:      "generative_tokens_total",
			Help:      "Total generative tokens consumed",
		},
		[]string{"driver", "type"}, // type: "prompt" / "completion"
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "omnidex",
			Name:      "generative_budget_tokens_remaining",
			Help:      "Remaining generative token budget",
		},
		[]string{"driver", "period"},
	)
)

var orchMetricsRegistered bool

// RegisterOrchestratorMetrics registers Prometheus orchestrator metrics. Must be called once from main.
func RegisterOrchestratorMetrics() {
	if orchMetricsRegistered {
		return
	}
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(BackendItemsReturned)
	prometheus.MustRegister(FusionDuration)
	prometheus.MustRegister(FusionResults)
	prometheus.MustRegister(ResultCacheTotal)
	prometheus.MustRegister(ConversationsActive)
	prometheus.MustRegister(ConversationEvictionsTotal)
	prometheus.MustRegister(GenerativeTokensTotal)
	prometheus.MustRegister(BudgetTokensRemaining)
	orchMetricsRegistered = true
}
