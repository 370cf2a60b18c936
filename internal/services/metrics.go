package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the recommendation core.
type Metrics struct {
	RecommendationsServed *prometheus.CounterVec
	FeedbackProcessed     *prometheus.CounterVec
	GuardRejections       *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	CacheHits             prometheus.Counter
	CacheMisses           prometheus.Counter
	ScoringDuration       prometheus.Histogram
	CandidatePoolSize     prometheus.Histogram
}

// NewMetrics registers the instruments with reg. Tests pass a fresh registry
// so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecommendationsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Recommendations served, by cache outcome",
		}, []string{"cache"}),
		FeedbackProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedback_processed_total",
			Help: "Feedback events processed, by action",
		}, []string{"action"}),
		GuardRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Requests rejected by the duplicate/conflict guard, by kind",
		}, []string{"kind"}),
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by class",
		}, []string{"class"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Recommendation cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "recommendation_cache_misses_total",
			Help: "Recommendation cache misses",
		}),
		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "candidate_scoring_duration_seconds",
			Help:    "Time spent scoring the candidate pool",
			Buckets: prometheus.DefBuckets,
		}),
		CandidatePoolSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "candidate_pool_size",
			Help:    "Sampled candidate pool size per recommend call",
			Buckets: []float64{0, 10, 25, 50, 100, 150, 200},
		}),
	}
}
