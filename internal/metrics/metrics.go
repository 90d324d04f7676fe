package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    providerReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "comesano",
            Name:      "provider_requests_total",
            Help:      "Total provider requests by provider, model and result",
        },
        []string{"provider", "model", "result"},
    )

    providerLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "comesano",
            Name:      "provider_request_duration_seconds",
            Help:      "Duration of provider requests by provider and model",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"provider", "model"},
    )

    analyses = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "comesano",
            Name:      "analyses_total",
            Help:      "Photo analyses by outcome (success, rate_limited, error, busy)",
        },
        []string{"result"},
    )

    fallbacks = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "comesano",
            Name:      "fallbacks_total",
            Help:      "Rate-limit fallbacks from primary to secondary provider",
        },
        []string{"from", "to"},
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "comesano",
            Name:      "retries_total",
            Help:      "Total number of user-triggered retries",
        },
    )

    countdowns = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "comesano",
            Name:      "countdown_events_total",
            Help:      "Retry countdown events by action (started, expired, cancelled)",
        },
        []string{"action"},
    )

    foodItems = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "comesano",
            Name:      "food_items_per_analysis",
            Help:      "Number of food items recognised per successful analysis",
            Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
        },
    )
)

var initOnce sync.Once

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(providerReqs, providerLatency, analyses, fallbacks, retriesTotal, countdowns, foodItems)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
    providerReqs.WithLabelValues(provider, model, result).Inc()
    providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncAnalysis(result string)     { analyses.WithLabelValues(result).Inc() }
func IncFallback(from, to string)   { fallbacks.WithLabelValues(from, to).Inc() }
func IncRetry()                     { retriesTotal.Inc() }
func CountdownEvent(action string)  { countdowns.WithLabelValues(action).Inc() }
func ObserveFoodItems(n int)        { foodItems.Observe(float64(n)) }
