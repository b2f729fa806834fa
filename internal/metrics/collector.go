package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "image_gen_mcp"

// Tool call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeToolError = "tool_error"
	OutcomeInvalid   = "invalid"
)

// Provider attempt outcomes.
const (
	AttemptSuccess   = "success"
	AttemptRetryable = "retryable"
	AttemptFailed    = "failed"
)

// Collector owns a private registry so several servers (and tests) can live
// in one process. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	providerRetries  prometheus.Counter
	imagesSaved      prometheus.Counter
}

// NewCollector registers every metric on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Tool invocation latency in seconds",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"tool"},
		),
		providerAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of HTTP attempts against the image provider",
			},
			[]string{"outcome"},
		),
		providerRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of backoff retries against the image provider",
		}),
		imagesSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_saved_total",
			Help:      "Total number of images written to disk",
		}),
	}
}

// RecordToolCall counts one tools/call and observes its latency.
func (c *Collector) RecordToolCall(tool, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordAttempt counts one provider round trip.
func (c *Collector) RecordAttempt(outcome string) {
	if c == nil {
		return
	}
	c.providerAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.providerRetries.Inc()
}

func (c *Collector) RecordSave() {
	if c == nil {
		return
	}
	c.imagesSaved.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
