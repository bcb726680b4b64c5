package metrics

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusConfig configures a PrometheusSink.
type PrometheusConfig struct {
	Namespace string
	Logger    *slog.Logger
	// Registry defaults to a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
}

// PrometheusSink maps Sink calls onto lazily registered Prometheus vectors.
// Counts become counters, gauges become gauges and timings become histograms in seconds.
// It is safe for concurrent use.
type PrometheusSink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink builds a sink backed by its own registry.
func NewPrometheusSink(cfg PrometheusConfig) *PrometheusSink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &PrometheusSink{
		namespace:  normalizeName(cfg.Namespace),
		registry:   reg,
		logger:     logger.With("component", "metrics"),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (s *PrometheusSink) Registry() *prometheus.Registry { return s.registry }

// Count increments a counter metric.
func (s *PrometheusSink) Count(name string, value int64, tags map[string]string) {
	if s == nil || value < 0 {
		return
	}
	labels, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      normalizeName(name) + "_total",
			Help:      "Count of " + name + " events.",
		}, labels)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.counters[name] = vec
	}
	s.mu.Unlock()

	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		s.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	c.Add(float64(value))
}

// Gauge records the current value for a gauge metric.
func (s *PrometheusSink) Gauge(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	labels, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      normalizeName(name),
			Help:      "Current value of " + name + ".",
		}, labels)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.gauges[name] = vec
	}
	s.mu.Unlock()

	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		s.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	g.Set(value)
}

// Timing observes a duration in seconds.
func (s *PrometheusSink) Timing(name string, value time.Duration, tags map[string]string) {
	if s == nil {
		return
	}
	labels, values := splitTags(tags)
	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      normalizeName(name) + "_seconds",
			Help:      "Duration of " + name + ".",
			Buckets:   prometheus.DefBuckets,
		}, labels)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.histograms[name] = vec
	}
	s.mu.Unlock()

	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		s.logger.Debug("metric label mismatch", "metric", name, "error", err)
		return
	}
	h.Observe(value.Seconds())
}

// register must be called with s.mu held.
func (s *PrometheusSink) register(name string, c prometheus.Collector) bool {
	if err := s.registry.Register(c); err != nil {
		s.logger.Warn("metric registration failed", "metric", name, "error", err)
		return false
	}
	return true
}

func splitTags(tags map[string]string) ([]string, []string) {
	if len(tags) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	labels := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = normalizeName(k)
		values[i] = tags[k]
	}
	return labels, values
}

// normalizeName converts dotted or spaced names into Prometheus-safe identifiers.
func normalizeName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.Trim(n, ".")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, n)
}
