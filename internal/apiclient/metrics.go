package apiclient

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricRequestsTotal   = "nursery_suite_requests_total"
	metricRequestDuration = "nursery_suite_request_duration_seconds"
)

var idSegment = regexp.MustCompile(`/(\d+|[0-9a-fA-F-]{32,36})(/|$)`)

// Metrics records request counts and latencies per endpoint on a private
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// EndpointStat summarizes one method+route pair.
type EndpointStat struct {
	Method      string
	Route       string
	Requests    int
	Errors      int // responses with status >= 500
	MeanLatency time.Duration
}

// NewMetrics creates a recorder with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricRequestsTotal,
		Help: "Requests sent to the application under test by method, route and status.",
	}, []string{"method", "route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricRequestDuration,
		Help:    "Round-trip time of requests sent to the application under test.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	registry.MustRegister(requests, duration)
	return &Metrics{registry: registry, requests: requests, duration: duration}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Observe records one exchange.
func (m *Metrics) Observe(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route := Route(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Route collapses entity ids in a path so metrics stay low-cardinality:
// /api/sales/42 becomes /api/sales/{id}.
func Route(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for {
		next := idSegment.ReplaceAllString(path, "/{id}$2")
		if next == path {
			return path
		}
		path = next
	}
}

// Summary gathers the registry into per-endpoint stats sorted by route then method.
func (m *Metrics) Summary() ([]EndpointStat, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	type key struct{ method, route string }
	stats := map[key]*EndpointStat{}
	get := func(method, route string) *EndpointStat {
		k := key{method, route}
		s, ok := stats[k]
		if !ok {
			s = &EndpointStat{Method: method, Route: route}
			stats[k] = s
		}
		return s
	}

	for _, family := range families {
		switch family.GetName() {
		case metricRequestsTotal:
			for _, metric := range family.GetMetric() {
				labels := labelMap(metric)
				s := get(labels["method"], labels["route"])
				n := int(metric.GetCounter().GetValue())
				s.Requests += n
				if code, _ := strconv.Atoi(labels["code"]); code >= 500 {
					s.Errors += n
				}
			}
		case metricRequestDuration:
			for _, metric := range family.GetMetric() {
				labels := labelMap(metric)
				s := get(labels["method"], labels["route"])
				h := metric.GetHistogram()
				if h.GetSampleCount() > 0 {
					mean := h.GetSampleSum() / float64(h.GetSampleCount())
					s.MeanLatency = time.Duration(mean * float64(time.Second))
				}
			}
		}
	}

	out := make([]EndpointStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Route != out[j].Route {
			return out[i].Route < out[j].Route
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

func labelMap(metric *dto.Metric) map[string]string {
	labels := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}
