package spacetraveling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments exported on /metrics.
type Metrics struct {
	CacheLookups   *prometheus.CounterVec
	Renders        *prometheus.CounterVec
	RenderDuration *prometheus.HistogramVec
	Regenerations  *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	LoadMore       *prometheus.CounterVec
}

// NewMetrics registers the instruments and the Go runtime collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "page_cache_lookups_total",
			Help:      "Page cache lookups by result (hit, stale, miss, bypass).",
		}, []string{"result"}),
		Renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "page_renders_total",
			Help:      "Page renders by page kind and outcome.",
		}, []string{"page", "outcome"}),
		RenderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spacetraveling",
			Name:      "page_render_duration_seconds",
			Help:      "Time spent fetching content and rendering a page.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"page"}),
		Regenerations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "page_regenerations_total",
			Help:      "Background page regenerations by outcome.",
		}, []string{"outcome"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "article_fallbacks_total",
			Help:      "Deferred article resolutions by final state.",
		}, []string{"state"}),
		LoadMore: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spacetraveling",
			Name:      "listing_load_more_total",
			Help:      "Listing fetch endpoint calls by outcome.",
		}, []string{"outcome"}),
	}
}
