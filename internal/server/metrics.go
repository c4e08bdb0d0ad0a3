package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/docsplit/internal/batch"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsplit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsplit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Job metrics
	jobsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsplit_jobs_started_total",
			Help: "Total number of batch jobs started over HTTP",
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsplit_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsplit_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"},
	)
)

// metricsHandler serves the Prometheus scrape endpoint.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// jobCollector exports live gauges derived from runner snapshots so job
// counts per state and page counters stay accurate without push hooks.
type jobCollector struct {
	runner jobRunner

	jobsByState   *prometheus.Desc
	pagesCaptured *prometheus.Desc
	pagesAnalyzed *prometheus.Desc
	docsFinished  *prometheus.Desc
}

// NewJobCollector creates the collector; register it once per runner.
func NewJobCollector(runner *batch.Runner) prometheus.Collector {
	return &jobCollector{
		runner: runner,
		jobsByState: prometheus.NewDesc(
			"docsplit_jobs",
			"Number of jobs by state",
			[]string{"state"}, nil,
		),
		pagesCaptured: prometheus.NewDesc(
			"docsplit_pages_captured_total",
			"Pages captured across all jobs",
			nil, nil,
		),
		pagesAnalyzed: prometheus.NewDesc(
			"docsplit_pages_analyzed_total",
			"Pages analyzed across all jobs",
			nil, nil,
		),
		docsFinished: prometheus.NewDesc(
			"docsplit_documents_finished_total",
			"Documents finished across all jobs",
			nil, nil,
		),
	}
}

func (c *jobCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByState
	ch <- c.pagesCaptured
	ch <- c.pagesAnalyzed
	ch <- c.docsFinished
}

func (c *jobCollector) Collect(ch chan<- prometheus.Metric) {
	var captured, analyzed, finished int
	byState := make(map[batch.State]int)
	for _, s := range c.runner.Jobs() {
		byState[s.State]++
		captured += s.Captured
		analyzed += s.Analyzed
		finished += s.Finished
	}
	for state, n := range byState {
		ch <- prometheus.MustNewConstMetric(c.jobsByState, prometheus.GaugeValue, float64(n), string(state))
	}
	ch <- prometheus.MustNewConstMetric(c.pagesCaptured, prometheus.CounterValue, float64(captured))
	ch <- prometheus.MustNewConstMetric(c.pagesAnalyzed, prometheus.CounterValue, float64(analyzed))
	ch <- prometheus.MustNewConstMetric(c.docsFinished, prometheus.CounterValue, float64(finished))
}
