package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docfuse_system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docfuse_system_goroutines",
		Help: "Number of goroutines",
	})

	// Document model metrics
	DocumentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfuse_documents_parsed_total",
			Help: "Total number of documents run through the model builder",
		},
		[]string{"status"},
	)

	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "docfuse_parse_duration_seconds",
			Help: "Time spent in each document model building stage",
		},
		[]string{"stage"},
	)

	AnnotationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "docfuse_annotation_duration_seconds",
			Help: "Time spent waiting on the linguistic annotator",
		},
		[]string{"annotator"},
	)

	// Extraction metrics
	ExtractionQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docfuse_extraction_queue_length",
		Help: "Number of documents waiting to be extracted",
	})

	CandidatesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfuse_candidates_extracted_total",
			Help: "Total number of candidates persisted",
		},
		[]string{"relation", "split"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "docfuse_extraction_duration_seconds",
			Help: "Time spent extracting candidates from one document",
		},
		[]string{"relation"},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docfuse_extraction_failures_total",
			Help: "Total number of documents whose extraction failed",
		},
		[]string{"relation", "error_type"},
	)
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler serves the default registry, refreshing system metrics on every scrape
func Handler() http.Handler {
	h := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateSystemMetrics()
		h.ServeHTTP(w, r)
	})
}

// WriteTextfile dumps the default registry in the text exposition format,
// for batch runs picked up by a node exporter textfile collector
func WriteTextfile(path string) error {
	UpdateSystemMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
