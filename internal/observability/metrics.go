package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forcing_download"

// Metrics holds the Prometheus counters, histograms, and gauges of a download run.
type Metrics struct {
	RetrieveRequests *prometheus.CounterVec   // labels: dataset, outcome={success,error}
	RetrieveDuration *prometheus.HistogramVec // labels: dataset
	DownloadedBytes  prometheus.Counter
	JobPolls         prometheus.Counter

	LastSuccess prometheus.Gauge
	RunSuccess  prometheus.Gauge
}

// NewMetrics creates all run metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.RetrieveRequests,
		m.RetrieveDuration,
		m.DownloadedBytes,
		m.JobPolls,
		m.LastSuccess,
		m.RunSuccess,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RetrieveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieve_requests_total",
			Help:      "Archive retrievals by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		RetrieveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieve_duration_seconds",
			Help:      "Wall time of one archive retrieval, queueing included.",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"dataset"}),
		DownloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to the output directory.",
		}),
		JobPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_polls_total",
			Help:      "Job status polls sent to the archive.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that fetched every file.",
		}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 when the last run fetched every file, 0 otherwise.",
		}),
	}
}

// WriteTextfile dumps the gathered metrics in the node_exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
