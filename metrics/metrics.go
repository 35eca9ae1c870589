// Package metrics exposes synchronization runs as Prometheus collectors and
// YAML run reports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alerts_translate"

// Recorder holds the run collectors.
type Recorder struct {
	runs        *prometheus.CounterVec
	alerts      prometheus.Gauge
	translated  prometheus.Counter
	reused      prometheus.Counter
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Synchronization runs by result",
		}, []string{"result"}),
		alerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_processed",
			Help:      "Alerts in the most recent source feed",
		}),
		translated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strings_translated_total",
			Help:      "Translations obtained from the provider",
		}),
		reused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_reused_total",
			Help:      "Translations carried forward from the published feed",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent per synchronization run",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),
	}
	reg.MustRegister(r.runs, r.alerts, r.translated, r.reused, r.duration, r.lastSuccess)
	return r
}

// Observe records a finished run.
func (r *Recorder) Observe(rep *Report) {
	r.runs.WithLabelValues(rep.Result()).Inc()
	r.duration.Observe(rep.Duration.Seconds())
	if rep.Error != "" {
		return
	}
	r.alerts.Set(float64(rep.Metrics.AlertsProcessed))
	r.translated.Add(float64(rep.Metrics.StringsTranslated))
	r.reused.Add(float64(rep.Metrics.TranslationsReused))
	r.lastSuccess.Set(float64(rep.StartedAt.Add(rep.Duration).Unix()))
}

// NewServer serves /metrics from g and a /healthz liveness check.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
