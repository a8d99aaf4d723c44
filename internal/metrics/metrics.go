package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jgoulah/meterfeed/pkg/models"
)

const metricPrefix = "meterfeed_"

// Recorder holds the run metrics on its own registry so a one-shot
// process can push them without the Go runtime collectors.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	points      prometheus.Gauge
	rows        prometheus.Gauge
	bytes       prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New registers the run metrics
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		points: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "points",
			Help: "Metering points in the last published artifact",
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "rows",
			Help: "Readings in the last published artifact",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "artifact_bytes",
			Help: "Compressed size of the last published artifact",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_success_timestamp_seconds",
			Help: "Unix time of the last run that published data",
		}),
	}

	r.registry.MustRegister(r.runsTotal, r.runDuration, r.points, r.rows, r.bytes, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records a finished run
func (r *Recorder) ObserveRun(run *models.Run) {
	r.runsTotal.WithLabelValues(run.Outcome).Inc()
	r.runDuration.Observe(run.Duration().Seconds())

	if run.Outcome != models.OutcomeOK {
		return
	}
	r.points.Set(float64(run.Points))
	r.rows.Set(float64(run.Rows))
	r.bytes.Set(float64(run.Bytes))
	if run.Published {
		r.lastSuccess.Set(float64(run.FinishedAt.Unix()))
	}
}

// Push replaces the job's metric group on the Pushgateway
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
