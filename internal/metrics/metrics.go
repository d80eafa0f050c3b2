package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages observed by ObserveStage.
const (
	StageSelect   = "select"
	StageSchema   = "schema"
	StageAssemble = "assemble"
	StageGenerate = "generate"
	StageExecute  = "execute"
	StageAnswer   = "answer"
)

var (
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlrag_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)

	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_queries_total",
			Help: "Total number of answered and failed questions.",
		},
		[]string{"status"},
	)

	tracesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlrag_traces_dropped_total",
			Help: "Total number of trace records that could not be recorded.",
		},
	)
)

func init() {
	prometheus.MustRegister(stageDurationSeconds, queriesTotal, tracesDroppedTotal)
}

// ObserveStage records the duration of a pipeline stage started at start.
func ObserveStage(stage string, start time.Time, err error) {
	stageDurationSeconds.WithLabelValues(stage, status(err)).Observe(time.Since(start).Seconds())
}

// ObserveQuery counts a finished question.
func ObserveQuery(err error) {
	queriesTotal.WithLabelValues(status(err)).Inc()
}

// TraceDropped counts a trace record lost to a failing or saturated tracer.
func TraceDropped() {
	tracesDroppedTotal.Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
