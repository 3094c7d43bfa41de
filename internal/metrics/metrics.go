// Package metrics exposes Prometheus counters for the processing
// pipeline and the streaming surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_pipeline_runs_total",
		Help: "Completed pipeline runs by outcome.",
	}, []string{"outcome"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_stage_failures_total",
		Help: "Pipeline stage failures by stage.",
	}, []string{"stage"})

	streamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_stream_requests_total",
		Help: "Streaming requests by response status.",
	}, []string{"status"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipforge_events_dropped_total",
		Help: "Broadcast events dropped for slow subscribers.",
	}, []string{"event"})

	analysisFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipforge_analysis_frames_total",
		Help: "Frames scored by the sensitivity engine.",
	})
)

// IncPipelineRun records a finished pipeline run ("completed"/"failed").
func IncPipelineRun(outcome string) {
	pipelineRuns.WithLabelValues(outcome).Inc()
}

// IncStageFailure records a failure of the named stage.
func IncStageFailure(stage string) {
	stageFailures.WithLabelValues(stage).Inc()
}

// IncStreamRequest records a streaming response by status code class.
func IncStreamRequest(status string) {
	streamRequests.WithLabelValues(status).Inc()
}

// IncEventDropped records an event dropped for a slow subscriber.
func IncEventDropped(event string) {
	eventsDropped.WithLabelValues(event).Inc()
}

// AddAnalysisFrames records n scored frames.
func AddAnalysisFrames(n int) {
	analysisFrames.Add(float64(n))
}
