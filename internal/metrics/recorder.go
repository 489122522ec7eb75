package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel is the final status of a build.
type BuildOutcomeLabel string

const (
	OutcomeSuccess  BuildOutcomeLabel = "success"
	OutcomeFailed   BuildOutcomeLabel = "failed"
	OutcomeCanceled BuildOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for build, stage and transform metrics.
// Implementations must be safe for concurrent use: transforms report from workers.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	ObserveTransformDuration(transform string, d time.Duration)
	IncModules(moduleType string)
	IncCacheResult(hit bool)
	AddEmittedBytes(kind string, n int)
	SetWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)     {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)             {}
func (NoopRecorder) IncStageResult(string, ResultLabel)             {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)              {}
func (NoopRecorder) ObserveTransformDuration(string, time.Duration) {}
func (NoopRecorder) IncModules(string)                              {}
func (NoopRecorder) IncCacheResult(bool)                            {}
func (NoopRecorder) AddEmittedBytes(string, int)                    {}
func (NoopRecorder) SetWorkers(int)                                 {}
