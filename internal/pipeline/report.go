package pipeline

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

// BuildOutcome is the final result of one run.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// StageResult is the outcome of one driver state.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

// StageRecord is one row of the report.
type StageRecord struct {
	State    State         `json:"state"`
	Result   StageResult   `json:"result"`
	Duration time.Duration `json:"duration_ns"`
}

// BuildReport summarizes a run: the states it went through, how long each
// took, and what was produced.
type BuildReport struct {
	BuildID      string        `json:"build_id"`
	Mode         string        `json:"mode"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Stages       []StageRecord `json:"stages"`
	Trail        []State       `json:"trail"`
	FinalState   State         `json:"final_state"`
	Outcome      BuildOutcome  `json:"outcome"`
	Modules      int           `json:"modules"`
	Artifacts    int           `json:"artifacts"`
	ConfigHash   string        `json:"config_hash"`
	ManifestHash string        `json:"manifest_hash,omitempty"`
	Errors       []error       `json:"-"`
	Warnings     []error       `json:"-"`
}

func newReport(buildID, mode, configHash string, start time.Time) *BuildReport {
	return &BuildReport{BuildID: buildID, Mode: mode, ConfigHash: configHash, Start: start}
}

// RecordStage appends a stage row and emits its metrics.
func (r *BuildReport) RecordStage(state State, res StageResult, d time.Duration, recorder metrics.Recorder) {
	r.Stages = append(r.Stages, StageRecord{State: state, Result: res, Duration: d})
	if recorder == nil {
		return
	}
	recorder.ObserveStageDuration(string(state), d)
	switch res {
	case StageResultSuccess:
		recorder.IncStageResult(string(state), metrics.ResultSuccess)
	case StageResultWarning:
		recorder.IncStageResult(string(state), metrics.ResultWarning)
	case StageResultFatal:
		recorder.IncStageResult(string(state), metrics.ResultFatal)
	case StageResultCanceled:
		recorder.IncStageResult(string(state), metrics.ResultCanceled)
	}
}

// Stage returns the record for state.
func (r *BuildReport) Stage(state State) (StageRecord, bool) {
	for _, s := range r.Stages {
		if s.State == state {
			return s, true
		}
	}
	return StageRecord{}, false
}

// DeriveOutcome sets Outcome from errors and warnings.
func (r *BuildReport) DeriveOutcome() {
	switch {
	case len(r.Errors) > 0:
		r.Outcome = OutcomeFailed
		for _, err := range r.Errors {
			if isCanceled(err) {
				r.Outcome = OutcomeCanceled
				break
			}
		}
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Summary returns a single-line description.
func (r *BuildReport) Summary() string {
	return fmt.Sprintf("build=%s mode=%s modules=%d artifacts=%d duration=%s state=%s outcome=%s warnings=%d",
		r.BuildID, r.Mode, r.Modules, r.Artifacts, r.End.Sub(r.Start).Truncate(time.Millisecond),
		r.FinalState, r.Outcome, len(r.Warnings))
}

func isCanceled(err error) bool {
	return stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) ||
		errors.HasCategory(err, errors.CategoryCanceled)
}

func resultFor(err error) StageResult {
	switch {
	case err == nil:
		return StageResultSuccess
	case isCanceled(err):
		return StageResultCanceled
	default:
		return StageResultFatal
	}
}
