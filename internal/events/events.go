package events

import "time"

// BuildStarted is emitted when the driver leaves Idle.
type BuildStarted struct {
	BaseEvent
	Mode  string `json:"mode"`
	Entry string `json:"entry"`
}

func NewBuildStarted(buildID, mode, entry string, at time.Time) (*BuildStarted, error) {
	base, err := newBase(buildID, TypeBuildStarted, at, map[string]any{
		"mode":  mode,
		"entry": entry,
	})
	if err != nil {
		return nil, err
	}
	return &BuildStarted{BaseEvent: base, Mode: mode, Entry: entry}, nil
}

// StageCompleted is emitted after every driver stage, successful or not.
type StageCompleted struct {
	BaseEvent
	Stage    string        `json:"stage"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration_ms"`
}

func NewStageCompleted(buildID, stage, result string, duration time.Duration, at time.Time) (*StageCompleted, error) {
	base, err := newBase(buildID, TypeStageCompleted, at, map[string]any{
		"stage":       stage,
		"result":      result,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return &StageCompleted{BaseEvent: base, Stage: stage, Result: result, Duration: duration}, nil
}

// BuildCompleted is emitted once the output directory has been promoted.
type BuildCompleted struct {
	BaseEvent
	Artifacts    int           `json:"artifacts"`
	ManifestHash string        `json:"manifest_hash"`
	Duration     time.Duration `json:"duration_ms"`
}

func NewBuildCompleted(buildID string, artifacts int, manifestHash string, duration time.Duration, at time.Time) (*BuildCompleted, error) {
	base, err := newBase(buildID, TypeBuildCompleted, at, map[string]any{
		"artifacts":     artifacts,
		"manifest_hash": manifestHash,
		"duration_ms":   duration.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return &BuildCompleted{BaseEvent: base, Artifacts: artifacts, ManifestHash: manifestHash, Duration: duration}, nil
}

// BuildFailed is emitted when the driver ends in Failed.
type BuildFailed struct {
	BaseEvent
	Stage    string `json:"stage"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

func NewBuildFailed(buildID, stage, category, message string, at time.Time) (*BuildFailed, error) {
	base, err := newBase(buildID, TypeBuildFailed, at, map[string]any{
		"stage":    stage,
		"category": category,
		"error":    message,
	})
	if err != nil {
		return nil, err
	}
	return &BuildFailed{BaseEvent: base, Stage: stage, Category: category, Error: message}, nil
}
