package models

import "time"

// RunState is a node of the per-run state machine.
type RunState string

const (
	StateTriggered        RunState = "triggered"
	StateBuildRunning     RunState = "build_running"
	StateBuildFailed      RunState = "build_failed"
	StateBuildSucceeded   RunState = "build_succeeded"
	StateDraftRunning     RunState = "draft_running"
	StateDraftFailed      RunState = "draft_failed"
	StateDraftSucceeded   RunState = "draft_succeeded"
	StatePublishRunning   RunState = "publish_running"
	StatePublishFailed    RunState = "publish_failed"
	StatePublishSucceeded RunState = "publish_succeeded"
)

var transitions = map[RunState][]RunState{
	StateTriggered:      {StateBuildRunning},
	StateBuildRunning:   {StateBuildFailed, StateBuildSucceeded},
	StateBuildSucceeded: {StateDraftRunning},
	StateDraftRunning:   {StateDraftFailed, StateDraftSucceeded},
	StateDraftSucceeded: {StatePublishRunning},
	StatePublishRunning: {StatePublishFailed, StatePublishSucceeded},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
// StateBuildSucceeded is terminal only when the release gate is closed, which the
// coordinator decides.
func (s RunState) Terminal() bool {
	return len(transitions[s]) == 0
}

// Stage names a pipeline stage.
type Stage string

const (
	StageBuild   Stage = "build"
	StageDraft   Stage = "release-draft"
	StagePublish Stage = "publish"
)

// StageStatus is the outcome of one stage instance.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageResult records the outcome of one stage instance.
type StageResult struct {
	Stage       Stage       `json:"stage"`
	Platform    string      `json:"platform,omitempty"`
	Status      StageStatus `json:"status"`
	Artifact    string      `json:"artifact,omitempty"`
	Error       *StageError `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at"`
	DurationSec float64     `json:"duration_sec"`
}

// Transition records a state change of a run.
type Transition struct {
	From RunState  `json:"from"`
	To   RunState  `json:"to"`
	At   time.Time `json:"at"`
}

// RunResult is the summary of a pipeline run.
type RunResult struct {
	RunID            string         `json:"run_id"`
	Trigger          Trigger        `json:"trigger"`
	State            RunState       `json:"state"`
	Failed           bool           `json:"failed"`
	ReleaseGated     bool           `json:"release_gated"`
	Draft            *ReleaseDraft  `json:"draft,omitempty"`
	Builds           []StageResult  `json:"builds"`
	DraftStage       *StageResult   `json:"draft_stage,omitempty"`
	Publishes        []StageResult  `json:"publishes,omitempty"`
	Assets           []ReleaseAsset `json:"assets,omitempty"`
	Transitions      []Transition   `json:"transitions"`
	Cancelled        bool           `json:"cancelled"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
	TotalDurationSec float64        `json:"total_duration_sec"`
}

// Plan is the gate decision for a trigger, evaluated once per run.
type Plan struct {
	Trigger   Trigger          `json:"trigger"`
	Build     bool             `json:"build"`
	Release   bool             `json:"release"`
	Platforms []PlatformTarget `json:"platforms"`
}
