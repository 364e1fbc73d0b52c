package model

// Task is (Run, ordinal) — in this system every run has at most one
// task, so ordinal is always 0 and TaskID doubles as the run's identity.
// The field is kept distinct from Run so callers that only need identity
// and state don't need to carry the full enumerated run around.
type Task struct {
	ID  string
	Run *Run
}

// TaskState is one of the nine states the task state machine computes.
// Ordered from most to least advanced per the precedence in §4.6:
// FINISHED > VOLATILIZED > EXECUTING > QUEUED > BAD > CHANGED > READY >
// WAITING > UNDETERMINABLE.
type TaskState int

const (
	StateFinished TaskState = iota
	StateVolatilized
	StateExecuting
	StateQueued
	StateBad
	StateChanged
	StateReady
	StateWaiting
	StateUndeterminable
)

var stateNames = map[TaskState]string{
	StateFinished:       "FINISHED",
	StateVolatilized:    "VOLATILIZED",
	StateExecuting:      "EXECUTING",
	StateQueued:         "QUEUED",
	StateBad:            "BAD",
	StateChanged:        "CHANGED",
	StateReady:          "READY",
	StateWaiting:        "WAITING",
	StateUndeterminable: "UNDETERMINABLE",
}

func (s TaskState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// MoreAdvanced reports whether s takes precedence over other per the
// state machine's tie-break order (lower enum value wins).
func (s TaskState) MoreAdvanced(other TaskState) bool {
	return s < other
}

// Terminal reports whether a task in this state should be treated as a
// satisfied dependency by its children (FINISHED or VOLATILIZED).
func (s TaskState) Terminal() bool {
	return s == StateFinished || s == StateVolatilized
}

// ArtifactState describes the on-disk status of a declared output file.
type ArtifactState int

const (
	ArtifactAbsent ArtifactState = iota
	ArtifactPresent
	ArtifactVolatilized
)

// Artifact is a file at a path under the configured destination,
// produced by exactly one task.
type Artifact struct {
	Path       string
	ProducerID string
	State      ArtifactState
	// Size and Hash are populated when State is ArtifactVolatilized, read
	// back from the placeholder file.
	Size int64
	Hash string
}
