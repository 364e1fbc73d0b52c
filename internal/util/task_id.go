package util

import (
	"fmt"
	"strings"
)

// TaskDelimiter separates a step name from a run id in a task identifier.
const TaskDelimiter = "#"

// TaskID returns the identifier for a (step, run-id) pair, e.g. "fastqc#sample-01".
func TaskID(stepName, runID string) string {
	return fmt.Sprintf("%s%s%s", stepName, TaskDelimiter, runID)
}

// SplitTaskID returns the step name and run id encoded in a task identifier.
func SplitTaskID(taskID string) (stepName, runID string, err error) {
	idx := strings.Index(taskID, TaskDelimiter)
	if idx < 0 {
		return "", "", fmt.Errorf("malformed task id %q: missing %q delimiter", taskID, TaskDelimiter)
	}
	return taskID[:idx], taskID[idx+len(TaskDelimiter):], nil
}

// StepOf returns just the step name portion of a task id, ignoring malformed input.
func StepOf(taskID string) string {
	step, _, err := SplitTaskID(taskID)
	if err != nil {
		return taskID
	}
	return step
}

// HasPrefix reports whether a task id matches one of the given wish-list prefixes.
// An empty wish list matches everything, per §4.9's "empty wish list means all".
func HasPrefix(taskID string, wishList []string) bool {
	if len(wishList) == 0 {
		return true
	}
	for _, want := range wishList {
		if strings.HasPrefix(taskID, want) {
			return true
		}
	}
	return false
}
