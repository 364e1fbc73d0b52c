// Package fingerprint gathers the four inputs invariant 5 requires a
// task's version fingerprint to be a pure function of — tool
// fingerprints, resolved option values, input file hashes, and declared
// output tags — and computes it via annotation.Fingerprint. It sits
// between depindex/toolregistry and the packages that need a task's
// expected fingerprint (orchestrator, to stamp a finished annotation;
// taskstate, to recompute and compare against one already stored).
package fingerprint

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/annotation"
	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/toolregistry"
)

// Inputs is the gathered, not-yet-hashed material a fingerprint is
// computed from, also persisted alongside it in the annotation so a
// later run can see exactly what produced the stored value.
type Inputs struct {
	ToolFingerprints map[string]string
	OptionValues     map[string]interface{}
	InputHashes      map[string]string
	OutputTags       []string
}

// Gather collects a task's current fingerprint inputs: its required
// tools' checked fingerprints (empty if reg is nil), its step's resolved
// options, a fresh sha256 of each of its current input files, and its
// sorted output connection names.
func Gather(idx *depindex.Index, reg *toolregistry.Registry, taskID string) (Inputs, error) {
	task, ok := idx.Task(taskID)
	if !ok {
		return Inputs{}, errors.Errorf("unknown task %q", taskID)
	}

	var toolFingerprints map[string]string
	if reg != nil {
		toolFingerprints = reg.ToolFingerprints(task.Run.Step.RequiredTools)
	}

	inputHashes, err := annotation.HashFiles(idx.Inputs(taskID).List())
	if err != nil {
		return Inputs{}, err
	}

	outputTags := make([]string, 0, len(task.Run.Outputs))
	for tag := range task.Run.Outputs {
		outputTags = append(outputTags, tag)
	}
	sort.Strings(outputTags)

	return Inputs{
		ToolFingerprints: toolFingerprints,
		OptionValues:     task.Run.Step.Options,
		InputHashes:      inputHashes,
		OutputTags:       outputTags,
	}, nil
}

// Compute gathers a task's fingerprint inputs and folds them through
// annotation.Fingerprint, returning both the fingerprint and the
// gathered inputs it was derived from.
func Compute(idx *depindex.Index, reg *toolregistry.Registry, taskID string) (string, Inputs, error) {
	in, err := Gather(idx, reg, taskID)
	if err != nil {
		return "", Inputs{}, err
	}
	fp := annotation.Fingerprint(in.ToolFingerprints, in.OptionValues, in.InputHashes, in.OutputTags)
	return fp, in, nil
}
