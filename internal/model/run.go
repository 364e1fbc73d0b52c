package model

import "github.com/labflow/flowctl/internal/util"

// Run is a concrete execution unit attached to a step, identified by
// (step name, run id).
type Run struct {
	Step  *Step
	RunID string

	// PublicInfo is visible to downstream runs that bind over this run's
	// out/ connections.
	PublicInfo map[string]interface{}
	// PrivateInfo is only visible within this run's own task.
	PrivateInfo map[string]interface{}

	// Outputs maps output connection name -> declared output files.
	Outputs map[string][]string
	// OutputInputs maps an output file path to the set of input file
	// paths it depends on; these become DependencyIndex edges.
	OutputInputs map[string]util.Set[string]

	ExecGroups []*ExecGroup
}

// TaskID is the identifier for this run's (sole) task: "step#run-id".
func (r *Run) TaskID() string {
	return util.TaskID(r.Step.Name, r.RunID)
}

// AllOutputs flattens every declared output file across connections.
func (r *Run) AllOutputs() []string {
	var out []string
	for _, files := range r.Outputs {
		out = append(out, files...)
	}
	return out
}

// Executable reports whether this run has any work to do.
func (r *Run) Executable() bool {
	return len(r.ExecGroups) > 0
}

// ExecGroup is an ordered sequence of commands and/or pipelines executed
// strictly sequentially.
type ExecGroup struct {
	Name  string
	Items []ExecItem
}

// ExecItem is either a single Command or a Pipeline of commands run
// concurrently with stdout->stdin chaining.
type ExecItem struct {
	Command  *Command  // set if this item is a single atomic command
	Pipeline *Pipeline // set if this item is a multi-command pipeline
}

// Pipeline is an ordered list of commands, command i's stdout feeding
// command i+1's stdin. A pipeline succeeds only if every command
// succeeds.
type Pipeline struct {
	Commands []*Command
}

// Command is one external program invocation within an ExecGroup or
// Pipeline.
type Command struct {
	Program string
	Args    []string
	// Env holds additional environment variables layered over the
	// process's own environment.
	Env map[string]string
	// Dir is the working directory; empty means the task's temp
	// directory.
	Dir string
	// SinkPath, when non-empty, redirects this command's stdout into a
	// file in addition to any downstream pipe.
	SinkPath string
	// CaptureStderrSink, when non-empty, redirects stderr to a file.
	CaptureStderrSink string
}
