// Package depindex builds the inverted maps that connect artifact paths
// to the tasks that produce and consume them.
package depindex

import (
	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

// Index holds the four inverted maps described in §4.5, built
// incrementally as runs publish artifacts.
type Index struct {
	producer  map[string]string              // output-path -> task-id
	consumers map[string]util.Set[string]     // input-path -> set(task-id)
	inputs    map[string]util.Set[string]     // task-id -> set(path)
	outputs   map[string]util.Set[string]     // task-id -> set(path)
	tasks     map[string]*model.Task
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		producer:  make(map[string]string),
		consumers: make(map[string]util.Set[string]),
		inputs:    make(map[string]util.Set[string]),
		outputs:   make(map[string]util.Set[string]),
		tasks:     make(map[string]*model.Task),
	}
}

// AddRun registers a run's task, its declared outputs, and the inputs
// each output depends on. Returns a fatal error on a duplicate output
// path, per invariant 1.
func (idx *Index) AddRun(run *model.Run) error {
	if !run.Executable() {
		return nil
	}
	taskID := run.TaskID()
	task := &model.Task{ID: taskID, Run: run}
	idx.tasks[taskID] = task

	outSet := util.SetFrom[string](nil)
	inSet := util.SetFrom[string](nil)

	for _, out := range run.AllOutputs() {
		if existing, ok := idx.producer[out]; ok {
			return errors.Errorf("output path %q already produced by task %q (duplicate producer %q)", out, existing, taskID)
		}
		idx.producer[out] = taskID
		outSet.Add(out)

		for in := range run.OutputInputs[out] {
			inSet.Add(in)
			if idx.consumers[in] == nil {
				idx.consumers[in] = util.SetFrom[string](nil)
			}
			idx.consumers[in].Add(taskID)
		}
	}

	idx.inputs[taskID] = inSet
	idx.outputs[taskID] = outSet
	return nil
}

// Producer returns the task id that publishes path, if any.
func (idx *Index) Producer(path string) (string, bool) {
	id, ok := idx.producer[path]
	return id, ok
}

// Consumers returns the set of task ids that consume path.
func (idx *Index) Consumers(path string) util.Set[string] {
	return idx.consumers[path]
}

// Inputs returns the set of input paths a task depends on.
func (idx *Index) Inputs(taskID string) util.Set[string] {
	return idx.inputs[taskID]
}

// Outputs returns the set of output paths a task produces.
func (idx *Index) Outputs(taskID string) util.Set[string] {
	return idx.outputs[taskID]
}

// Task returns a registered task by id.
func (idx *Index) Task(taskID string) (*model.Task, bool) {
	t, ok := idx.tasks[taskID]
	return t, ok
}

// Tasks returns every registered task, keyed by id.
func (idx *Index) Tasks() map[string]*model.Task {
	return idx.tasks
}

// Parents returns a task's parent task ids: the distinct producers of
// its input paths, excluding itself.
func (idx *Index) Parents(taskID string) util.Set[string] {
	parents := util.SetFrom[string](nil)
	for path := range idx.inputs[taskID] {
		if producer, ok := idx.producer[path]; ok && producer != taskID {
			parents.Add(producer)
		}
	}
	return parents
}
