// Package runenum enumerates the concrete runs of every step in
// topological order, resolving each step's upstream bindings from the
// runs already produced by its parents.
package runenum

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/stepgraph"
)

// Result holds every enumerated run, grouped by step and flattened.
type Result struct {
	ByStep map[string][]*model.Run
	All    []*model.Run
}

// Enumerate walks the graph's steps in topological order, asking each
// one's contract to enumerate its runs given upstream bindings computed
// from already-enumerated parent runs. Run-id uniqueness is enforced
// per step; a duplicate (step, run-id) is fatal.
func Enumerate(graph *stepgraph.Graph, options map[string]map[string]interface{}) (*Result, error) {
	result := &Result{ByStep: make(map[string][]*model.Run, len(graph.Ordered))}

	for _, step := range graph.Ordered {
		ctx := model.EnumerateContext{
			Options:   options[step.Name],
			Upstreams: collectUpstreams(step, result.ByStep),
		}

		runs, err := step.Contract.EnumerateRuns(step, ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "enumerating runs for step %q", step.Name)
		}

		seen := make(map[string]bool, len(runs))
		for _, r := range runs {
			if seen[r.RunID] {
				return nil, errors.Errorf("step %q: duplicate run id %q", step.Name, r.RunID)
			}
			seen[r.RunID] = true
		}

		result.ByStep[step.Name] = runs
		result.All = append(result.All, runs...)
	}

	return result, nil
}

// collectUpstreams builds the in/-connection bindings for a step from
// its parents' already-enumerated runs. A parent contributes a binding
// on a connection named after its matching out/ port for every one of
// its runs.
func collectUpstreams(step *model.Step, byStep map[string][]*model.Run) map[string][]model.UpstreamBinding {
	upstreams := make(map[string][]model.UpstreamBinding)
	for _, conn := range step.Connections {
		if conn.Dir != model.In {
			continue
		}
		outName := "out/" + strings.TrimPrefix(conn.Name, "in/")
		for _, parentName := range step.DependsOn {
			for _, run := range byStep[parentName] {
				files, ok := run.Outputs[outName]
				if !ok {
					continue
				}
				upstreams[conn.Name] = append(upstreams[conn.Name], model.UpstreamBinding{
					ConnectionName: conn.Name,
					ProducerStep:   parentName,
					RunID:          run.RunID,
					Files:          files,
					PublicInfo:     run.PublicInfo,
				})
			}
		}
	}
	return upstreams
}
