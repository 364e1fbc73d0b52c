// Package stepgraph constructs the step DAG from a loaded config model:
// step instantiation, dependency resolution, topological ordering with
// natural-sort/source_controller tie-breaking, and finalization.
package stepgraph

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/pyr-sh/dag"

	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

// ReservedStepName is the scratch directory name no step may claim.
const ReservedStepName = "temp"

// SourceControllerClass is the module class forced to the front of any
// topological tie, matching the source system's "no upstream, runs
// first" controller steps.
const SourceControllerClass = "source_controller"

// Graph is the finalized, topologically-ordered set of steps.
type Graph struct {
	Ordered []*model.Step
	byName  map[string]*model.Step
}

// Step returns a step by its instance name.
func (g *Graph) Step(name string) (*model.Step, bool) {
	s, ok := g.byName[name]
	return s, ok
}

// Build constructs a Step per config.Step entry, resolves dependencies,
// orders them topologically, and finalizes each one in order.
func Build(cfg *config.Model) (*Graph, error) {
	steps := make(map[string]*model.Step, len(cfg.Steps))
	for name, cs := range cfg.Steps {
		if name == ReservedStepName {
			return nil, errors.Errorf("step name %q is reserved for the scratch directory", ReservedStepName)
		}
		factory, ok := model.LookupStepFactory(cs.ModuleClass)
		if !ok {
			return nil, errors.Errorf("step %q: no module class registered for %q", name, cs.ModuleClass)
		}
		steps[name] = &model.Step{
			Name:          name,
			ModuleClass:   cs.ModuleClass,
			DependsOn:     append([]string{}, cs.DependsOn...),
			RequiredTools: append([]string{}, cs.RequiredTools...),
			Options:       cs.Options,
			CoresHint:     cs.CoresHint,
			Contract:      factory(),
		}
	}

	for name, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := steps[dep]; !ok {
				return nil, errors.Errorf("step %q: unknown dependency %q", name, dep)
			}
		}
	}

	if err := validateAcyclic(steps); err != nil {
		return nil, err
	}

	ordered, err := topologicalOrder(steps)
	if err != nil {
		return nil, err
	}

	for _, s := range ordered {
		if err := s.Finalize(); err != nil {
			return nil, err
		}
	}

	return &Graph{Ordered: ordered, byName: steps}, nil
}

// topologicalOrder repeatedly selects the set of steps whose parents are
// already placed, breaking ties by natural-sort name with
// source_controller steps forced first. A non-empty remainder with no
// eligible step is a cycle.
func topologicalOrder(steps map[string]*model.Step) ([]*model.Step, error) {
	placed := make(map[string]bool, len(steps))
	remaining := make(map[string]*model.Step, len(steps))
	for name, s := range steps {
		remaining[name] = s
	}

	ordered := make([]*model.Step, 0, len(steps))

	for len(remaining) > 0 {
		var eligible []*model.Step
		for _, s := range remaining {
			ready := true
			for _, dep := range s.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				eligible = append(eligible, s)
			}
		}
		if len(eligible) == 0 {
			return nil, cycleError(remaining)
		}

		sort.Slice(eligible, func(i, j int) bool {
			iController := eligible[i].ModuleClass == SourceControllerClass
			jController := eligible[j].ModuleClass == SourceControllerClass
			if iController != jController {
				return iController
			}
			return naturalLess(eligible[i].Name, eligible[j].Name)
		})

		for _, s := range eligible {
			ordered = append(ordered, s)
			placed[s.Name] = true
			delete(remaining, s.Name)
		}
	}

	return ordered, nil
}

// validateAcyclic runs the steps' dependency edges through pyr-sh/dag's
// cycle validation (util.ValidateGraph), so a cycle is
// reported with its full vertex chain rather than just the stuck
// remainder topologicalOrder would otherwise produce.
func validateAcyclic(steps map[string]*model.Step) error {
	var graph dag.AcyclicGraph
	for name := range steps {
		graph.Add(name)
	}
	for name, s := range steps {
		for _, dep := range s.DependsOn {
			graph.Connect(dag.BasicEdge(dep, name))
		}
	}
	return util.ValidateGraph(&graph)
}

func cycleError(remaining map[string]*model.Step) error {
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)
	return errors.Errorf("cycle detected among steps: %v", names)
}

var naturalChunk = regexp.MustCompile(`(\d+|\D+)`)

// naturalLess orders strings the way a human expects: "step2" before
// "step10".
func naturalLess(a, b string) bool {
	ac := naturalChunk.FindAllString(a, -1)
	bc := naturalChunk.FindAllString(b, -1)
	for i := 0; i < len(ac) && i < len(bc); i++ {
		an, aerr := strconv.Atoi(ac[i])
		bn, berr := strconv.Atoi(bc[i])
		if aerr == nil && berr == nil {
			if an != bn {
				return an < bn
			}
			continue
		}
		if ac[i] != bc[i] {
			return ac[i] < bc[i]
		}
	}
	return len(ac) < len(bc)
}
