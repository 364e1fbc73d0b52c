// Package model holds the shared declarative data model that flows
// through the graph, enumeration, dependency, and execution components:
// steps, connections, runs, exec groups, commands, tasks, and artifacts.
package model

import "fmt"

// Connection is a named port carrying file paths between steps, e.g.
// "in/alignments" or "out/counts".
type Connection struct {
	Name string
	Dir  ConnectionDir
}

// ConnectionDir distinguishes an input port from an output port.
type ConnectionDir int

const (
	// In is a consuming connection, bound to an upstream step's Out port.
	In ConnectionDir = iota
	// Out is a producing connection, publishing files per run.
	Out
)

func (d ConnectionDir) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Step is the declarative, immutable-after-finalization processing node.
// StepGraph constructs one Step per `steps` config entry; RunEnumerator
// later asks each Step to produce its Runs.
type Step struct {
	// Name is the unique instance name (the config key, minus any
	// "(module)" suffix).
	Name string
	// ModuleClass identifies the StepFactory used to construct this step's
	// contract (enumeration + exec group logic).
	ModuleClass string
	// DependsOn lists parent step names declared via `_depends`.
	DependsOn []string
	// RequiredTools lists tool ids this step's commands invoke.
	RequiredTools []string
	// Connections are this step's declared in/out ports.
	Connections []Connection
	// Options holds the step's raw, resolved option values.
	Options map[string]interface{}
	// CoresHint is a per-run core count hint used by the orchestrator's
	// local-mode admission control.
	CoresHint int

	// Contract is the registered behavior for ModuleClass, bound during
	// finalization.
	Contract StepContract

	finalized bool
}

// String implements fmt.Stringer so steps print their instance name.
func (s *Step) String() string {
	return s.Name
}

// Finalize resolves a step's effective options and connections exactly
// once. Calling Finalize twice is a programming error.
func (s *Step) Finalize() error {
	if s.finalized {
		return fmt.Errorf("step %q: finalize called twice", s.Name)
	}
	if s.Contract == nil {
		return fmt.Errorf("step %q: no contract registered for module class %q", s.Name, s.ModuleClass)
	}
	if err := s.Contract.Finalize(s); err != nil {
		return fmt.Errorf("step %q: %w", s.Name, err)
	}
	s.finalized = true
	return nil
}

// OutConnection returns the named output connection, if declared.
func (s *Step) OutConnection(name string) (Connection, bool) {
	for _, c := range s.Connections {
		if c.Dir == Out && c.Name == name {
			return c, true
		}
	}
	return Connection{}, false
}
