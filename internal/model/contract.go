package model

// UpstreamBinding is what a step sees on one of its `in/` connections:
// for every producing run bound to that port, the files it published
// and the public info dictionary it exposed.
type UpstreamBinding struct {
	ConnectionName string
	ProducerStep   string
	RunID          string
	Files          []string
	PublicInfo     map[string]interface{}
}

// EnumerateContext is the input available to a step when it enumerates
// its runs: the resolved option values and the upstream bindings for
// each declared `in/` connection.
type EnumerateContext struct {
	Options   map[string]interface{}
	Upstreams map[string][]UpstreamBinding // keyed by connection name
}

// StepContract is the behavior registered per module class: how a step
// resolves its finalized options/connections, and how it enumerates its
// runs given upstream bindings. Replaces the source system's
// load-module-by-name-at-runtime step loader with an explicit registry
// populated at process init.
type StepContract interface {
	// Finalize resolves derived connections/options on the step in place.
	Finalize(step *Step) error
	// EnumerateRuns produces the concrete runs for this step given its
	// upstream bindings. Called once, lazily, after the whole graph is
	// finalized, and the result is cached by RunEnumerator.
	EnumerateRuns(step *Step, ctx EnumerateContext) ([]*Run, error)
}

// StepFactory constructs a fresh StepContract for a step instance.
type StepFactory func() StepContract

var registry = map[string]StepFactory{}

// RegisterStepFactory registers a module class under a name. Panics on
// duplicate registration, matching the explicit-registration-at-init
// discipline called for in place of dynamic module discovery.
func RegisterStepFactory(moduleClass string, factory StepFactory) {
	if _, exists := registry[moduleClass]; exists {
		panic("model: duplicate step factory registration for " + moduleClass)
	}
	registry[moduleClass] = factory
}

// LookupStepFactory returns the registered factory for a module class.
func LookupStepFactory(moduleClass string) (StepFactory, bool) {
	f, ok := registry[moduleClass]
	return f, ok
}

// RegisteredModuleClasses returns the known module class names, for
// diagnostics and config validation.
func RegisteredModuleClasses() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
