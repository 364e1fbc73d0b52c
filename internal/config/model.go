package config

// Model is the parsed, normalized, validated pipeline description:
// steps, tools, destination, cluster, constants. ConfigModel (C2).
type Model struct {
	ID                   string
	DestinationPath      string
	BaseWorkingDirectory string
	Constants            map[string]interface{}
	Cluster              Cluster
	Notify               string
	Lmod                 Lmod
	Tools                map[string]Tool
	Steps                map[string]Step // keyed by instance name
}

// Lmod carries the environment-module loader defaults. Falls back to the
// LMOD_CMD / MODULEPATH environment variables when not set in the
// document, per §6 "Environment".
type Lmod struct {
	Cmd        string
	ModulePath []string
}

// Tool is one entry of the top-level `tools` map.
type Tool struct {
	ID            string
	Path          []string // argv; a bare string normalizes to a 1-element slice
	GetVersion    []string // argv fragment appended to Path to probe version
	ExitCode      int
	IgnoreVersion bool
	ModuleName    string
	ModuleLoad    []string
	ModuleUnload  []string
	PreCommand    []string
	PostCommand   []string
}

// Cluster holds the `cluster` top-level key: selection of a cluster
// type plus the command table used to submit/stat/identify it.
type Cluster struct {
	Type            string // a command-table key, or "auto"
	DefaultJobQuota int
	Commands        map[string]ClusterCommands
}

// ClusterCommands is one entry of the cluster command table document
// (§6 "Cluster command table").
type ClusterCommands struct {
	IdentityTest   []string
	IdentityAnswer []string
	Stat           []string
	Submit         []string // argv with "%s" placeholders
	DefaultOptions string
}

// Step is one entry of the top-level `steps` map, prior to StepGraph
// constructing a model.Step from it.
type Step struct {
	Key           string // the raw config key, e.g. "align (bowtie2)"
	Name          string
	ModuleClass   string
	DependsOn     []string
	RequiredTools []string
	CoresHint     int
	Options       map[string]interface{}
}

// reservedStepNames holds names a step instance may not use.
var reservedStepNames = map[string]bool{
	"temp": true,
}
