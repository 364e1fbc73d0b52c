package cmd

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/fingerprint"
	"github.com/labflow/flowctl/internal/liveness"
	"github.com/labflow/flowctl/internal/orchestrator"
	"github.com/labflow/flowctl/internal/process"
	"github.com/labflow/flowctl/internal/runenum"
	"github.com/labflow/flowctl/internal/spinner"
	"github.com/labflow/flowctl/internal/stepgraph"
	"github.com/labflow/flowctl/internal/taskstate"
	"github.com/labflow/flowctl/internal/toolregistry"
	"github.com/labflow/flowctl/internal/util"
)

// app bundles the fully-wired components every subcommand operates
// over: the dependency index, the state machine, the liveness
// protocol, and the orchestrator.
type app struct {
	base  *cmdutil.CmdBase
	idx   *depindex.Index
	live  *liveness.Protocol
	state *taskstate.Machine
	orch  *orchestrator.Orchestrator
	lock  lockfile.Lockfile
}

func (a *app) taskDir(taskID string) string {
	step, run, err := util.SplitTaskID(taskID)
	if err != nil {
		return filepath.Join(a.base.Config.DestinationPath, taskID)
	}
	return filepath.Join(a.base.Config.DestinationPath, step, run)
}

// Close releases the destination's driver lock, acquired by buildApp.
func (a *app) Close() {
	if a.lock != "" {
		_ = a.lock.Unlock()
	}
}

// acquireLock ensures only one flowctl invocation operates on a given
// destination at a time, so two concurrent `run`s can't race writing
// the same task's ping files.
func acquireLock(destinationPath string) (lockfile.Lockfile, error) {
	if err := os.MkdirAll(destinationPath, 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filepath.Join(destinationPath, ".flowctl.lock"))
	if err != nil {
		return "", err
	}
	lock, err := lockfile.New(abs)
	if err != nil {
		return "", err
	}
	if err := lock.TryLock(); err != nil {
		return "", err
	}
	return lock, nil
}

// buildApp takes the pipeline config already loaded into base, checks
// tools, builds the step graph, enumerates runs, and constructs the dependency index and
// task state machine shared by every subcommand.
func buildApp(ctx context.Context, base *cmdutil.CmdBase) (*app, error) {
	var reg *toolregistry.Registry
	var checkErr error
	spinErr := spinner.WaitFor(ctx, func() {
		reg, checkErr = toolregistry.Check(ctx, base.Logger, base.Config.Tools, nil)
	}, base.UI, "checking tool versions", 2*time.Second)
	if spinErr != nil {
		return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: spinErr}
	}
	if checkErr != nil {
		return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: checkErr}
	}

	graph, err := stepgraph.Build(base.Config)
	if err != nil {
		return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
	}

	enumerated, err := runenum.Enumerate(graph, nil)
	if err != nil {
		return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
	}

	idx := depindex.New()
	for _, run := range enumerated.All {
		if err := idx.AddRun(run); err != nil {
			return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
		}
	}

	lock, err := acquireLock(base.Config.DestinationPath)
	if err != nil {
		return nil, &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
	}

	live := liveness.New()

	a := &app{base: base, idx: idx, live: live, lock: lock}

	states := taskstate.New(idx, live, a.taskDir, nil)
	states.SetFingerprint(func(taskID string) (string, error) {
		fp, _, err := fingerprint.Compute(idx, reg, taskID)
		return fp, err
	})
	executor := process.NewExecutor(base.Logger)
	executor.Verbose = base.Verbosity > 0
	a.state = states
	a.orch = orchestrator.New(idx, states, live, executor, a.taskDir, base.Logger)
	a.orch.SetToolRegistry(reg)

	if hash, err := config.Hash(base.Config); err != nil {
		base.LogWarning("config-hash", err)
	} else {
		a.orch.SetConfigHash(hash)
	}

	return a, nil
}

// configureCluster resolves the cluster type (probing identity_test
// commands for "auto") and switches the orchestrator to cluster mode.
func configureCluster(a *app, tablePath string) error {
	table, err := config.LoadClusterCommandTable(tablePath)
	if err != nil {
		return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
	}

	resolved, err := config.SelectClusterType(a.base.Config.Cluster.Type, table, probeIdentity)
	if err != nil {
		return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
	}

	a.orch.ConfigureCluster(resolved, table, a.base.Config.Cluster.DefaultJobQuota)
	return nil
}

func probeIdentity(argv []string) (string, error) {
	out, err := exec.Command(argv[0], argv[1:]...).Output()
	return string(out), err
}
