package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/signals"
)

func TestStateColor(t *testing.T) {
	cases := map[model.TaskState]string{
		model.StateFinished:    "GREEN",
		model.StateVolatilized: "GREEN",
		model.StateBad:         "RED",
		model.StateExecuting:   "CYAN",
		model.StateQueued:      "CYAN",
		model.StateChanged:     "YELLOW",
		model.StateReady:       "GREY",
	}
	for state, want := range cases {
		require.Equal(t, want, stateColor(state), "state %s", state)
	}
}

func TestAcquireLockExclusive(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireLock(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, ".flowctl.lock"))

	_, err = acquireLock(dir)
	require.Error(t, err, "a second lock on the same destination should fail while the first is held")

	require.NoError(t, lock.Unlock())

	again, err := acquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestAcquireLockCreatesDestination(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "nested", "dest")

	lock, err := acquireLock(dest)
	require.NoError(t, err)
	defer lock.Unlock()

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestAppCloseIsSafeWithoutLock(t *testing.T) {
	a := &app{}
	require.NotPanics(t, func() { a.Close() })
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, ExitOK, exitCodeFor(nil))
	require.Equal(t, ExitExecutionError, exitCodeFor(errors.New("boom")))
	require.Equal(t, ExitConfigError, exitCodeFor(&cmdutil.Error{ExitCode: ExitConfigError, Err: errors.New("bad config")}))
	require.Equal(t, ExitExecutionError, exitCodeFor(&cmdutil.Error{ExitCode: ExitExecutionError, Err: errors.New("task failed")}))
}

func TestGetCmdRegistersEverySubcommand(t *testing.T) {
	helper := cmdutil.NewHelper("test")
	root := getCmd(helper, signals.NewWatcher())

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{
		"run", "submit-to-cluster", "status", "fix-problems", "volatilize", "report-runs",
	}, names)
}
