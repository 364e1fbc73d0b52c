package taskstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/annotation"
	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/liveness"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

func setup(t *testing.T) (*depindex.Index, func(string) string, string) {
	t.Helper()
	root := t.TempDir()
	idx := depindex.New()
	taskDir := func(taskID string) string {
		return filepath.Join(root, taskID)
	}
	return idx, taskDir, root
}

func TestReadyWhenNoParentsAndNoOutputs(t *testing.T) {
	idx, taskDir, _ := setup(t)
	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	m := New(idx, liveness.New(), taskDir, nil)
	require.Equal(t, model.StateReady, m.State("align#s1"))
}

func TestWaitingWhenParentNotTerminal(t *testing.T) {
	idx, taskDir, root := setup(t)

	parentOut := filepath.Join(root, "parent.out")
	parent := &model.Run{Step: &model.Step{Name: "a"}, RunID: "s1", Outputs: map[string][]string{"out/x": {parentOut}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(parent))

	childOut := filepath.Join(root, "child.out")
	child := &model.Run{
		Step:    &model.Step{Name: "b"},
		RunID:   "s1",
		Outputs: map[string][]string{"out/y": {childOut}},
		OutputInputs: map[string]util.Set[string]{
			childOut: util.SetFrom([]string{parentOut}),
		},
		ExecGroups: []*model.ExecGroup{{}},
	}
	require.NoError(t, idx.AddRun(child))

	m := New(idx, liveness.New(), taskDir, nil)
	// parent has no annotation and no output on disk, so it isn't terminal yet.
	require.Equal(t, model.StateWaiting, m.State("b#s1"))
}

func TestFinishedWhenOutputsPresentAndAnnotated(t *testing.T) {
	idx, taskDir, root := setup(t)

	outPath := filepath.Join(root, "out.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", Outputs: map[string][]string{"out/bam": {outPath}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	require.NoError(t, annotation.Write(taskDir("align#s1"), annotation.Annotation{TaskID: "align#s1"}))

	m := New(idx, liveness.New(), taskDir, nil)
	require.Equal(t, model.StateFinished, m.State("align#s1"))
}

func TestChangedWhenRecomputedFingerprintMismatches(t *testing.T) {
	idx, taskDir, root := setup(t)

	outPath := filepath.Join(root, "out.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", Outputs: map[string][]string{"out/bam": {outPath}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	require.NoError(t, annotation.Write(taskDir("align#s1"), annotation.Annotation{
		TaskID:             "align#s1",
		VersionFingerprint: "stale-fingerprint",
	}))

	m := New(idx, liveness.New(), taskDir, nil)
	m.SetFingerprint(func(taskID string) (string, error) { return "current-fingerprint", nil })
	require.Equal(t, model.StateChanged, m.State("align#s1"))
}

func TestFinishedWhenRecomputedFingerprintMatches(t *testing.T) {
	idx, taskDir, root := setup(t)

	outPath := filepath.Join(root, "out.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", Outputs: map[string][]string{"out/bam": {outPath}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	require.NoError(t, annotation.Write(taskDir("align#s1"), annotation.Annotation{
		TaskID:             "align#s1",
		VersionFingerprint: "same-fingerprint",
	}))

	m := New(idx, liveness.New(), taskDir, nil)
	m.SetFingerprint(func(taskID string) (string, error) { return "same-fingerprint", nil })
	require.Equal(t, model.StateFinished, m.State("align#s1"))
}

func TestChangedWhenAnnotationMarkedFailed(t *testing.T) {
	idx, taskDir, root := setup(t)

	outPath := filepath.Join(root, "out.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", Outputs: map[string][]string{"out/bam": {outPath}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	require.NoError(t, annotation.Write(taskDir("align#s1"), annotation.Annotation{
		TaskID: "align#s1",
		Failed: true,
	}))

	m := New(idx, liveness.New(), taskDir, nil)
	require.Equal(t, model.StateChanged, m.State("align#s1"))
}

func TestExecutingWithFreshHeartbeat(t *testing.T) {
	idx, taskDir, _ := setup(t)
	run := &model.Run{Step: &model.Step{Name: "align"}, RunID: "s1", Outputs: map[string][]string{"out/bam": {"/nonexistent"}}, ExecGroups: []*model.ExecGroup{{}}}
	require.NoError(t, idx.AddRun(run))

	live := liveness.New()
	require.NoError(t, live.WriteExecuting(taskDir("align#s1"), "align#s1", liveness.Executing{PID: 1}))

	m := New(idx, live, taskDir, nil)
	require.Equal(t, model.StateExecuting, m.State("align#s1"))
}
