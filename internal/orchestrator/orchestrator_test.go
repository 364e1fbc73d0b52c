package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/annotation"
	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/liveness"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/process"
	"github.com/labflow/flowctl/internal/taskstate"
	"github.com/labflow/flowctl/internal/util"
)

func TestRenderSubmitSubstitutesPlaceholders(t *testing.T) {
	argv := renderSubmit([]string{"qsub", "-o", "%s", "-N", "%s"}, "align#sample1", "-pe smp 4")
	require.Equal(t, []string{"qsub", "-o", "-pe smp 4", "-N", "align#sample1"}, argv)
}

func TestMatchesWishList(t *testing.T) {
	require.True(t, util.HasPrefix("align#sample1", nil))
	require.True(t, util.HasPrefix("align#sample1", []string{"align"}))
	require.False(t, util.HasPrefix("align#sample1", []string{"call"}))
}

func TestRunLocalExecutesAndAnnotates(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	run := &model.Run{
		Step:  &model.Step{Name: "touch"},
		RunID: "r1",
		ExecGroups: []*model.ExecGroup{
			{Name: "main", Items: []model.ExecItem{
				{Command: &model.Command{Program: "true"}},
			}},
		},
	}
	require.NoError(t, idx.AddRun(run))

	taskDir := func(id string) string { return filepath.Join(root, id) }
	live := liveness.New()
	logger := hclog.NewNullLogger()
	states := taskstate.New(idx, live, taskDir, nil)
	executor := process.NewExecutor(logger)

	o := New(idx, states, live, executor, taskDir, logger)
	err := o.runLocal(context.Background(), "touch#r1")
	require.NoError(t, err)

	dir := taskDir("touch#r1")
	_, err = os.Stat(filepath.Join(dir, ".annotation.yaml"))
	require.NoError(t, err)

	ann, err := annotation.Read(dir)
	require.NoError(t, err)
	require.NotNil(t, ann)
	require.False(t, ann.Failed)
	require.NotEmpty(t, ann.VersionFingerprint, "fingerprint should be computed even with no required tools")
	require.Empty(t, ann.OutputTags)
}

func TestRunLocalWritesAnnotationOnFailure(t *testing.T) {
	root := t.TempDir()
	idx := depindex.New()

	run := &model.Run{
		Step:  &model.Step{Name: "fail"},
		RunID: "r1",
		ExecGroups: []*model.ExecGroup{
			{Name: "main", Items: []model.ExecItem{
				{Command: &model.Command{Program: "false"}},
			}},
		},
	}
	require.NoError(t, idx.AddRun(run))

	taskDir := func(id string) string { return filepath.Join(root, id) }
	live := liveness.New()
	logger := hclog.NewNullLogger()
	states := taskstate.New(idx, live, taskDir, nil)
	executor := process.NewExecutor(logger)

	o := New(idx, states, live, executor, taskDir, logger)
	err := o.runLocal(context.Background(), "fail#r1")
	require.Error(t, err)

	dir := taskDir("fail#r1")
	ann, readErr := annotation.Read(dir)
	require.NoError(t, readErr)
	require.NotNil(t, ann, "a failing task must still persist an annotation with the failing command's accounting")
	require.True(t, ann.Failed)
	require.NotEmpty(t, ann.FailureError)
	require.NotEmpty(t, ann.Commands, "the failing command's record, including its stream tail, must survive")
}
