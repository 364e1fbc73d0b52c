package volatility

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

func TestWriteReadPlaceholderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bam")
	require.NoError(t, os.WriteFile(path, []byte("original bytes"), 0o644))

	require.NoError(t, Write(path, Placeholder{OriginalSize: 14, OriginalHash: "deadbeef"}))

	p, ok, err := Read(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 14, p.OriginalSize)
	require.Equal(t, "deadbeef", p.OriginalHash)
}

func TestReadRejectsNonPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bam")
	require.NoError(t, os.WriteFile(path, []byte("genuine small artifact"), 0o644))

	_, ok, err := Read(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanSelectsOnlyFullyConsumedArtifacts(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "sample.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	idx := depindex.New()
	producer := &model.Run{
		Step:         &model.Step{Name: "align"},
		RunID:        "s1",
		Outputs:      map[string][]string{"out/bam": {outPath}},
		OutputInputs: nil,
		ExecGroups:   []*model.ExecGroup{{}},
	}
	consumer := &model.Run{
		Step:  &model.Step{Name: "call"},
		RunID: "s1",
		Outputs: map[string][]string{"out/vcf": {filepath.Join(dir, "sample.vcf")}},
		OutputInputs: map[string]util.Set[string]{
			filepath.Join(dir, "sample.vcf"): util.SetFrom([]string{outPath}),
		},
		ExecGroups: []*model.ExecGroup{{}},
	}
	require.NoError(t, idx.AddRun(producer))
	require.NoError(t, idx.AddRun(consumer))

	states := map[string]model.TaskState{
		"align#s1": model.StateFinished,
		"call#s1":  model.StateFinished,
	}
	lookup := func(id string) model.TaskState { return states[id] }

	candidates, err := Plan(idx, lookup)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, outPath, candidates[0].Path)

	require.Equal(t, int64(4), TotalBytes(candidates))
}

func TestStepTotalsGroupsByProducingStep(t *testing.T) {
	candidates := []Candidate{
		{Path: "a.bam", ProducerID: "align#s1", Size: 10},
		{Path: "b.bam", ProducerID: "align#s2", Size: 20},
		{Path: "c.vcf", ProducerID: "call#s1", Size: 5},
	}

	totals := StepTotals(candidates)
	require.Equal(t, map[string]int64{"align": 30, "call": 5}, totals)
}

func TestPlanExcludesArtifactsWithUnfinishedConsumer(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "sample.bam")
	require.NoError(t, os.WriteFile(outPath, []byte("data"), 0o644))

	idx := depindex.New()
	producer := &model.Run{
		Step:       &model.Step{Name: "align"},
		RunID:      "s1",
		Outputs:    map[string][]string{"out/bam": {outPath}},
		ExecGroups: []*model.ExecGroup{{}},
	}
	consumer := &model.Run{
		Step:    &model.Step{Name: "call"},
		RunID:   "s1",
		Outputs: map[string][]string{"out/vcf": {filepath.Join(dir, "sample.vcf")}},
		OutputInputs: map[string]util.Set[string]{
			filepath.Join(dir, "sample.vcf"): util.SetFrom([]string{outPath}),
		},
		ExecGroups: []*model.ExecGroup{{}},
	}
	require.NoError(t, idx.AddRun(producer))
	require.NoError(t, idx.AddRun(consumer))

	states := map[string]model.TaskState{
		"align#s1": model.StateFinished,
		"call#s1":  model.StateExecuting,
	}
	lookup := func(id string) model.TaskState { return states[id] }

	candidates, err := Plan(idx, lookup)
	require.NoError(t, err)
	require.Empty(t, candidates)
}
