package depindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

func runWith(stepName, runID string, outputs map[string][]string, outputInputs map[string]util.Set[string]) *model.Run {
	return &model.Run{
		Step:         &model.Step{Name: stepName},
		RunID:        runID,
		Outputs:      outputs,
		OutputInputs: outputInputs,
		ExecGroups:   []*model.ExecGroup{{Name: "main"}},
	}
}

func TestAddRunBuildsInvertedMaps(t *testing.T) {
	idx := New()

	upstream := runWith("align", "sample1", map[string][]string{"out/bam": {"sample1.bam"}}, nil)
	require.NoError(t, idx.AddRun(upstream))

	downstream := runWith("call", "sample1",
		map[string][]string{"out/vcf": {"sample1.vcf"}},
		map[string]util.Set[string]{"sample1.vcf": util.SetFrom([]string{"sample1.bam"})},
	)
	require.NoError(t, idx.AddRun(downstream))

	producer, ok := idx.Producer("sample1.bam")
	require.True(t, ok)
	require.Equal(t, "align#sample1", producer)

	consumers := idx.Consumers("sample1.bam")
	require.True(t, consumers.Includes("call#sample1"))

	parents := idx.Parents("call#sample1")
	require.True(t, parents.Includes("align#sample1"))
	require.Equal(t, 1, parents.Len())
}

func TestAddRunDuplicateOutputIsFatal(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddRun(runWith("a", "x", map[string][]string{"out/f": {"shared.txt"}}, nil)))
	err := idx.AddRun(runWith("b", "y", map[string][]string{"out/f": {"shared.txt"}}, nil))
	require.Error(t, err)
}

func TestAddRunSkipsNonExecutableRuns(t *testing.T) {
	idx := New()
	r := &model.Run{Step: &model.Step{Name: "noop"}, RunID: "r1"}
	require.NoError(t, idx.AddRun(r))
	_, ok := idx.Task("noop#r1")
	require.False(t, ok)
}
