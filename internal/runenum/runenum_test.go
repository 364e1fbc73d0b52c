package runenum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/stepgraph"
)

type sourceContract struct{}

func (sourceContract) Finalize(step *model.Step) error {
	step.Connections = []model.Connection{{Name: "out/reads", Dir: model.Out}}
	return nil
}

func (sourceContract) EnumerateRuns(step *model.Step, ctx model.EnumerateContext) ([]*model.Run, error) {
	return []*model.Run{
		{Step: step, RunID: "sample1", Outputs: map[string][]string{"out/reads": {"sample1.fastq"}}},
		{Step: step, RunID: "sample2", Outputs: map[string][]string{"out/reads": {"sample2.fastq"}}},
	}, nil
}

type alignContract struct{}

func (alignContract) Finalize(step *model.Step) error {
	step.Connections = []model.Connection{
		{Name: "in/reads", Dir: model.In},
		{Name: "out/bam", Dir: model.Out},
	}
	return nil
}

func (alignContract) EnumerateRuns(step *model.Step, ctx model.EnumerateContext) ([]*model.Run, error) {
	var runs []*model.Run
	for _, binding := range ctx.Upstreams["in/reads"] {
		runs = append(runs, &model.Run{
			Step:       step,
			RunID:      binding.RunID,
			Outputs:    map[string][]string{"out/bam": {binding.RunID + ".bam"}},
			ExecGroups: []*model.ExecGroup{{Name: "align"}},
		})
	}
	return runs, nil
}

func register(t *testing.T, class string, factory model.StepFactory) {
	t.Helper()
	if _, ok := model.LookupStepFactory(class); ok {
		return
	}
	model.RegisterStepFactory(class, factory)
}

func TestEnumeratePropagatesUpstreamBindings(t *testing.T) {
	register(t, "runenum.source", func() model.StepContract { return sourceContract{} })
	register(t, "runenum.align", func() model.StepContract { return alignContract{} })

	cfg := &config.Model{
		Steps: map[string]config.Step{
			"reads": {Name: "reads", ModuleClass: "runenum.source"},
			"align": {Name: "align", ModuleClass: "runenum.align", DependsOn: []string{"reads"}},
		},
	}
	graph, err := stepgraph.Build(cfg)
	require.NoError(t, err)

	result, err := Enumerate(graph, nil)
	require.NoError(t, err)

	require.Len(t, result.ByStep["reads"], 2)
	require.Len(t, result.ByStep["align"], 2)
	require.Len(t, result.All, 4)
}

type dupContract struct{}

func (dupContract) Finalize(step *model.Step) error { return nil }
func (dupContract) EnumerateRuns(step *model.Step, ctx model.EnumerateContext) ([]*model.Run, error) {
	return []*model.Run{
		{Step: step, RunID: "same"},
		{Step: step, RunID: "same"},
	}, nil
}

func TestEnumerateRejectsDuplicateRunID(t *testing.T) {
	register(t, "runenum.dup", func() model.StepContract { return dupContract{} })

	cfg := &config.Model{
		Steps: map[string]config.Step{
			"s": {Name: "s", ModuleClass: "runenum.dup"},
		},
	}
	graph, err := stepgraph.Build(cfg)
	require.NoError(t, err)

	_, err = Enumerate(graph, nil)
	require.Error(t, err)
}
