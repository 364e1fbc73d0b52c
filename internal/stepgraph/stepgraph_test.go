package stepgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/model"
)

type noopContract struct{}

func (noopContract) Finalize(step *model.Step) error { return nil }
func (noopContract) EnumerateRuns(step *model.Step, ctx model.EnumerateContext) ([]*model.Run, error) {
	return nil, nil
}

func registerNoop(t *testing.T, class string) {
	t.Helper()
	if _, ok := model.LookupStepFactory(class); ok {
		return
	}
	model.RegisterStepFactory(class, func() model.StepContract { return noopContract{} })
}

func TestBuildOrdersByDependency(t *testing.T) {
	registerNoop(t, "test.align")
	registerNoop(t, "test.call")

	cfg := &config.Model{
		Steps: map[string]config.Step{
			"call":  {Name: "call", ModuleClass: "test.call", DependsOn: []string{"align"}},
			"align": {Name: "align", ModuleClass: "test.align"},
		},
	}

	g, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, g.Ordered, 2)
	require.Equal(t, "align", g.Ordered[0].Name)
	require.Equal(t, "call", g.Ordered[1].Name)
}

func TestBuildDetectsCycle(t *testing.T) {
	registerNoop(t, "test.cycle")

	cfg := &config.Model{
		Steps: map[string]config.Step{
			"a": {Name: "a", ModuleClass: "test.cycle", DependsOn: []string{"b"}},
			"b": {Name: "b", ModuleClass: "test.cycle", DependsOn: []string{"a"}},
		},
	}

	_, err := Build(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestBuildNaturalSortTiesAndController(t *testing.T) {
	registerNoop(t, "test.src")
	registerNoop(t, "test.plain")

	cfg := &config.Model{
		Steps: map[string]config.Step{
			"step10": {Name: "step10", ModuleClass: "test.plain"},
			"step2":  {Name: "step2", ModuleClass: "test.plain"},
			"source": {Name: "source", ModuleClass: SourceControllerClass},
		},
	}
	registerNoop(t, SourceControllerClass)

	g, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, "source", g.Ordered[0].Name)
	require.Equal(t, "step2", g.Ordered[1].Name)
	require.Equal(t, "step10", g.Ordered[2].Name)
}

func TestBuildRejectsReservedName(t *testing.T) {
	registerNoop(t, "test.plain")
	cfg := &config.Model{
		Steps: map[string]config.Step{
			"temp": {Name: "temp", ModuleClass: "test.plain"},
		},
	}
	_, err := Build(cfg)
	require.Error(t, err)
}
