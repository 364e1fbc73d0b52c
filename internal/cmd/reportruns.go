package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/util"
)

func newReportRunsCmd(helper *cmdutil.Helper) *cobra.Command {
	c := &cobra.Command{
		Use:   "report-runs",
		Short: "List the run ids enumerated for each source step",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
			}

			a, err := buildApp(context.Background(), base)
			if err != nil {
				return err
			}
			defer a.Close()

			bySteps := map[string][]string{}
			for id, task := range a.idx.Tasks() {
				if len(task.Run.Step.DependsOn) > 0 {
					continue
				}
				bySteps[task.Run.Step.Name] = append(bySteps[task.Run.Step.Name], id)
			}

			steps := make([]string, 0, len(bySteps))
			for name := range bySteps {
				steps = append(steps, name)
			}
			sort.Strings(steps)

			for _, step := range steps {
				ids := bySteps[step]
				sort.Strings(ids)
				fmt.Printf("%s:\n", step)
				for _, id := range ids {
					_, runID, _ := util.SplitTaskID(id)
					fmt.Printf("  %s\n", runID)
				}
			}
			return nil
		},
	}
	return c
}
