package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

func newStatusCmd(helper *cmdutil.Helper) *cobra.Command {
	var details bool
	c := &cobra.Command{
		Use:   "status [task-id...]",
		Short: "Print the state of every matching task",
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

			all := make([]string, 0, len(a.idx.Tasks()))
			for id := range a.idx.Tasks() {
				all = append(all, id)
			}
			sort.Strings(all)

			for _, id := range all {
				state := a.state.State(id)
				colored := util.Sprintf("${%s}%s${RESET}", stateColor(state), state)
				if details {
					fmt.Printf("%s\t%s\tinputs=%d outputs=%d\n", id, colored, a.idx.Inputs(id).Len(), a.idx.Outputs(id).Len())
				} else {
					fmt.Printf("%s\t%s\n", id, colored)
				}
			}

			return nil
		},
	}
	c.Flags().BoolVar(&details, "details", false, "print per-task input/output counts")
	return c
}

// stateColor maps a task state to the pseudo-shell color variable
// util.Sprintf expands, green for terminal states and red for BAD.
func stateColor(state model.TaskState) string {
	switch state {
	case model.StateFinished, model.StateVolatilized:
		return "GREEN"
	case model.StateBad:
		return "RED"
	case model.StateExecuting, model.StateQueued:
		return "CYAN"
	case model.StateChanged:
		return "YELLOW"
	default:
		return "GREY"
	}
}
