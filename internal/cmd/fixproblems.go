package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/model"
)

func newFixProblemsCmd(helper *cmdutil.Helper) *cobra.Command {
	var details, firstError, srsly bool
	c := &cobra.Command{
		Use:   "fix-problems",
		Short: "Report stale or failed ping files, and optionally delete stale executing ones",
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

			var bad []string
			for id := range a.idx.Tasks() {
				if a.state.State(id) == model.StateBad {
					bad = append(bad, id)
				}
			}
			sort.Strings(bad)

			for _, id := range bad {
				dir := a.taskDir(id)
				status, _ := a.live.Read(dir, id)
				switch {
				case status.Bad:
					fmt.Printf("%s\tBAD\tfailed submission (.queued.bad)\n", id)
				case status.Executing != nil && status.Stale:
					fmt.Printf("%s\tBAD\tstale heartbeat (last seen %s)\n", id, status.Heartbeat)
					if srsly {
						if err := a.live.RemoveExecuting(dir, id); err != nil {
							base.LogWarning("fix-problems", err)
						}
					}
				case status.Queued != nil:
					fmt.Printf("%s\tBAD\tqueued job %q missing from cluster stat\n", id, status.Queued.JobID)
				default:
					fmt.Printf("%s\tBAD\tunclassified\n", id)
				}
				if details {
					fmt.Printf("\tinputs=%d outputs=%d\n", a.idx.Inputs(id).Len(), a.idx.Outputs(id).Len())
				}
				if firstError {
					break
				}
			}

			if len(bad) == 0 {
				base.LogInfo("no problems found")
			}
			return nil
		},
	}
	c.Flags().BoolVar(&details, "details", false, "print per-task input/output counts")
	c.Flags().BoolVar(&firstError, "first-error", false, "stop after reporting the first problem")
	c.Flags().BoolVar(&srsly, "srsly", false, "actually delete stale ping files instead of only reporting them")
	return c
}
