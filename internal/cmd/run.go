package cmd

import (
	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/signals"
	"github.com/labflow/flowctl/internal/util"
)

func newRunCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	concurrency := 10
	c := &cobra.Command{
		Use:   "run [task-id...]",
		Short: "Execute eligible tasks locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
			}

			ctx, cancel := contextWithSignals(cmd, signalWatcher)
			defer cancel()

			a, err := buildApp(ctx, base)
			if err != nil {
				return err
			}
			defer a.Close()
			a.orch.SetConcurrency(concurrency)

			if err := a.orch.Run(ctx, args); err != nil {
				base.LogError("%v", err)
				return &cmdutil.Error{ExitCode: ExitExecutionError, Err: err}
			}

			base.LogInfo("run complete")
			return nil
		},
	}
	c.Flags().Var(&util.ConcurrencyValue{Value: &concurrency}, "concurrency", "max tasks to run at once, as a count or a percentage of CPU cores (e.g. 50%)")
	return c
}

func newSubmitToClusterCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	var tablePath string
	c := &cobra.Command{
		Use:   "submit-to-cluster [task-id...]",
		Short: "Submit eligible tasks to the configured cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
			}

			ctx, cancel := contextWithSignals(cmd, signalWatcher)
			defer cancel()

			a, err := buildApp(ctx, base)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := configureCluster(a, tablePath); err != nil {
				return err
			}

			if err := a.orch.Run(ctx, args); err != nil {
				base.LogError("%v", err)
				return &cmdutil.Error{ExitCode: ExitExecutionError, Err: err}
			}

			base.LogInfo("submission complete")
			return nil
		},
	}
	c.Flags().StringVar(&tablePath, "cluster-table", "cluster.yaml", "path to the cluster command table document")
	return c
}
