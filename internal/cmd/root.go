// Package cmd holds the root cobra command for flowctl and its
// subcommands: run, submit-to-cluster, status, fix-problems,
// volatilize, and report-runs.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/signals"
	"github.com/labflow/flowctl/internal/util"
)

// Exit codes per §6: 0 success, 1 configuration error, 2 execution
// error, 130 interrupt.
const (
	ExitOK            = 0
	ExitConfigError   = 1
	ExitExecutionError = 2
	ExitInterrupted   = 130
)

// RunWithArgs runs flowctl with the given arguments (excluding the
// binary name itself) and returns the process exit code.
func RunWithArgs(args []string, version string) int {
	util.InitPrintf()
	signalWatcher := signals.NewWatcher()
	helper := cmdutil.NewHelper(version)
	root := getCmd(helper, signalWatcher)
	defer helper.Cleanup(root.Flags())
	root.SetArgs(args)

	doneCh := make(chan struct{})
	var execErr error
	go func() {
		execErr = root.Execute()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		signalWatcher.Close()
		return exitCodeFor(execErr)
	case <-signalWatcher.Done():
		return ExitInterrupted
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if ce, ok := err.(*cmdutil.Error); ok {
		return ce.ExitCode
	}
	return ExitExecutionError
}

func getCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	root := &cobra.Command{
		Use:              "flowctl",
		Short:            "Drive a reproducible multi-stage data-processing pipeline",
		TraverseChildren: true,
		Version:          helper.Version,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	helper.AddFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(helper, signalWatcher))
	root.AddCommand(newSubmitToClusterCmd(helper, signalWatcher))
	root.AddCommand(newStatusCmd(helper))
	root.AddCommand(newFixProblemsCmd(helper))
	root.AddCommand(newVolatilizeCmd(helper))
	root.AddCommand(newReportRunsCmd(helper))

	return root
}
