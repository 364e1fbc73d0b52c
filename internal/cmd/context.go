package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/signals"
)

// contextWithSignals returns a context cancelled when the process
// receives an interrupt, so a running orchestrator stops admitting new
// tasks. Local children that are already running are not signalled
// through it.
func contextWithSignals(cmd *cobra.Command, watcher *signals.Watcher) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	watcher.AddOnClose(cancel)
	return ctx, cancel
}
