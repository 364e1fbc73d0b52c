// Package toolregistry verifies presence and version of external tools
// and caches the per-tool fingerprint used in task version fingerprints.
package toolregistry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/labflow/flowctl/internal/config"
)

// IgnoredVersionFingerprint is the constant sentinel fingerprint used
// for tools that opted out of version tracking, so drift in their
// response text never invalidates a task's version fingerprint.
const IgnoredVersionFingerprint = "ignored-version"

// DefaultParallelism is the bounded worker-pool size used when checking
// every tool's presence and version concurrently.
const DefaultParallelism = 4

// Result is what a single tool check produces.
type Result struct {
	ID            string
	ResolvedPath  string
	ResponseText  string
	ExitCode      int
	CommandString string
	Fingerprint   string
}

// Error is a ToolError per the §7 taxonomy: missing binary, version
// mismatch, or non-zero exit on the version probe.
type Error struct {
	ToolID string
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %q: %s", e.ToolID, e.Msg)
}

// Registry holds the checked results for every configured tool.
type Registry struct {
	logger  hclog.Logger
	results map[string]Result
}

// Check runs the version probe for every tool in tools with bounded
// parallelism (default 4), failing the entire set with a structured
// multierror on any mismatch. run is the process-execution hook,
// injected so callers can route through internal/process for session
// isolation and logging; a nil run defaults to a direct os/exec call.
func Check(ctx context.Context, logger hclog.Logger, tools map[string]config.Tool, run RunFunc) (*Registry, error) {
	if run == nil {
		run = defaultRun
	}
	logger = logger.Named("tools")

	reg := &Registry{logger: logger, results: make(map[string]Result, len(tools))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultParallelism)

	var mu sync.Mutex
	var merr *multierror.Error

	for id, tool := range tools {
		id, tool := id, tool
		g.Go(func() error {
			res, err := checkOne(gctx, logger, id, tool, run)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr = multierror.Append(merr, err)
				return nil // keep checking the rest; caller ignores interrupt mid-set
			}
			reg.results[id] = res
			return nil
		})
	}
	// errgroup.Wait's own error is unused: failures are accumulated into
	// merr so every tool's failure is reported, not just the first.
	_ = g.Wait()

	if merr != nil {
		return nil, merr.ErrorOrNil()
	}
	return reg, nil
}

func checkOne(ctx context.Context, logger hclog.Logger, id string, tool config.Tool, run RunFunc) (Result, error) {
	if len(tool.PreCommand) > 0 {
		if _, _, err := run(ctx, tool.PreCommand[0], tool.PreCommand[1:]); err != nil {
			return Result{}, &Error{ToolID: id, Msg: fmt.Sprintf("pre-command failed: %v", err)}
		}
	}

	program := tool.Path[0]
	args := append(append([]string{}, tool.Path[1:]...), tool.GetVersion...)

	stdout, exitCode, err := run(ctx, program, args)
	if err != nil && exitCode == 0 {
		return Result{}, &Error{ToolID: id, Msg: fmt.Sprintf("failed to execute: %v", err)}
	}
	if exitCode != tool.ExitCode {
		return Result{}, &Error{ToolID: id, Msg: fmt.Sprintf("expected exit code %d, got %d", tool.ExitCode, exitCode)}
	}

	if len(tool.PostCommand) > 0 {
		if _, _, err := run(ctx, tool.PostCommand[0], tool.PostCommand[1:]); err != nil {
			return Result{}, &Error{ToolID: id, Msg: fmt.Sprintf("post-command failed: %v", err)}
		}
	}

	fingerprint := IgnoredVersionFingerprint
	if !tool.IgnoreVersion {
		sum := sha256.Sum256([]byte(stdout))
		fingerprint = hex.EncodeToString(sum[:])
	}

	logger.Debug("checked tool", "id", id, "fingerprint", fingerprint)

	return Result{
		ID:            id,
		ResolvedPath:  program,
		ResponseText:  stdout,
		ExitCode:      exitCode,
		CommandString: fmt.Sprintf("%s %v", program, args),
		Fingerprint:   fingerprint,
	}, nil
}

// Fingerprint returns the recorded fingerprint for a tool, or the empty
// string if it was never checked.
func (r *Registry) Fingerprint(id string) string {
	return r.results[id].Fingerprint
}

// Result returns the full check result for a tool.
func (r *Registry) Result(id string) (Result, bool) {
	res, ok := r.results[id]
	return res, ok
}

// ToolFingerprints returns the checked fingerprint for each of ids,
// keyed by tool id, for feeding into a task's version fingerprint.
func (r *Registry) ToolFingerprints(ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = r.Fingerprint(id)
	}
	return out
}

// RunFunc executes program with args and returns combined stdout+stderr
// and the exit code. It is the seam through which a caller can replace
// how tool checks are executed; Check uses a direct os/exec call when
// none is given.
type RunFunc func(ctx context.Context, program string, args []string) (output string, exitCode int, err error)

func defaultRun(ctx context.Context, program string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return buf.String(), 0, err
		}
	}
	return buf.String(), exitCode, nil
}
