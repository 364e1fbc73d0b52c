package process

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/logstreamer"
	"github.com/labflow/flowctl/internal/model"
)

// CommandResult is the process accounting the executor records for one
// child: resolved program, argv, timing, exit status, resource usage,
// and both streams' captures.
type CommandResult struct {
	Program string
	Args    []string
	Dir     string
	Start   time.Time
	End     time.Time
	Exit    ExitInfo
	Usage   Usage
	Stdout  StreamCapture
	Stderr  StreamCapture
}

// Failed reports whether this command's result should fail its group.
func (r *CommandResult) Failed() bool {
	if r.Exit.Signaled {
		return true
	}
	if r.Exit.ExitCode != 0 {
		return true
	}
	if r.Stdout.Err != nil || r.Stderr.Err != nil {
		return true
	}
	return false
}

// GroupResult accumulates the CommandResults of one ExecGroup, in the
// order its items were executed.
type GroupResult struct {
	Commands []CommandResult
}

// Executor runs ExecGroups of commands and pipelines with stream
// capture, accounting, and coordinated teardown, per §4.7.
type Executor struct {
	logger  hclog.Logger
	Verbose bool
}

// NewExecutor returns an Executor that logs under the given logger.
func NewExecutor(logger hclog.Logger) *Executor {
	return &Executor{logger: logger.Named("process")}
}

// liveWriter returns a line-prefixed echo of a command's stream when
// Verbose is set, so `run -v` users see child output as it happens
// instead of only in the task's annotation after the fact.
func (e *Executor) liveWriter(kind StreamKind) io.Writer {
	if !e.Verbose {
		return nil
	}
	std := e.logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: false})
	return logstreamer.NewLogstreamer(log.New(std.Writer(), "", 0), string(kind), false)
}

// teeWriter combines a sink file (if any) with the live echo writer
// (if any) into the single io.Writer teeCopy expects.
func (e *Executor) teeWriter(sink *os.File, kind StreamKind) io.Writer {
	live := e.liveWriter(kind)
	f := fileWriter(sink)
	switch {
	case f != nil && live != nil:
		return io.MultiWriter(f, live)
	case f != nil:
		return f
	default:
		return live
	}
}

// RunExecGroup runs every item of group strictly sequentially, stopping
// at the first failing item. tempDir is the task's scratch directory;
// relative sink paths and command working directories are resolved
// against it. ctx is not consulted: cancelling it does not interrupt a
// running command or pipeline.
func (e *Executor) RunExecGroup(ctx context.Context, group *model.ExecGroup, tempDir string) (*GroupResult, error) {
	result := &GroupResult{}
	for _, item := range group.Items {
		switch {
		case item.Command != nil:
			cr, err := e.runSingle(ctx, item.Command, tempDir)
			result.Commands = append(result.Commands, cr)
			if err != nil {
				return result, errors.Wrapf(err, "exec group %s", group.Name)
			}
		case item.Pipeline != nil:
			crs, err := e.runPipeline(ctx, item.Pipeline, tempDir)
			result.Commands = append(result.Commands, crs...)
			if err != nil {
				return result, errors.Wrapf(err, "exec group %s", group.Name)
			}
		}
	}
	return result, nil
}

func (e *Executor) runSingle(ctx context.Context, c *model.Command, tempDir string) (CommandResult, error) {
	mgr := NewManager(e.logger)
	cmd := e.buildCmd(c, tempDir)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return CommandResult{}, errors.Wrap(err, "stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return CommandResult{}, errors.Wrap(err, "stderr pipe")
	}

	var sinkOut, sinkErr *os.File
	if c.SinkPath != "" {
		sinkOut, err = os.Create(resolvePath(tempDir, c.SinkPath))
		if err != nil {
			return CommandResult{}, errors.Wrap(err, "creating stdout sink")
		}
		defer sinkOut.Close()
	}
	if c.CaptureStderrSink != "" {
		sinkErr, err = os.Create(resolvePath(tempDir, c.CaptureStderrSink))
		if err != nil {
			return CommandResult{}, errors.Wrap(err, "creating stderr sink")
		}
		defer sinkErr.Close()
	}

	start := time.Now()
	child, err := mgr.Spawn(cmd)
	if err != nil {
		return CommandResult{}, errors.Wrap(err, "spawning child")
	}

	var wg sync.WaitGroup
	var outCap, errCap StreamCapture
	wg.Add(2)
	go func() {
		defer wg.Done()
		outCap = teeCopy(Stdout, stdoutPipe, e.teeWriter(sinkOut, Stdout), nil)
	}()
	go func() {
		defer wg.Done()
		errCap = teeCopy(Stderr, stderrPipe, e.teeWriter(sinkErr, Stderr), nil)
	}()

	exitCode, ok := <-child.ExitCh()
	wg.Wait()
	mgr.Forget(child)
	end := time.Now()

	state := child.ProcessState()
	result := CommandResult{
		Program: c.Program,
		Args:    c.Args,
		Dir:     cmd.Dir,
		Start:   start,
		End:     end,
		Exit:    exitInfoFromProcessState(state),
		Usage:   usageFromProcessState(state),
		Stdout:  outCap,
		Stderr:  errCap,
	}
	if !ok {
		result.Exit = ExitInfo{ExitCode: ExitCodeError}
	} else if result.Exit.ExitCode == 0 && exitCode != ExitCodeOK && !result.Exit.Signaled {
		result.Exit.ExitCode = exitCode
	}

	if result.Failed() {
		return result, errors.Errorf("%s: %s", cmd.Path, exitSummary(result.Exit))
	}
	return result, nil
}

// runPipeline runs an ordered list of commands concurrently, chaining
// command i's stdout into command i+1's stdin via the pipes os/exec
// itself manages, and tearing every sibling down on the first failure.
func (e *Executor) runPipeline(ctx context.Context, p *model.Pipeline, tempDir string) ([]CommandResult, error) {
	n := len(p.Commands)
	mgr := NewManager(e.logger)

	cmds := make([]*exec.Cmd, n)
	for i, c := range p.Commands {
		cmds[i] = e.buildCmd(c, tempDir)
	}

	stdoutPipes := make([]io.Reader, n)
	stderrPipes := make([]io.Reader, n)
	stdinWriters := make([]io.WriteCloser, n)

	for i := 0; i < n; i++ {
		sp, err := cmds[i].StdoutPipe()
		if err != nil {
			return nil, errors.Wrap(err, "stdout pipe")
		}
		stdoutPipes[i] = sp
		ep, err := cmds[i].StderrPipe()
		if err != nil {
			return nil, errors.Wrap(err, "stderr pipe")
		}
		stderrPipes[i] = ep
		if i > 0 {
			wp, err := cmds[i].StdinPipe()
			if err != nil {
				return nil, errors.Wrap(err, "stdin pipe")
			}
			stdinWriters[i] = wp
		}
	}

	sinkOuts := make([]*os.File, n)
	sinkErrs := make([]*os.File, n)
	for i, c := range p.Commands {
		if c.SinkPath != "" {
			f, err := os.Create(resolvePath(tempDir, c.SinkPath))
			if err != nil {
				return nil, errors.Wrap(err, "creating stdout sink")
			}
			sinkOuts[i] = f
			defer f.Close()
		}
		if c.CaptureStderrSink != "" {
			f, err := os.Create(resolvePath(tempDir, c.CaptureStderrSink))
			if err != nil {
				return nil, errors.Wrap(err, "creating stderr sink")
			}
			sinkErrs[i] = f
			defer f.Close()
		}
	}

	children := make([]*Child, n)
	starts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		starts[i] = time.Now()
		child, err := mgr.Spawn(cmds[i])
		if err != nil {
			mgr.Close()
			return nil, errors.Wrapf(err, "spawning command %d of pipeline", i)
		}
		children[i] = child
	}

	results := make([]CommandResult, n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := false

	for i := 0; i < n; i++ {
		i := i
		var downstream io.Writer
		if i+1 < n {
			downstream = stdinWriters[i+1]
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[i].Stdout = teeCopy(Stdout, stdoutPipes[i], e.teeWriter(sinkOuts[i], Stdout), downstream)
			if i+1 < n {
				stdinWriters[i+1].Close()
			}
		}()
		go func() {
			defer wg.Done()
			results[i].Stderr = teeCopy(Stderr, stderrPipes[i], e.teeWriter(sinkErrs[i], Stderr), nil)
		}()
	}

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			exitCode, ok := <-children[i].ExitCh()
			state := children[i].ProcessState()
			mu.Lock()
			results[i].Program = p.Commands[i].Program
			results[i].Args = p.Commands[i].Args
			results[i].Dir = cmds[i].Dir
			results[i].Start = starts[i]
			results[i].End = time.Now()
			results[i].Exit = exitInfoFromProcessState(state)
			results[i].Usage = usageFromProcessState(state)
			if !ok {
				results[i].Exit = ExitInfo{ExitCode: ExitCodeError}
			} else if results[i].Exit.ExitCode == 0 && exitCode != ExitCodeOK && !results[i].Exit.Signaled {
				results[i].Exit.ExitCode = exitCode
			}
			shouldTeardown := results[i].Exit.ExitCode != 0 || results[i].Exit.Signaled
			if shouldTeardown {
				failed = true
			}
			mu.Unlock()
			mgr.Forget(children[i])
			if shouldTeardown {
				mgr.Close()
			}
		}()
	}

	wg.Wait()

	var multi *multierror.Error
	for i := range results {
		if results[i].Failed() {
			failed = true
			multi = multierror.Append(multi, errors.Errorf("command %d (%s): %s", i, results[i].Program, exitSummary(results[i].Exit)))
		}
	}
	if failed {
		if multi == nil {
			multi = multierror.Append(multi, errors.New("pipeline failed"))
		}
		return results, multi
	}
	return results, nil
}

func (e *Executor) buildCmd(c *model.Command, tempDir string) *exec.Cmd {
	cmd := exec.Command(c.Program, c.Args...)
	cmd.Dir = tempDir
	if c.Dir != "" {
		cmd.Dir = resolvePath(tempDir, c.Dir)
	}
	if len(c.Env) > 0 {
		env := os.Environ()
		for k, v := range c.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func fileWriter(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}

func exitSummary(info ExitInfo) string {
	if info.Signaled {
		if info.SignalName != "" {
			return "received " + info.SignalName
		}
		return "received a signal"
	}
	return "exited " + strconv.Itoa(info.ExitCode)
}
