package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrClosing is returned when the process manager is in the process of closing,
// meaning that no more child processes can be Exec'd, and existing, non-failed
// child processes will be stopped with this error.
var ErrClosing = errors.New("process manager is already closing")

// TeardownGrace is the window between SIGTERM and SIGKILL when tearing
// down children, either because one sibling failed or the manager is
// closing. Matches the 5-second grace window specified for coordinated
// task teardown.
const TeardownGrace = 5 * time.Second

// ChildExit is returned when a child process exits with a non-zero exit code
type ChildExit struct {
	ExitCode int
	Command  string
}

func (ce *ChildExit) Error() string {
	return fmt.Sprintf("command %s exited (%d)", ce.Command, ce.ExitCode)
}

// Manager tracks all of the child processes that have been spawned
type Manager struct {
	done     bool
	children map[*Child]struct{}
	mu       sync.Mutex
	doneCh   chan struct{}
	logger   hclog.Logger
}

// NewManager creates a new properly-initialized Manager instance
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		children: make(map[*Child]struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Exec spawns a child process to run the given command, then blocks
// until it completes. Returns a nil error if the child process finished
// successfully, ErrClosing if the manager closed during execution, and
// a ChildExit error if the child process exited with a non-zero exit code.
func (m *Manager) Exec(cmd *exec.Cmd) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return ErrClosing
	}

	child, err := newChild(NewInput{
		Cmd: cmd,
		// Run forever by default; the caller owns cancellation via ctx-driven
		// teardown (Close/Stop), not an internal timeout.
		Timeout: 0,
		// Grace window before escalating to SIGKILL.
		KillTimeout: TeardownGrace,
		// Each child is placed in its own session (setpgid); SIGTERM there
		// does not cross into the driver.
		KillSignal: syscall.SIGTERM,
		Logger:     m.logger,
	})
	if err != nil {
		return err
	}

	m.children[child] = struct{}{}
	m.mu.Unlock()
	err = child.Start()
	if err != nil {
		m.mu.Lock()
		delete(m.children, child)
		m.mu.Unlock()
		return err
	}
	err = nil
	exitCode, ok := <-child.ExitCh()
	if !ok {
		err = ErrClosing
	} else if exitCode != ExitCodeOK {
		err = &ChildExit{
			ExitCode: exitCode,
			Command:  child.Command(),
		}
	}

	m.mu.Lock()
	delete(m.children, child)
	m.mu.Unlock()
	return err
}

// Spawn starts cmd under the manager's supervision and returns the
// Child immediately, without waiting for it to exit. Unlike Exec, the
// caller drives waiting itself (via child.ExitCh()) — this is what the
// pipeline executor uses so it can run a pipeline's commands
// concurrently and still have every one of them torn down together on
// failure via Close.
func (m *Manager) Spawn(cmd *exec.Cmd) (*Child, error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil, ErrClosing
	}

	child, err := newChild(NewInput{
		Cmd:         cmd,
		Timeout:     0,
		KillTimeout: TeardownGrace,
		KillSignal:  syscall.SIGTERM,
		Logger:      m.logger,
	})
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	m.children[child] = struct{}{}
	m.mu.Unlock()

	if err := child.Start(); err != nil {
		m.mu.Lock()
		delete(m.children, child)
		m.mu.Unlock()
		return nil, err
	}
	return child, nil
}

// Forget removes a child from the manager's bookkeeping once the caller
// has observed its exit, so a later Close doesn't try to stop it again.
func (m *Manager) Forget(child *Child) {
	m.mu.Lock()
	delete(m.children, child)
	m.mu.Unlock()
}

// Close sends SIGTERM to all remaining child processes if it hasn't been
// done yet (escalating to SIGKILL after TeardownGrace), and in either
// case blocks until they all exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		<-m.doneCh
		return
	}
	wg := sync.WaitGroup{}
	m.done = true
	for child := range m.children {
		child := child
		wg.Add(1)
		go func() {
			child.Stop()
			wg.Done()
		}()
	}
	m.mu.Unlock()
	wg.Wait()
	close(m.doneCh)
}
