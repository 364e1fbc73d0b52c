// Package liveness implements the ping-file protocol: writing and
// reading the queued/executing/bad markers a task's progress is tracked
// by, and the staleness checks the task state machine consults.
package liveness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// HeartbeatInterval is how often an executing ping file's mtime is
// advanced while its task's children run.
const HeartbeatInterval = 30 * time.Second

// StaleThreshold is the heartbeat age beyond which an executing ping is
// considered abandoned (2x HeartbeatInterval per §4.6).
const StaleThreshold = 2 * HeartbeatInterval

const (
	queuedSuffix    = ".queued"
	executingSuffix = ".executing"
	badSuffix       = ".queued.bad"
	pingDir         = ".ping"
)

// Queued is the persisted content of a `.queued` ping file.
type Queued struct {
	SubmitTime string `yaml:"submit_time"`
	JobID      string `yaml:"job_id"`
	User       string `yaml:"user"`
	Host       string `yaml:"host"`
	ConfigHash string `yaml:"config_hash"`
}

// Executing is the persisted content of an `.executing` ping file.
type Executing struct {
	StartTime      string `yaml:"start_time"`
	Host           string `yaml:"host"`
	PID            int    `yaml:"pid"`
	CoresRequested int    `yaml:"cores_requested"`
}

// Protocol reads and writes ping files under a task's output directory.
type Protocol struct{}

// New returns a ping-file Protocol.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) dir(taskDir string) string {
	return filepath.Join(taskDir, pingDir)
}

// fileSafe replaces the task-id delimiter with an underscore so ping
// file names stay a single path component.
func fileSafe(taskID string) string {
	return strings.ReplaceAll(taskID, "#", "_")
}

func (p *Protocol) queuedPath(taskDir, taskID string) string {
	return filepath.Join(p.dir(taskDir), fileSafe(taskID)+queuedSuffix)
}

func (p *Protocol) executingPath(taskDir, taskID string) string {
	return filepath.Join(p.dir(taskDir), fileSafe(taskID)+executingSuffix)
}

func (p *Protocol) badPath(taskDir, taskID string) string {
	return filepath.Join(p.dir(taskDir), fileSafe(taskID)+badSuffix)
}

// WriteQueued writes a `.queued` ping file for a task.
func (p *Protocol) WriteQueued(taskDir, taskID string, q Queued) error {
	return p.writeYAML(p.queuedPath(taskDir, taskID), q)
}

// WriteExecuting writes an `.executing` ping file for a task.
func (p *Protocol) WriteExecuting(taskDir, taskID string, e Executing) error {
	return p.writeYAML(p.executingPath(taskDir, taskID), e)
}

// Heartbeat advances the mtime of a task's executing ping file.
func (p *Protocol) Heartbeat(taskDir, taskID string) error {
	path := p.executingPath(taskDir, taskID)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return errors.Wrapf(err, "heartbeat for %s", taskID)
	}
	return nil
}

// RemoveExecuting removes a task's executing ping file, if present.
func (p *Protocol) RemoveExecuting(taskDir, taskID string) error {
	err := os.Remove(p.executingPath(taskDir, taskID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveQueued removes a task's queued ping file, if present.
func (p *Protocol) RemoveQueued(taskDir, taskID string) error {
	err := os.Remove(p.queuedPath(taskDir, taskID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MarkBad renames a task's queued ping file to its `.queued.bad` form,
// marking a failed submission. The bad file is never removed
// automatically.
func (p *Protocol) MarkBad(taskDir, taskID string) error {
	src := p.queuedPath(taskDir, taskID)
	dst := p.badPath(taskDir, taskID)
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "marking %s bad", taskID)
	}
	return nil
}

// Status summarizes what ping evidence exists for a task.
type Status struct {
	Queued     *Queued
	Executing  *Executing
	Bad        bool
	Stale      bool // only meaningful when Executing != nil
	Heartbeat  time.Time
}

// Read collects all ping evidence present for a task.
func (p *Protocol) Read(taskDir, taskID string) (Status, error) {
	var st Status

	if _, err := os.Stat(p.badPath(taskDir, taskID)); err == nil {
		st.Bad = true
	}

	if info, err := os.Stat(p.executingPath(taskDir, taskID)); err == nil {
		var e Executing
		if err := p.readYAML(p.executingPath(taskDir, taskID), &e); err != nil {
			return st, err
		}
		st.Executing = &e
		st.Heartbeat = info.ModTime()
		st.Stale = time.Since(info.ModTime()) > StaleThreshold
	}

	if _, err := os.Stat(p.queuedPath(taskDir, taskID)); err == nil {
		var q Queued
		if err := p.readYAML(p.queuedPath(taskDir, taskID), &q); err != nil {
			return st, err
		}
		st.Queued = &q
	}

	return st, nil
}

func (p *Protocol) writeYAML(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating ping directory for %s", path)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshaling ping file %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing ping file %s", path)
	}
	return nil
}

func (p *Protocol) readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading ping file %s", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ping file %s: %w", path, err)
	}
	return nil
}
