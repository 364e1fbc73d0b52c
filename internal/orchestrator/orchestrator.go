// Package orchestrator drives eligible tasks to completion, either by
// running them locally via the process executor or by submitting them
// to a cluster's command table, enforcing the configured job quota.
// Cancellation of Run's context stops further admission; it is not
// forwarded to local children that are already running.
package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/annotation"
	"github.com/labflow/flowctl/internal/config"
	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/fingerprint"
	"github.com/labflow/flowctl/internal/liveness"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/process"
	"github.com/labflow/flowctl/internal/taskstate"
	"github.com/labflow/flowctl/internal/toolregistry"
	"github.com/labflow/flowctl/internal/util"
)

// Mode selects where eligible tasks run.
type Mode int

const (
	// Local runs tasks as direct child processes.
	Local Mode = iota
	// Cluster submits tasks to the configured cluster command table.
	Cluster
)

// TaskDirFunc resolves a task id to its output directory.
type TaskDirFunc func(taskID string) string

// Orchestrator coordinates task admission, execution, and state
// transitions across one run of the driver.
type Orchestrator struct {
	idx      *depindex.Index
	states   *taskstate.Machine
	live     *liveness.Protocol
	executor *process.Executor
	taskDir  TaskDirFunc
	logger   hclog.Logger

	mode          Mode
	clusterType   string
	clusterTable  map[string]config.ClusterCommands
	jobQuota      int
	tools         *toolregistry.Registry
	configHash    string

	mu        sync.Mutex
	inflight  int
}

// New constructs an Orchestrator.
func New(idx *depindex.Index, states *taskstate.Machine, live *liveness.Protocol, executor *process.Executor, taskDir TaskDirFunc, logger hclog.Logger) *Orchestrator {
	return &Orchestrator{
		idx:      idx,
		states:   states,
		live:     live,
		executor: executor,
		taskDir:  taskDir,
		logger:   logger.Named("orchestrator"),
	}
}

// SetConcurrency caps the number of tasks admitted at once in local
// mode (0 means unlimited). Cluster mode gets its quota from the
// pipeline config's default_job_quota instead, via ConfigureCluster.
func (o *Orchestrator) SetConcurrency(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobQuota = n
}

// SetToolRegistry installs the checked tool registry, so runLocal can
// embed per-tool fingerprints in a task's version fingerprint. A nil
// registry (the default) leaves ToolFingerprints empty in every
// annotation, which makes the fingerprint insensitive to tool drift.
func (o *Orchestrator) SetToolRegistry(reg *toolregistry.Registry) {
	o.tools = reg
}

// SetConfigHash records the loaded configuration's hash, embedded in
// every queued ping file's config_hash. No subcommand reads the value
// back or compares it against the current configuration.
func (o *Orchestrator) SetConfigHash(hash string) {
	o.configHash = hash
}

// ConfigureCluster switches the orchestrator into cluster mode with the
// given resolved cluster type, command table, and job quota (0 means
// unlimited).
func (o *Orchestrator) ConfigureCluster(clusterType string, table map[string]config.ClusterCommands, jobQuota int) {
	o.mode = Cluster
	o.clusterType = clusterType
	o.clusterTable = table
	o.jobQuota = jobQuota
}

// EligibleTasks returns the ids of every READY task, restricted to
// wishList when non-empty (per the task-id prefix-matching wish list
// semantics of §4.9).
func (o *Orchestrator) EligibleTasks(wishList []string) []string {
	var ready []string
	for taskID := range o.idx.Tasks() {
		if !util.HasPrefix(taskID, wishList) {
			continue
		}
		if o.states.State(taskID) == model.StateReady {
			ready = append(ready, taskID)
		}
	}
	return ready
}

// Run drives every eligible task named by wishList to completion (local
// mode) or submission (cluster mode), respecting the job quota and
// ctx cancellation. Each task is attempted at most once per call.
// Returns an aggregated error if any task fails.
func (o *Orchestrator) Run(ctx context.Context, wishList []string) error {
	var merr *multierror.Error
	attempted := map[string]bool{}

	for {
		var eligible []string
		for _, taskID := range o.EligibleTasks(wishList) {
			if !attempted[taskID] {
				eligible = append(eligible, taskID)
			}
		}
		if len(eligible) == 0 {
			break
		}

		admitted := o.admit(eligible)
		if len(admitted) == 0 {
			break
		}
		for _, taskID := range admitted {
			attempted[taskID] = true
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, taskID := range admitted {
			taskID := taskID
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer o.release()

				var err error
				switch o.mode {
				case Cluster:
					err = o.submit(taskID)
				default:
					err = o.runLocal(ctx, taskID)
				}
				if err != nil {
					mu.Lock()
					merr = multierror.Append(merr, err)
					mu.Unlock()
				}
				o.states.Invalidate(taskID)
			}()
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return merr.ErrorOrNil()
		default:
		}
	}

	return merr.ErrorOrNil()
}

// admit reserves quota slots for as many of the candidate tasks as the
// configured job quota allows (0 = unlimited).
func (o *Orchestrator) admit(candidates []string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.jobQuota <= 0 {
		o.inflight += len(candidates)
		return candidates
	}

	available := o.jobQuota - o.inflight
	if available <= 0 {
		return nil
	}
	if available > len(candidates) {
		available = len(candidates)
	}
	o.inflight += available
	return candidates[:available]
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.inflight--
	o.mu.Unlock()
}

// runLocal executes a task's exec groups directly, writing the
// executing ping file, heartbeating, and recording an annotation on
// completion.
func (o *Orchestrator) runLocal(ctx context.Context, taskID string) error {
	task, ok := o.idx.Task(taskID)
	if !ok {
		return errors.Errorf("unknown task %q", taskID)
	}
	dir := o.taskDir(taskID)

	if err := o.live.WriteExecuting(dir, taskID, liveness.Executing{PID: os.Getpid()}); err != nil {
		return errors.Wrapf(err, "writing executing ping for %s", taskID)
	}
	defer o.live.RemoveExecuting(dir, taskID)

	hbDone := make(chan struct{})
	defer close(hbDone)
	go func() {
		ticker := time.NewTicker(liveness.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbDone:
				return
			case <-ticker.C:
				if err := o.live.Heartbeat(dir, taskID); err != nil {
					o.logger.Warn("heartbeat", "task", taskID, "error", err)
				}
			}
		}
	}()

	var records []annotation.CommandRecord
	var groupErr error
	for _, group := range task.Run.ExecGroups {
		result, err := o.executor.RunExecGroup(ctx, group, dir)
		for _, cr := range result.Commands {
			records = append(records, commandRecord(cr))
		}
		if err != nil {
			groupErr = err
			break
		}
	}

	ann := annotation.Annotation{
		TaskID:   taskID,
		Commands: records,
	}
	if fp, in, err := fingerprint.Compute(o.idx, o.tools, taskID); err != nil {
		o.logger.Warn("computing version fingerprint", "task", taskID, "error", err)
	} else {
		ann.VersionFingerprint = fp
		ann.ToolFingerprints = in.ToolFingerprints
		ann.OptionValues = in.OptionValues
		ann.InputHashes = in.InputHashes
		ann.OutputTags = in.OutputTags
	}

	if groupErr != nil {
		ann.Failed = true
		ann.FailureError = groupErr.Error()
		if writeErr := annotation.Write(dir, ann); writeErr != nil {
			o.logger.Warn("writing failure annotation", "task", taskID, "error", writeErr)
		}
		o.logger.Error("task failed", "task", taskID, "error", groupErr)
		return errors.Wrapf(groupErr, "task %s", taskID)
	}

	if err := annotation.Write(dir, ann); err != nil {
		return errors.Wrapf(err, "writing annotation for %s", taskID)
	}

	o.logger.Info("task finished", "task", taskID)
	return nil
}

func commandRecord(cr process.CommandResult) annotation.CommandRecord {
	return annotation.CommandRecord{
		Program:    cr.Program,
		Args:       cr.Args,
		ExitCode:   cr.Exit.ExitCode,
		Signaled:   cr.Exit.Signaled,
		SignalName: cr.Exit.SignalName,
		UserTimeMS: cr.Usage.UTime.Milliseconds(),
		SysTimeMS:  cr.Usage.STime.Milliseconds(),
		MaxRSSKB:   cr.Usage.MaxRSS,
		Stdout: annotation.StreamCapture{
			Hash: cr.Stdout.Hash, Length: cr.Stdout.Length, Lines: cr.Stdout.Lines, Tail: string(cr.Stdout.Tail),
		},
		Stderr: annotation.StreamCapture{
			Hash: cr.Stderr.Hash, Length: cr.Stderr.Length, Lines: cr.Stderr.Lines, Tail: string(cr.Stderr.Tail),
		},
	}
}

var placeholderPattern = regexp.MustCompile(`%s`)

// submit renders a submission command from the cluster command table,
// runs it, parses the job id from its stdout, and writes a queued ping
// file. The submitted job is expected to re-invoke the driver with
// `run <task-id>` once scheduled.
func (o *Orchestrator) submit(taskID string) error {
	cmds, ok := o.clusterTable[o.clusterType]
	if !ok {
		return errors.Errorf("no cluster command table entry for type %q", o.clusterType)
	}

	argv := renderSubmit(cmds.Submit, taskID, cmds.DefaultOptions)

	var out []byte
	var err error
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	retry := backoff.WithMaxRetries(expBackoff, 2)
	err = backoff.Retry(func() error {
		out, err = exec.Command(argv[0], argv[1:]...).Output()
		return err
	}, retry)
	if err != nil {
		dir := o.taskDir(taskID)
		if writeErr := o.live.WriteQueued(dir, taskID, liveness.Queued{}); writeErr == nil {
			_ = o.live.MarkBad(dir, taskID)
		}
		return errors.Wrapf(err, "submitting task %s", taskID)
	}

	jobID := strings.TrimSpace(string(out))
	if jobID == "" {
		// the submit command produced no identifiable job id; mint one so
		// this submission can still be told apart from any other.
		jobID = uuid.NewString()
	}
	dir := o.taskDir(taskID)
	q := liveness.Queued{
		JobID:      jobID,
		SubmitTime: time.Now().UTC().Format(time.RFC3339),
		User:       os.Getenv("USER"),
		ConfigHash: o.configHash,
	}
	if err := o.live.WriteQueued(dir, taskID, q); err != nil {
		return errors.Wrapf(err, "writing queued ping for %s", taskID)
	}
	o.logger.Info("task submitted", "task", taskID, "job_id", jobID)
	return nil
}

// renderSubmit substitutes the default options and then the task id into
// the "%s" placeholders of the submit argv, in order; any further
// placeholders become empty strings.
func renderSubmit(submit []string, taskID, defaultOptions string) []string {
	values := []string{defaultOptions, taskID}
	vi := 0
	out := make([]string, len(submit))
	for i, arg := range submit {
		out[i] = placeholderPattern.ReplaceAllStringFunc(arg, func(string) string {
			if vi >= len(values) {
				return ""
			}
			v := values[vi]
			vi++
			return v
		})
	}
	return out
}
