// Package annotation computes and persists the per-task version
// fingerprint and the `.annotation.yaml` record a finished task leaves
// behind: the fingerprint itself, the tool fingerprints and option
// values it was derived from, resource accounting, and per-stream
// capture metadata.
package annotation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const fileName = ".annotation.yaml"

// StreamCapture mirrors the fields recorded per stream by the process
// executor, trimmed to what is worth persisting: hash, length, lines,
// and the tail for postmortem.
type StreamCapture struct {
	Hash   string `yaml:"hash"`
	Length int64  `yaml:"length"`
	Lines  int64  `yaml:"lines"`
	Tail   string `yaml:"tail,omitempty"`
}

// CommandRecord is one executed command's accounting, persisted inside
// an annotation.
type CommandRecord struct {
	Program    string            `yaml:"program"`
	Args       []string          `yaml:"args"`
	ExitCode   int               `yaml:"exit_code"`
	Signaled   bool              `yaml:"signaled,omitempty"`
	SignalName string            `yaml:"signal_name,omitempty"`
	UserTimeMS int64             `yaml:"user_time_ms"`
	SysTimeMS  int64             `yaml:"sys_time_ms"`
	MaxRSSKB   int64             `yaml:"max_rss_kb"`
	Stdout     StreamCapture     `yaml:"stdout"`
	Stderr     StreamCapture     `yaml:"stderr"`
}

// Annotation is the persisted record for one task, written on
// completion (success or failure) and consulted by the task state
// machine to detect FINISHED/CHANGED.
type Annotation struct {
	TaskID          string            `yaml:"task_id"`
	VersionFingerprint string         `yaml:"version_fingerprint"`
	ToolFingerprints   map[string]string `yaml:"tool_fingerprints"`
	OptionValues       map[string]interface{} `yaml:"option_values"`
	InputHashes        map[string]string `yaml:"input_hashes"`
	OutputTags         []string          `yaml:"output_tags"`
	Commands           []CommandRecord   `yaml:"commands"`
	Config             map[string]interface{} `yaml:"config,omitempty"`
	// Failed marks an annotation written after an ExecGroup failed, so
	// the task state machine never mistakes it for a successful,
	// fingerprint-comparable run.
	Failed       bool   `yaml:"failed,omitempty"`
	FailureError string `yaml:"failure_error,omitempty"`
}

// Fingerprint computes a task's version fingerprint as a pure function
// of the tool fingerprints it used, its resolved option values, the
// hashes of its input artifacts, and its declared output tags, per
// invariant 5. Map keys are sorted so the result is deterministic
// regardless of map iteration order.
func Fingerprint(toolFingerprints map[string]string, options map[string]interface{}, inputHashes map[string]string, outputTags []string) string {
	h := sha256.New()

	writeSortedMap(h, "tools", toolFingerprints)
	writeSortedInterfaceMap(h, "options", options)
	writeSortedMap(h, "inputs", inputHashes)

	tags := append([]string{}, outputTags...)
	sort.Strings(tags)
	for _, t := range tags {
		fmt.Fprintf(h, "output:%s\n", t)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedMap(h interface{ Write([]byte) (int, error) }, section string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s=%s\n", section, k, m[k])
	}
}

func writeSortedInterfaceMap(h interface{ Write([]byte) (int, error) }, section string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s=%v\n", section, k, m[k])
	}
}

// HashFiles computes a sha256 digest of each path's current contents,
// keyed by path, for use as the input-hash set fed into Fingerprint.
func HashFiles(paths []string) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))
	for _, p := range paths {
		sum, err := hashFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "hashing input %s", p)
		}
		hashes[p] = sum
	}
	return hashes, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Path returns the annotation file path for a task's output directory.
func Path(taskDir string) string {
	return filepath.Join(taskDir, fileName)
}

// Write persists an annotation to its task directory.
func Write(taskDir string, a Annotation) error {
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating task directory %s", taskDir)
	}
	data, err := yaml.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshaling annotation")
	}
	if err := os.WriteFile(Path(taskDir), data, 0o644); err != nil {
		return errors.Wrapf(err, "writing annotation for %s", a.TaskID)
	}
	return nil
}

// Read loads a task's annotation, if one exists.
func Read(taskDir string) (*Annotation, error) {
	data, err := os.ReadFile(Path(taskDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading annotation at %s", taskDir)
	}
	var a Annotation
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrapf(err, "parsing annotation at %s", taskDir)
	}
	return &a, nil
}
