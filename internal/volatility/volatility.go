// Package volatility implements the VolatilityManager: identifying
// artifacts whose producing task is finished and whose consumers are
// all finished or already volatilized, and replacing such artifacts
// in-place with a small placeholder carrying their original size/hash.
package volatility

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/labflow/flowctl/internal/depindex"
	"github.com/labflow/flowctl/internal/model"
	"github.com/labflow/flowctl/internal/util"
)

// magic identifies a volatilized placeholder file so state computation
// can distinguish it from a legitimately small or corrupted artifact.
const magic = "# flowctl-volatilized-placeholder v1"

// Placeholder is the metadata a volatilized file is replaced by.
type Placeholder struct {
	OriginalSize int64
	OriginalHash string
}

// Write replaces the file at path with a placeholder recording its
// original size and hash.
func Write(path string, p Placeholder) error {
	content := fmt.Sprintf("%s\nsize: %d\nhash: %s\n", magic, p.OriginalSize, p.OriginalHash)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "writing placeholder for %s", path)
	}
	return nil
}

// Read parses a placeholder file, returning ok=false if path does not
// look like one (e.g. a genuine small artifact).
func Read(path string) (Placeholder, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Placeholder{}, false, nil
		}
		return Placeholder{}, false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() || scanner.Text() != magic {
		return Placeholder{}, false, nil
	}

	var p Placeholder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "size: "):
			p.OriginalSize, _ = strconv.ParseInt(strings.TrimPrefix(line, "size: "), 10, 64)
		case strings.HasPrefix(line, "hash: "):
			p.OriginalHash = strings.TrimPrefix(line, "hash: ")
		}
	}
	return p, true, scanner.Err()
}

// TaskStateLookup resolves a task id's current state, injected so this
// package does not import taskstate and create a cycle.
type TaskStateLookup func(taskID string) model.TaskState

// Candidate is one artifact eligible (or not) for volatilizing.
type Candidate struct {
	Path       string
	ProducerID string
	Size       int64
}

// Plan computes the set of volatilizable artifacts: those whose
// producer is FINISHED and whose every consumer is FINISHED or
// VOLATILIZED.
func Plan(idx *depindex.Index, state TaskStateLookup) ([]Candidate, error) {
	var candidates []Candidate

	for taskID := range idx.Tasks() {
		if state(taskID) != model.StateFinished {
			continue
		}
		for path := range idx.Outputs(taskID) {
			if !volatilizable(idx, state, path) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, errors.Wrapf(err, "stat %s", path)
			}
			candidates = append(candidates, Candidate{Path: path, ProducerID: taskID, Size: info.Size()})
		}
	}
	return candidates, nil
}

func volatilizable(idx *depindex.Index, state TaskStateLookup, path string) bool {
	for consumerID := range idx.Consumers(path) {
		s := state(consumerID)
		if s != model.StateFinished && s != model.StateVolatilized {
			return false
		}
	}
	return true
}

// TotalBytes sums the reclaimable size across candidates, for the
// dry-run report.
func TotalBytes(candidates []Candidate) int64 {
	var total int64
	for _, c := range candidates {
		total += c.Size
	}
	return total
}

// StepTotals sums reclaimable bytes per producing step, for the
// per-step breakdown the dry-run report prints alongside the
// pipeline-wide total.
func StepTotals(candidates []Candidate) map[string]int64 {
	totals := map[string]int64{}
	for _, c := range candidates {
		step, _, err := util.SplitTaskID(c.ProducerID)
		if err != nil {
			continue
		}
		totals[step] += c.Size
	}
	return totals
}

// HumanizeBytes renders a byte count the way the dry-run report prints
// it.
func HumanizeBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
