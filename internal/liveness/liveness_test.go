package liveness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadExecuting(t *testing.T) {
	dir := t.TempDir()
	p := New()

	err := p.WriteExecuting(dir, "align#sample1", Executing{StartTime: "now", Host: "h1", PID: 123, CoresRequested: 2})
	require.NoError(t, err)

	st, err := p.Read(dir, "align#sample1")
	require.NoError(t, err)
	require.NotNil(t, st.Executing)
	require.Equal(t, 123, st.Executing.PID)
	require.False(t, st.Stale)
}

func TestStaleHeartbeatDetected(t *testing.T) {
	dir := t.TempDir()
	p := New()
	require.NoError(t, p.WriteExecuting(dir, "t1", Executing{}))

	old := time.Now().Add(-2 * StaleThreshold)
	require.NoError(t, os.Chtimes(p.executingPath(dir, "t1"), old, old))

	st, err := p.Read(dir, "t1")
	require.NoError(t, err)
	require.True(t, st.Stale)
}

func TestMarkBadRenamesQueued(t *testing.T) {
	dir := t.TempDir()
	p := New()
	require.NoError(t, p.WriteQueued(dir, "t1", Queued{JobID: "42"}))

	require.NoError(t, p.MarkBad(dir, "t1"))

	_, err := os.Stat(filepath.Join(dir, pingDir, "t1"+queuedSuffix))
	require.True(t, os.IsNotExist(err))

	st, err := p.Read(dir, "t1")
	require.NoError(t, err)
	require.True(t, st.Bad)
}
