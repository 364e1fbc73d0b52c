package toolregistry

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/labflow/flowctl/internal/config"
)

func fakeRun(responses map[string]string, exitCodes map[string]int) RunFunc {
	return func(ctx context.Context, program string, args []string) (string, int, error) {
		return responses[program], exitCodes[program], nil
	}
}

func TestCheckSucceedsAndFingerprints(t *testing.T) {
	tools := map[string]config.Tool{
		"grep": {Path: []string{"grep"}, GetVersion: []string{"--version"}, ExitCode: 0},
		"true": {Path: []string{"true"}, ExitCode: 0, IgnoreVersion: true},
	}
	run := fakeRun(map[string]string{"grep": "grep (GNU grep) 3.11\n", "true": ""}, map[string]int{})

	reg, err := Check(context.Background(), hclog.NewNullLogger(), tools, run)
	require.NoError(t, err)

	grepFP := reg.Fingerprint("grep")
	require.NotEqual(t, IgnoredVersionFingerprint, grepFP)
	require.Len(t, grepFP, 64)

	require.Equal(t, IgnoredVersionFingerprint, reg.Fingerprint("true"))
}

func TestCheckFailsOnExitCodeMismatch(t *testing.T) {
	tools := map[string]config.Tool{
		"bad": {Path: []string{"bad"}, GetVersion: []string{"--version"}, ExitCode: 0},
	}
	run := fakeRun(map[string]string{"bad": ""}, map[string]int{"bad": 1})

	_, err := Check(context.Background(), hclog.NewNullLogger(), tools, run)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad")
}

func TestCheckSameResponseSameFingerprint(t *testing.T) {
	tools := map[string]config.Tool{
		"sed": {Path: []string{"sed"}, GetVersion: []string{"--version"}, ExitCode: 0},
	}
	run := fakeRun(map[string]string{"sed": "sed (GNU sed) 4.9\n"}, nil)

	reg1, err := Check(context.Background(), hclog.NewNullLogger(), tools, run)
	require.NoError(t, err)
	reg2, err := Check(context.Background(), hclog.NewNullLogger(), tools, run)
	require.NoError(t, err)

	require.Equal(t, reg1.Fingerprint("sed"), reg2.Fingerprint("sed"))
}
