package process

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTeeCopyHashLengthLines(t *testing.T) {
	data := "abc\ndef\nghi"
	sc := teeCopy(Stdout, strings.NewReader(data), nil, nil)

	want := sha256.Sum256([]byte(data))
	require.Equal(t, hex.EncodeToString(want[:]), sc.Hash)
	require.EqualValues(t, len(data), sc.Length)
	require.EqualValues(t, 2, sc.Lines)
	require.NoError(t, sc.Err)
}

func TestTeeCopyEmptyStream(t *testing.T) {
	sc := teeCopy(Stdout, strings.NewReader(""), nil, nil)
	want := sha256.Sum256(nil)
	require.Equal(t, hex.EncodeToString(want[:]), sc.Hash)
	require.EqualValues(t, 0, sc.Length)
}

func TestTeeCopyTailTruncation(t *testing.T) {
	data := strings.Repeat("x", TailLength+100)
	sc := teeCopy(Stdout, strings.NewReader(data), nil, nil)
	require.Len(t, sc.Tail, TailLength)
	require.Equal(t, data[len(data)-TailLength:], string(sc.Tail))
}
