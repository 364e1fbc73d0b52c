package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestNotifySendsTokenAndMessage(t *testing.T) {
	var received payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL+"/secrettoken", hclog.NewNullLogger())
	require.NotNil(t, n)
	n.Notify("task finished")

	require.Equal(t, "secrettoken", received.Token)
	require.Equal(t, "task finished", received.Message)
}

func TestNewReturnsNilForEmptySpec(t *testing.T) {
	require.Nil(t, New("", hclog.NewNullLogger()))
}

func TestSendSwallowsUnreachableEndpoint(t *testing.T) {
	n := New("http://127.0.0.1:1/doesnotexist", hclog.NewNullLogger())
	require.NotNil(t, n)
	require.NotPanics(t, func() { n.Notify("hello") })
}
