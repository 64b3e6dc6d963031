package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolnight20187/python-7ty-system/internal/frontend"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

type recordedCall struct {
	path, auth, body string
}

func newUpstream(t *testing.T, status int) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(b)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

// seedQueue points the worker at a temp data dir and queues one withdrawal.
func seedQueue(t *testing.T, upstream string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TY7_DATA_DIR", dir)
	t.Setenv("TY7_WORKER_FRONTEND", "customer")
	t.Setenv("TY7_WORKER_UPSTREAM_URL", upstream)
	t.Setenv("TY7_SYNC_ENABLED", "false")
	t.Setenv("TY7_MISC_LOG_LEVEL", "error")

	profile, err := frontend.Lookup("customer")
	require.NoError(t, err)
	storage := queue.NewSQLiteStorage(filepath.Join(dir, "ty7-customer-db.sqlite"), profile.QueueSchema())
	q, err := queue.New(storage, profile.QueueSchema())
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), queue.Entry{
		ID:        "w1",
		Category:  "withdrawals",
		Payload:   json.RawMessage(`{"data":{"amount":500000}}`),
		AuthToken: "T",
	}))
	require.NoError(t, q.Close())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestSyncCmd_DrainsQueue(t *testing.T) {
	srv, calls := newUpstream(t, http.StatusOK)
	seedQueue(t, srv.URL)

	out, err := run(t, "sync", "withdrawal-request")
	require.NoError(t, err, out)
	assert.Contains(t, out, "withdrawals: 1/1 sent")

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/withdrawals", got[0].path)
	assert.Equal(t, "Bearer T", got[0].auth)
	assert.JSONEq(t, `{"amount":500000}`, got[0].body)

	out, err = run(t, "queue", "list", "withdrawals")
	require.NoError(t, err)
	assert.Contains(t, out, "withdrawals (0)")
}

func TestSyncCmd_FailureKeepsEntry(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusInternalServerError)
	seedQueue(t, srv.URL)

	_, err := run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still queued")

	out, err := run(t, "queue", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "withdrawals (1)")
	assert.Contains(t, out, "w1")
	assert.True(t, strings.Contains(out, "receipts (0)"))
}

func TestSyncCmd_UnknownTag(t *testing.T) {
	srv, _ := newUpstream(t, http.StatusOK)
	seedQueue(t, srv.URL)

	_, err := run(t, "sync", "nope")
	assert.Error(t, err)
}
