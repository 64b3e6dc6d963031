package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

const workerOrigin = "http://app.local"

func newQueue(t *testing.T, categories ...string) *queue.Queue {
	t.Helper()
	q, err := queue.New(queue.NewMemoryStorage(queue.Schema{Name: "ty7-test-db", Version: 1, Categories: categories}),
		queue.Schema{Name: "ty7-test-db", Version: 1, Categories: categories})
	require.NoError(t, err)
	return q
}

func enqueue(t *testing.T, q *queue.Queue, category, id, payload string, at time.Time) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), queue.Entry{
		ID: id, Category: category, Payload: json.RawMessage(payload), AuthToken: "tok-" + id, CreatedAt: at,
	}))
}

func ids(t *testing.T, q *queue.Queue, category string) []string {
	t.Helper()
	entries, err := q.ListAll(context.Background(), category)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func withdrawalPolicy() notify.Policy {
	return notify.Policy{
		DefaultTitle: "7tỷ.vn",
		Success: map[string]notify.CopyBuilder{
			"withdrawals": func(detail json.RawMessage) (notify.Copy, error) {
				var p struct {
					Data struct {
						Amount json.Number `json:"amount"`
					} `json:"data"`
				}
				if err := json.Unmarshal(detail, &p); err != nil {
					return notify.Copy{}, err
				}
				return notify.Copy{
					Title: "Yêu cầu rút tiền thành công",
					Body:  "Yêu cầu rút " + notify.FormatAmount(p.Data.Amount) + " VND đã được gửi",
				}, nil
			},
		},
	}
}

type recordedCall struct {
	Path          string
	Authorization string
	Body          string
}

func backend(t *testing.T, status int) (*httptest.Server, *[]recordedCall, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	calls := []recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recordedCall{Path: r.URL.Path, Authorization: r.Header.Get("Authorization"), Body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &mu
}

func withdrawalCoordinator(t *testing.T, q *queue.Queue, upstream string) (*Coordinator, *notify.Recorder) {
	t.Helper()
	fetcher, err := fetch.NewHTTPFetcher(workerOrigin, upstream, 0)
	require.NoError(t, err)
	handler, err := NewHTTPHandler(fetcher, Endpoint(workerOrigin, http.MethodPost, "/api/withdrawals", JSONField("data")))
	require.NoError(t, err)

	rec := notify.NewRecorder(0)
	d, err := notify.NewDispatcher(workerOrigin, withdrawalPolicy(), rec, nil)
	require.NoError(t, err)

	c, err := NewCoordinator(q, []Category{{Name: "withdrawals", Handler: handler}}, DispatchNotifier(d), Options{
		AllTag: "background-sync",
		Tags:   map[string]string{"withdrawal-request": "withdrawals"},
	})
	require.NoError(t, err)
	return c, rec
}

func TestCoordinator_WithdrawalReplayedOnReconnect(t *testing.T) {
	q := newQueue(t, "withdrawals")
	enqueue(t, q, "withdrawals", "w1", `{"data":{"amount":500000}}`, time.Time{})

	srv, calls, _ := backend(t, http.StatusOK)
	c, rec := withdrawalCoordinator(t, q, srv.URL)

	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	require.NoError(t, err)
	assert.Equal(t, []Report{{Category: "withdrawals", Attempted: 1, Succeeded: 1}}, reports)

	assert.Empty(t, ids(t, q, "withdrawals"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/withdrawals", (*calls)[0].Path)
	assert.Equal(t, "Bearer tok-w1", (*calls)[0].Authorization)
	assert.JSONEq(t, `{"amount":500000}`, (*calls)[0].Body)

	shown := rec.List()
	require.Len(t, shown, 1)
	assert.Contains(t, shown[0].Body, "500.000")
}

func TestCoordinator_NonSuccessKeepsEntryAndStaysSilent(t *testing.T) {
	q := newQueue(t, "withdrawals")
	enqueue(t, q, "withdrawals", "w1", `{"data":{"amount":1}}`, time.Time{})

	srv, calls, _ := backend(t, http.StatusUnprocessableEntity)
	c, rec := withdrawalCoordinator(t, q, srv.URL)

	for i := 0; i < 3; i++ {
		reports, err := c.Run(context.Background(), Trigger{Source: SourceExplicit, Tag: "withdrawal-request"})
		require.NoError(t, err)
		assert.Equal(t, 1, reports[0].Failed)
	}

	assert.Equal(t, []string{"w1"}, ids(t, q, "withdrawals"))
	assert.Len(t, *calls, 3, "every trigger retries, no backoff")
	assert.Empty(t, rec.List())
}

func TestCoordinator_NetworkFailureKeepsEntry(t *testing.T) {
	q := newQueue(t, "withdrawals")
	enqueue(t, q, "withdrawals", "w1", `{"data":{"amount":1}}`, time.Time{})

	srv := httptest.NewServer(http.NotFoundHandler())
	upstream := srv.URL
	srv.Close()
	c, rec := withdrawalCoordinator(t, q, upstream)

	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Failed)
	assert.Equal(t, []string{"w1"}, ids(t, q, "withdrawals"))
	assert.Empty(t, rec.List())
}

func TestCoordinator_EmptyDrainIsNoop(t *testing.T) {
	q := newQueue(t, "withdrawals")
	srv, calls, _ := backend(t, http.StatusOK)
	c, rec := withdrawalCoordinator(t, q, srv.URL)

	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect, Tag: "background-sync"})
	require.NoError(t, err)
	assert.Equal(t, []Report{{Category: "withdrawals"}}, reports)
	assert.Empty(t, *calls)
	assert.Empty(t, rec.List())
}

func TestCoordinator_SecondRunIsIdempotent(t *testing.T) {
	q := newQueue(t, "withdrawals")
	enqueue(t, q, "withdrawals", "w1", `{"data":{"amount":500000}}`, time.Time{})
	srv, calls, _ := backend(t, http.StatusOK)
	c, rec := withdrawalCoordinator(t, q, srv.URL)

	_, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	require.NoError(t, err)
	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	require.NoError(t, err)

	assert.Equal(t, 0, reports[0].Attempted)
	assert.Len(t, *calls, 1)
	assert.Len(t, rec.List(), 1)
}

func TestCoordinator_UnknownTag(t *testing.T) {
	q := newQueue(t, "withdrawals")
	c, _ := withdrawalCoordinator(t, q, "http://backend.local")

	_, err := c.Run(context.Background(), Trigger{Source: SourceExplicit, Tag: "receipt-upload"})
	assert.ErrorIs(t, err, ErrUnknownTag)

	names, err := c.Resolve("withdrawals")
	require.NoError(t, err)
	assert.Equal(t, []string{"withdrawals"}, names)
}

func TestCoordinator_OldestFirst(t *testing.T) {
	q := newQueue(t, "transactions")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	enqueue(t, q, "transactions", "a", `{}`, base.Add(2*time.Minute))
	enqueue(t, q, "transactions", "b", `{}`, base)
	enqueue(t, q, "transactions", "c", `{}`, base.Add(time.Minute))
	enqueue(t, q, "transactions", "d", `{}`, base)

	var order []string
	h := HandlerFunc(func(_ context.Context, e queue.Entry) error {
		order = append(order, e.ID)
		return nil
	})
	c, err := NewCoordinator(q, []Category{{Name: "transactions", Handler: h}}, nil, Options{})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), Trigger{Source: SourceExplicit, Tag: "transactions"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "c", "a"}, order)
}

func TestCoordinator_CategoriesAreIndependent(t *testing.T) {
	q := newQueue(t, "receipts", "withdrawals")
	enqueue(t, q, "receipts", "r1", `{}`, time.Time{})
	enqueue(t, q, "withdrawals", "w1", `{}`, time.Time{})

	failing := HandlerFunc(func(context.Context, queue.Entry) error { return errors.New("offline") })
	ok := HandlerFunc(func(context.Context, queue.Entry) error { return nil })

	var notified []string
	var mu sync.Mutex
	n := NotifierFunc(func(_ context.Context, e queue.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, e.ID)
		return nil
	})

	c, err := NewCoordinator(q, []Category{{Name: "receipts", Handler: failing}, {Name: "withdrawals", Handler: ok}}, n, Options{})
	require.NoError(t, err)

	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	require.NoError(t, err)
	assert.Equal(t, []Report{
		{Category: "receipts", Attempted: 1, Failed: 1},
		{Category: "withdrawals", Attempted: 1, Succeeded: 1},
	}, reports)
	assert.Equal(t, []string{"r1"}, ids(t, q, "receipts"))
	assert.Equal(t, []string{"w1"}, notified)
}

func TestCoordinator_OverlappingTriggersDoNotResubmit(t *testing.T) {
	q := newQueue(t, "receipts")
	for _, id := range []string{"r1", "r2", "r3"} {
		enqueue(t, q, "receipts", id, `{}`, time.Time{})
	}

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	submitted := map[string]int{}
	h := HandlerFunc(func(_ context.Context, e queue.Entry) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		submitted[e.ID]++
		mu.Unlock()
		return nil
	})
	c, err := NewCoordinator(q, []Category{{Name: "receipts", Handler: h}}, nil, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Run(context.Background(), Trigger{Source: SourceExplicit, Tag: "receipts"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, map[string]int{"r1": 1, "r2": 1, "r3": 1}, submitted)
	assert.Empty(t, ids(t, q, "receipts"))
}

type failingStore struct{ err error }

func (f failingStore) ListAll(context.Context, string) ([]queue.Entry, error) { return nil, f.err }
func (f failingStore) Remove(context.Context, string, string) error           { return f.err }

func TestCoordinator_StorageFailureIsReported(t *testing.T) {
	h := HandlerFunc(func(context.Context, queue.Entry) error { return nil })
	c, err := NewCoordinator(failingStore{err: errors.New("disk I/O error")}, []Category{{Name: "receipts", Handler: h}}, nil, Options{})
	require.NoError(t, err)

	reports, err := c.Run(context.Background(), Trigger{Source: SourceReconnect})
	assert.Error(t, err)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Error, "disk I/O error")
}

func TestNewCoordinator_Validation(t *testing.T) {
	q := newQueue(t, "receipts")
	h := HandlerFunc(func(context.Context, queue.Entry) error { return nil })

	_, err := NewCoordinator(nil, nil, nil, Options{})
	assert.Error(t, err)
	_, err = NewCoordinator(q, []Category{{Name: "receipts"}}, nil, Options{})
	assert.Error(t, err)
	_, err = NewCoordinator(q, []Category{{Name: "receipts", Handler: h}, {Name: "receipts", Handler: h}}, nil, Options{})
	assert.Error(t, err)
	_, err = NewCoordinator(q, []Category{{Name: "receipts", Handler: h}}, nil, Options{Tags: map[string]string{"x": "nope"}})
	assert.Error(t, err)
}
