package notify

import (
	"context"
	"errors"
	"sync"
)

// Sink displays notifications.
type Sink interface {
	Notify(ctx context.Context, req Request) error
}

// Window is one open page of the front-end.
type Window struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WindowClients reaches the open pages of the front-end.
type WindowClients interface {
	MatchAll(ctx context.Context) ([]Window, error)
	Focus(ctx context.Context, id string) error
	PostMessage(ctx context.Context, id string, msg any) error
	OpenWindow(ctx context.Context, url string) error
}

// Recorder keeps the most recent notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	max   int
	items []Request
}

// NewRecorder keeps at most max notifications; max <= 0 keeps 100.
func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 100
	}
	return &Recorder{max: max}
}

func (r *Recorder) Notify(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, req)
	if over := len(r.items) - r.max; over > 0 {
		r.items = append([]Request(nil), r.items[over:]...)
	}
	return nil
}

// List returns the recorded notifications, oldest first.
func (r *Recorder) List() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.items...)
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, req Request) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
