package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

// Handler replays one queued entry. A nil error means the server accepted it.
type Handler interface {
	Submit(ctx context.Context, entry queue.Entry) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, entry queue.Entry) error

func (f HandlerFunc) Submit(ctx context.Context, entry queue.Entry) error {
	return f(ctx, entry)
}

// StatusError is a response outside 2xx.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

const maxErrorBody = 256

// HTTPHandler sends entries through the worker's fetch primitive with the
// entry's bearer token.
type HTTPHandler struct {
	fetcher fetch.Fetcher
	build   RequestBuilder
}

func NewHTTPHandler(fetcher fetch.Fetcher, build RequestBuilder) (*HTTPHandler, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if build == nil {
		return nil, errors.New("request builder is nil")
	}
	return &HTTPHandler{fetcher: fetcher, build: build}, nil
}

func (h *HTTPHandler) Submit(ctx context.Context, entry queue.Entry) error {
	req, err := h.build(entry)
	if err != nil {
		return fmt.Errorf("build request for %s/%s: %w", entry.Category, entry.ID, err)
	}
	if entry.AuthToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+entry.AuthToken)
	}

	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		body := string(resp.Body)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Status: resp.Status, URL: req.Key(), Body: body}
	}
	return nil
}
