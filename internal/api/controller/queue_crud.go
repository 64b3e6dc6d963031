package controller

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

// QueueStore is what the queue endpoints need from the durable queue.
type QueueStore interface {
	Enqueue(ctx context.Context, entry queue.Entry) error
	ListAll(ctx context.Context, category string) ([]queue.Entry, error)
}

// QueuedItem is the wire form of a pending mutation. The auth token is
// accepted on the way in but never echoed back.
type QueuedItem struct {
	ID        string          `json:"id" validate:"omitempty,max=128"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	Token     string          `json:"token,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// bearerKey carries the Authorization token of the enqueueing request.
type bearerKey struct{}

// QueueCrudService implements CrudService for queue categories.
type QueueCrudService struct {
	Store QueueStore
}

func (s *QueueCrudService) All(ctx context.Context, category string) ([]QueuedItem, error) {
	entries, err := s.Store.ListAll(ctx, category)
	if err != nil {
		return nil, err
	}
	out := make([]QueuedItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, QueuedItem{ID: e.ID, Payload: e.Payload, CreatedAt: e.CreatedAt})
	}
	return out, nil
}

// Add queues item under category. A missing id gets a fresh UUID.
func (s *QueueCrudService) Add(ctx context.Context, category string, item QueuedItem) (QueuedItem, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		id = uuid.NewString()
	}
	token := strings.TrimPrefix(item.Token, "Bearer ")
	if token == "" {
		token, _ = ctx.Value(bearerKey{}).(string)
	}
	entry := queue.Entry{
		ID:        id,
		Category:  category,
		Payload:   item.Payload,
		AuthToken: token,
	}
	if err := s.Store.Enqueue(ctx, entry); err != nil {
		return QueuedItem{}, err
	}
	return QueuedItem{ID: id, Payload: item.Payload}, nil
}

// QueueCrudValidator implements CrudValidator for queued items.
type QueueCrudValidator struct {
	validator *validator.Validate
}

func (v *QueueCrudValidator) Validate(item QueuedItem) error {
	return v.validator.Struct(item)
}
