package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Queue is the per-front-end durable queue. The underlying storage is opened
// lazily on the first operation touching any category.
type Queue struct {
	storage  Storage
	schema   Schema
	payloads map[string]*jsonschema.Schema
	now      func() time.Time

	mu     sync.Mutex
	opened bool
}

func New(storage Storage, schema Schema) (*Queue, error) {
	if storage == nil {
		return nil, fmt.Errorf("queue storage is nil")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	payloads, err := compilePayloadSchemas(schema)
	if err != nil {
		return nil, err
	}
	return &Queue{
		storage:  storage,
		schema:   schema,
		payloads: payloads,
		now:      time.Now,
	}, nil
}

// Categories lists the declared categories in declaration order.
func (q *Queue) Categories() []string {
	return append([]string(nil), q.schema.Categories...)
}

func (q *Queue) Schema() Schema {
	return q.schema
}

// Enqueue stores an entry until a drain confirms server acceptance.
// Enqueueing an id that is already queued is a no-op.
func (q *Queue) Enqueue(ctx context.Context, entry Entry) error {
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if !q.schema.Has(entry.Category) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, entry.Category)
	}
	if len(entry.Payload) > 0 && !json.Valid(entry.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidPayload)
	}
	if err := q.validatePayload(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = q.now().UTC()
	}
	if err := q.ensureOpen(ctx); err != nil {
		return err
	}
	if err := q.storage.Put(ctx, entry); err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", entry.Category, entry.ID, err)
	}
	logger.WithComponent("queue").Debugf("enqueued %s/%s", entry.Category, entry.ID)
	return nil
}

// ListAll returns every entry of a category. Callers must not rely on order.
func (q *Queue) ListAll(ctx context.Context, category string) ([]Entry, error) {
	if !q.schema.Has(category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if err := q.ensureOpen(ctx); err != nil {
		return nil, err
	}
	return q.storage.GetAll(ctx, category)
}

// Remove deletes an entry by id; removing an absent id succeeds.
func (q *Queue) Remove(ctx context.Context, category, id string) error {
	if !q.schema.Has(category) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if err := q.ensureOpen(ctx); err != nil {
		return err
	}
	return q.storage.Delete(ctx, category, id)
}

// Depths counts queued entries per category.
func (q *Queue) Depths(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(q.schema.Categories))
	for _, c := range q.schema.Categories {
		entries, err := q.ListAll(ctx, c)
		if err != nil {
			return nil, err
		}
		out[c] = len(entries)
	}
	return out, nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.opened = false
	return q.storage.Close()
}

func (q *Queue) ensureOpen(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.opened {
		return nil
	}
	if err := q.storage.Open(ctx); err != nil {
		return fmt.Errorf("open queue %s: %w", q.schema.Name, err)
	}
	q.opened = true
	logger.WithComponent("queue").Debugf("opened queue %s v%d with %d categories", q.schema.Name, q.schema.Version, len(q.schema.Categories))
	return nil
}

func (q *Queue) validatePayload(entry Entry) error {
	sch, ok := q.payloads[entry.Category]
	if !ok {
		return nil
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, entry.Category, err)
	}
	return nil
}

func compilePayloadSchemas(schema Schema) (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, len(schema.PayloadSchemas))
	if len(schema.PayloadSchemas) == 0 {
		return out, nil
	}
	compiler := jsonschema.NewCompiler()
	for category, src := range schema.PayloadSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse payload schema %s: %w", category, err)
		}
		resource := fmt.Sprintf("https://schemas.ty7.local/%s/%s.json", schema.Name, category)
		if err := compiler.AddResource(resource, doc); err != nil {
			return nil, fmt.Errorf("add payload schema %s: %w", category, err)
		}
		compiled, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile payload schema %s: %w", category, err)
		}
		out[category] = compiled
	}
	return out, nil
}
