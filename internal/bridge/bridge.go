package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

const (
	TypeSkipWaiting = "SKIP_WAITING"
	TypeCacheURLs   = "CACHE_URLS"
	TypeSyncAll     = "SYNC_ALL"
)

// ErrUnknownMessage is returned for a message type the worker does not handle.
var ErrUnknownMessage = errors.New("unknown message type")

// Message is what a page posts to the worker.
type Message struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Lifecycle activates a waiting cache version.
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
}

// Cache pre-warms the current cache.
type Cache interface {
	AddAll(ctx context.Context, urls []string) error
}

// Syncer runs sync triggers.
type Syncer interface {
	Run(ctx context.Context, trigger syncer.Trigger) ([]syncer.Report, error)
}

// Result is the reply to a handled message.
type Result struct {
	Type    string          `json:"type"`
	Reports []syncer.Report `json:"reports,omitempty"`
}

// Bridge dispatches page messages through a type table.
type Bridge struct {
	lifecycle Lifecycle
	cache     Cache
	sync      Syncer
	handlers  map[string]func(ctx context.Context, msg Message) (Result, error)
}

// New builds a bridge. syncTypes maps SYNC_* message types to the category
// they drain; SYNC_ALL always drains everything.
func New(lifecycle Lifecycle, cache Cache, sync Syncer, syncTypes map[string]string) (*Bridge, error) {
	if lifecycle == nil || cache == nil || sync == nil {
		return nil, errors.New("bridge needs lifecycle, cache and syncer")
	}
	b := &Bridge{lifecycle: lifecycle, cache: cache, sync: sync}
	b.handlers = map[string]func(context.Context, Message) (Result, error){
		TypeSkipWaiting: b.skipWaiting,
		TypeCacheURLs:   b.cacheURLs,
		TypeSyncAll:     b.syncTag(""),
	}
	for msgType, category := range syncTypes {
		b.handlers[msgType] = b.syncTag(category)
	}
	return b, nil
}

// Types lists the handled message types.
func (b *Bridge) Types() []string {
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	return out
}

// Handle runs the effect of one message.
func (b *Bridge) Handle(ctx context.Context, msg Message) (Result, error) {
	h, ok := b.handlers[msg.Type]
	if !ok {
		return Result{Type: msg.Type}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	logger.WithComponent("bridge").Debugf("message received: %s", msg.Type)
	res, err := h(ctx, msg)
	res.Type = msg.Type
	return res, err
}

func (b *Bridge) skipWaiting(ctx context.Context, _ Message) (Result, error) {
	return Result{}, b.lifecycle.SkipWaiting(ctx)
}

func (b *Bridge) cacheURLs(ctx context.Context, msg Message) (Result, error) {
	var urls []string
	if err := json.Unmarshal(msg.Payload, &urls); err != nil {
		return Result{}, fmt.Errorf("CACHE_URLS payload must be a list of URLs: %w", err)
	}
	return Result{}, b.cache.AddAll(ctx, urls)
}

func (b *Bridge) syncTag(tag string) func(context.Context, Message) (Result, error) {
	return func(ctx context.Context, _ Message) (Result, error) {
		reports, err := b.sync.Run(ctx, syncer.Trigger{Source: syncer.SourceExplicit, Tag: tag})
		return Result{Reports: reports}, err
	}
}
