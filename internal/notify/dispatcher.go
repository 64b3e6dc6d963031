package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// Dispatcher turns pushes and sync completions into notifications and routes clicks.
type Dispatcher struct {
	policy  Policy
	origin  *url.URL
	sink    Sink
	clients WindowClients
	now     func() time.Time
}

// NewDispatcher builds a dispatcher for one front-end. clients may be nil, in
// which case clicks are resolved but not delivered.
func NewDispatcher(origin string, policy Policy, sink Sink, clients WindowClients) (*Dispatcher, error) {
	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || o.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	if sink == nil {
		return nil, errors.New("notification sink is nil")
	}
	if policy.DefaultCategory == "" {
		policy.DefaultCategory = "general"
	}
	return &Dispatcher{policy: policy, origin: o, sink: sink, clients: clients, now: time.Now}, nil
}

// FromPush builds a notification from a raw push payload. JSON fields override
// the front-end defaults; anything that is not a JSON object becomes the body.
func (d *Dispatcher) FromPush(raw []byte) Request {
	req := Request{
		Category: d.policy.DefaultCategory,
		Title:    d.policy.DefaultTitle,
		Body:     d.policy.DefaultBody,
		Icon:     d.policy.Icon,
		Badge:    d.policy.Badge,
		Tag:      d.policy.DefaultTag,
		Vibrate:  append([]int(nil), d.policy.Vibrate...),
		Data:     Data{PrimaryKey: int64(1), URL: "/", ArrivedAt: d.now().UnixMilli()},
	}

	fields, ok := decodeObject(raw)
	switch {
	case ok:
		setString(fields, "title", &req.Title)
		setString(fields, "body", &req.Body)
		setString(fields, "icon", &req.Icon)
		setString(fields, "badge", &req.Badge)
		setString(fields, "tag", &req.Tag)
		if t, _ := fields["type"].(string); t != "" {
			req.Category = t
		}
		if u, _ := fields["url"].(string); u != "" {
			req.Data.URL = u
		}
		if id := primaryKey(fields["id"]); id != nil {
			req.Data.PrimaryKey = id
		}
		req.RequireInteraction, _ = fields["requireInteraction"].(bool)
	case len(raw) > 0:
		logger.WithComponent("notify").Debugf("push payload is not JSON, using it as text")
		req.Body = string(raw)
	}

	req.Data.Type = req.Category
	req.Actions = d.policy.actionsFor(req.Category)
	return req
}

func decodeObject(raw []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return fields, true
}

func setString(fields map[string]any, key string, dst *string) {
	if v, ok := fields[key].(string); ok && v != "" {
		*dst = v
	}
}

// primaryKey mirrors a falsy check: missing, zero and empty ids yield nil.
func primaryKey(v any) any {
	switch id := v.(type) {
	case json.Number:
		if i, err := id.Int64(); err == nil {
			if i == 0 {
				return nil
			}
			return i
		}
		if f, err := id.Float64(); err == nil && f != 0 {
			return f
		}
		return nil
	case string:
		if id == "" {
			return nil
		}
		return id
	default:
		return nil
	}
}

// FromSyncSuccess renders the success notification of a queue category.
// A nil request means the category completes silently.
func (d *Dispatcher) FromSyncSuccess(category string, detail json.RawMessage) (*Request, error) {
	build, ok := d.policy.Success[category]
	if !ok || build == nil {
		return nil, nil
	}
	c, err := build(detail)
	if err != nil {
		return nil, fmt.Errorf("render %s notification: %w", category, err)
	}
	req := &Request{
		Category: category,
		Title:    c.Title,
		Body:     c.Body,
		Icon:     d.policy.Icon,
		Tag:      c.Tag,
		Actions:  append([]Action(nil), c.Actions...),
		Data:     Data{Type: category, ArrivedAt: d.now().UnixMilli()},
	}
	if req.Actions == nil {
		req.Actions = []Action{}
	}
	return req, nil
}

// Show hands a notification to the sink.
func (d *Dispatcher) Show(ctx context.Context, req Request) error {
	if req.Data.ArrivedAt == 0 {
		req.Data.ArrivedAt = d.now().UnixMilli()
	}
	if err := d.sink.Notify(ctx, req); err != nil {
		return fmt.Errorf("show notification %q: %w", req.Title, err)
	}
	logger.WithComponent("notify").Debugf("notification shown: %s", req.Title)
	return nil
}

// ClickOutcome reports what a click did.
type ClickOutcome struct {
	Dismissed bool   `json:"dismissed"`
	URL       string `json:"url,omitempty"`
	WindowID  string `json:"windowId,omitempty"`
	Opened    bool   `json:"opened"`
}

// OnClick routes a notification click. Dismiss actions do nothing; anything
// else resolves a target page and focuses or opens a window for it.
func (d *Dispatcher) OnClick(ctx context.Context, action string, data Data) (ClickOutcome, error) {
	if d.policy.isDismiss(action) {
		return ClickOutcome{Dismissed: true}, nil
	}

	target, ok := d.policy.ClickRoutes[action]
	if !ok {
		target = data.URL
	}
	if target == "" {
		target = "/"
	}
	out := ClickOutcome{URL: target}
	if d.clients == nil {
		return out, nil
	}

	windows, err := d.clients.MatchAll(ctx)
	if err != nil {
		return out, fmt.Errorf("match windows: %w", err)
	}

	switch d.policy.Focus {
	case FocusExactURL:
		abs := d.absolute(target)
		for _, w := range windows {
			if w.URL == abs {
				out.WindowID = w.ID
				return out, d.clients.Focus(ctx, w.ID)
			}
		}
	default:
		for _, w := range windows {
			if !d.sameOrigin(w.URL) {
				continue
			}
			out.WindowID = w.ID
			if err := d.clients.PostMessage(ctx, w.ID, NavigateMessage{Type: MessageNavigateTo, URL: target}); err != nil {
				return out, fmt.Errorf("post navigation: %w", err)
			}
			return out, d.clients.Focus(ctx, w.ID)
		}
	}

	out.Opened = true
	if err := d.clients.OpenWindow(ctx, target); err != nil {
		return out, fmt.Errorf("open window: %w", err)
	}
	return out, nil
}

func (d *Dispatcher) absolute(target string) string {
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return d.origin.ResolveReference(ref).String()
}

func (d *Dispatcher) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, d.origin.Scheme) && strings.EqualFold(u.Host, d.origin.Host)
}
