package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/coolnight20187/python-7ty-system/internal/bridge"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
)

// Outbound message types.
const (
	TypeHello        = "HELLO"
	TypeNotification = "NOTIFICATION"
	TypeFocus        = "FOCUS"
	TypeOpenWindow   = "OPEN_WINDOW"
	TypeResult       = "RESULT"
	// TypeWindowURL is sent by a page when it navigates.
	TypeWindowURL = "WINDOW_URL"
)

// ErrNoWindow is returned when a window id is not connected.
var ErrNoWindow = errors.New("window is not connected")

// MessageHandler runs bridge messages received from a window.
type MessageHandler interface {
	Handle(ctx context.Context, msg bridge.Message) (bridge.Result, error)
}

type reply struct {
	Type   string        `json:"type"`
	For    string        `json:"for"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
	Result bridge.Result `json:"result"`
}

type window struct {
	id        string
	url       string
	conn      *websocket.Conn
	connected time.Time
}

type Options struct {
	// OriginPatterns are extra page origins allowed to connect.
	OriginPatterns []string
	// WriteTimeout bounds every outbound frame; zero means 5s.
	WriteTimeout time.Duration
}

// Hub tracks the open pages of the front-end over websockets.
type Hub struct {
	handler MessageHandler
	opts    Options

	mu      sync.Mutex
	windows map[string]*window
	pending []string // OpenWindow targets waiting for a page to connect
}

func NewHub(handler MessageHandler, opts Options) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Hub{handler: handler, opts: opts, windows: map[string]*window{}}
}

// SetHandler installs the bridge once it exists; the bridge itself needs the hub.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// ServeHTTP upgrades the request and serves one window until it disconnects.
// The page passes its current URL as ?url=, falling back to the Referer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		logger.WithComponent("clients").Warnf("websocket accept failed: %v", err)
		return
	}
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		pageURL = r.Referer()
	}
	win := &window{id: uuid.NewString(), url: pageURL, conn: conn, connected: time.Now()}

	ctx := r.Context()
	pending := h.register(win)
	defer h.unregister(win)

	if err := h.write(ctx, win, map[string]string{"type": TypeHello, "id": win.id}); err != nil {
		return
	}
	for _, target := range pending {
		msg := notify.NavigateMessage{Type: notify.MessageNavigateTo, URL: target}
		if err := h.write(ctx, win, msg); err != nil {
			return
		}
	}

	h.readLoop(ctx, win)
}

func (h *Hub) register(win *window) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[win.id] = win
	pending := h.pending
	h.pending = nil
	logger.WithComponent("clients").Debugf("window %s connected at %s", win.id, win.url)
	return pending
}

func (h *Hub) unregister(win *window) {
	h.mu.Lock()
	delete(h.windows, win.id)
	h.mu.Unlock()
	win.conn.Close(websocket.StatusNormalClosure, "")
	logger.WithComponent("clients").Debugf("window %s disconnected", win.id)
}

func (h *Hub) readLoop(ctx context.Context, win *window) {
	for {
		var msg bridge.Message
		if err := wsjson.Read(ctx, win.conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.WithComponent("clients").Debugf("window %s read: %v", win.id, err)
			}
			return
		}

		if msg.Type == TypeWindowURL {
			var u string
			if err := json.Unmarshal(msg.Payload, &u); err == nil && u != "" {
				h.mu.Lock()
				win.url = u
				h.mu.Unlock()
			}
			continue
		}

		h.mu.Lock()
		handler := h.handler
		h.mu.Unlock()

		out := reply{Type: TypeResult, For: msg.Type}
		if handler == nil {
			out.Error = "worker is not ready"
		} else if res, err := handler.Handle(ctx, msg); err != nil {
			out.Error = err.Error()
			out.Result = res
		} else {
			out.OK = true
			out.Result = res
		}
		if err := h.write(ctx, win, out); err != nil {
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, win *window, v any) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, win.conn, v); err != nil {
		logger.WithComponent("clients").Debugf("write to window %s: %v", win.id, err)
		return err
	}
	return nil
}

func (h *Hub) lookup(id string) (*window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[id]
	return w, ok
}

// MatchAll lists the connected windows, oldest connection first.
func (h *Hub) MatchAll(context.Context) ([]notify.Window, error) {
	h.mu.Lock()
	wins := make([]*window, 0, len(h.windows))
	for _, w := range h.windows {
		wins = append(wins, w)
	}
	out := make([]notify.Window, 0, len(wins))
	sort.Slice(wins, func(i, j int) bool { return wins[i].connected.Before(wins[j].connected) })
	for _, w := range wins {
		out = append(out, notify.Window{ID: w.id, URL: w.url})
	}
	h.mu.Unlock()
	return out, nil
}

// Focus asks a window to bring itself to front.
func (h *Hub) Focus(ctx context.Context, id string) error {
	return h.PostMessage(ctx, id, map[string]string{"type": TypeFocus})
}

// PostMessage sends msg as JSON to one window.
func (h *Hub) PostMessage(ctx context.Context, id string, msg any) error {
	win, ok := h.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoWindow, id)
	}
	return h.write(ctx, win, msg)
}

// OpenWindow asks the oldest window to open url. Without any window the
// request is kept and delivered as NAVIGATE_TO to the next page that connects.
func (h *Hub) OpenWindow(ctx context.Context, url string) error {
	wins, _ := h.MatchAll(ctx)
	if len(wins) == 0 {
		h.mu.Lock()
		h.pending = append(h.pending, url)
		h.mu.Unlock()
		logger.WithComponent("clients").Debugf("no window connected, holding %s", url)
		return nil
	}
	return h.PostMessage(ctx, wins[0].ID, map[string]string{"type": TypeOpenWindow, "url": url})
}

// Pending returns the OpenWindow targets not delivered yet.
func (h *Hub) Pending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pending...)
}

// Notify broadcasts a notification to every window.
func (h *Hub) Notify(ctx context.Context, req notify.Request) error {
	wins, _ := h.MatchAll(ctx)
	var errs []error
	for _, w := range wins {
		msg := struct {
			Type         string         `json:"type"`
			Notification notify.Request `json:"notification"`
		}{TypeNotification, req}
		if err := h.PostMessage(ctx, w.ID, msg); err != nil && !errors.Is(err, ErrNoWindow) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close disconnects every window.
func (h *Hub) Close() {
	h.mu.Lock()
	wins := make([]*window, 0, len(h.windows))
	for _, w := range h.windows {
		wins = append(wins, w)
	}
	h.mu.Unlock()
	for _, w := range wins {
		w.conn.Close(websocket.StatusGoingAway, "worker shutting down")
	}
}
