package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"deficore/core/events"
	"deficore/core/types"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsSubscriberBuffer = 256
)

type subscriber struct {
	ch     chan *types.Event
	prefix string
}

// Hub fans committed events out to websocket subscribers. A subscriber that
// falls behind is disconnected rather than slowing the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	var payload *types.Event
	if note, ok := ev.(events.Notification); ok {
		payload = note.Event()
	} else {
		payload = &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.prefix != "" && !strings.HasPrefix(payload.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			h.logger.Warn("dropping slow event subscriber", slog.String("filter", sub.prefix))
		}
	}
}

func (h *Hub) subscribe(prefix string) *subscriber {
	sub := &subscriber{ch: make(chan *types.Event, wsSubscriberBuffer), prefix: prefix}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Subscribers reports the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until either side goes
// away. The optional "type" query parameter filters by type prefix, for
// example "lending." for every lending event.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	sub := h.subscribe(prefix)
	defer h.unsubscribe(sub)

	if err := h.stream(ctx, conn, sub); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.ch:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return nil
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev *types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
