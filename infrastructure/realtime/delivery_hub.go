package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"echotree/domain/model"
)

// Hub fans delivery events out to every connected SSE stream.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan model.DeliveryEvent]struct{}
}

func NewDeliveryHub() *Hub {
	return &Hub{subs: make(map[chan model.DeliveryEvent]struct{})}
}

// Serve streams delivery events until the client goes away. Requires user_id set by the auth middleware.
func (h *Hub) Serve(c *gin.Context) {
	if c.GetString("user_id") == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable nginx buffering

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt := <-ch:
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = c.Writer.Write([]byte("event: " + evt.Type + "\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *Hub) Subscribe() chan model.DeliveryEvent {
	ch := make(chan model.DeliveryEvent, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan model.DeliveryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishDeliveryEvent never blocks; slow subscribers drop events.
func (h *Hub) PublishDeliveryEvent(_ context.Context, evt model.DeliveryEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}
