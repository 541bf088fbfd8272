package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/autodialer/internal/calllog"
	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/models"
)

// SSE event names.
const (
	EventStatusChange  = "status-change"
	EventError         = "error"
	EventCallStart     = "call-start"
	EventCallEnd       = "call-end"
	EventCallLogUpdate = "call-log-update"
	EventHeartbeat     = "heartbeat"
	EventConnected     = "connected"
)

// heartbeatInterval keeps idle streams open through proxies.
var heartbeatInterval = 15 * time.Second

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 64

// sseEvent represents an SSE event to send to the client.
type sseEvent struct {
	Event string
	Data  any
}

// Hub fans dialer notifications out to every connected stream.
type Hub struct {
	mu   sync.Mutex
	subs map[chan sseEvent]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan sseEvent]struct{})}
}

// Events returns the dialer notifications the Hub publishes.
func (h *Hub) Events() dialer.Events {
	return dialer.Events{
		OnStatusChange: func(s dialer.Status) {
			h.publish(EventStatusChange, gin.H{"status": s})
		},
		OnError: func(msg string) {
			h.publish(EventError, gin.H{"message": msg})
		},
		OnCallStart: func(p models.CallerProfile) {
			h.publish(EventCallStart, p)
		},
		OnCallEnd: func() {
			h.publish(EventCallEnd, gin.H{})
		},
		OnCallLogUpdate: func(log []calllog.Entry) {
			h.publish(EventCallLogUpdate, gin.H{"call_log": log})
		},
	}
}

func (h *Hub) subscribe() (<-chan sseEvent, func()) {
	ch := make(chan sseEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) publish(event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- sseEvent{Event: event, Data: data}:
		default:
			log.Printf("bridge: dropping %s event for slow subscriber", event)
		}
	}
}

// Subscribers reports the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// handleSSE streams hub events. The first event carries the current state
// so a client never starts blind.
func handleSSE(h *Hub, s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		events, cancel := h.subscribe()
		defer cancel()

		writeSSE(c.Writer, EventConnected, s.GetState())
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, EventHeartbeat, map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case evt := <-events:
				writeSSE(c.Writer, evt.Event, evt.Data)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
