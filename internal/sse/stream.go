package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/driftchat-backend/internal/chat"
)

const heartbeatInterval = 15 * time.Second

// Writer frames chat stream events as server-sent events. One writer
// per response; not safe for concurrent use.
type Writer struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

func NewWriter(c *gin.Context) (*Writer, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: c.Writer, flusher: flusher}, nil
}

func (w *Writer) Send(ev chat.StreamEvent) error {
	if _, err := fmt.Fprintf(w.w, "event: %s\n", ev.Event); err != nil {
		return err
	}
	if ev.Data != nil {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		if _, err := fmt.Fprintf(w.w, "data: %s\n", payload); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprint(w.w, "data: {}\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w.w, "\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// comment lines keep proxies from timing out idle streams
func (w *Writer) Heartbeat() error {
	if _, err := fmt.Fprint(w.w, ": ping\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Stream drains events onto the wire until the channel closes or the
// client disconnects. Returns nil on a clean close.
func Stream(c *gin.Context, events <-chan chat.StreamEvent) error {
	w, err := NewWriter(c)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := w.Send(ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := w.Heartbeat(); err != nil {
				return err
			}
		case <-c.Request.Context().Done():
			return c.Request.Context().Err()
		}
	}
}
