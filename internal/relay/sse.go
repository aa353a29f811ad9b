package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// sseWriter serializes event frames and heartbeats onto one response. The
// first failed write is sticky: once the client is gone every later write
// fails too.
type sseWriter struct {
	mu  sync.Mutex
	w   gin.ResponseWriter
	err error

	onEvent func(events.EventType)
}

// openSSE writes the event-stream headers and the 200 status.
func openSSE(c *gin.Context, onEvent func(events.EventType)) *sseWriter {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	return &sseWriter{w: c.Writer, onEvent: onEvent}
}

func (s *sseWriter) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if _, err := s.w.Write(b); err != nil {
		s.err = err
		return err
	}
	s.w.Flush()
	return nil
}

// Send writes one event frame and flushes it.
func (s *sseWriter) Send(ev events.Event) error {
	frame, err := ev.Frame()
	if err != nil {
		return err
	}
	if err := s.write(frame); err != nil {
		return err
	}
	if s.onEvent != nil {
		s.onEvent(ev.Type)
	}
	return nil
}

// heartbeat writes a comment frame every interval until the returned stop
// function is called. Stop waits for the goroutine to exit.
func (s *sseWriter) heartbeat(clock clockwork.Clock, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ticker := clock.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				if err := s.write([]byte(events.Heartbeat)); err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}
