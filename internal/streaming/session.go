package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StreamSession is one in-flight reply of a chat.
//
// The relay runs the agent under Context(). Stop cancels that context with
// ErrStopped as the cause so the relay can tell a user stop from a client
// disconnect.
type StreamSession struct {
	ChatID    string
	StreamID  string
	UserID    string
	StartTime time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	stopped    atomic.Bool
	eventsSent atomic.Int64

	endOnce sync.Once
	end     func()
}

func newStreamSession(parent context.Context, chatID, streamID, userID string, start time.Time) *StreamSession {
	ctx, cancel := context.WithCancelCause(parent)
	return &StreamSession{
		ChatID:    chatID,
		StreamID:  streamID,
		UserID:    userID,
		StartTime: start,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is canceled when the stream is stopped or the request ends.
func (s *StreamSession) Context() context.Context { return s.ctx }

// Stop cancels the stream on behalf of the user.
func (s *StreamSession) Stop(reason StopReason) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return ErrAlreadyStopped
	}
	cause := ErrStopped
	if reason == StopReasonSystemShutdown {
		cause = ErrShutdown
	}
	s.cancel(cause)
	return nil
}

// IsStopped reports whether Stop was called.
func (s *StreamSession) IsStopped() bool { return s.stopped.Load() }

// RecordEvent counts a wire event written to the client.
func (s *StreamSession) RecordEvent() { s.eventsSent.Add(1) }

// EventsSent returns the number of recorded wire events.
func (s *StreamSession) EventsSent() int64 { return s.eventsSent.Load() }

// End releases the chat. It is safe to call more than once.
func (s *StreamSession) End() {
	s.endOnce.Do(func() {
		s.cancel(context.Canceled)
		if s.end != nil {
			s.end()
		}
	})
}

// Info returns a snapshot of the session.
func (s *StreamSession) Info() StreamInfo {
	return StreamInfo{
		ChatID:     s.ChatID,
		StreamID:   s.StreamID,
		UserID:     s.UserID,
		StartTime:  s.StartTime,
		EventsSent: s.EventsSent(),
		Stopped:    s.IsStopped(),
	}
}
