package streaming

import (
	"errors"
	"time"
)

var (
	// ErrStreamActive is returned when the chat already has a stream in flight.
	ErrStreamActive = errors.New("a stream is already active for this chat")

	// ErrNoStream is returned when stopping a chat without an active stream.
	ErrNoStream = errors.New("no active stream for this chat")

	// ErrAlreadyStopped is returned when a stream was stopped before.
	ErrAlreadyStopped = errors.New("stream already stopped")

	// ErrLockLost is returned when the distributed lock expired or changed hands.
	ErrLockLost = errors.New("stream lock lost")

	// ErrStopped is the cancel cause of a stream stopped by its user.
	ErrStopped = errors.New("stream stopped by user")

	// ErrShutdown is the cancel cause of streams ended by server shutdown.
	ErrShutdown = errors.New("server shutting down")
)

// StopReason indicates why a stream was stopped
type StopReason string

const (
	// StopReasonUserCancelled indicates the user requested to stop generation
	StopReasonUserCancelled StopReason = "user_cancelled"

	// StopReasonSystemShutdown indicates the server is shutting down
	StopReasonSystemShutdown StopReason = "system_shutdown"
)

// StreamInfo describes an active stream.
type StreamInfo struct {
	ChatID     string    `json:"chat_id"`
	StreamID   string    `json:"stream_id"`
	UserID     string    `json:"user_id"`
	StartTime  time.Time `json:"start_time"`
	EventsSent int64     `json:"events_sent"`
	Stopped    bool      `json:"stopped"`
}

// StopResult is the outcome of a stop request.
type StopResult struct {
	StreamID   string `json:"streamId,omitempty"`
	EventsSent int64  `json:"eventsSent"`
	// InstanceID names the instance that owned the stream.
	InstanceID string `json:"instanceId,omitempty"`
}
