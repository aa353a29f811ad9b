package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	// NATS subject for stream cancellation requests
	streamCancelSubject = "agent-stream.stop"

	// Timeout for distributed cancel requests
	distributedCancelTimeout = 5 * time.Second
)

// CancelRequest represents a distributed stream cancellation request.
type CancelRequest struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// CancelResponse represents the result of a distributed cancel operation.
type CancelResponse struct {
	Success        bool   `json:"success"`
	Found          bool   `json:"found"`
	AlreadyStopped bool   `json:"already_stopped,omitempty"`
	StreamID       string `json:"stream_id,omitempty"`
	EventsSent     int64  `json:"events_sent,omitempty"`
	Error          string `json:"error,omitempty"`
	InstanceID     string `json:"instance_id"`
}

// DistributedCancelService handles cross-instance stream cancellation via NATS.
//
// A stream lives in the memory of the instance serving its SSE connection.
// When a stop request arrives at a different instance, this service sends the
// request over NATS and the owning instance stops the stream and replies.
//
//	Instance A (owns stream)               Instance B (receives /stop)
//	────────────────────────               ───────────────────────────
//	                                       POST /stop arrives
//	                                         └─► No local stream
//	                                         └─► Request on NATS
//	◄─── NATS delivers request ────
//	  └─► Find local stream
//	  └─► Stop stream
//	  └─► Reply with result ────────────►
//	                                         └─► Return response to client
type DistributedCancelService struct {
	nc           *nats.Conn
	manager      *StreamManager
	logger       *logger.Logger
	instanceID   string
	subscription *nats.Subscription
}

// NewDistributedCancelService creates a new distributed cancel service.
// Returns nil if NATS connection is not available.
func NewDistributedCancelService(nc *nats.Conn, manager *StreamManager, logger *logger.Logger, instanceID string) *DistributedCancelService {
	if nc == nil {
		return nil
	}

	return &DistributedCancelService{
		nc:         nc,
		manager:    manager,
		logger:     logger.WithComponent("distributed-cancel"),
		instanceID: instanceID,
	}
}

// Start begins listening for distributed cancel requests.
func (s *DistributedCancelService) Start() error {
	sub, err := s.nc.Subscribe(streamCancelSubject, s.handleCancelRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", streamCancelSubject, err)
	}

	s.subscription = sub
	s.logger.Info("distributed cancel service started",
		slog.String("subject", streamCancelSubject),
		slog.String("instance_id", s.instanceID))

	return nil
}

// Stop gracefully shuts down the service.
func (s *DistributedCancelService) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Drain(); err != nil {
			return fmt.Errorf("failed to drain subscription: %w", err)
		}
	}
	s.logger.Info("distributed cancel service stopped")
	return nil
}

// RequestCancel asks the other instances to stop the stream of chatID and
// waits for the owner to reply. A response with Found=false means no instance
// owns the stream.
func (s *DistributedCancelService) RequestCancel(ctx context.Context, chatID, userID string) (*CancelResponse, error) {
	data, err := json.Marshal(CancelRequest{
		ChatID: chatID,
		UserID: userID,
		Reason: string(StopReasonUserCancelled),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, distributedCancelTimeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(reqCtx, streamCancelSubject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, nats.ErrTimeout):
			return &CancelResponse{Success: false, Found: false}, nil
		case errors.Is(err, context.Canceled):
			return nil, err
		}
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}

	var resp CancelResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// handleCancelRequest only replies when this instance owns the stream, so the
// owner's reply is the one the requester receives.
func (s *DistributedCancelService) handleCancelRequest(msg *nats.Msg) {
	var req CancelRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("received invalid cancel request", slog.String("error", err.Error()))
		return
	}

	session := s.manager.GetSession(req.ChatID)
	if session == nil || session.UserID != req.UserID {
		s.logger.Debug("stream not owned by this instance, ignoring",
			slog.String("chat_id", req.ChatID))
		return
	}

	resp := CancelResponse{Found: true, InstanceID: s.instanceID}
	result, err := s.manager.Stop(req.ChatID, req.UserID)
	switch {
	case err == nil:
		resp.Success = true
		resp.StreamID = result.StreamID
		resp.EventsSent = result.EventsSent
	case errors.Is(err, ErrAlreadyStopped):
		resp.AlreadyStopped = true
	case errors.Is(err, ErrNoStream):
		// Ended between lookup and stop.
		return
	default:
		resp.Error = err.Error()
	}

	s.reply(msg, resp)

	s.logger.Info("processed distributed cancel request",
		slog.String("chat_id", req.ChatID),
		slog.Bool("success", resp.Success))
}

// reply sends a response back to the requester.
func (s *DistributedCancelService) reply(msg *nats.Msg, resp CancelResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", slog.String("error", err.Error()))
		return
	}

	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to send response", slog.String("error", err.Error()))
	}
}
