// Package relay serves the agent event stream of a chat over SSE.
//
// A request is validated and the user message stored before the stream opens;
// those failures are plain JSON errors. Once the stream is open every outcome
// is an SSE event, and the last frame is always the terminal event.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eternisai/agent-stream/internal/agent"
	"github.com/eternisai/agent-stream/internal/auth"
	apierrors "github.com/eternisai/agent-stream/internal/errors"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/metrics"
	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/eternisai/agent-stream/internal/streaming"
	"github.com/eternisai/agent-stream/internal/transcoder"
	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultHistoryLimit is the number of earlier messages given to the agent.
	DefaultHistoryLimit = 20

	// persistTimeout bounds writes made after the request context ended.
	persistTimeout = 10 * time.Second

	// Maximum length for chat IDs to prevent memory abuse
	maxChatIDLength = 256
)

// User-facing messages of gate failures.
const (
	msgProRequired      = "Research mode requires a Pro subscription."
	msgLimitUnavailable = "We could not check your message allowance. Please try again in a moment."
	msgTierUnavailable  = "We could not verify your subscription. Please try again in a moment."
)

// Store is the persistence the relay needs.
type Store interface {
	storage.ChatStore
	storage.MessageStore
}

// Entitlements answers the gate checks.
type Entitlements interface {
	IsRateLimited(ctx context.Context, userID string) (bool, error)
	IsPro(ctx context.Context, userID string) (bool, error)
	LimitMessage(ctx context.Context, userID string) string
}

// RemoteStopper stops streams owned by other instances.
type RemoteStopper interface {
	RequestCancel(ctx context.Context, chatID, userID string) (*streaming.CancelResponse, error)
}

// Options tune the relay.
type Options struct {
	HeartbeatInterval   time.Duration
	HistoryLimit        int
	RateLimitFailClosed bool
}

// Dependencies of a Handler. RemoteStop, Metrics and Clock are optional.
type Dependencies struct {
	Store        Store
	Agent        agent.Agent
	Entitlements Entitlements
	Streams      *streaming.StreamManager
	RemoteStop   RemoteStopper
	Metrics      *metrics.Recorder
	Clock        clockwork.Clock
	Logger       *logger.Logger
	Options      Options
}

// Handler serves the stream endpoints.
type Handler struct {
	store        Store
	agent        agent.Agent
	entitlements Entitlements
	streams      *streaming.StreamManager
	remoteStop   RemoteStopper
	transcoder   *transcoder.Transcoder
	metrics      *metrics.Recorder
	clock        clockwork.Clock
	logger       *logger.Logger
	opts         Options
}

func NewHandler(deps Dependencies) *Handler {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if deps.Options.HistoryLimit == 0 {
		deps.Options.HistoryLimit = DefaultHistoryLimit
	}

	log := deps.Logger.WithComponent("relay")
	return &Handler{
		store:        deps.Store,
		agent:        deps.Agent,
		entitlements: deps.Entitlements,
		streams:      deps.Streams,
		remoteStop:   deps.RemoteStop,
		transcoder:   transcoder.New(deps.Logger, deps.Metrics.DroppedEvent),
		metrics:      deps.Metrics,
		clock:        clock,
		logger:       log,
		opts:         deps.Options,
	}
}

// RegisterRoutes mounts the stream endpoints. requireAuth guards the POST
// routes.
func (h *Handler) RegisterRoutes(r gin.IRoutes, requireAuth gin.HandlerFunc) {
	r.OPTIONS("/chat/:chatId/stream", h.Preflight)
	r.POST("/chat/:chatId/stream", requireAuth, h.Stream)
	r.POST("/chat/:chatId/stream/stop", requireAuth, h.StopStream)
}

// StreamRequest is the body of POST /chat/:chatId/stream.
type StreamRequest struct {
	Content          string `json:"content"`
	DeepResearchMode bool   `json:"deepResearchMode"`
}

// Preflight answers OPTIONS requests that reach the router.
func (h *Handler) Preflight(c *gin.Context) {
	c.Header("Allow", "OPTIONS, POST")
	c.Status(http.StatusOK)
}

// Stream handles POST /chat/:chatId/stream.
func (h *Handler) Stream(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	chatID := c.Param("chatId")
	if chatID == "" || len(chatID) > maxChatIDLength {
		apierrors.AbortWithBadRequest(c, "Invalid chat ID", nil)
		return
	}

	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "Invalid request body", map[string]any{"reason": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		apierrors.AbortWithBadRequest(c, "content is required", nil)
		return
	}

	ctx := logger.WithChatID(c.Request.Context(), chatID)
	log := h.logger.WithContext(ctx)

	chat, err := h.store.FindChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && chat.UserID != userID) {
		apierrors.AbortWithNotFound(c, apierrors.CodeChatNotFound, "Chat not found", nil)
		return
	}
	if err != nil {
		log.Error("failed to load chat", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to load chat")
		return
	}

	session, err := h.streams.Begin(ctx, chatID, userID)
	if errors.Is(err, streaming.ErrStreamActive) {
		apierrors.AbortWithConflict(c, apierrors.CodeStreamActive, "A response is already being generated for this chat", nil)
		return
	}
	if err != nil {
		log.Error("failed to start stream", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to start stream")
		return
	}
	defer session.End()

	ctx = logger.WithStreamID(ctx, session.StreamID)
	log = h.logger.WithContext(ctx)

	history, err := h.store.ListMessages(ctx, chatID, h.opts.HistoryLimit)
	if err != nil {
		log.Error("failed to load history", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to load chat history")
		return
	}

	userMsg, err := h.store.CreateMessage(ctx, storage.CreateMessageParams{
		ChatID:  chatID,
		Role:    storage.RoleUser,
		Content: content,
	})
	if err != nil {
		log.Error("failed to store user message", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to store message")
		return
	}

	run := &streamRun{
		h:            h,
		session:      session,
		chat:         chat,
		userID:       userID,
		researchMode: req.DeepResearchMode,
		log:          log,
		start:        h.clock.Now(),
	}
	run.w = openSSE(c, func(t events.EventType) {
		session.RecordEvent()
		h.metrics.WireEvent(string(t))
	})
	h.metrics.StreamStarted()

	stopHeartbeat := run.w.heartbeat(h.clock, h.opts.HeartbeatInterval)
	outcome := run.serve(logger.WithStreamID(session.Context(), session.StreamID), userMsg, history)
	stopHeartbeat()

	elapsed := h.clock.Since(run.start)
	h.metrics.StreamEnded(outcome, elapsed)
	log.Info("stream finished",
		slog.String("outcome", string(outcome)),
		slog.Duration("duration", elapsed),
		slog.Int64("events_sent", session.EventsSent()))
}

// StopStream handles POST /chat/:chatId/stream/stop.
func (h *Handler) StopStream(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	chatID := c.Param("chatId")
	ctx := logger.WithChatID(c.Request.Context(), chatID)
	log := h.logger.WithContext(ctx)

	chat, err := h.store.FindChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && chat.UserID != userID) {
		apierrors.AbortWithNotFound(c, apierrors.CodeChatNotFound, "Chat not found", nil)
		return
	}
	if err != nil {
		log.Error("failed to load chat", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to load chat")
		return
	}

	result, err := h.streams.Stop(chatID, userID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"stopped":    true,
			"streamId":   result.StreamID,
			"eventsSent": result.EventsSent,
			"instanceId": result.InstanceID,
		})
		return
	case errors.Is(err, streaming.ErrAlreadyStopped):
		apierrors.AbortWithConflict(c, apierrors.CodeStreamStopped, "Stream already stopped", nil)
		return
	case !errors.Is(err, streaming.ErrNoStream):
		log.Error("failed to stop stream", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to stop stream")
		return
	}

	if h.remoteStop != nil {
		resp, err := h.remoteStop.RequestCancel(ctx, chatID, userID)
		if err != nil {
			log.Error("distributed stop failed", slog.String("error", err.Error()))
			apierrors.AbortWithInternal(c, "Failed to stop stream")
			return
		}
		switch {
		case resp.Found && resp.Success:
			c.JSON(http.StatusOK, gin.H{
				"stopped":    true,
				"streamId":   resp.StreamID,
				"eventsSent": resp.EventsSent,
				"instanceId": resp.InstanceID,
			})
			return
		case resp.Found && resp.AlreadyStopped:
			apierrors.AbortWithConflict(c, apierrors.CodeStreamStopped, "Stream already stopped", nil)
			return
		case resp.Found:
			log.Error("remote instance failed to stop stream",
				slog.String("instance_id", resp.InstanceID),
				slog.String("error", resp.Error))
			apierrors.AbortWithInternal(c, "Failed to stop stream")
			return
		}
	}

	apierrors.AbortWithNotFound(c, apierrors.CodeStreamNotFound, "No active stream for this chat", nil)
}
