// Package chats serves the JSON endpoints that create and read chats.
package chats

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eternisai/agent-stream/internal/auth"
	apierrors "github.com/eternisai/agent-stream/internal/errors"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/gin-gonic/gin"
)

type Store interface {
	storage.ChatStore
	storage.MessageStore
}

type Handler struct {
	store  Store
	logger *logger.Logger
}

func NewHandler(store Store, logger *logger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.WithComponent("chats-handler"),
	}
}

// RegisterRoutes mounts the chat endpoints behind requireAuth.
func (h *Handler) RegisterRoutes(r gin.IRoutes, requireAuth gin.HandlerFunc) {
	r.POST("/chats", requireAuth, h.CreateChat)
	r.GET("/chats", requireAuth, h.ListChats)
	r.GET("/chats/:chatId/messages", requireAuth, h.ListMessages)
}

// CreateChat handles POST /chats.
func (h *Handler) CreateChat(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	var req CreateChatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.AbortWithBadRequest(c, "Invalid request body", map[string]any{"reason": err.Error()})
			return
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}
	if len(title) > maxTitleLength {
		apierrors.AbortWithBadRequest(c, "title is too long", map[string]any{"max": maxTitleLength})
		return
	}

	chat, err := h.store.CreateChat(c.Request.Context(), userID, title)
	if err != nil {
		log.Error("failed to create chat", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to create chat")
		return
	}

	log.Info("chat created", slog.String("chat_id", chat.ID))
	c.JSON(http.StatusCreated, chat)
}

// ListChats handles GET /chats.
func (h *Handler) ListChats(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	list, err := h.store.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to list chats", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to list chats")
		return
	}
	if list == nil {
		list = []storage.Chat{}
	}

	c.JSON(http.StatusOK, ListChatsResponse{Chats: list})
}

// ListMessages handles GET /chats/:chatId/messages. The optional limit query
// parameter keeps only the most recent messages.
func (h *Handler) ListMessages(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierrors.AbortWithBadRequest(c, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	chatID := c.Param("chatId")
	ctx := logger.WithChatID(c.Request.Context(), chatID)

	chat, err := h.store.FindChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && chat.UserID != userID) {
		apierrors.AbortWithNotFound(c, apierrors.CodeChatNotFound, "Chat not found", nil)
		return
	}
	if err != nil {
		h.logger.WithContext(ctx).Error("failed to load chat", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to load chat")
		return
	}

	msgs, err := h.store.ListMessages(ctx, chatID, limit)
	if err != nil {
		h.logger.WithContext(ctx).Error("failed to list messages", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}

	c.JSON(http.StatusOK, ListMessagesResponse{ChatID: chatID, Messages: msgs})
}
