package memory

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/eternisai/agent-stream/internal/auth"
	apierrors "github.com/eternisai/agent-stream/internal/errors"
	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/gin-gonic/gin"
)

const maxFactLength = 2000

type AddFactRequest struct {
	FactType string `json:"factType"`
	FactBody string `json:"factBody"`
}

type ListFactsResponse struct {
	Facts []storage.Fact `json:"facts"`
}

// RegisterRoutes mounts the fact endpoints behind requireAuth.
func (s *Service) RegisterRoutes(r gin.IRoutes, requireAuth gin.HandlerFunc) {
	r.POST("/memory/facts", requireAuth, s.AddFact)
	r.GET("/memory/facts", requireAuth, s.ListFacts)
}

// AddFact handles POST /memory/facts.
func (s *Service) AddFact(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	var req AddFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "Invalid request body", map[string]any{"reason": err.Error()})
		return
	}
	if _, known := sectionTitles[req.FactType]; !known {
		apierrors.AbortWithBadRequest(c, "unknown factType", map[string]any{
			"allowed": []string{FactWorkContext, FactPersonalContext, FactTopOfMind},
		})
		return
	}
	body := strings.TrimSpace(req.FactBody)
	if body == "" || len(body) > maxFactLength {
		apierrors.AbortWithBadRequest(c, "factBody must be between 1 and 2000 bytes", nil)
		return
	}

	fact, err := s.facts.AddFact(c.Request.Context(), userID, req.FactType, body)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to add fact", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to add fact")
		return
	}
	c.JSON(http.StatusCreated, fact)
}

// ListFacts handles GET /memory/facts.
func (s *Service) ListFacts(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "Authentication required")
		return
	}

	facts, err := s.facts.ListFacts(c.Request.Context(), userID)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to list facts", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to list facts")
		return
	}
	if facts == nil {
		facts = []storage.Fact{}
	}
	c.JSON(http.StatusOK, ListFactsResponse{Facts: facts})
}
