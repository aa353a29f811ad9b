package memory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eternisai/agent-stream/internal/auth"
	"github.com/eternisai/agent-stream/internal/logger"
	memstore "github.com/eternisai/agent-stream/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(memstore.New(), logger.Discard())

	router := gin.New()
	svc.RegisterRoutes(router, func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(string(auth.UserIDKey), user)
		}
	})

	do := func(method, body, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/memory/facts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, `{"factType":"shoe_size","factBody":"42"}`, "u1").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, `{"factType":"top_of_mind","factBody":"  "}`, "u1").Code)
	require.Equal(t, http.StatusCreated, do(http.MethodPost, `{"factType":"top_of_mind","factBody":" Learning Go "}`, "u1").Code)

	w := do(http.MethodGet, "", "u1")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ListFactsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, "Learning Go", resp.Facts[0].FactBody)

	w = do(http.MethodGet, "", "u2")
	assert.JSONEq(t, `{"facts":[]}`, w.Body.String())

	mem, err := svc.GetFormattedMemory(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Count)
}
