package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAbortHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		abort  func(c *gin.Context)
		status int
		code   Code
	}{
		{"bad request", func(c *gin.Context) { AbortWithBadRequest(c, "content is required", nil) }, http.StatusBadRequest, CodeInvalidRequest},
		{"unauthorized", func(c *gin.Context) { AbortWithUnauthorized(c, "missing token") }, http.StatusUnauthorized, CodeUnauthorized},
		{"not found", func(c *gin.Context) { AbortWithNotFound(c, CodeChatNotFound, "chat not found", nil) }, http.StatusNotFound, CodeChatNotFound},
		{"conflict", func(c *gin.Context) { AbortWithConflict(c, CodeStreamActive, "busy", map[string]any{"chat_id": "c1"}) }, http.StatusConflict, CodeStreamActive},
		{"internal", func(c *gin.Context) { AbortWithInternal(c, "failed") }, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.abort(c)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if !c.IsAborted() {
				t.Error("context not aborted")
			}

			var body APIError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}
