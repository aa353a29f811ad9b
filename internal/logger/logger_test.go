package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithContextAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithChatID(ctx, "chat-1")
	ctx = WithStreamID(ctx, "stream-1")

	log.WithContext(ctx).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}

	for key, want := range map[string]string{
		"request_id": "req-1",
		"user_id":    "user-1",
		"chat_id":    "chat-1",
		"stream_id":  "stream-1",
		"msg":        "hello",
	} {
		if got := record[key]; got != want {
			t.Errorf("%s = %v, want %q", key, got, want)
		}
	}
	if record["instance_id"] == "" {
		t.Error("instance_id missing")
	}
}

func TestLogOperationReturnsError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	want := errors.New("boom")
	got := log.LogOperation(context.Background(), "persist", func() error { return want })
	if !errors.Is(got, want) {
		t.Fatalf("LogOperation() = %v, want %v", got, want)
	}
	if !bytes.Contains(buf.Bytes(), []byte("operation failed")) {
		t.Errorf("missing failure log: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"debug":   slog.LevelDebug,
		"unknown": slog.LevelDebug,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLoggingMiddlewareReusesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggingMiddleware(Discard()))

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(ContextKeyRequestID).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if seen != "abc" {
		t.Errorf("request id in context = %q, want abc", seen)
	}
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("response header = %q, want abc", got)
	}
}
