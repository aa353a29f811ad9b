package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exaServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "exa-key", r.Header.Get("x-api-key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "golang generics", payload["query"])
		assert.EqualValues(t, 2, payload["numResults"])

		if status != http.StatusOK {
			http.Error(w, "quota exceeded", status)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"id":"1","url":"https://go.dev/doc/tutorial/generics","title":"Tutorial","score":0.9,"summary":"Generics tutorial"},
			{"id":"2","url":"https://example.com/post","title":"Post","text":"Full text"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func serpServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "serp-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "duckduckgo", r.URL.Query().Get("engine"))
		_, _ = w.Write([]byte(`{"organic_results":[
			{"position":1,"title":"A","link":"https://a.com/x","snippet":"first"},
			{"position":2,"title":"B","link":"https://b.com/y","snippet":"second"},
			{"position":3,"title":"C","link":"https://c.com/z","snippet":"third"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchPrefersExa(t *testing.T) {
	exa := exaServer(t, http.StatusOK)
	svc := NewService(Options{ExaAPIKey: "exa-key", ExaURL: exa.URL}, logger.Discard())

	results, err := svc.Search(context.Background(), "golang generics", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "go.dev", results[0].Source)
	assert.Equal(t, "Generics tutorial", results[0].Snippet)
	assert.Equal(t, "Full text", results[1].Snippet, "text is used without a summary")
	assert.Equal(t, "exa", results[0].Engine)
}

func TestSearchFallsBackToDuckDuckGo(t *testing.T) {
	exa := exaServer(t, http.StatusTooManyRequests)
	serp := serpServer(t)
	svc := NewService(Options{
		ExaAPIKey:  "exa-key",
		ExaURL:     exa.URL,
		SerpAPIKey: "serp-key",
		SerpAPIURL: serp.URL,
	}, logger.Discard())

	results, err := svc.Search(context.Background(), "golang generics", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "duckduckgo", results[0].Engine)
	assert.Equal(t, "https://a.com/x", results[0].URL)
}

func TestSearchNotConfigured(t *testing.T) {
	svc := NewService(Options{}, logger.Discard())
	_, err := svc.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSerpAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	svc := NewService(Options{SerpAPIKey: "bad", SerpAPIURL: srv.URL}, logger.Discard())
	_, err := svc.SearchDuckDuckGo(context.Background(), "q", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}
