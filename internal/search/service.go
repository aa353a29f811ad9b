package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eternisai/agent-stream/internal/logger"
)

const (
	defaultExaURL     = "https://api.exa.ai/search"
	defaultSerpAPIURL = "https://serpapi.com/search.json"

	maxExaResults = 10
)

// ErrNotConfigured is returned when no search provider has an API key.
var ErrNotConfigured = errors.New("no search provider configured")

// Result is one search hit, normalized across providers.
type Result struct {
	Position int     `json:"position"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Snippet  string  `json:"snippet"`
	Source   string  `json:"source,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Engine   string  `json:"engine"`
}

// Options configure the search service.
type Options struct {
	ExaAPIKey  string
	SerpAPIKey string

	// Endpoint overrides, used by tests.
	ExaURL     string
	SerpAPIURL string

	HTTPClient *http.Client
}

// Service handles search operations.
type Service struct {
	httpClient *http.Client
	logger     *logger.Logger
	serpAPIKey string
	exaAPIKey  string
	exaURL     string
	serpAPIURL string
}

// NewService creates a new search service.
func NewService(opts Options, log *logger.Logger) *Service {
	s := &Service{
		httpClient: opts.HTTPClient,
		logger:     log.WithComponent("search"),
		serpAPIKey: opts.SerpAPIKey,
		exaAPIKey:  opts.ExaAPIKey,
		exaURL:     opts.ExaURL,
		serpAPIURL: opts.SerpAPIURL,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if s.exaURL == "" {
		s.exaURL = defaultExaURL
	}
	if s.serpAPIURL == "" {
		s.serpAPIURL = defaultSerpAPIURL
	}
	return s
}

// Configured reports whether at least one provider can be used.
func (s *Service) Configured() bool {
	return s.exaAPIKey != "" || s.serpAPIKey != ""
}

// Search queries Exa when configured and falls back to DuckDuckGo via
// SerpAPI when Exa is missing or fails.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	var exaErr error
	if s.exaAPIKey != "" {
		results, err := s.SearchExa(ctx, query, limit)
		if err == nil {
			return results, nil
		}
		exaErr = err
		s.logger.WithContext(ctx).Warn("exa search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
	}

	if s.serpAPIKey == "" {
		return nil, exaErr
	}

	results, err := s.SearchDuckDuckGo(ctx, query, "")
	if err != nil {
		return nil, errors.Join(exaErr, err)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// serpAPIDuckDuckGoResponse represents the raw SerpAPI DuckDuckGo response.
type serpAPIDuckDuckGoResponse struct {
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
	Error string `json:"error,omitempty"`
}

// exaAPIResponse represents the raw response from Exa API.
type exaAPIResponse struct {
	Results []struct {
		ID      string  `json:"id"`
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Score   float64 `json:"score,omitempty"`
		Text    string  `json:"text,omitempty"`
		Summary string  `json:"summary,omitempty"`
	} `json:"results"`
	RequestID string `json:"requestId,omitempty"`
}

// SearchDuckDuckGo performs a DuckDuckGo search via SerpAPI. timeFilter is
// one of "d", "w", "m", "y" or empty.
func (s *Service) SearchDuckDuckGo(ctx context.Context, query, timeFilter string) ([]Result, error) {
	if s.serpAPIKey == "" {
		return nil, fmt.Errorf("SerpAPI key not configured")
	}

	params := url.Values{}
	params.Set("api_key", s.serpAPIKey)
	params.Set("engine", "duckduckgo")
	params.Set("q", query)
	params.Set("kl", "us-en")
	params.Set("safe", "-1")
	params.Set("no_cache", "true")
	if timeFilter != "" {
		params.Set("time", timeFilter)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serpAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := s.do(httpReq, "SerpAPI")
	if err != nil {
		return nil, err
	}

	var serpResp serpAPIDuckDuckGoResponse
	if err := json.Unmarshal(body, &serpResp); err != nil {
		return nil, fmt.Errorf("failed to parse SerpAPI response: %w", err)
	}
	if serpResp.Error != "" {
		return nil, fmt.Errorf("SerpAPI error: %s", serpResp.Error)
	}

	results := make([]Result, 0, len(serpResp.OrganicResults))
	for _, r := range serpResp.OrganicResults {
		results = append(results, Result{
			Position: r.Position,
			Title:    r.Title,
			URL:      r.Link,
			Snippet:  r.Snippet,
			Source:   extractDomain(r.Link),
			Engine:   "duckduckgo",
		})
	}
	return results, nil
}

// SearchExa performs a search using Exa AI API.
func (s *Service) SearchExa(ctx context.Context, query string, numResults int) ([]Result, error) {
	if s.exaAPIKey == "" {
		return nil, fmt.Errorf("Exa API key not configured")
	}

	if numResults <= 0 || numResults > maxExaResults {
		numResults = maxExaResults
	}

	payload, err := json.Marshal(map[string]any{
		"query":      query,
		"type":       "auto",
		"numResults": numResults,
		"contents": map[string]any{
			"summary": map[string]any{
				"query": "Summarize the page, keeping numbers, names and specific facts.",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build API payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.exaURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.exaAPIKey)

	body, err := s.do(httpReq, "Exa API")
	if err != nil {
		return nil, err
	}

	var exaResp exaAPIResponse
	if err := json.Unmarshal(body, &exaResp); err != nil {
		return nil, fmt.Errorf("failed to parse Exa API response: %w", err)
	}

	results := make([]Result, 0, len(exaResp.Results))
	for i, r := range exaResp.Results {
		snippet := r.Summary
		if snippet == "" {
			snippet = r.Text
		}
		results = append(results, Result{
			Position: i + 1,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  snippet,
			Source:   extractDomain(r.URL),
			Score:    r.Score,
			Engine:   "exa",
		})
	}
	return results, nil
}

func (s *Service) do(req *http.Request, provider string) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, string(body))
	}
	return body, nil
}

// extractDomain extracts domain from URL for display.
func extractDomain(urlStr string) string {
	if u, err := url.Parse(urlStr); err == nil {
		return u.Host
	}
	return ""
}
