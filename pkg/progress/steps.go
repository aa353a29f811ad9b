// Package progress reconstructs what the agent is doing from the wire event
// stream: it splits and parses SSE frames, buffers thinking and search steps,
// estimates overall progress and groups scraped pages by site.
package progress

import (
	"time"

	"github.com/eternisai/agent-stream/pkg/events"
)

// ThinkingStep is one reasoning update, in arrival order.
type ThinkingStep struct {
	ID        string
	Type      events.EventType
	Content   string
	Phase     string
	Timestamp time.Time
	Metadata  *events.ThinkingMetadata
}

// SearchStepType classifies a SearchStep.
type SearchStepType string

const (
	SearchPlanning SearchStepType = "planning"
	SearchStart    SearchStepType = "start"
	SearchProgress SearchStepType = "progress"
	SearchAnalysis SearchStepType = "analysis"
	SearchComplete SearchStepType = "complete"
)

// Tool names attached to search steps.
const (
	ToolWebSearch  = "web_search"
	ToolWebScraper = "web_scraper"
)

// SearchStep is one search or scraping update, in arrival order.
type SearchStep struct {
	ID        string
	Type      SearchStepType
	Tool      string
	Content   string
	URL       string
	Quality   *float64
	Timestamp time.Time
	Metadata  *events.SearchMetadata
}

// Phase returns the metadata phase or an empty string.
func (s SearchStep) Phase() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.Phase
}

// Title returns the metadata title or an empty string.
func (s SearchStep) Title() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.Title
}

// ToolCall is a tool invocation announced by the agent.
type ToolCall struct {
	Tool     string
	Input    map[string]any
	Output   map[string]any
	Finished bool
}

// Terminal is the final state of a stream.
type Terminal string

const (
	TerminalNone          Terminal = ""
	TerminalComplete      Terminal = "complete"
	TerminalError         Terminal = "error"
	TerminalLimitExceeded Terminal = "limit_exceeded"
)

// Phases with special meaning for the client.
const (
	PhaseSearchComplete    = "search_complete"
	PhaseResearchComplete  = "research_complete"
	PhaseResultsFound      = "results_found"
	PhaseToolConsideration = "tool_consideration"
	PhaseScrapingPrefix    = "scraping"
	PhaseScrapingStart     = "scraping_start"
	PhaseScrapingSuccess   = "scraping_success"
	PhaseScrapingError     = "scraping_error"
	PhaseScrapingFallback  = "scraping_fallback"
)
