// Package agent produces the internal event sequence of one assistant reply.
//
// An Agent returns a lazy iterator: nothing runs until the caller pulls, and
// the agent stops as soon as the caller stops pulling. The stream relay turns
// these events into wire events.
package agent

import (
	"context"
	"errors"
	"iter"
)

// ErrNoModel is returned when the agent has no chat model configured.
var ErrNoModel = errors.New("agent: no chat model configured")

// EventType is the closed set of internal agent events.
type EventType string

const (
	EventContent              EventType = "content"
	EventThinking             EventType = "thinking"
	EventMemoryAccess         EventType = "memory_access"
	EventContextAnalysis      EventType = "context_analysis"
	EventSearchPlanning       EventType = "search_planning"
	EventSearchStart          EventType = "search_start"
	EventSearchProgress       EventType = "search_progress"
	EventSearchDetailed       EventType = "search_detailed"
	EventWebsiteScraping      EventType = "website_scraping"
	EventSearchResultAnalysis EventType = "search_result_analysis"
	EventContextSynthesis     EventType = "context_synthesis"
	EventResponsePlanning     EventType = "response_planning"
	EventAgentThought         EventType = "agent_thought"
	EventToolCall             EventType = "tool_call"
	EventToolResult           EventType = "tool_result"
	EventProcessing           EventType = "processing"
	EventComplete             EventType = "complete"
	EventError                EventType = "error"
)

// Phases attached to events. The client derives its progress label from them.
const (
	PhaseAnalysis          = "analysis"
	PhaseMemory            = "memory"
	PhaseContext           = "context"
	PhaseToolConsideration = "tool_consideration"
	PhasePlanning          = "planning"
	PhaseSearching         = "searching"
	PhaseResultsFound      = "results_found"
	PhaseScrapingStart     = "scraping_start"
	PhaseScrapingSuccess   = "scraping_success"
	PhaseScrapingError     = "scraping_error"
	PhaseScrapingFallback  = "scraping_fallback"
	PhaseResultAnalysis    = "result_analysis"
	PhaseSearchComplete    = "search_complete"
	PhaseResearchComplete  = "research_complete"
	PhaseSynthesis         = "synthesis"
	PhaseResponsePlanning  = "response_planning"
	PhaseReasoning         = "reasoning"
)

// Tool names.
const (
	ToolWebSearch  = "web_search"
	ToolWebScraper = "web_scraper"
)

// Metrics are the optional numeric details of an event.
type Metrics struct {
	// Duration of the phase in seconds.
	Duration      float64
	ToolCount     int
	RelevantCount int
	TotalResults  int
	ContentLength int
	QualityScore  float64
}

// Event is one step of the agent's work.
type Event struct {
	Type    EventType
	Content string
	Phase   string
	URL     string
	Title   string

	// Tool, Input and Output describe tool_call and tool_result events.
	Tool   string
	Input  map[string]any
	Output map[string]any

	Metrics Metrics
}

// Turn is one earlier message of the conversation.
type Turn struct {
	Role    string
	Content string
}

// Request is the input of one reply.
type Request struct {
	Prompt       string
	History      []Turn
	UserID       string
	ChatID       string
	ResearchMode bool
}

// Agent produces the events of one reply. The sequence ends after a complete
// event, or with a non-nil error. Stopping iteration early cancels the work.
type Agent interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Event, error]
	// Model names the chat model used for the response.
	Model() string
}
