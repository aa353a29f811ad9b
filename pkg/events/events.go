// Package events defines the wire contract of the agent event stream.
//
// Every frame on the wire is an SSE data line whose JSON body is an Event:
//
//	data: {"type":"ai_chunk","data":{"content":"Hello"}}
//
// The server produces these frames and the client reconstructs progress from
// them, so both sides import this package.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the closed set of wire event types.
type EventType string

const (
	TypeUserMessage          EventType = "user_message"
	TypeAITyping             EventType = "ai_typing"
	TypeThinkingStream       EventType = "thinking_stream"
	TypeMemoryAccess         EventType = "memory_access"
	TypeContextAnalysis      EventType = "context_analysis"
	TypeSearchPlanning       EventType = "search_planning"
	TypeSearchStart          EventType = "search_start"
	TypeSearchProgress       EventType = "search_progress"
	TypeSearchDetailed       EventType = "search_detailed"
	TypeWebsiteScraping      EventType = "website_scraping"
	TypeSearchResultAnalysis EventType = "search_result_analysis"
	TypeContextSynthesis     EventType = "context_synthesis"
	TypeResponsePlanning     EventType = "response_planning"
	TypeAgentThought         EventType = "agent_thought"
	TypeToolCall             EventType = "tool_call"
	TypeToolResult           EventType = "tool_result"
	TypeAgentProcessing      EventType = "agent_processing"
	TypeAIChunk              EventType = "ai_chunk"
	TypeComplete             EventType = "complete"
	TypeError                EventType = "error"
	TypeLimitExceeded        EventType = "limit_exceeded"

	// Legacy aliases kept for clients that predate the phase taxonomy.
	TypeAIThinking EventType = "ai_thinking"
	TypeAIToolUse  EventType = "ai_tool_use"
)

var knownTypes = map[EventType]struct{}{
	TypeUserMessage: {}, TypeAITyping: {}, TypeThinkingStream: {}, TypeMemoryAccess: {},
	TypeContextAnalysis: {}, TypeSearchPlanning: {}, TypeSearchStart: {}, TypeSearchProgress: {},
	TypeSearchDetailed: {}, TypeWebsiteScraping: {}, TypeSearchResultAnalysis: {},
	TypeContextSynthesis: {}, TypeResponsePlanning: {}, TypeAgentThought: {}, TypeToolCall: {},
	TypeToolResult: {}, TypeAgentProcessing: {}, TypeAIChunk: {}, TypeComplete: {}, TypeError: {},
	TypeLimitExceeded: {}, TypeAIThinking: {}, TypeAIToolUse: {},
}

// Known reports whether t belongs to the wire taxonomy.
func (t EventType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsTerminal reports whether an event of this type ends the stream.
func (t EventType) IsTerminal() bool {
	return t == TypeComplete || t == TypeError || t == TypeLimitExceeded
}

// Event is a single unit on the wire. Data holds the encoded payload so the
// envelope can be decoded before the payload shape is known.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ContentDelta carries a fragment of the assistant response.
type ContentDelta struct {
	Content string `json:"content"`
}

// ThinkingMetadata is the optional metadata of a ThinkingUpdate.
type ThinkingMetadata struct {
	Phase         string  `json:"phase,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	ToolCount     int     `json:"toolCount,omitempty"`
	RelevantCount int     `json:"relevantCount,omitempty"`
}

// ThinkingUpdate describes a reasoning phase of the agent.
type ThinkingUpdate struct {
	Content  string            `json:"content"`
	Metadata *ThinkingMetadata `json:"metadata,omitempty"`
}

// Phase returns the metadata phase or an empty string.
func (u ThinkingUpdate) Phase() string {
	if u.Metadata == nil {
		return ""
	}
	return u.Metadata.Phase
}

// SearchMetadata is the optional metadata of a SearchUpdate.
type SearchMetadata struct {
	Phase         string  `json:"phase,omitempty"`
	URL           string  `json:"url,omitempty"`
	Title         string  `json:"title,omitempty"`
	TotalResults  int     `json:"totalResults,omitempty"`
	ContentLength int     `json:"contentLength,omitempty"`
	QualityScore  float64 `json:"qualityScore,omitempty"`
}

// SearchUpdate describes a search or scraping step.
type SearchUpdate struct {
	Content  string          `json:"content"`
	Metadata *SearchMetadata `json:"metadata,omitempty"`
}

// Phase returns the metadata phase or an empty string.
func (u SearchUpdate) Phase() string {
	if u.Metadata == nil {
		return ""
	}
	return u.Metadata.Phase
}

// URL returns the metadata url or an empty string.
func (u SearchUpdate) URL() string {
	if u.Metadata == nil {
		return ""
	}
	return u.Metadata.URL
}

// ToolCall announces a tool invocation or its result.
type ToolCall struct {
	Tool     string         `json:"tool"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LimitExceeded is sent when the hourly message allowance is used up.
type LimitExceeded struct {
	Message string `json:"message"`
}

// ProRequired is the message body used when a feature needs a Pro subscription.
type ProRequired struct {
	Message string `json:"message"`
}

// ErrorMetadata qualifies an ErrorEvent.
type ErrorMetadata struct {
	ProRequired bool `json:"proRequired,omitempty"`
}

// ErrorEvent reports a failure after the stream has opened.
type ErrorEvent struct {
	Message  string         `json:"message"`
	Metadata *ErrorMetadata `json:"metadata,omitempty"`
}

// Complete is the final event of a stream that reached its end.
type Complete struct {
	Success   bool   `json:"success"`
	Stopped   bool   `json:"stopped,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Typing signals that the assistant started working on the reply.
type Typing struct {
	Typing bool `json:"typing"`
}

// Message is the persisted chat message echoed in user_message events.
type Message struct {
	ID        string         `json:"id"`
	ChatID    string         `json:"chatId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Encode builds an Event from a payload value.
func Encode(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Event{Type: t, Data: data}, nil
}

// Decode unmarshals the payload of e into T.
func Decode[T any](e Event) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, fmt.Errorf("event %s has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return v, nil
}
