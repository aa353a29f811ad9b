package transcoder

import (
	"testing"

	"github.com/eternisai/agent-stream/internal/agent"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wire struct {
	typ  events.EventType
	data string
}

func TestTranscode(t *testing.T) {
	tests := []struct {
		name string
		in   agent.Event
		want []wire
	}{
		{
			name: "content",
			in:   agent.Event{Type: agent.EventContent, Content: "Hi"},
			want: []wire{{events.TypeAIChunk, `{"content":"Hi"}`}},
		},
		{
			name: "thinking with phase",
			in:   agent.Event{Type: agent.EventThinking, Content: "Deciding", Phase: agent.PhaseToolConsideration, Metrics: agent.Metrics{ToolCount: 1}},
			want: []wire{{events.TypeThinkingStream, `{"content":"Deciding","metadata":{"phase":"tool_consideration","toolCount":1}}`}},
		},
		{
			name: "thinking without metadata",
			in:   agent.Event{Type: agent.EventThinking, Content: "Hmm"},
			want: []wire{{events.TypeThinkingStream, `{"content":"Hmm"}`}},
		},
		{
			name: "memory access",
			in:   agent.Event{Type: agent.EventMemoryAccess, Content: "Found 2", Phase: agent.PhaseMemory, Metrics: agent.Metrics{RelevantCount: 2}},
			want: []wire{{events.TypeMemoryAccess, `{"content":"Found 2","metadata":{"phase":"memory","relevantCount":2}}`}},
		},
		{
			name: "context analysis",
			in:   agent.Event{Type: agent.EventContextAnalysis, Content: "Reviewing"},
			want: []wire{{events.TypeContextAnalysis, `{"content":"Reviewing"}`}},
		},
		{
			name: "search result analysis",
			in:   agent.Event{Type: agent.EventSearchResultAnalysis, Content: "Analyzing", Phase: agent.PhaseResultAnalysis},
			want: []wire{{events.TypeSearchResultAnalysis, `{"content":"Analyzing","metadata":{"phase":"result_analysis"}}`}},
		},
		{
			name: "context synthesis",
			in:   agent.Event{Type: agent.EventContextSynthesis, Content: "Combining", Metrics: agent.Metrics{Duration: 1.5}},
			want: []wire{{events.TypeContextSynthesis, `{"content":"Combining","metadata":{"duration":1.5}}`}},
		},
		{
			name: "response planning",
			in:   agent.Event{Type: agent.EventResponsePlanning, Content: "Planning", Phase: agent.PhaseResponsePlanning},
			want: []wire{{events.TypeResponsePlanning, `{"content":"Planning","metadata":{"phase":"response_planning"}}`}},
		},
		{
			name: "search planning defaults phase",
			in:   agent.Event{Type: agent.EventSearchPlanning, Content: "Planning search"},
			want: []wire{{events.TypeSearchPlanning, `{"content":"Planning search","metadata":{"phase":"planning"}}`}},
		},
		{
			name: "search start",
			in:   agent.Event{Type: agent.EventSearchStart, Content: "go iterators", Phase: agent.PhaseSearching},
			want: []wire{{events.TypeSearchStart, `{"content":"go iterators","metadata":{"phase":"searching"}}`}},
		},
		{
			name: "search progress",
			in:   agent.Event{Type: agent.EventSearchProgress, Content: "Found 5", Phase: agent.PhaseResultsFound, Metrics: agent.Metrics{TotalResults: 5}},
			want: []wire{{events.TypeSearchProgress, `{"content":"Found 5","metadata":{"phase":"results_found","totalResults":5}}`}},
		},
		{
			name: "search detailed",
			in:   agent.Event{Type: agent.EventSearchDetailed, Content: "Go blog (go.dev)", Title: "Go blog"},
			want: []wire{{events.TypeSearchDetailed, `{"content":"Go blog (go.dev)","metadata":{"title":"Go blog"}}`}},
		},
		{
			name: "website scraping",
			in: agent.Event{
				Type: agent.EventWebsiteScraping, Content: "Extracted", Phase: agent.PhaseScrapingSuccess,
				URL: "https://go.dev/x", Title: "X", Metrics: agent.Metrics{ContentLength: 1200, QualityScore: 0.5},
			},
			want: []wire{{events.TypeWebsiteScraping, `{"content":"Extracted","metadata":{"phase":"scraping_success","url":"https://go.dev/x","title":"X","contentLength":1200,"qualityScore":0.5}}`}},
		},
		{
			name: "agent thought fans out with reasoning phase",
			in:   agent.Event{Type: agent.EventAgentThought, Content: "Let me check"},
			want: []wire{
				{events.TypeAgentThought, `{"content":"Let me check"}`},
				{events.TypeThinkingStream, `{"content":"Let me check","metadata":{"phase":"reasoning"}}`},
			},
		},
		{
			name: "agent thought keeps its phase",
			in:   agent.Event{Type: agent.EventAgentThought, Content: "Done", Phase: agent.PhaseSynthesis},
			want: []wire{
				{events.TypeAgentThought, `{"content":"Done","metadata":{"phase":"synthesis"}}`},
				{events.TypeThinkingStream, `{"content":"Done","metadata":{"phase":"synthesis"}}`},
			},
		},
		{
			name: "tool call fans out",
			in:   agent.Event{Type: agent.EventToolCall, Tool: agent.ToolWebSearch, Input: map[string]any{"queries": []string{"go"}}},
			want: []wire{
				{events.TypeToolCall, `{"tool":"web_search","metadata":{"input":{"queries":["go"]}}}`},
				{events.TypeAIToolUse, `{"tool":"web_search","metadata":{"input":{"queries":["go"]}}}`},
			},
		},
		{
			name: "tool result",
			in:   agent.Event{Type: agent.EventToolResult, Tool: agent.ToolWebSearch, Output: map[string]any{"sources": 2}},
			want: []wire{{events.TypeToolResult, `{"tool":"web_search","metadata":{"output":{"sources":2}}}`}},
		},
		{
			name: "processing fans out",
			in:   agent.Event{Type: agent.EventProcessing, Content: "Processing"},
			want: []wire{
				{events.TypeAgentProcessing, `{"content":"Processing"}`},
				{events.TypeAIThinking, `{"content":"Processing"}`},
			},
		},
		{
			name: "complete",
			in:   agent.Event{Type: agent.EventComplete},
			want: []wire{{events.TypeComplete, `{"success":true}`}},
		},
		{
			name: "error hides the cause",
			in:   agent.Event{Type: agent.EventError, Content: "upstream 502 from provider"},
			want: []wire{{events.TypeError, `{"message":"` + FallbackMessage + `"}`}},
		},
	}

	tc := New(logger.Discard(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tc.Transcode(tt.in)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.typ, got[i].Type)
				assert.JSONEq(t, w.data, string(got[i].Data))
				assert.True(t, got[i].Type.Known())
			}
		})
	}
}

func TestTranscodeCoversEveryAgentEvent(t *testing.T) {
	all := []agent.EventType{
		agent.EventContent, agent.EventThinking, agent.EventMemoryAccess, agent.EventContextAnalysis,
		agent.EventSearchPlanning, agent.EventSearchStart, agent.EventSearchProgress, agent.EventSearchDetailed,
		agent.EventWebsiteScraping, agent.EventSearchResultAnalysis, agent.EventContextSynthesis,
		agent.EventResponsePlanning, agent.EventAgentThought, agent.EventToolCall, agent.EventToolResult,
		agent.EventProcessing, agent.EventComplete, agent.EventError,
	}

	var dropped []string
	tc := New(logger.Discard(), func(typ string) { dropped = append(dropped, typ) })
	for _, typ := range all {
		got, err := tc.Transcode(agent.Event{Type: typ})
		require.NoError(t, err)
		assert.NotEmpty(t, got, typ)
	}
	assert.Empty(t, dropped)
}

func TestTranscodeDropsUnknown(t *testing.T) {
	var dropped []string
	tc := New(logger.Discard(), func(typ string) { dropped = append(dropped, typ) })

	got, err := tc.Transcode(agent.Event{Type: "brand_new_event", Content: "x"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{"brand_new_event"}, dropped)
}
