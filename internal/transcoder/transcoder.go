// Package transcoder maps internal agent events to wire events.
//
// The mapping is a fixed table. Some internal events fan out to a second,
// legacy wire event so that older clients keep working. Unknown internal
// events are dropped and never fail the stream.
package transcoder

import (
	"fmt"
	"log/slog"

	"github.com/eternisai/agent-stream/internal/agent"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/pkg/events"
)

// FallbackMessage replaces the response when the agent fails.
const FallbackMessage = "Sorry, something went wrong while generating a response. Please try again."

// DropFunc is called with the type of every dropped internal event.
type DropFunc func(eventType string)

// Transcoder converts agent events. It is safe for concurrent use.
type Transcoder struct {
	logger *logger.Logger
	onDrop DropFunc
}

// New creates a Transcoder. onDrop may be nil.
func New(log *logger.Logger, onDrop DropFunc) *Transcoder {
	return &Transcoder{
		logger: log.WithComponent("transcoder"),
		onDrop: onDrop,
	}
}

// Transcode returns the wire events for ev, in emission order. It returns an
// empty slice for event types outside the table.
func (t *Transcoder) Transcode(ev agent.Event) ([]events.Event, error) {
	mapped := wireEvents(ev)
	if mapped == nil {
		t.logger.Warn("dropping unknown agent event", slog.String("event_type", string(ev.Type)))
		if t.onDrop != nil {
			t.onDrop(string(ev.Type))
		}
		return nil, nil
	}

	out := make([]events.Event, 0, len(mapped))
	for _, s := range mapped {
		wire, err := events.Encode(s.typ, s.payload)
		if err != nil {
			return nil, fmt.Errorf("transcode %s: %w", ev.Type, err)
		}
		out = append(out, wire)
	}
	return out, nil
}

type wireEvent struct {
	typ     events.EventType
	payload any
}

func wireEvents(ev agent.Event) []wireEvent {
	switch ev.Type {
	case agent.EventContent:
		return []wireEvent{{events.TypeAIChunk, events.ContentDelta{Content: ev.Content}}}

	case agent.EventThinking:
		return []wireEvent{{events.TypeThinkingStream, thinking(ev, "")}}

	case agent.EventMemoryAccess, agent.EventContextAnalysis, agent.EventSearchResultAnalysis,
		agent.EventContextSynthesis, agent.EventResponsePlanning:
		return []wireEvent{{events.EventType(ev.Type), thinking(ev, "")}}

	case agent.EventSearchPlanning:
		return []wireEvent{{events.TypeSearchPlanning, thinking(ev, agent.PhasePlanning)}}

	case agent.EventSearchStart, agent.EventSearchProgress, agent.EventSearchDetailed, agent.EventWebsiteScraping:
		return []wireEvent{{events.EventType(ev.Type), searchUpdate(ev)}}

	case agent.EventAgentThought:
		return []wireEvent{
			{events.TypeAgentThought, thinking(ev, "")},
			{events.TypeThinkingStream, thinking(ev, agent.PhaseReasoning)},
		}

	case agent.EventToolCall:
		call := toolCall(ev.Tool, "input", ev.Input)
		return []wireEvent{{events.TypeToolCall, call}, {events.TypeAIToolUse, call}}

	case agent.EventToolResult:
		return []wireEvent{{events.TypeToolResult, toolCall(ev.Tool, "output", ev.Output)}}

	case agent.EventProcessing:
		update := thinking(ev, "")
		return []wireEvent{{events.TypeAgentProcessing, update}, {events.TypeAIThinking, update}}

	case agent.EventComplete:
		return []wireEvent{{events.TypeComplete, events.Complete{Success: true}}}

	case agent.EventError:
		return []wireEvent{{events.TypeError, events.ErrorEvent{Message: FallbackMessage}}}
	}
	return nil
}

// thinking builds a ThinkingUpdate; defaultPhase applies when ev has none.
func thinking(ev agent.Event, defaultPhase string) events.ThinkingUpdate {
	phase := ev.Phase
	if phase == "" {
		phase = defaultPhase
	}

	md := events.ThinkingMetadata{
		Phase:         phase,
		Duration:      ev.Metrics.Duration,
		ToolCount:     ev.Metrics.ToolCount,
		RelevantCount: ev.Metrics.RelevantCount,
	}
	update := events.ThinkingUpdate{Content: ev.Content}
	if md != (events.ThinkingMetadata{}) {
		update.Metadata = &md
	}
	return update
}

func searchUpdate(ev agent.Event) events.SearchUpdate {
	md := events.SearchMetadata{
		Phase:         ev.Phase,
		URL:           ev.URL,
		Title:         ev.Title,
		TotalResults:  ev.Metrics.TotalResults,
		ContentLength: ev.Metrics.ContentLength,
		QualityScore:  ev.Metrics.QualityScore,
	}
	update := events.SearchUpdate{Content: ev.Content}
	if md != (events.SearchMetadata{}) {
		update.Metadata = &md
	}
	return update
}

func toolCall(tool, key string, value map[string]any) events.ToolCall {
	call := events.ToolCall{Tool: tool}
	if value != nil {
		call.Metadata = map[string]any{key: value}
	}
	return call
}
