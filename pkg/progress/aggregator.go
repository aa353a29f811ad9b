package progress

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Change summarizes what a single frame did to the aggregator state.
type Change struct {
	Type          events.EventType
	ThinkingAdded bool
	SearchAdded   bool
	ContentAdded  bool
	Terminal      bool
}

// StepAdded reports whether the frame appended a thinking or search step.
func (c Change) StepAdded() bool {
	return c.ThinkingAdded || c.SearchAdded
}

// Snapshot is a copy of the aggregator state that is safe to keep.
type Snapshot struct {
	UserMessage  *events.Message
	Typing       bool
	Status       string
	Thinking     []ThinkingStep
	Search       []SearchStep
	ToolCalls    []ToolCall
	Content      string
	Terminal     Terminal
	ErrorMessage string
	ProRequired  bool
	Stopped      bool
	MessageID    string
}

// Aggregator folds wire events into ordered step buffers, a content
// accumulator and a terminal state. It is safe for concurrent use: one
// goroutine consumes the stream while others take snapshots.
type Aggregator struct {
	clock  clockwork.Clock
	logger *slog.Logger
	newID  func() string

	mu          sync.Mutex
	userMessage *events.Message
	typing      bool
	status      string
	thinking    []ThinkingStep
	search      []SearchStep
	tools       []ToolCall
	content     strings.Builder
	terminal    Terminal
	errMessage  string
	proRequired bool
	stopped     bool
	messageID   string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used for step timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the logger used for skipped frames.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithIDFunc sets the step ID generator.
func WithIDFunc(fn func() string) Option {
	return func(a *Aggregator) { a.newID = fn }
}

// NewAggregator returns an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume reads frames from r until EOF, the [DONE] sentinel, a read error or
// ctx cancellation. onChange, when set, is called after every applied frame
// outside the aggregator lock.
func (a *Aggregator) Consume(ctx context.Context, r io.Reader, onChange func(Change)) error {
	for res, err := range Parse(r) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		if res.Done {
			return nil
		}

		change := a.Apply(res)
		if onChange != nil {
			onChange(change)
		}
	}
	return ctx.Err()
}

// Apply folds a parsed frame into the state. Frames that are not JSON are
// appended to the content verbatim; other parse failures are logged and
// skipped.
func (a *Aggregator) Apply(res Result) Change {
	switch {
	case res.Err != nil && res.Err.Kind == NotJSON:
		a.mu.Lock()
		a.content.WriteString(res.Err.Body)
		a.mu.Unlock()
		a.logger.Debug("non-json frame appended to content", slog.Int("length", len(res.Err.Body)))
		return Change{ContentAdded: true}
	case res.Err != nil:
		a.logger.Debug("skipping malformed frame", slog.String("error", res.Err.Error()))
		return Change{}
	case res.Done || res.Empty():
		return Change{}
	}
	return a.ApplyEvent(res.Event)
}

// ApplyEvent folds a single wire event into the state.
func (a *Aggregator) ApplyEvent(ev events.Event) Change {
	change := Change{Type: ev.Type}

	if !ev.Type.Known() {
		a.logger.Debug("skipping unknown event type", slog.String("type", string(ev.Type)))
		return change
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	switch ev.Type {
	case events.TypeUserMessage:
		var msg events.Message
		if msg, err = events.Decode[events.Message](ev); err == nil {
			a.userMessage = &msg
		}

	case events.TypeAITyping:
		var t events.Typing
		if t, err = events.Decode[events.Typing](ev); err == nil {
			a.typing = t.Typing
		}

	case events.TypeAIChunk:
		var delta events.ContentDelta
		if delta, err = events.Decode[events.ContentDelta](ev); err == nil {
			a.content.WriteString(delta.Content)
			change.ContentAdded = true
		}

	case events.TypeThinkingStream, events.TypeMemoryAccess, events.TypeContextAnalysis,
		events.TypeContextSynthesis, events.TypeResponsePlanning:
		var u events.ThinkingUpdate
		if u, err = events.Decode[events.ThinkingUpdate](ev); err == nil {
			a.addThinking(ev.Type, u)
			change.ThinkingAdded = true
		}

	case events.TypeSearchPlanning, events.TypeSearchResultAnalysis:
		// Both a reasoning phase and a search milestone.
		var u events.ThinkingUpdate
		if u, err = events.Decode[events.ThinkingUpdate](ev); err == nil {
			a.addThinking(ev.Type, u)
			a.addSearch(ev.Type, events.SearchUpdate{
				Content:  u.Content,
				Metadata: &events.SearchMetadata{Phase: u.Phase()},
			})
			change.ThinkingAdded = true
			change.SearchAdded = true
		}

	case events.TypeSearchStart, events.TypeSearchProgress, events.TypeSearchDetailed, events.TypeWebsiteScraping:
		var u events.SearchUpdate
		if u, err = events.Decode[events.SearchUpdate](ev); err == nil {
			a.addSearch(ev.Type, u)
			change.SearchAdded = true
		}

	case events.TypeToolCall:
		var tc events.ToolCall
		if tc, err = events.Decode[events.ToolCall](ev); err == nil {
			a.tools = append(a.tools, ToolCall{Tool: tc.Tool, Input: tc.Metadata})
		}

	case events.TypeToolResult:
		var tc events.ToolCall
		if tc, err = events.Decode[events.ToolCall](ev); err == nil {
			a.finishTool(tc)
		}

	case events.TypeAgentProcessing:
		var u events.ThinkingUpdate
		if u, err = events.Decode[events.ThinkingUpdate](ev); err == nil {
			a.status = u.Content
		}

	case events.TypeComplete:
		var c events.Complete
		if c, err = events.Decode[events.Complete](ev); err == nil {
			change.Terminal = a.finish(TerminalComplete)
			a.stopped = c.Stopped
			a.messageID = c.MessageID
		}

	case events.TypeError:
		var e events.ErrorEvent
		if e, err = events.Decode[events.ErrorEvent](ev); err == nil {
			change.Terminal = a.finish(TerminalError)
			a.errMessage = e.Message
			a.proRequired = e.Metadata != nil && e.Metadata.ProRequired
		}

	case events.TypeLimitExceeded:
		var l events.LimitExceeded
		if l, err = events.Decode[events.LimitExceeded](ev); err == nil {
			change.Terminal = a.finish(TerminalLimitExceeded)
			a.errMessage = l.Message
		}

	default:
		// agent_thought, ai_thinking and ai_tool_use duplicate events this
		// client already handles.
	}

	if err != nil {
		a.logger.Debug("skipping event with invalid payload",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()))
		return Change{Type: ev.Type}
	}
	return change
}

func (a *Aggregator) addThinking(t events.EventType, u events.ThinkingUpdate) {
	a.thinking = append(a.thinking, ThinkingStep{
		ID:        a.newID(),
		Type:      t,
		Content:   u.Content,
		Phase:     u.Phase(),
		Timestamp: a.clock.Now(),
		Metadata:  u.Metadata,
	})
}

func (a *Aggregator) addSearch(t events.EventType, u events.SearchUpdate) {
	step := SearchStep{
		ID:        a.newID(),
		Type:      searchStepType(t, u.Phase()),
		Tool:      ToolWebSearch,
		Content:   u.Content,
		URL:       u.URL(),
		Timestamp: a.clock.Now(),
		Metadata:  u.Metadata,
	}
	if t == events.TypeWebsiteScraping {
		step.Tool = ToolWebScraper
	}
	if u.Metadata != nil && u.Metadata.QualityScore > 0 {
		q := u.Metadata.QualityScore
		step.Quality = &q
	}
	a.search = append(a.search, step)
}

func searchStepType(t events.EventType, phase string) SearchStepType {
	if phase == PhaseSearchComplete || phase == PhaseResearchComplete {
		return SearchComplete
	}
	switch t {
	case events.TypeSearchPlanning:
		return SearchPlanning
	case events.TypeSearchStart:
		return SearchStart
	case events.TypeSearchResultAnalysis:
		return SearchAnalysis
	default:
		return SearchProgress
	}
}

func (a *Aggregator) finishTool(result events.ToolCall) {
	for i := len(a.tools) - 1; i >= 0; i-- {
		if a.tools[i].Tool == result.Tool && !a.tools[i].Finished {
			a.tools[i].Output = result.Metadata
			a.tools[i].Finished = true
			return
		}
	}
	a.tools = append(a.tools, ToolCall{Tool: result.Tool, Output: result.Metadata, Finished: true})
}

// finish records the first terminal event and reports whether it was new.
func (a *Aggregator) finish(t Terminal) bool {
	if a.terminal != TerminalNone {
		return false
	}
	a.terminal = t
	a.typing = false
	return true
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		UserMessage:  a.userMessage,
		Typing:       a.typing,
		Status:       a.status,
		Thinking:     slices.Clone(a.thinking),
		Search:       slices.Clone(a.search),
		ToolCalls:    slices.Clone(a.tools),
		Content:      a.content.String(),
		Terminal:     a.terminal,
		ErrorMessage: a.errMessage,
		ProRequired:  a.proRequired,
		Stopped:      a.stopped,
		MessageID:    a.messageID,
	}
}

// Estimate runs the progress heuristics over the current steps.
func (a *Aggregator) Estimate() Estimate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return EstimateProgress(a.thinking, a.search)
}

// Sites groups the current site steps by hostname.
func (a *Aggregator) Sites(policy Policy) []WebsiteGroup {
	a.mu.Lock()
	defer a.mu.Unlock()
	return GroupSites(a.search, policy)
}
