package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/agent-stream/pkg/events"
	"github.com/eternisai/agent-stream/pkg/panel"
	"github.com/eternisai/agent-stream/pkg/progress"
	"github.com/jonboulle/clockwork"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is written by the panel timer goroutine and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testRenderer struct {
	*renderer
	out   *lockedBuffer
	agg   *progress.Aggregator
	clock *clockwork.FakeClock
}

func newTestRenderer(t *testing.T, policy progress.Policy) *testRenderer {
	t.Helper()
	buf := &lockedBuffer{}
	out := termenv.NewOutput(buf, termenv.WithProfile(termenv.Ascii))
	clock := clockwork.NewFakeClock()
	agg := progress.NewAggregator(progress.WithClock(clock))

	var r *renderer
	p := panel.New(panel.WithClock(clock), panel.WithObserver(func(s panel.State) { r.OnPanel(s) }))
	t.Cleanup(p.Close)
	r = newRenderer(out, false, agg, p, policy)
	p.Handle(panel.ActivityStarted)

	return &testRenderer{renderer: r, out: buf, agg: agg, clock: clock}
}

func (tr *testRenderer) apply(t *testing.T, typ events.EventType, payload any) {
	t.Helper()
	ev, err := events.Encode(typ, payload)
	require.NoError(t, err)
	tr.OnChange(tr.agg.ApplyEvent(ev))
}

func scraping(phase, url, title string) events.SearchUpdate {
	return events.SearchUpdate{
		Content:  "Reading " + url,
		Metadata: &events.SearchMetadata{Phase: phase, URL: url, Title: title},
	}
}

func TestRendererPrintsStepsAndSummary(t *testing.T) {
	tr := newTestRenderer(t, progress.DefaultPolicy)

	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "Looking at the question"})
	tr.apply(t, events.TypeWebsiteScraping, scraping(progress.PhaseScrapingSuccess, "https://go.dev/doc", "Docs"))
	tr.apply(t, events.TypeWebsiteScraping, scraping(progress.PhaseScrapingError, "https://example.com/x", ""))
	tr.apply(t, events.TypeAIChunk, events.ContentDelta{Content: "Go is "})
	tr.apply(t, events.TypeAIChunk, events.ContentDelta{Content: "fine."})
	tr.apply(t, events.TypeComplete, events.Complete{Success: true, MessageID: "m1"})

	var summary bytes.Buffer
	tr.Summary(&summary)

	out := tr.out.String()
	assert.Contains(t, out, "· Looking at the question")
	assert.Contains(t, out, "⌕ Reading https://go.dev/doc (go.dev)")
	assert.NotContains(t, out, "%]", "no status line when not on a terminal")

	s := summary.String()
	assert.Contains(t, s, "Go is fine.")
	assert.Contains(t, s, "Sources")
	assert.Contains(t, s, "1. Docs go.dev content extracted")
	assert.Contains(t, s, "2. example.com example.com content retrieved")
	assert.Less(t, strings.Index(s, "Go is fine."), strings.Index(s, "Sources"))
}

func TestRendererRawStatusShowsFailures(t *testing.T) {
	tr := newTestRenderer(t, progress.Policy{})

	tr.apply(t, events.TypeWebsiteScraping, scraping(progress.PhaseScrapingError, "https://example.com/x", ""))
	tr.apply(t, events.TypeComplete, events.Complete{Success: true})

	var summary bytes.Buffer
	tr.Summary(&summary)
	assert.Contains(t, summary.String(), "example.com could not be read")
}

func TestRendererCollapsesAndReopens(t *testing.T) {
	tr := newTestRenderer(t, progress.DefaultPolicy)

	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "first"})
	tr.panel.Handle(panel.ActivityEnded)
	tr.clock.Advance(panel.DefaultDelay)

	require.Eventually(t, func() bool {
		return strings.Contains(tr.out.String(), "▸ progress (1 steps hidden)")
	}, time.Second, 5*time.Millisecond)

	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "second"})

	out := tr.out.String()
	assert.Contains(t, out, "▾ progress (reopened)")
	assert.Contains(t, out, "· second")
	assert.Equal(t, 1, strings.Count(out, "· first"))
}

func TestRendererHidesStepsWhileCollapsedByUser(t *testing.T) {
	tr := newTestRenderer(t, progress.DefaultPolicy)

	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "first"})
	tr.Toggle()
	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "hidden"})

	out := tr.out.String()
	assert.Contains(t, out, "▸ progress (1 steps hidden)")
	assert.NotContains(t, out, "· hidden")

	tr.Toggle()
	tr.apply(t, events.TypeThinkingStream, events.ThinkingUpdate{Content: "third"})
	out = tr.out.String()
	assert.Contains(t, out, "▾ progress")
	assert.NotContains(t, out, "(reopened)")
	assert.Contains(t, out, "· third")
}

func TestRendererSummaryOfFailedStreams(t *testing.T) {
	tests := []struct {
		name    string
		typ     events.EventType
		payload any
		want    string
	}{
		{
			name: "pro required",
			typ:  events.TypeError,
			payload: events.ErrorEvent{
				Message:  "Research mode requires a Pro subscription.",
				Metadata: &events.ErrorMetadata{ProRequired: true},
			},
			want: "error: Research mode requires a Pro subscription. (Pro required)",
		},
		{
			name:    "limit exceeded",
			typ:     events.TypeLimitExceeded,
			payload: events.LimitExceeded{Message: "You have used all your messages."},
			want:    "limit reached: You have used all your messages.",
		},
		{
			name:    "stopped",
			typ:     events.TypeComplete,
			payload: events.Complete{Stopped: true},
			want:    "stopped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRenderer(t, progress.DefaultPolicy)
			tr.apply(t, tt.typ, tt.payload)

			var summary bytes.Buffer
			tr.Summary(&summary)
			assert.Contains(t, summary.String(), tt.want)
			assert.NotContains(t, summary.String(), "Sources")
		})
	}
}
