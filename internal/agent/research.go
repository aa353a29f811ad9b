package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/eternisai/agent-stream/internal/config"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/memory"
	"github.com/eternisai/agent-stream/internal/scrape"
	"github.com/eternisai/agent-stream/internal/search"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// maxSourceChars bounds how much of each page goes into the prompt.
const maxSourceChars = 4000

// errStopped ends a run whose consumer stopped pulling events.
var errStopped = errors.New("consumer stopped")

// Searcher finds web pages for a query.
type Searcher interface {
	Configured() bool
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// PageFetcher downloads the text of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scrape.Page, error)
}

// MemoryProvider returns what is remembered about a user.
type MemoryProvider interface {
	GetFormattedMemory(ctx context.Context, userID string) (memory.Memory, error)
}

// ResearchAgent answers with an optional web research phase: it reads the
// user's memory and the conversation, searches, reads the best pages in
// parallel and streams a synthesized answer.
type ResearchAgent struct {
	model   ChatModel
	search  Searcher
	fetcher PageFetcher
	memory  MemoryProvider
	cfg     config.AgentConfig
	clock   clockwork.Clock
	logger  *logger.Logger
}

var _ Agent = (*ResearchAgent)(nil)

// Option configures a ResearchAgent.
type Option func(*ResearchAgent)

// WithSearch enables web search.
func WithSearch(s Searcher) Option {
	return func(a *ResearchAgent) { a.search = s }
}

// WithFetcher enables reading search results.
func WithFetcher(f PageFetcher) Option {
	return func(a *ResearchAgent) { a.fetcher = f }
}

// WithMemory enables user memory.
func WithMemory(m MemoryProvider) Option {
	return func(a *ResearchAgent) { a.memory = m }
}

// WithClock sets the clock used for phase durations.
func WithClock(c clockwork.Clock) Option {
	return func(a *ResearchAgent) { a.clock = c }
}

// NewResearchAgent creates an agent answering with model.
func NewResearchAgent(model ChatModel, cfg config.AgentConfig, log *logger.Logger, opts ...Option) *ResearchAgent {
	a := &ResearchAgent{
		model:  model,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: log.WithComponent("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ResearchAgent) Model() string {
	if a.model == nil {
		return ""
	}
	return a.model.Name()
}

func (a *ResearchAgent) Stream(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		r := &run{ResearchAgent: a, req: req, yield: yield, log: a.logger.WithContext(ctx)}
		if err := r.execute(ctx); err != nil && !errors.Is(err, errStopped) {
			yield(Event{}, err)
		}
	}
}

// run is the state of one Stream call.
type run struct {
	*ResearchAgent
	req   Request
	yield func(Event, error) bool
	log   *logger.Logger
}

// source is a page used to ground the answer.
type source struct {
	URL      string
	Title    string
	Text     string
	Fallback bool
}

func (r *run) emit(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.yield(ev, nil) {
		return errStopped
	}
	return nil
}

func (r *run) execute(ctx context.Context) error {
	if r.model == nil {
		return ErrNoModel
	}
	start := r.clock.Now()

	if err := r.emit(ctx, Event{Type: EventProcessing, Content: "Processing your message"}); err != nil {
		return err
	}
	if err := r.emit(ctx, Event{Type: EventThinking, Content: "Analyzing your question", Phase: PhaseAnalysis}); err != nil {
		return err
	}

	mem, err := r.loadMemory(ctx)
	if err != nil {
		return err
	}

	if n := len(r.req.History); n > 0 {
		err := r.emit(ctx, Event{
			Type:    EventContextAnalysis,
			Content: fmt.Sprintf("Reviewing %d earlier messages", n),
			Phase:   PhaseContext,
			Metrics: Metrics{RelevantCount: n},
		})
		if err != nil {
			return err
		}
	}

	var sources []source
	if r.search != nil && r.search.Configured() {
		err := r.emit(ctx, Event{
			Type:    EventThinking,
			Content: "Deciding whether to search the web",
			Phase:   PhaseToolConsideration,
			Metrics: Metrics{ToolCount: 1},
		})
		if err != nil {
			return err
		}

		if NeedsSearch(r.req.Prompt, r.req.ResearchMode) {
			if sources, err = r.research(ctx); err != nil {
				return err
			}
		}
	}

	err = r.emit(ctx, Event{
		Type:    EventContextSynthesis,
		Content: synthesisText(len(sources), mem.Count),
		Phase:   PhaseSynthesis,
		Metrics: Metrics{
			Duration:      math.Round(r.clock.Since(start).Seconds()*10) / 10,
			RelevantCount: len(sources),
		},
	})
	if err != nil {
		return err
	}
	if err := r.emit(ctx, Event{Type: EventResponsePlanning, Content: "Planning the response", Phase: PhaseResponsePlanning}); err != nil {
		return err
	}

	for delta, err := range r.model.Stream(ctx, r.messages(mem, sources)) {
		if err != nil {
			return err
		}
		if delta.Reasoning != "" {
			if err := r.emit(ctx, Event{Type: EventAgentThought, Content: delta.Reasoning}); err != nil {
				return err
			}
		}
		if delta.Content != "" {
			if err := r.emit(ctx, Event{Type: EventContent, Content: delta.Content}); err != nil {
				return err
			}
		}
	}

	return r.emit(ctx, Event{Type: EventComplete})
}

func (r *run) loadMemory(ctx context.Context) (memory.Memory, error) {
	if r.memory == nil || r.req.UserID == "" {
		return memory.Memory{}, nil
	}

	mem, err := r.memory.GetFormattedMemory(ctx, r.req.UserID)
	if err != nil {
		// Memory is optional context.
		r.log.Warn("continuing without memory", slog.String("error", err.Error()))
		mem = memory.Memory{}
	}

	content := "No saved memories are relevant"
	if mem.Count > 0 {
		content = fmt.Sprintf("Found %d saved memories", mem.Count)
	}
	err = r.emit(ctx, Event{
		Type:    EventMemoryAccess,
		Content: content,
		Phase:   PhaseMemory,
		Metrics: Metrics{RelevantCount: mem.Count},
	})
	return mem, err
}

func (r *run) research(ctx context.Context) ([]source, error) {
	maxQueries, maxSources := r.cfg.MaxQueries, r.cfg.MaxSources
	if r.req.ResearchMode {
		maxQueries, maxSources = r.cfg.ResearchMaxQueries, r.cfg.ResearchMaxSources
	}

	if err := r.emit(ctx, Event{Type: EventSearchPlanning, Content: "Planning web search", Phase: PhasePlanning}); err != nil {
		return nil, err
	}
	queries := PlanQueries(ctx, r.model, r.req.Prompt, maxQueries)

	err := r.emit(ctx, Event{
		Type:  EventToolCall,
		Tool:  ToolWebSearch,
		Input: map[string]any{"queries": queries},
	})
	if err != nil {
		return nil, err
	}

	var results []search.Result
	seen := map[string]bool{}
	for _, q := range queries {
		if err := r.emit(ctx, Event{Type: EventSearchStart, Content: q, Phase: PhaseSearching}); err != nil {
			return nil, err
		}

		found, err := r.search.Search(ctx, q, maxSources)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Warn("search failed", slog.String("query", q), slog.String("error", err.Error()))
			if err := r.emit(ctx, Event{Type: EventSearchProgress, Content: "Search failed for " + q}); err != nil {
				return nil, err
			}
			continue
		}

		err = r.emit(ctx, Event{
			Type:    EventSearchProgress,
			Content: fmt.Sprintf("Found %d results", len(found)),
			Phase:   PhaseResultsFound,
			Metrics: Metrics{TotalResults: len(found)},
		})
		if err != nil {
			return nil, err
		}

		for _, res := range found {
			if res.URL == "" || seen[res.URL] || len(results) >= maxSources {
				continue
			}
			seen[res.URL] = true
			results = append(results, res)
			err := r.emit(ctx, Event{
				Type:    EventSearchDetailed,
				Content: fmt.Sprintf("%s (%s)", res.Title, hostOf(res.URL)),
				Title:   res.Title,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	sources, err := r.scrape(ctx, results)
	if err != nil {
		return nil, err
	}

	err = r.emit(ctx, Event{
		Type:   EventToolResult,
		Tool:   ToolWebSearch,
		Output: map[string]any{"results": len(results), "sources": len(sources)},
	})
	if err != nil {
		return nil, err
	}

	if len(sources) > 0 {
		err := r.emit(ctx, Event{
			Type:    EventSearchResultAnalysis,
			Content: fmt.Sprintf("Analyzing %d sources", len(sources)),
			Phase:   PhaseResultAnalysis,
			Metrics: Metrics{RelevantCount: len(sources)},
		})
		if err != nil {
			return nil, err
		}
	}

	content := "Search complete"
	if len(sources) == 0 {
		content = "No usable sources found"
	}
	err = r.emit(ctx, Event{Type: EventSearchProgress, Content: content, Phase: PhaseSearchComplete})
	return sources, err
}

type scrapeResult struct {
	index int
	page  scrape.Page
	err   error
}

// scrape reads results concurrently and reports each page as it finishes.
func (r *run) scrape(ctx context.Context, results []search.Result) ([]source, error) {
	if len(results) == 0 {
		return nil, nil
	}

	for _, res := range results {
		err := r.emit(ctx, Event{
			Type:    EventWebsiteScraping,
			Content: "Reading " + hostOf(res.URL),
			Phase:   PhaseScrapingStart,
			URL:     res.URL,
			Title:   res.Title,
		})
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan scrapeResult)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.ScrapeConcurrency, 1))
	timeout := time.Duration(r.cfg.ScrapeTimeoutSeconds) * time.Second

	go func() {
		for i, res := range results {
			g.Go(func() error {
				var (
					page scrape.Page
					err  = errors.New("no page fetcher configured")
				)
				if r.fetcher != nil {
					fctx, cancel := context.WithTimeout(gctx, timeout)
					page, err = r.fetcher.Fetch(fctx, res.URL)
					cancel()
				}
				select {
				case done <- scrapeResult{index: i, page: page, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	byIndex := make([]*source, len(results))
	for sr := range done {
		res := results[sr.index]
		ev, src := scrapeEvent(res, sr)
		byIndex[sr.index] = src
		if err := r.emit(ctx, ev); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sources []source
	for _, src := range byIndex {
		if src != nil {
			sources = append(sources, *src)
		}
	}
	return sources, nil
}

func scrapeEvent(res search.Result, sr scrapeResult) (Event, *source) {
	host := hostOf(res.URL)
	ev := Event{Type: EventWebsiteScraping, URL: res.URL, Title: res.Title}

	switch {
	case sr.err == nil && strings.TrimSpace(sr.page.Text) != "":
		title := sr.page.Title
		if title == "" {
			title = res.Title
		}
		ev.Title = title
		ev.Phase = PhaseScrapingSuccess
		ev.Content = "Extracted content from " + host
		ev.Metrics = Metrics{ContentLength: sr.page.Bytes, QualityScore: scrape.Quality(sr.page.Text)}
		return ev, &source{URL: res.URL, Title: title, Text: sr.page.Text}

	case res.Snippet != "":
		ev.Phase = PhaseScrapingFallback
		ev.Content = "Using the search summary for " + host
		ev.Metrics = Metrics{ContentLength: len(res.Snippet), QualityScore: scrape.Quality(res.Snippet)}
		return ev, &source{URL: res.URL, Title: res.Title, Text: res.Snippet, Fallback: true}

	default:
		ev.Phase = PhaseScrapingError
		ev.Content = "Could not read " + host
		return ev, nil
	}
}

func (r *run) messages(mem memory.Memory, sources []source) []ChatMessage {
	var system strings.Builder
	system.WriteString(r.cfg.SystemPrompt)
	if mem.Prompt != "" {
		system.WriteString("\n\n")
		system.WriteString(mem.Prompt)
	}
	if len(sources) > 0 {
		system.WriteString("\n\nSources:")
		for i, src := range sources {
			fmt.Fprintf(&system, "\n\n[%d] %s (%s)\n%s", i+1, src.Title, src.URL, truncate(src.Text, maxSourceChars))
		}
	}

	msgs := []ChatMessage{{Role: RoleSystem, Content: system.String()}}
	for _, turn := range r.req.History {
		role := RoleUser
		if turn.Role == RoleAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: turn.Content})
	}
	return append(msgs, ChatMessage{Role: RoleUser, Content: r.req.Prompt})
}

func synthesisText(sources, memories int) string {
	switch {
	case sources > 0:
		return fmt.Sprintf("Combining %d sources with the conversation", sources)
	case memories > 0:
		return "Combining your saved memories with the conversation"
	default:
		return "Preparing an answer from the conversation"
	}
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
