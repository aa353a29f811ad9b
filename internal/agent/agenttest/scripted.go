// Package agenttest provides a scripted agent for relay tests.
package agenttest

import (
	"context"
	"iter"
	"sync"

	"github.com/eternisai/agent-stream/internal/agent"
)

// Scripted replays a fixed list of events. It can end with an error and can
// block before a given event until released.
type Scripted struct {
	events []agent.Event
	err    error
	model  string

	blockAt int
	gate    chan struct{}
	reached chan struct{}
	once    sync.Once

	mu       sync.Mutex
	requests []agent.Request
	pulled   int
}

var _ agent.Agent = (*Scripted)(nil)

// New returns an agent replaying events.
func New(events ...agent.Event) *Scripted {
	return &Scripted{events: events, model: "scripted-model", blockAt: -1}
}

// FailWith makes the sequence end with err after the scripted events.
func (s *Scripted) FailWith(err error) *Scripted {
	s.err = err
	return s
}

// BlockAt makes the agent wait before yielding the event at index i until
// Release is called or the context ends.
func (s *Scripted) BlockAt(i int) *Scripted {
	s.blockAt = i
	s.gate = make(chan struct{})
	s.reached = make(chan struct{})
	return s
}

// Reached is closed once the agent waits at its block point.
func (s *Scripted) Reached() <-chan struct{} { return s.reached }

// Release unblocks the agent.
func (s *Scripted) Release() {
	s.once.Do(func() { close(s.gate) })
}

func (s *Scripted) Model() string { return s.model }

// Requests returns the requests the agent was started with.
func (s *Scripted) Requests() []agent.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Request(nil), s.requests...)
}

// Pulled returns how many events were handed to consumers.
func (s *Scripted) Pulled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled
}

func (s *Scripted) Stream(ctx context.Context, req agent.Request) iter.Seq2[agent.Event, error] {
	return func(yield func(agent.Event, error) bool) {
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		for i, ev := range s.events {
			if i == s.blockAt {
				close(s.reached)
				select {
				case <-s.gate:
				case <-ctx.Done():
				}
			}
			if err := ctx.Err(); err != nil {
				yield(agent.Event{}, err)
				return
			}
			s.mu.Lock()
			s.pulled++
			s.mu.Unlock()
			if !yield(ev, nil) {
				return
			}
		}
		if s.err != nil {
			yield(agent.Event{}, s.err)
		}
	}
}

// Content is a content event.
func Content(text string) agent.Event {
	return agent.Event{Type: agent.EventContent, Content: text}
}

// Thinking is a thinking event with a phase.
func Thinking(text, phase string) agent.Event {
	return agent.Event{Type: agent.EventThinking, Content: text, Phase: phase}
}

// Scraping is a website_scraping event for url.
func Scraping(url, phase string) agent.Event {
	return agent.Event{Type: agent.EventWebsiteScraping, Content: "Reading " + url, Phase: phase, URL: url}
}

// Complete ends the reply.
func Complete() agent.Event {
	return agent.Event{Type: agent.EventComplete}
}
