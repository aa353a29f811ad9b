package relay

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/eternisai/agent-stream/internal/agent"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/internal/metrics"
	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/eternisai/agent-stream/internal/streaming"
	"github.com/eternisai/agent-stream/internal/transcoder"
	"github.com/eternisai/agent-stream/pkg/events"
)

// streamRun is the open-stream part of one request.
type streamRun struct {
	h            *Handler
	w            *sseWriter
	session      *streaming.StreamSession
	chat         storage.Chat
	userID       string
	researchMode bool
	log          *logger.Logger
	start        time.Time

	buffer  strings.Builder
	sources []string
}

// serve runs the gates and relays the agent until a terminal outcome.
func (r *streamRun) serve(ctx context.Context, userMsg storage.Message, history []storage.Message) metrics.Outcome {
	if err := r.send(events.TypeUserMessage, wireMessage(userMsg)); err != nil {
		return metrics.OutcomeAbandoned
	}

	limited, err := r.h.entitlements.IsRateLimited(ctx, r.userID)
	switch {
	case err != nil && r.h.opts.RateLimitFailClosed:
		r.log.Error("rate limit check failed", slog.String("error", err.Error()))
		r.sendTerminal(events.TypeError, events.ErrorEvent{Message: msgLimitUnavailable})
		return metrics.OutcomeError
	case err != nil:
		r.log.Warn("rate limit check failed, allowing message", slog.String("error", err.Error()))
	case limited:
		r.sendTerminal(events.TypeLimitExceeded, events.LimitExceeded{Message: r.h.entitlements.LimitMessage(ctx, r.userID)})
		return metrics.OutcomeLimitExceeded
	}

	if r.researchMode {
		isPro, err := r.h.entitlements.IsPro(ctx, r.userID)
		if err != nil {
			r.log.Error("subscription check failed", slog.String("error", err.Error()))
			r.sendTerminal(events.TypeError, events.ErrorEvent{Message: msgTierUnavailable})
			return metrics.OutcomeError
		}
		if !isPro {
			r.sendTerminal(events.TypeError, events.ErrorEvent{
				Message:  msgProRequired,
				Metadata: &events.ErrorMetadata{ProRequired: true},
			})
			return metrics.OutcomeProRequired
		}
	}

	if err := r.send(events.TypeAITyping, events.Typing{Typing: true}); err != nil {
		return metrics.OutcomeAbandoned
	}

	return r.relay(ctx, userMsg.Content, history)
}

// relay pulls agent events one at a time; each is written and flushed before
// the next is requested.
func (r *streamRun) relay(ctx context.Context, prompt string, history []storage.Message) metrics.Outcome {
	req := agent.Request{
		Prompt:       prompt,
		History:      turns(history),
		UserID:       r.userID,
		ChatID:       r.chat.ID,
		ResearchMode: r.researchMode,
	}

	for ev, err := range r.h.agent.Stream(ctx, req) {
		if ctx.Err() != nil {
			return r.interrupted(ctx)
		}
		if err != nil {
			return r.fail(err)
		}

		switch ev.Type {
		case agent.EventComplete:
			return r.complete()
		case agent.EventError:
			return r.fail(errors.New(ev.Content))
		case agent.EventContent:
			r.buffer.WriteString(ev.Content)
		case agent.EventWebsiteScraping:
			r.trackSource(ev)
		}

		wire, err := r.h.transcoder.Transcode(ev)
		if err != nil {
			r.log.Warn("failed to transcode agent event",
				slog.String("event_type", string(ev.Type)),
				slog.String("error", err.Error()))
			continue
		}
		for _, w := range wire {
			if err := r.w.Send(w); err != nil {
				r.log.Info("client went away", slog.String("error", err.Error()))
				return metrics.OutcomeAbandoned
			}
		}
	}

	if ctx.Err() != nil {
		return r.interrupted(ctx)
	}
	return r.complete()
}

// interrupted handles a canceled stream: a stop keeps the partial reply,
// a disconnect keeps nothing.
func (r *streamRun) interrupted(ctx context.Context) metrics.Outcome {
	cause := context.Cause(ctx)
	if !errors.Is(cause, streaming.ErrStopped) && !errors.Is(cause, streaming.ErrShutdown) {
		r.log.Info("client disconnected, abandoning stream")
		return metrics.OutcomeAbandoned
	}

	md := r.metadata()
	md["stopped"] = true
	msg, err := r.persist(r.buffer.String(), md)
	if err != nil {
		r.sendTerminal(events.TypeError, events.ErrorEvent{Message: transcoder.FallbackMessage})
		return metrics.OutcomeError
	}

	r.sendTerminal(events.TypeComplete, events.Complete{Success: false, Stopped: true, MessageID: msg.ID})
	return metrics.OutcomeStopped
}

func (r *streamRun) complete() metrics.Outcome {
	msg, err := r.persist(r.buffer.String(), r.metadata())
	if err != nil {
		r.sendTerminal(events.TypeError, events.ErrorEvent{Message: transcoder.FallbackMessage})
		return metrics.OutcomeError
	}

	r.sendTerminal(events.TypeComplete, events.Complete{Success: true, MessageID: msg.ID})
	return metrics.OutcomeComplete
}

// fail replaces the reply with the fallback text. The partial content is
// discarded.
func (r *streamRun) fail(cause error) metrics.Outcome {
	r.log.Error("agent failed", slog.String("error", cause.Error()))

	md := r.metadata()
	md["error"] = true
	if _, err := r.persist(transcoder.FallbackMessage, md); err != nil {
		r.log.Error("failed to store fallback reply", slog.String("error", err.Error()))
	}

	r.sendTerminal(events.TypeError, events.ErrorEvent{Message: transcoder.FallbackMessage})
	return metrics.OutcomeError
}

// persist stores the assistant reply and bumps the chat. It runs detached
// from the request so a stop does not cancel it.
func (r *streamRun) persist(content string, md map[string]any) (storage.Message, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.session.Context()), persistTimeout)
	defer cancel()

	msg, err := r.h.store.CreateMessage(ctx, storage.CreateMessageParams{
		ChatID:   r.chat.ID,
		Role:     storage.RoleAssistant,
		Content:  content,
		Metadata: md,
	})
	if err != nil {
		r.log.Error("failed to store assistant message", slog.String("error", err.Error()))
		return storage.Message{}, err
	}

	if err := r.h.store.TouchChat(ctx, r.chat.ID, r.h.clock.Now()); err != nil {
		r.log.Warn("failed to update chat timestamp", slog.String("error", err.Error()))
	}
	return msg, nil
}

func (r *streamRun) metadata() map[string]any {
	return map[string]any{
		"model":        r.h.agent.Model(),
		"streaming":    true,
		"researchMode": r.researchMode,
		"sources":      slices.Clone(r.sources),
		"durationMs":   r.h.clock.Since(r.start).Milliseconds(),
	}
}

func (r *streamRun) trackSource(ev agent.Event) {
	if ev.URL == "" || (ev.Phase != agent.PhaseScrapingSuccess && ev.Phase != agent.PhaseScrapingFallback) {
		return
	}
	if !slices.Contains(r.sources, ev.URL) {
		r.sources = append(r.sources, ev.URL)
	}
}

func (r *streamRun) send(t events.EventType, payload any) error {
	ev, err := events.Encode(t, payload)
	if err != nil {
		return err
	}
	return r.w.Send(ev)
}

// sendTerminal writes the final frame. A failure only means the client is
// already gone.
func (r *streamRun) sendTerminal(t events.EventType, payload any) {
	if err := r.send(t, payload); err != nil {
		r.log.Info("failed to send terminal event",
			slog.String("event_type", string(t)),
			slog.String("error", err.Error()))
	}
}

func wireMessage(m storage.Message) events.Message {
	return events.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
}

func turns(history []storage.Message) []agent.Turn {
	out := make([]agent.Turn, 0, len(history))
	for _, m := range history {
		out = append(out, agent.Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}
