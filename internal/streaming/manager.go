package streaming

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// lockReleaseTimeout bounds the distributed unlock after a stream ends.
const lockReleaseTimeout = 5 * time.Second

// StreamManager tracks the active stream of every chat on this instance and,
// with a distributed Lock, across instances.
//
// Thread-safety:
//   - All public methods are thread-safe
//   - A chat has at most one session; Begin fails with ErrStreamActive otherwise
type StreamManager struct {
	sessions map[string]*StreamSession
	mu       sync.Mutex

	// lock is optional; without it only this instance is guarded.
	lock        Lock
	refreshEach time.Duration

	clock  clockwork.Clock
	logger *logger.Logger

	// onChange observes the number of active sessions.
	onChange func(active int)
}

// ManagerOption configures a StreamManager.
type ManagerOption func(*StreamManager)

// WithLock guards chats across instances. Held locks are refreshed every
// refreshEach while the stream runs.
func WithLock(lock Lock, refreshEach time.Duration) ManagerOption {
	return func(m *StreamManager) {
		m.lock = lock
		m.refreshEach = refreshEach
	}
}

// WithClock sets the clock used for session start times and lock refreshes.
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *StreamManager) { m.clock = c }
}

// WithActiveObserver is called with the session count after every change.
func WithActiveObserver(fn func(active int)) ManagerOption {
	return func(m *StreamManager) { m.onChange = fn }
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(log *logger.Logger, opts ...ManagerOption) *StreamManager {
	sm := &StreamManager{
		sessions: make(map[string]*StreamSession),
		clock:    clockwork.NewRealClock(),
		logger:   log.WithComponent("stream-manager"),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Begin claims chatID for a new stream owned by userID. The returned session
// must be ended with End. The session context derives from ctx.
func (sm *StreamManager) Begin(ctx context.Context, chatID, userID string) (*StreamSession, error) {
	streamID := uuid.NewString()

	sm.mu.Lock()
	if _, exists := sm.sessions[chatID]; exists {
		sm.mu.Unlock()
		return nil, ErrStreamActive
	}
	session := newStreamSession(ctx, chatID, streamID, userID, sm.clock.Now())
	sm.sessions[chatID] = session
	sm.mu.Unlock()

	distributed := false
	if sm.lock != nil {
		ok, err := sm.lock.Acquire(ctx, chatID, streamID)
		switch {
		case err != nil:
			// Local guard still applies.
			sm.logger.Warn("distributed stream lock unavailable",
				slog.String("chat_id", chatID),
				slog.String("error", err.Error()))
		case !ok:
			sm.remove(chatID, session)
			return nil, ErrStreamActive
		default:
			distributed = true
		}
	}

	var stopRefresh func()
	if distributed && sm.refreshEach > 0 {
		stopRefresh = sm.keepLock(session)
	}

	session.end = func() {
		if stopRefresh != nil {
			stopRefresh()
		}
		if distributed {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
			defer cancel()
			if err := sm.lock.Release(releaseCtx, chatID, streamID); err != nil {
				sm.logger.Warn("failed to release stream lock",
					slog.String("chat_id", chatID),
					slog.String("error", err.Error()))
			}
		}
		sm.remove(chatID, session)
	}

	sm.logger.Debug("stream started",
		slog.String("chat_id", chatID),
		slog.String("stream_id", streamID),
		slog.Bool("distributed", distributed))
	sm.notify()

	return session, nil
}

// keepLock refreshes the session's distributed lock until the returned
// function is called.
func (sm *StreamManager) keepLock(session *StreamSession) func() {
	ticker := sm.clock.NewTicker(sm.refreshEach)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				err := sm.lock.Refresh(session.Context(), session.ChatID, session.StreamID)
				if err != nil && !errors.Is(err, context.Canceled) {
					sm.logger.Warn("failed to refresh stream lock",
						slog.String("chat_id", session.ChatID),
						slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (sm *StreamManager) remove(chatID string, session *StreamSession) {
	sm.mu.Lock()
	if sm.sessions[chatID] == session {
		delete(sm.sessions, chatID)
	}
	sm.mu.Unlock()
	sm.notify()
}

func (sm *StreamManager) notify() {
	if sm.onChange != nil {
		sm.onChange(sm.ActiveCount())
	}
}

// GetSession returns the active session of chatID, or nil.
func (sm *StreamManager) GetSession(chatID string) *StreamSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sessions[chatID]
}

// Stop stops the active stream of chatID if userID owns it.
func (sm *StreamManager) Stop(chatID, userID string) (StopResult, error) {
	session := sm.GetSession(chatID)
	if session == nil || session.UserID != userID {
		return StopResult{}, ErrNoStream
	}
	if err := session.Stop(StopReasonUserCancelled); err != nil {
		return StopResult{}, err
	}

	sm.logger.Info("stream stopped by user",
		slog.String("chat_id", chatID),
		slog.String("stream_id", session.StreamID))

	return StopResult{
		StreamID:   session.StreamID,
		EventsSent: session.EventsSent(),
		InstanceID: logger.GetInstanceID(),
	}, nil
}

// ActiveCount returns the number of active sessions.
func (sm *StreamManager) ActiveCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// ListActive returns a snapshot of all active sessions.
func (sm *StreamManager) ListActive() []StreamInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	infos := make([]StreamInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Shutdown stops every active stream. Relays persist their partial replies
// as they unwind.
func (sm *StreamManager) Shutdown() {
	sm.mu.Lock()
	sessions := make([]*StreamSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.Unlock()

	for _, s := range sessions {
		_ = s.Stop(StopReasonSystemShutdown)
	}
	sm.logger.Info("stream manager shut down", slog.Int("stopped_streams", len(sessions)))
}
