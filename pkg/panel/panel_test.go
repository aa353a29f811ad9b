package panel

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPanel(t *testing.T, opts ...Option) (*Panel, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	p := New(append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(p.Close)
	return p, clock
}

func waitForState(t *testing.T, p *Panel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want },
		time.Second, 5*time.Millisecond, "want state %s, have %s", want, p.State())
}

func TestPanelStartsEmpty(t *testing.T) {
	p, _ := newTestPanel(t)
	assert.Equal(t, Empty, p.State())
	assert.Equal(t, Empty, p.Handle(UserToggled))
	assert.Equal(t, Empty, p.Handle(ActivityEnded))
	assert.False(t, p.Scheduled())
}

func TestPanelAutoCollapsesAfterDelay(t *testing.T) {
	p, clock := newTestPanel(t)

	assert.Equal(t, ExpandedActive, p.Handle(StepArrived))
	assert.Equal(t, ExpandedIdle, p.Handle(ActivityEnded))
	assert.True(t, p.Scheduled())

	clock.Advance(DefaultDelay - time.Millisecond)
	assert.Equal(t, ExpandedIdle, p.State())

	clock.Advance(time.Millisecond)
	waitForState(t, p, CollapsedAuto)
	assert.False(t, p.Reopened())
	assert.False(t, p.Scheduled())
}

func TestPanelNewStepCancelsPendingCollapse(t *testing.T) {
	p, clock := newTestPanel(t)

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	clock.Advance(time.Second)

	assert.Equal(t, ExpandedActive, p.Handle(StepArrived))
	assert.False(t, p.Scheduled())

	clock.Advance(DefaultDelay)
	assert.Never(t, func() bool { return p.State() == CollapsedAuto }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPanelReopensAfterAutoCollapse(t *testing.T) {
	p, clock := newTestPanel(t)

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	clock.Advance(DefaultDelay)
	waitForState(t, p, CollapsedAuto)

	assert.Equal(t, ExpandedReopened, p.Handle(StepArrived))
	assert.True(t, p.Reopened())

	// The second cycle can auto-collapse again.
	assert.Equal(t, ExpandedIdle, p.Handle(ActivityEnded))
	assert.True(t, p.Reopened())
	clock.Advance(DefaultDelay)
	waitForState(t, p, CollapsedAuto)
	assert.False(t, p.Reopened())
}

func TestPanelUserToggle(t *testing.T) {
	p, clock := newTestPanel(t)

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	assert.Equal(t, CollapsedManual, p.Handle(UserToggled))
	assert.False(t, p.Scheduled())

	// A manual collapse is not undone by new steps.
	assert.Equal(t, CollapsedManual, p.Handle(StepArrived))
	clock.Advance(DefaultDelay)
	assert.Equal(t, CollapsedManual, p.State())

	assert.Equal(t, ExpandedActive, p.Handle(UserToggled))
	assert.False(t, p.Reopened())
}

func TestPanelUserExpandsAutoCollapsed(t *testing.T) {
	p, clock := newTestPanel(t)

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	clock.Advance(DefaultDelay)
	waitForState(t, p, CollapsedAuto)

	assert.Equal(t, ExpandedReopened, p.Handle(UserToggled))
	assert.True(t, p.Reopened())

	// Auto-minimize already happened during this cycle.
	p.Handle(ActivityEnded)
	assert.False(t, p.Scheduled())
	assert.Equal(t, ExpandedReopened, p.State())
}

func TestPanelActivityStartedResetsCycle(t *testing.T) {
	p, clock := newTestPanel(t)

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	clock.Advance(DefaultDelay)
	waitForState(t, p, CollapsedAuto)

	p.Handle(UserToggled)
	p.Handle(ActivityStarted)
	assert.Equal(t, ExpandedIdle, p.Handle(ActivityEnded))
}

func TestPanelStaleTimerIgnored(t *testing.T) {
	p, clock := newTestPanel(t, WithDelay(time.Second))

	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	p.Handle(ActivityStarted)
	assert.False(t, p.Scheduled())

	clock.Advance(time.Second)
	assert.Never(t, func() bool { return p.State() != ExpandedActive }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPanelTimerFiredEventOnlyActsWhenScheduled(t *testing.T) {
	p, _ := newTestPanel(t)

	p.Handle(StepArrived)
	assert.Equal(t, ExpandedActive, p.Handle(TimerFired))

	p.Handle(ActivityEnded)
	assert.Equal(t, CollapsedAuto, p.Handle(TimerFired))
}

func TestPanelObserver(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	p, clock := newTestPanel(t, WithObserver(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))

	p.Handle(StepArrived)
	p.Handle(StepArrived)
	p.Handle(ActivityEnded)
	clock.Advance(DefaultDelay)
	waitForState(t, p, CollapsedAuto)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{ExpandedActive, ExpandedIdle, CollapsedAuto}, states)
}

func TestPanelsAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := New(WithClock(clock))
	b := New(WithClock(clock))
	defer a.Close()
	defer b.Close()

	a.Handle(StepArrived)
	b.Handle(StepArrived)
	a.Handle(ActivityEnded)
	clock.Advance(DefaultDelay)

	waitForState(t, a, CollapsedAuto)
	assert.Equal(t, ExpandedActive, b.State())
}
