// Package panel implements the expand/collapse behavior of a progress panel.
//
// The panel opens when the first step arrives, collapses by itself a short
// delay after activity ends and shows a "reopened" marker when it is expanded
// again after such an automatic collapse. Each panel instance is independent.
package panel

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDelay is the time between the end of activity and auto-collapse.
const DefaultDelay = 2500 * time.Millisecond

// State of the panel.
type State int

const (
	// Empty means no step has arrived yet; nothing is shown.
	Empty State = iota
	// ExpandedActive is expanded with no collapse scheduled.
	ExpandedActive
	// ExpandedIdle is expanded with an auto-collapse scheduled.
	ExpandedIdle
	// CollapsedAuto was collapsed by the timer.
	CollapsedAuto
	// CollapsedManual was collapsed by the user.
	CollapsedManual
	// ExpandedReopened was expanded again after an auto-collapse.
	ExpandedReopened
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case ExpandedActive:
		return "expanded"
	case ExpandedIdle:
		return "expanded_idle"
	case CollapsedAuto:
		return "collapsed_auto"
	case CollapsedManual:
		return "collapsed_manual"
	case ExpandedReopened:
		return "expanded_reopened"
	default:
		return "unknown"
	}
}

// Expanded reports whether the panel content is visible.
func (s State) Expanded() bool {
	return s == ExpandedActive || s == ExpandedIdle || s == ExpandedReopened
}

// Event drives the state machine.
type Event int

const (
	// StepArrived is sent for every new thinking or search step.
	StepArrived Event = iota
	// ActivityStarted is sent when the stream starts working on a new reply.
	ActivityStarted
	// ActivityEnded is sent when the stream reaches its terminal event.
	ActivityEnded
	// UserToggled is sent when the user expands or collapses the panel.
	UserToggled
	// TimerFired collapses the panel if a collapse is scheduled.
	TimerFired
)

func (e Event) String() string {
	switch e {
	case StepArrived:
		return "step_arrived"
	case ActivityStarted:
		return "activity_started"
	case ActivityEnded:
		return "activity_ended"
	case UserToggled:
		return "user_toggled"
	case TimerFired:
		return "timer_fired"
	default:
		return "unknown"
	}
}

// Option configures a Panel.
type Option func(*Panel)

// WithClock sets the clock that drives the collapse timer.
func WithClock(c clockwork.Clock) Option {
	return func(p *Panel) { p.clock = c }
}

// WithDelay sets the auto-collapse delay.
func WithDelay(d time.Duration) Option {
	return func(p *Panel) { p.delay = d }
}

// WithObserver registers a callback invoked after every state change. It
// runs outside the panel lock, possibly on the timer goroutine.
func WithObserver(fn func(State)) Option {
	return func(p *Panel) { p.observer = fn }
}

// Panel is the auto-minimize state machine of one progress panel.
type Panel struct {
	clock    clockwork.Clock
	delay    time.Duration
	observer func(State)

	mu       sync.Mutex
	state    State
	hasSteps bool
	active   bool
	// autoMinimized is set once the timer collapsed the panel during the
	// current activity cycle.
	autoMinimized bool
	reopened      bool
	timer         clockwork.Timer
	generation    uint64
}

// New returns a panel in the Empty state.
func New(opts ...Option) *Panel {
	p := &Panel{
		clock: clockwork.NewRealClock(),
		delay: DefaultDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reopened reports whether the "reopened" marker is visible.
func (p *Panel) Reopened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reopened && p.state.Expanded()
}

// Scheduled reports whether an auto-collapse is pending.
func (p *Panel) Scheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Handle applies ev and returns the resulting state.
func (p *Panel) Handle(ev Event) State {
	p.mu.Lock()
	before := p.state

	switch ev {
	case StepArrived:
		p.stepArrived()
	case ActivityStarted:
		p.active = true
		p.autoMinimized = false
		if p.state == ExpandedIdle {
			p.cancelTimer()
			p.state = p.expandedState()
		}
	case ActivityEnded:
		p.activityEnded()
	case UserToggled:
		p.userToggled()
	case TimerFired:
		p.collapse()
	}

	after := p.state
	p.mu.Unlock()

	if after != before {
		p.notify(after)
	}
	return after
}

// Close cancels a pending collapse.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelTimer()
}

func (p *Panel) stepArrived() {
	first := !p.hasSteps
	p.hasSteps = true

	switch p.state {
	case Empty:
		p.active = true
		p.state = ExpandedActive
	case ExpandedIdle:
		// New steps before the delay elapsed keep the panel open.
		p.cancelTimer()
		p.active = true
		p.state = p.expandedState()
	case CollapsedAuto:
		// Activity resumed after an automatic collapse.
		p.active = true
		p.autoMinimized = false
		p.reopened = true
		p.state = ExpandedReopened
	default:
		if first {
			p.active = true
		}
	}
}

func (p *Panel) activityEnded() {
	p.active = false
	if !p.hasSteps || p.autoMinimized || p.timer != nil {
		return
	}
	if p.state != ExpandedActive && p.state != ExpandedReopened {
		return
	}

	p.generation++
	gen := p.generation
	p.timer = p.clock.AfterFunc(p.delay, func() { p.timerFired(gen) })
	p.state = ExpandedIdle
}

func (p *Panel) userToggled() {
	switch p.state {
	case Empty:
		return
	case ExpandedActive, ExpandedIdle, ExpandedReopened:
		p.cancelTimer()
		p.reopened = false
		p.state = CollapsedManual
	case CollapsedAuto:
		p.reopened = true
		p.state = ExpandedReopened
	case CollapsedManual:
		p.state = p.expandedState()
	}
}

// collapse performs the scheduled auto-collapse, if any.
func (p *Panel) collapse() {
	if p.state != ExpandedIdle {
		return
	}
	p.cancelTimer()
	p.autoMinimized = true
	p.reopened = false
	p.state = CollapsedAuto
}

func (p *Panel) timerFired(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.timer == nil {
		// Cancelled or superseded.
		p.mu.Unlock()
		return
	}
	before := p.state
	p.collapse()
	after := p.state
	p.mu.Unlock()

	if after != before {
		p.notify(after)
	}
}

func (p *Panel) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.generation++
}

func (p *Panel) expandedState() State {
	if p.reopened {
		return ExpandedReopened
	}
	return ExpandedActive
}

func (p *Panel) notify(s State) {
	if p.observer != nil {
		p.observer(s)
	}
}
