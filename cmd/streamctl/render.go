package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eternisai/agent-stream/pkg/panel"
	"github.com/eternisai/agent-stream/pkg/progress"
	"github.com/muesli/termenv"
)

type styles struct {
	dim     termenv.Style
	bold    termenv.Style
	success termenv.Style
	failure termenv.Style
	accent  termenv.Style
}

func newStyles(out *termenv.Output) styles {
	if out.HasDarkBackground() {
		return styles{
			dim:     out.String().Faint(),
			bold:    out.String().Bold(),
			success: out.String().Foreground(out.Color("65")),
			failure: out.String().Foreground(out.Color("124")),
			accent:  out.String().Foreground(out.Color("179")).Bold(),
		}
	}
	return styles{
		dim:     out.String().Foreground(out.Color("240")),
		bold:    out.String().Bold(),
		success: out.String().Foreground(out.Color("28")),
		failure: out.String().Foreground(out.Color("160")),
		accent:  out.String().Foreground(out.Color("136")).Bold(),
	}
}

// renderer draws the progress panel of one stream. Steps are printed while
// the panel is expanded. On a terminal a status line with the estimate is
// redrawn on every change.
type renderer struct {
	out    *termenv.Output
	live   bool
	style  styles
	agg    *progress.Aggregator
	panel  *panel.Panel
	policy progress.Policy

	mu        sync.Mutex
	thinking  int
	search    int
	statusOn  bool
	collapsed bool
}

func newRenderer(out *termenv.Output, live bool, agg *progress.Aggregator, p *panel.Panel, policy progress.Policy) *renderer {
	return &renderer{
		out:    out,
		live:   live,
		style:  newStyles(out),
		agg:    agg,
		panel:  p,
		policy: policy,
	}
}

// OnChange is the aggregator callback.
func (r *renderer) OnChange(ch progress.Change) {
	if ch.StepAdded() {
		r.panel.Handle(panel.StepArrived)
	}
	if ch.Terminal {
		r.panel.Handle(panel.ActivityEnded)
	}
	r.draw()
}

// OnPanel is the panel observer; it runs on the timer goroutine when the
// panel collapses itself.
func (r *renderer) OnPanel(panel.State) {
	r.draw()
}

func (r *renderer) draw() {
	snap := r.agg.Snapshot()
	state := r.panel.State()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearStatus()

	if state.Expanded() {
		if r.collapsed {
			r.collapsed = false
			marker := ""
			if r.panel.Reopened() {
				marker = " " + r.style.accent.Styled("(reopened)")
			}
			fmt.Fprintf(r.out, "%s%s\n", r.style.dim.Styled("▾ progress"), marker)
		}
		for _, step := range snap.Thinking[r.thinking:] {
			fmt.Fprintf(r.out, "  %s %s\n", r.style.dim.Styled("·"), step.Content)
		}
		for _, step := range snap.Search[r.search:] {
			fmt.Fprintf(r.out, "  %s %s\n", r.style.accent.Styled("⌕"), searchLine(step))
		}
	} else if state != panel.Empty && !r.collapsed {
		r.collapsed = true
		fmt.Fprintf(r.out, "%s\n", r.style.dim.Styled(fmt.Sprintf("▸ progress (%d steps hidden)", len(snap.Thinking)+len(snap.Search))))
	}
	r.thinking = len(snap.Thinking)
	r.search = len(snap.Search)

	if r.live && snap.Terminal == progress.TerminalNone {
		est := progress.EstimateProgress(snap.Thinking, snap.Search)
		fmt.Fprintf(r.out, "%s %s", r.style.bold.Styled(fmt.Sprintf("[%3d%%]", est.Percent)), est.Label)
		r.statusOn = true
	}
}

func (r *renderer) clearStatus() {
	if !r.statusOn {
		return
	}
	fmt.Fprint(r.out, "\r")
	r.out.ClearLine()
	r.statusOn = false
}

func searchLine(step progress.SearchStep) string {
	if step.URL == "" {
		return step.Content
	}
	return fmt.Sprintf("%s (%s)", step.Content, progress.Hostname(step.URL))
}

// Toggle expands or collapses the panel on user request.
func (r *renderer) Toggle() {
	r.panel.Handle(panel.UserToggled)
}

// Summary writes the reply and the sources of a finished stream. It cancels a
// pending collapse so nothing is drawn after it.
func (r *renderer) Summary(w io.Writer) {
	r.panel.Close()
	snap := r.agg.Snapshot()

	r.mu.Lock()
	r.clearStatus()
	r.mu.Unlock()

	switch snap.Terminal {
	case progress.TerminalComplete:
		if snap.Stopped {
			fmt.Fprintln(w, r.style.accent.Styled("stopped"))
		}
	case progress.TerminalError:
		msg := snap.ErrorMessage
		if snap.ProRequired {
			msg += " (Pro required)"
		}
		fmt.Fprintln(w, r.style.failure.Styled("error: "+msg))
	case progress.TerminalLimitExceeded:
		fmt.Fprintln(w, r.style.failure.Styled("limit reached: "+snap.ErrorMessage))
	}

	if content := strings.TrimSpace(snap.Content); content != "" {
		fmt.Fprintf(w, "\n%s\n", content)
	}

	groups := r.agg.Sites(r.policy)
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", r.style.bold.Styled("Sources"))
	for i, g := range groups {
		status := r.style.success
		if g.Status == progress.StatusFailed {
			status = r.style.failure
		}
		title := g.Title
		if title == "" {
			title = g.Hostname
		}
		fmt.Fprintf(w, "  %d. %s %s %s\n", i+1, title, r.style.dim.Styled(g.Hostname), status.Styled(g.Label))
	}
}
