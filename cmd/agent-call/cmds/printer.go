package cmds

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-go-golems/agentcall/pkg/session"
)

// printShell is a line-oriented shell: it prints phase changes and each
// message once it is final, and lets callers wait on the view.
type printShell struct {
	w io.Writer

	mu      sync.Mutex
	view    session.ViewState
	phase   session.Phase
	printed map[string]bool
	changed chan struct{}
}

var _ session.Shell = &printShell{}

func newPrintShell(w io.Writer) *printShell {
	return &printShell{
		w:       w,
		phase:   session.PhaseIdle,
		printed: map[string]bool{},
		changed: make(chan struct{}, 1),
	}
}

func (p *printShell) Render(v session.ViewState) {
	p.mu.Lock()
	p.view = v
	if v.Phase != p.phase {
		p.phase = v.Phase
		line := fmt.Sprintf("-- %s", v.Phase)
		if v.LastError != "" {
			line += " (" + v.LastError + ")"
		}
		_, _ = fmt.Fprintln(p.w, line)
	}
	for _, m := range v.Messages {
		if !m.IsFinal() || p.printed[m.ID] {
			continue
		}
		p.printed[m.ID] = true
		_, _ = fmt.Fprintf(p.w, "%s: %s\n", m.Originator.Label(), m.Text)
	}
	if v.Phase == session.PhaseIdle {
		// a reset clears the transcript
		p.printed = map[string]bool{}
	}
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func (p *printShell) ScrollToBottom() {}

func (p *printShell) View() session.ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Changed fires after a render; it coalesces bursts into one signal.
func (p *printShell) Changed() <-chan struct{} { return p.changed }
