package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
	"golang.org/x/term"

	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/transcript"
	"github.com/go-go-golems/agentcall/pkg/watchdog"
)

type simulateFlags struct {
	agentScript string
	pre         []string
	say         []string
	interactive bool
	replyWait   time.Duration
}

func newSimulateCommand(a *app) *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a headless call against the scripted agent and print the transcript",
		Example: `  agent-call simulate --pre "are you there?" --say hello --say "how are you"
  agent-call simulate --agent-script ./agent.js --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.interactive && !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("--interactive needs a terminal on stdin")
			}
			return runSimulation(cmd.Context(), a, f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.agentScript, "agent-script", "", "JavaScript agent scenario (default: echo agent)")
	cmd.Flags().StringArrayVar(&f.pre, "pre", nil, "Text typed before the call connects (repeatable)")
	cmd.Flags().StringArrayVar(&f.say, "say", nil, "Chat message sent once the call is active (repeatable)")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "Prompt for chat messages after the scripted ones")
	cmd.Flags().DurationVar(&f.replyWait, "reply-wait", 5*time.Second, "How long to wait for the agent to answer each message")
	return cmd
}

func runSimulation(ctx context.Context, a *app, f simulateFlags, in io.Reader, out io.Writer) error {
	shell := newPrintShell(out)
	rt, err := newRuntime(ctx, a.cfg, a.sessionID(), shell)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.startAgent(ctx, f.agentScript); err != nil {
		return err
	}
	ctrl := rt.ctrl

	for _, text := range f.pre {
		if err := ctrl.TypePreConnectText(text); err != nil {
			return err
		}
	}
	if err := ctrl.StartCall(ctx); err != nil {
		return err
	}
	ctrl.SetChatOpen(true)

	connectWait := a.cfg.Session.ConnectTimeout
	if connectWait <= 0 {
		connectWait = watchdog.DefaultTimeout
	}
	v, err := waitForView(ctx, shell, connectWait+time.Second, func(v session.ViewState) bool {
		return v.Phase != session.PhaseConnecting && v.Phase != session.PhaseIdle
	})
	if err != nil {
		return err
	}
	if v.Phase != session.PhaseActive {
		return errors.Errorf("call did not connect: %s %s", v.Phase, v.LastError)
	}

	send := func(text string) error {
		if err := ctrl.SendChat(ctx, text); err != nil {
			return err
		}
		_, err := waitForView(ctx, shell, f.replyWait, replyAfter(text))
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			log.Debug().Str("text", text).Msg("no reply before reply-wait elapsed")
		}
		return nil
	}
	for _, text := range f.say {
		if err := send(text); err != nil {
			return err
		}
	}
	if f.interactive {
		ui := &input.UI{Writer: out, Reader: in}
		for shell.View().Phase == session.PhaseActive {
			text, err := ui.Ask("you (empty or /leave to hang up)", &input.Options{Required: false, Loop: false})
			if err != nil {
				if errors.Is(err, input.ErrInterrupted) {
					break
				}
				return errors.Wrap(err, "read chat input")
			}
			text = strings.TrimSpace(text)
			if text == "" || text == "/leave" {
				break
			}
			if err := send(text); err != nil {
				return err
			}
		}
	}

	if ctrl.Phase().IsLive() {
		if err := ctrl.LeaveCall(ctx); err != nil {
			return err
		}
	}
	final := shell.View()
	_, _ = fmt.Fprintf(out, "-- %d messages, attempt %s\n", len(final.Messages), final.AttemptID)
	return nil
}

// replyAfter matches once a final remote message follows the local message
// carrying text.
func replyAfter(text string) func(session.ViewState) bool {
	return func(v session.ViewState) bool {
		if v.Phase != session.PhaseActive {
			return true
		}
		seen := false
		for _, m := range v.Messages {
			if m.Originator.IsLocal && m.Text == text {
				seen = true
				continue
			}
			if seen && !m.Originator.IsLocal && m.State == transcript.StateFinal {
				return true
			}
		}
		return false
	}
}

func waitForView(ctx context.Context, shell *printShell, timeout time.Duration, pred func(session.ViewState) bool) (session.ViewState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		v := shell.View()
		if pred(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-shell.Changed():
		}
	}
}
