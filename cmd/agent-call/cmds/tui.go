package cmds

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/agentcall/pkg/logging"
	"github.com/go-go-golems/agentcall/pkg/ui"
)

func newTUICommand(a *app) *cobra.Command {
	var (
		agentScript string
		noAgent     bool
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the call in a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			// the alt screen owns the terminal; logs only go to --log-file
			if logFile, _ := cmd.Flags().GetString("log-file"); logFile == "" {
				if err := logging.SetupWriter(a.cfg.Log, io.Discard); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			shell := ui.NewShell(0)
			rt, err := newRuntime(ctx, a.cfg, a.sessionID(), shell)
			if err != nil {
				return err
			}
			defer rt.Close()
			if !noAgent {
				if err := rt.startAgent(ctx, agentScript); err != nil {
					return err
				}
			}

			p := tea.NewProgram(ui.NewModel(rt.ctrl, shell.Events()), tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "tui")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentScript, "agent-script", "", "JavaScript agent scenario run in-process (default: echo agent)")
	cmd.Flags().BoolVar(&noAgent, "no-agent", false, "Do not start the in-process agent")
	return cmd
}
