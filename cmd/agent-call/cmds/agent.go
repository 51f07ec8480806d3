package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/agentcall/pkg/transport"
)

func newAgentCommand(a *app) *cobra.Command {
	var (
		agentScript string
		consumer    string
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve the scripted agent for a session on the shared bus",
		Long: `Runs the JavaScript agent as its own process. Use with --bus redis and
the same --session-id as a client started with --no-agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.sessionID == "" {
				return errors.New("--session-id is required")
			}
			cfg := a.cfg
			if cfg.Bus.Driver != transport.DriverRedis {
				log.Warn().Str("driver", cfg.Bus.Driver).Msg("the in-memory bus is not shared with other processes")
			}
			cfg.Bus.Consumer = consumer

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus, err := transport.BuildBus(cfg.Bus)
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close() }()
			sessionID := a.flags.sessionID
			if err := bus.EnsureGroupAtTail(ctx, transport.RequestsTopic(sessionID)); err != nil {
				return err
			}
			agent, err := startScriptedAgent(ctx, bus, sessionID, agentScript)
			if err != nil {
				return err
			}
			defer agent.Stop()

			<-ctx.Done()
			log.Info().Str("session_id", sessionID).Msg("agent stopping")
			return nil
		},
	}
	cmd.Flags().StringVar(&agentScript, "agent-script", "", "JavaScript agent scenario (default: echo agent)")
	cmd.Flags().StringVar(&consumer, "consumer", "agent-1", "Redis consumer name for the requests stream")
	return cmd
}
