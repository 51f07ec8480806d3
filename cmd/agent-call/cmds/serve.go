package cmds

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/agentcall/pkg/webshell"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr        string
		agentScript string
		noAgent     bool
		idleTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the call page and websocket shell over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessionID := a.sessionID()
			// the controller is attached below; the idle callback only runs
			// once a browser has come and gone
			var leave func()
			shell := webshell.New(sessionID, webshell.WithIdleTimeout(idleTimeout, func() {
				if leave != nil {
					leave()
				}
			}))
			defer shell.Close()

			rt, err := newRuntime(ctx, cfg, sessionID, shell)
			if err != nil {
				return err
			}
			defer rt.Close()
			shell.Attach(rt.ctrl)
			leave = func() {
				if rt.ctrl.Phase().IsLive() {
					if err := rt.ctrl.LeaveCall(context.Background()); err != nil {
						log.Debug().Err(err).Msg("idle leave")
					}
				}
			}

			if !noAgent {
				if err := rt.startAgent(ctx, agentScript); err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           webshell.NewMux(shell, rt.store),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				log.Info().Str("addr", cfg.HTTP.Addr).Str("session_id", sessionID).Msg("serving agent call")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "http server")
				}
				return nil
			})
			eg.Go(func() error {
				<-egCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if rt.ctrl.Phase().IsLive() {
					_ = rt.ctrl.LeaveCall(shutdownCtx)
				}
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default localhost:8787)")
	cmd.Flags().StringVar(&agentScript, "agent-script", "", "JavaScript agent scenario run in-process (default: echo agent)")
	cmd.Flags().BoolVar(&noAgent, "no-agent", false, "Do not start the in-process agent (run agent-call agent on a shared bus instead)")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Leave the call when no browser has been connected for this long (0 disables)")
	return cmd
}
