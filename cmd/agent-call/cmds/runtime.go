package cmds

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/config"
	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/sessionstore"
	"github.com/go-go-golems/agentcall/pkg/transport"
	"github.com/go-go-golems/agentcall/pkg/transport/script"
)

func openStore(cfg *config.Config) (sessionstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		dsn, err := sessionstore.SQLiteDSNForFile(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return sessionstore.NewSQLiteStore(dsn)
	case "", config.StoreMemory:
		return sessionstore.NewInMemoryStore(), nil
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// runtime wires a controller to the bus: requests go out through a
// BusTransport, events come back through a Pump.
type runtime struct {
	sessionID string
	bus       *transport.Bus
	store     sessionstore.Store
	ctrl      *session.Controller
	pump      *transport.Pump
	agent     *transport.Agent
}

func (a *app) sessionID() string {
	if a.flags.sessionID != "" {
		return a.flags.sessionID
	}
	return uuid.NewString()
}

func newRuntime(ctx context.Context, cfg *config.Config, sessionID string, shell session.Shell) (*runtime, error) {
	bus, err := transport.BuildBus(cfg.Bus)
	if err != nil {
		return nil, err
	}
	rt := &runtime{sessionID: sessionID, bus: bus}
	if err := bus.EnsureGroupAtTail(ctx, transport.EventsTopic(sessionID)); err != nil {
		rt.Close()
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "open attempt store")
	}
	rt.store = store

	opts := append(cfg.SessionOptions(),
		session.WithSessionID(sessionID),
		session.WithRecorder(sessionstore.Recorder{Store: store}),
	)
	rt.ctrl = session.NewController(cfg.Session.Capabilities, transport.NewBusTransport(sessionID, bus.Publisher), shell, opts...)
	rt.pump = transport.NewPump(sessionID, bus.Subscriber, rt.ctrl)
	if err := rt.pump.Start(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// startAgent runs the scripted agent against the same bus. An empty path
// runs the built-in echo scenario.
func (rt *runtime) startAgent(ctx context.Context, scriptPath string) error {
	if err := rt.bus.EnsureGroupAtTail(ctx, transport.RequestsTopic(rt.sessionID)); err != nil {
		return err
	}
	agent, err := startScriptedAgent(ctx, rt.bus, rt.sessionID, scriptPath)
	if err != nil {
		return err
	}
	rt.agent = agent
	return nil
}

func startScriptedAgent(ctx context.Context, bus *transport.Bus, sessionID string, scriptPath string) (*transport.Agent, error) {
	agent := transport.NewAgent(sessionID, bus.Publisher, bus.Subscriber)
	runner := script.NewRunner(agent)
	var err error
	if scriptPath != "" {
		err = runner.LoadScriptFile(scriptPath)
	} else {
		err = runner.LoadScriptSource("default.js", script.DefaultScenario)
	}
	if err != nil {
		return nil, err
	}
	if err := agent.Serve(ctx, runner.Handle); err != nil {
		return nil, err
	}
	log.Info().Str("component", "agent").Str("session_id", sessionID).Str("script", scriptPath).Msg("scripted agent started")
	return agent, nil
}

func (rt *runtime) Close() {
	if rt.pump != nil {
		rt.pump.Stop()
	}
	if rt.agent != nil {
		rt.agent.Stop()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing attempt store")
		}
	}
	if rt.bus != nil {
		if err := rt.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("closing bus")
		}
	}
}
