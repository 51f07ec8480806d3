package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/agentcall/pkg/config"
	"github.com/go-go-golems/agentcall/pkg/sessionstore"
)

type HistoryCommand struct {
	*cmds.CommandDescription
	app *app
}

type HistorySettings struct {
	Limit int `glazed:"limit"`
}

var _ cmds.GlazeCommand = &HistoryCommand{}

func NewHistoryCommand(a *app) (*HistoryCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"history",
		cmds.WithShort("List recorded call attempts"),
		cmds.WithLong(`Lists the call attempts recorded in the attempt store, newest first.
Use --session-id to restrict the list to one session. The memory store only
holds the attempts of the current process, use --store sqlite to read history
left by earlier runs.`),
		cmds.WithFlags(
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(20),
				fields.WithHelp("Maximum number of attempts to list (0 = no limit)"),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &HistoryCommand{CommandDescription: desc, app: a}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &HistorySettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	cfg := c.app.cfg
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	if cfg.Store.Driver != config.StoreSQLite {
		log.Warn().Msg("the memory store does not outlive a process; use --store sqlite --store-path <file>")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListAttempts(ctx, c.app.flags.sessionID, s.Limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := gp.AddRow(ctx, attemptRow(r)); err != nil {
			return err
		}
	}
	return nil
}

func attemptRow(r sessionstore.AttemptRecord) types.Row {
	started := ""
	if r.StartedAtMs > 0 {
		started = time.UnixMilli(r.StartedAtMs).Format(time.RFC3339)
	}
	var connectMs any
	if d, ok := r.ConnectLatency(); ok {
		connectMs = d.Milliseconds()
	}
	return types.NewRow(
		types.MRP("attempt_id", r.AttemptID),
		types.MRP("session_id", r.SessionID),
		types.MRP("phase", r.Phase),
		types.MRP("started_at", started),
		types.MRP("connect_ms", connectMs),
		types.MRP("messages", r.MessageCount),
		types.MRP("last_error", r.LastError),
	)
}

func newHistoryCommand(a *app) (*cobra.Command, error) {
	c, err := NewHistoryCommand(a)
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommand(c)
}
