package cmds

import (
	"time"

	clay "github.com/go-go-golems/clay/pkg"
	glazedlogging "github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/agentcall/pkg/config"
	"github.com/go-go-golems/agentcall/pkg/logging"
)

type rootFlags struct {
	configPath     string
	envFile        string
	sessionID      string
	busDriver      string
	redisAddr      string
	storeDriver    string
	storePath      string
	connectTimeout time.Duration
}

// app is shared by the subcommands; cfg is set in PersistentPreRunE.
type app struct {
	flags rootFlags
	cfg   *config.Config
}

// NewRootCommand builds the agent-call command tree. The logging flags
// (--log-level, --log-format, --log-file, --with-caller) come from glazed.
func NewRootCommand() (*cobra.Command, error) {
	a := &app{}
	root := &cobra.Command{
		Use:           "agent-call",
		Short:         "Client-side agent call session: connect, chat, and watch the transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := glazedlogging.InitLoggerFromCobra(cmd); err != nil {
				return err
			}
			return a.load(cmd)
		},
	}
	if err := clay.InitGlazed("agentcall", root); err != nil {
		return nil, errors.Wrap(err, "init glazed")
	}
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, root)

	f := root.PersistentFlags()
	if f.Lookup("config") == nil {
		f.StringVar(&a.flags.configPath, "config", "", "Config file (default ~/.agentcall/config.yaml)")
	}
	f.StringVar(&a.flags.envFile, "env-file", "", "Env file loaded before AGENTCALL_* variables (default .env)")
	f.StringVar(&a.flags.sessionID, "session-id", "", "Session id (random when empty)")
	f.StringVar(&a.flags.busDriver, "bus", "", "Event bus driver (gochannel, redis)")
	f.StringVar(&a.flags.redisAddr, "redis-addr", "", "Redis address host:port")
	f.StringVar(&a.flags.storeDriver, "store", "", "Attempt history store (memory, sqlite)")
	f.StringVar(&a.flags.storePath, "store-path", "", "SQLite file for the attempt history")
	f.DurationVar(&a.flags.connectTimeout, "connect-timeout", 0, "Connection watchdog timeout (default 200s)")

	history, err := newHistoryCommand(a)
	if err != nil {
		return nil, err
	}
	root.AddCommand(
		newServeCommand(a),
		newTUICommand(a),
		newSimulateCommand(a),
		newAgentCommand(a),
		history,
	)
	return root, nil
}

func (a *app) load(cmd *cobra.Command) error {
	f := cmd.Flags()
	path := a.flags.configPath
	if path == "" && f.Lookup("config") != nil {
		path, _ = f.GetString("config")
	}
	cfg, err := config.Load(config.LoadOptions{Path: path, EnvFile: a.flags.envFile})
	if err != nil {
		return err
	}

	if f.Changed("bus") {
		cfg.Bus.Driver = a.flags.busDriver
	}
	if f.Changed("redis-addr") {
		cfg.Bus.Addr = a.flags.redisAddr
	}
	if f.Changed("store") {
		cfg.Store.Driver = a.flags.storeDriver
	}
	if f.Changed("store-path") {
		cfg.Store.Path = a.flags.storePath
	}
	if f.Changed("connect-timeout") {
		cfg.Session.ConnectTimeout = a.flags.connectTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// logging flags on the command line win over the config file
	if !logging.AnyChanged(f.Changed) {
		if err := logging.Setup(cfg.Log); err != nil {
			return errors.Wrap(err, "setup logging")
		}
	}
	a.cfg = cfg
	return nil
}
