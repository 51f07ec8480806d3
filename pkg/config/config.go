// Package config loads agent-call configuration from defaults, a YAML file,
// an optional .env file and AGENTCALL_* environment variables. Command line
// flags are applied on top by the cobra commands.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/agentcall/pkg/logging"
	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/transcript"
	"github.com/go-go-golems/agentcall/pkg/transport"
	"github.com/go-go-golems/agentcall/pkg/watchdog"
)

const EnvPrefix = "AGENTCALL"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type SessionSettings struct {
	ConnectTimeout  time.Duration        `yaml:"connect_timeout" split_words:"true" validate:"gte=0"`
	Identity        string               `yaml:"identity" validate:"required"`
	DisplayName     string               `yaml:"display_name" split_words:"true"`
	AgentName       string               `yaml:"agent_name" split_words:"true"`
	StartButtonText string               `yaml:"start_button_text" split_words:"true"`
	Debug           bool                 `yaml:"debug"`
	Capabilities    session.Capabilities `yaml:"capabilities"`
}

type StoreSettings struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path" validate:"required_if=Driver sqlite"`
}

type HTTPSettings struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

type Config struct {
	Session SessionSettings    `yaml:"session"`
	Bus     transport.Settings `yaml:"bus"`
	Store   StoreSettings      `yaml:"store"`
	HTTP    HTTPSettings       `yaml:"http"`
	Log     logging.Settings   `yaml:"log"`
}

func Default() Config {
	return Config{
		Session: SessionSettings{
			ConnectTimeout:  watchdog.DefaultTimeout,
			Identity:        "local",
			DisplayName:     "You",
			AgentName:       "Agent",
			StartButtonText: session.DefaultStartButtonText,
			Capabilities: session.Capabilities{
				SupportsChatInput:       true,
				PreConnectBufferEnabled: true,
			},
		},
		Bus:   transport.DefaultSettings(),
		Store: StoreSettings{Driver: StoreMemory},
		HTTP:  HTTPSettings{Addr: "localhost:8787"},
		Log:   logging.DefaultSettings(),
	}
}

// LoadOptions selects the files consulted by Load. Empty paths fall back to
// the defaults; missing default files are skipped.
type LoadOptions struct {
	Path    string
	EnvFile string
}

// DefaultPath is ~/.agentcall/config.yaml.
func DefaultPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentcall", "config.yaml")
}

func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultPath()
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, "expand config path")
	}
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	envFile, explicitEnv := opts.EnvFile, opts.EnvFile != ""
	if !explicitEnv {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && (explicitEnv || !errors.Is(err, os.ErrNotExist)) {
		return nil, errors.Wrapf(err, "load env file %s", envFile)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if cfg.Store.Path, err = homedir.Expand(cfg.Store.Path); err != nil {
		return nil, errors.Wrap(err, "expand store path")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// LocalParticipant is the participant used for local transcript entries.
func (c *Config) LocalParticipant() transcript.Participant {
	return transcript.Participant{
		Identity:    c.Session.Identity,
		IsLocal:     true,
		DisplayName: c.Session.DisplayName,
	}
}

// SessionOptions maps the session section onto controller options.
func (c *Config) SessionOptions() []session.Option {
	return []session.Option{
		session.WithConnectTimeout(c.Session.ConnectTimeout),
		session.WithLocalParticipant(c.LocalParticipant()),
		session.WithAgentName(c.Session.AgentName),
		session.WithStartButtonText(c.Session.StartButtonText),
		session.WithDebug(c.Session.Debug),
	}
}
