// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Settings struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format     string `yaml:"format" validate:"omitempty,oneof=auto console json"`
	WithCaller bool   `yaml:"with_caller" split_words:"true"`
}

// FlagNames are the root logging flags. When any of them is set on the
// command line it wins over the log section of the config file.
var FlagNames = []string{"log-level", "log-format", "log-file", "with-caller"}

// AnyChanged reports whether one of FlagNames was set, according to changed.
func AnyChanged(changed func(name string) bool) bool {
	return lo.SomeBy(FlagNames, changed)
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: FormatAuto}
}

// Setup installs the global logger writing to stderr. The TUI redirects the
// output to a file instead, see SetupWriter.
func Setup(s Settings) error {
	return SetupWriter(s, os.Stderr)
}

func SetupWriter(s Settings, w io.Writer) error {
	level := zerolog.InfoLevel
	if strings.TrimSpace(s.Level) != "" {
		lvl, err := zerolog.ParseLevel(s.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = lvl
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if useConsole(s.Format, w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}

func useConsole(format string, w io.Writer) bool {
	switch format {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
