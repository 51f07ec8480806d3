package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

type watermillLogger struct {
	l zerolog.Logger
}

// NewWatermillLogger routes watermill logging into zerolog. Watermill's info
// level is chatty, so it is logged at debug.
func NewWatermillLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{l: l.With().Str("component", "watermill").Logger()}
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.l.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.l.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{l: w.l.With().Fields(map[string]interface{}(fields)).Logger()}
}
