package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LoggerAdapter bridges the Temporal SDK's keyval logger onto zerolog.
type LoggerAdapter struct {
	logger zerolog.Logger
}

func NewLoggerAdapter(logger zerolog.Logger) log.Logger {
	return &LoggerAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func (a *LoggerAdapter) event(event *zerolog.Event, msg string, keyvals ...interface{}) {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		event = event.Interface(key, keyvals[i+1])
	}
	event.Msg(msg)
}

func (a *LoggerAdapter) Debug(msg string, keyvals ...interface{}) {
	a.event(a.logger.Debug(), msg, keyvals...)
}

func (a *LoggerAdapter) Info(msg string, keyvals ...interface{}) {
	a.event(a.logger.Info(), msg, keyvals...)
}

func (a *LoggerAdapter) Warn(msg string, keyvals ...interface{}) {
	a.event(a.logger.Warn(), msg, keyvals...)
}

func (a *LoggerAdapter) Error(msg string, keyvals ...interface{}) {
	a.event(a.logger.Error(), msg, keyvals...)
}
