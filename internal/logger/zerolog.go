package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// ZerologAdapter writes one event per call with the component and every
// field attached at the top level.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerolog(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	return &ZerologAdapter{
		logger: zerolog.New(writer).Level(level).With().Timestamp().Logger(),
	}
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	emit(z.logger.Debug(), component, fields, message)
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	emit(z.logger.Info(), component, fields, message)
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	emit(z.logger.Warn(), component, fields, message)
}

// Error logs err under the stage field when the caller supplies one, so
// failures read as "<stage> failed".
func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	message := "operation failed"
	if stage, ok := fields["stage"].(string); ok && stage != "" {
		message = stage + " failed"
	}
	emit(z.logger.Error().Err(err), component, fields, message)
}

func emit(e *zerolog.Event, component string, fields map[string]interface{}, message string) {
	e.Str("component", component).Fields(fields).Msg(message)
}
