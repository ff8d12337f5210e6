package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the component-scoped logging contract used across the pipeline.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// New builds a zerolog-backed logger. format is "console" or "json".
func New(format, level string, writer io.Writer) (Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if writer == nil {
		writer = os.Stderr
	}

	switch strings.ToLower(format) {
	case "", "console":
		return NewZerolog(zerolog.ConsoleWriter{Out: writer}, lvl), nil
	case "json":
		return NewZerolog(writer, lvl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Debug(component, message string, fields map[string]interface{})   {}
func (NoOp) Info(component, message string, fields map[string]interface{})    {}
func (NoOp) Warning(component, message string, fields map[string]interface{}) {}
func (NoOp) Error(component string, err error, fields map[string]interface{}) {}
