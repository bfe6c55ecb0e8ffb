package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sink receives diagnostic events raised while loading or evaluating rules.
// Implementations must be safe for concurrent use.
type Sink interface {
	TrackEvent(name string, properties map[string]string)
}

// Nop discards every event
type Nop struct{}

func (Nop) TrackEvent(string, map[string]string) {}

// LogSink writes events to a structured logger at debug level
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) TrackEvent(name string, properties map[string]string) {
	args := make([]any, 0, 2+2*len(properties))
	args = append(args, "event", name)
	for k, v := range properties {
		args = append(args, k, v)
	}
	s.logger.Debug("Telemetry event", args...)
}

// Multi fans an event out to every sink
type Multi []Sink

func (m Multi) TrackEvent(name string, properties map[string]string) {
	for _, sink := range m {
		if sink != nil {
			sink.TrackEvent(name, properties)
		}
	}
}

// Event names raised by the rule evaluator and loaders
const (
	EventApplyCreatedModified = "ApplyCreatedModifiedException"
	EventApplyDeletedModified = "ApplyDeletedModifiedException"
	EventApplyOverall         = "ApplyOverallException"
	EventEmbeddedRulesLoad    = "EmbeddedAnalysesFilterLoadException"
	EventRulesLoad            = "AnalysesFilterLoadException"
)

// ExceptionType names the type of the innermost wrapped error, for the
// "Exception Type" event property
func ExceptionType(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return fmt.Sprintf("%T", err)
		}
		err = inner
	}
}
