package llmcall

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/spires/internal/providers"
)

// Sink persists recorded calls.
type Sink interface {
	Write(ctx context.Context, call *Call) error
}

// LogSink writes each call as a structured log line.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Write implements Sink.
func (s LogSink) Write(ctx context.Context, call *Call) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, s.Level, "llm call",
		"id", call.ID,
		"operation", call.Operation,
		"template", call.Template,
		"class", call.Class,
		"provider", call.Provider,
		"model", call.Model,
		"latency_ms", call.LatencyMs,
		"input_tokens", call.InputTokens,
		"output_tokens", call.OutputTokens,
		"cache_hit", call.CacheHit,
		"success", call.Success,
	)
	return nil
}

// Recorder sends calls to its sinks. Sink failures are logged, never returned,
// so auditing cannot break an extraction.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRecorder creates a recorder over sinks. A nil logger uses slog.Default().
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sinks: sinks, logger: logger}
}

// Record captures a provider result.
func (r *Recorder) Record(ctx context.Context, result *providers.ChatResult, opts RecordOptions) {
	if r == nil {
		return
	}
	r.RecordCall(ctx, FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call.
func (r *Recorder) RecordCall(ctx context.Context, call *Call) {
	if r == nil || call == nil {
		return
	}
	for _, s := range r.sinks {
		if err := s.Write(ctx, call); err != nil {
			r.logger.Warn("failed to record llm call", "id", call.ID, "error", err)
		}
	}
}
