// Package sinks contains progress.Sink implementations: structured logs,
// Prometheus collectors, and the run-event notification publisher.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/progress"
)

// LogSink emits structured logs for run progress streams. It is useful
// during development or audits where no notification pipeline is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("run progress",
			zap.String("run_id", evt.RunID),
			zap.String("user_id", evt.UserID),
			zap.String("stage", string(evt.Stage)),
			zap.String("source_id", evt.SourceID),
			zap.Int("jobs_found", evt.JobsFound),
			zap.Int("jobs_new", evt.JobsNew),
			zap.String("status", string(evt.Status)),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
