package sinks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/progress"
)

// PublisherSink forwards run lifecycle events to a notification pipeline
// (e.g. a Pub/Sub topic consumed by the export service). Source-level
// events are deliberately not forwarded; subscribers poll live progress
// through the status endpoint instead.
type PublisherSink struct {
	publisher discovery.Publisher
	topic     string
	logger    *zap.Logger
}

// RunEventMessage is the wire shape published for each run milestone.
type RunEventMessage struct {
	RunID     string              `json:"run_id"`
	UserID    string              `json:"user_id"`
	Stage     string              `json:"stage"`
	Status    discovery.RunStatus `json:"status,omitempty"`
	JobsFound int                 `json:"jobs_found"`
	JobsNew   int                 `json:"jobs_new"`
	Note      string              `json:"note,omitempty"`
	At        time.Time           `json:"at"`
}

// NewPublisherSink constructs a PublisherSink for the given topic.
func NewPublisherSink(publisher discovery.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes run lifecycle events from the batch. Publish failures
// are logged and skipped; notification delivery is best-effort and must
// never stall the hub.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		default:
			continue
		}
		msg := RunEventMessage{
			RunID:     evt.RunID,
			UserID:    evt.UserID,
			Stage:     string(evt.Stage),
			Status:    evt.Status,
			JobsFound: evt.JobsFound,
			JobsNew:   evt.JobsNew,
			Note:      evt.Note,
			At:        evt.TS,
		}
		if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
			s.logger.Warn("publish run event failed",
				zap.String("run_id", evt.RunID),
				zap.String("stage", string(evt.Stage)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
