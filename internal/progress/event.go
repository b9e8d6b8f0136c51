// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that workers use to report run progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such
// as structured logs, Prometheus metrics, or a notification publisher.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
	StageSourceError Stage = "SOURCE_ERROR"
)

// Event captures a single milestone of a discovery run.
type Event struct {
	// RunID identifies the run the event belongs to.
	RunID string
	// UserID identifies the run's owner.
	UserID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// SourceID scopes source events to one registry entry.
	SourceID string
	// JobsFound carries the per-source discovered count on SOURCE_DONE,
	// or the run total on RUN_DONE.
	JobsFound int
	// JobsNew carries the per-source new-posting count, same scoping.
	JobsNew int
	// Status is the run's terminal status on RUN_DONE/RUN_ERROR.
	Status discovery.RunStatus
	// Dur captures execution latency for source fetches and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceStart, StageSourceDone:
		if e.SourceID == "" {
			return fmt.Errorf("%s requires source id", e.Stage)
		}
	case StageSourceError:
		if e.SourceID == "" {
			return errors.New("source error requires source id")
		}
		if e.Note == "" {
			return errors.New("source error requires note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.JobsNew > e.JobsFound {
		return errors.New("jobs_new cannot exceed jobs_found")
	}
	return nil
}
