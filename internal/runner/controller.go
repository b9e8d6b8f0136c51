package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/progress"
	"github.com/jobsonar/jobsonar/internal/registry"
	"github.com/jobsonar/jobsonar/internal/telemetry"
)

// StatusIdle and StatusRunning label the owner-level status surface.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

// OwnerStatus is the answer to a status query: whether a run is active
// and the most recent run, if any.
type OwnerStatus struct {
	Status string         `json:"status"`
	Run    *discovery.Run `json:"run,omitempty"`
}

// ControllerConfig controls Controller behavior.
type ControllerConfig struct {
	// BaseContext governs background run execution; request contexts
	// from the start call never cancel an in-flight run.
	BaseContext context.Context
}

// Controller owns the run lifecycle. It enforces the single-active-run
// invariant per owner with a keyed in-process state map backed by the run
// store, drives the pool asynchronously, and settles each run into
// exactly one terminal state.
type Controller struct {
	pool    *Pool
	runs    discovery.RunStore
	sources *registry.Registry
	clock   discovery.Clock
	ids     discovery.IDGenerator
	emitter progress.Emitter
	logger  *zap.Logger
	baseCtx context.Context

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	run       discovery.Run
	cancelled atomic.Bool
	done      chan struct{}
}

// NewController constructs a Controller.
func NewController(
	pool *Pool,
	runs discovery.RunStore,
	sources *registry.Registry,
	clock discovery.Clock,
	ids discovery.IDGenerator,
	emitter progress.Emitter,
	logger *zap.Logger,
	cfg ControllerConfig,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Controller{
		pool:    pool,
		runs:    runs,
		sources: sources,
		clock:   clock,
		ids:     ids,
		emitter: emitter,
		logger:  logger,
		baseCtx: baseCtx,
		active:  make(map[string]*activeRun),
	}
}

// Start creates a run for the user and drives discovery in the
// background. It returns immediately with the run handle, or a
// *ConflictError when the user already has an active run. An empty
// sourceIDs list resolves to the full registry.
func (c *Controller) Start(
	ctx context.Context,
	userID string,
	sourceIDs []string,
	triggeredBy string,
) (discovery.Run, error) {
	if userID == "" {
		return discovery.Run{}, fmt.Errorf("user id is required")
	}
	descriptors, err := c.sources.Resolve(sourceIDs)
	if err != nil {
		return discovery.Run{}, fmt.Errorf("resolve sources: %w", err)
	}

	c.mu.Lock()
	if current, ok := c.active[userID]; ok {
		c.mu.Unlock()
		return discovery.Run{}, &discovery.ConflictError{UserID: userID, RunID: current.run.ID}
	}

	id, err := c.ids.NewID()
	if err != nil {
		c.mu.Unlock()
		return discovery.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	now := c.clock.Now().UTC()
	run := discovery.Run{
		ID:          id,
		UserID:      userID,
		Status:      discovery.RunStatusPending,
		TriggeredBy: triggeredBy,
		SourceIDs:   descriptorIDs(descriptors),
		CreatedAt:   now,
		Progress:    discovery.RunProgress{TotalSources: len(descriptors)},
	}
	if err := c.runs.CreateRun(ctx, run); err != nil {
		c.mu.Unlock()
		return discovery.Run{}, &discovery.SystemicFailure{Err: fmt.Errorf("create run: %w", err)}
	}
	handle := &activeRun{run: run, done: make(chan struct{})}
	c.active[userID] = handle
	c.mu.Unlock()

	if err := c.runs.UpdateRunStatus(ctx, run.ID, discovery.RunStatusRunning, ""); err != nil {
		c.release(userID, handle)
		return discovery.Run{}, &discovery.SystemicFailure{Err: fmt.Errorf("mark run running: %w", err)}
	}
	run.Status = discovery.RunStatusRunning
	telemetry.ObserveRun("started")
	c.emit(progress.Event{
		RunID:  run.ID,
		UserID: userID,
		TS:     now,
		Stage:  progress.StageRunStart,
	})
	c.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("user_id", userID),
		zap.Int("sources", len(descriptors)),
		zap.String("triggered_by", triggeredBy),
	)

	go c.drive(handle, descriptors)
	return run, nil
}

// Stop requests cooperative cancellation of an active run. Workers stop
// claiming sources at the next boundary; the run settles to stopped once
// in-flight fetches drain. Returns *NotFoundError when no active run
// matches.
func (c *Controller) Stop(_ context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, handle := range c.active {
		if handle.run.ID == runID {
			handle.cancelled.Store(true)
			c.logger.Info("run stop requested", zap.String("run_id", runID))
			return nil
		}
	}
	return &discovery.NotFoundError{RunID: runID}
}

// Status reports whether the user has an active run, along with the most
// recent run and its live progress.
func (c *Controller) Status(ctx context.Context, userID string) (OwnerStatus, error) {
	c.mu.Lock()
	handle, isActive := c.active[userID]
	c.mu.Unlock()

	if isActive {
		run, err := c.runs.GetRun(ctx, handle.run.ID)
		if err != nil {
			return OwnerStatus{}, fmt.Errorf("load active run: %w", err)
		}
		return OwnerStatus{Status: StatusRunning, Run: &run}, nil
	}

	run, err := c.runs.LatestRun(ctx, userID)
	if discovery.IsNotFound(err) {
		return OwnerStatus{Status: StatusIdle}, nil
	}
	if err != nil {
		return OwnerStatus{}, fmt.Errorf("load latest run: %w", err)
	}
	return OwnerStatus{Status: StatusIdle, Run: &run}, nil
}

// Get returns one run by ID.
func (c *Controller) Get(ctx context.Context, runID string) (discovery.Run, error) {
	return c.runs.GetRun(ctx, runID)
}

// List returns a user's run history, newest first.
func (c *Controller) List(
	ctx context.Context,
	userID string,
	status discovery.RunStatus,
	limit int,
) ([]discovery.Run, error) {
	return c.runs.ListRuns(ctx, userID, status, limit)
}

// Wait blocks until the given active run settles. It returns immediately
// for unknown runs; useful in tests and shutdown paths.
func (c *Controller) Wait(runID string) {
	c.mu.Lock()
	var done chan struct{}
	for _, handle := range c.active {
		if handle.run.ID == runID {
			done = handle.done
			break
		}
	}
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) drive(handle *activeRun, descriptors []discovery.SourceDescriptor) {
	run := handle.run
	start := c.clock.Now()

	snapshot, execErr := c.pool.Execute(c.baseCtx, run, descriptors, handle.cancelled.Load)

	status := discovery.RunStatusCompleted
	errText := ""
	stage := progress.StageRunDone
	switch {
	case execErr != nil:
		status = discovery.RunStatusFailed
		errText = execErr.Error()
		stage = progress.StageRunError
	case handle.cancelled.Load():
		status = discovery.RunStatusStopped
	}

	if err := c.runs.UpdateRunStatus(c.baseCtx, run.ID, status, errText); err != nil {
		c.logger.Error("finalize run status failed",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	telemetry.ObserveRun(string(status))
	now := c.clock.Now()
	c.emit(progress.Event{
		RunID:     run.ID,
		UserID:    run.UserID,
		TS:        now.UTC(),
		Stage:     stage,
		Status:    status,
		JobsFound: snapshot.JobsFound,
		JobsNew:   snapshot.JobsNew,
		Dur:       now.Sub(start),
		Note:      errText,
	})
	c.logger.Info("run settled",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("jobs_found", snapshot.JobsFound),
		zap.Int("jobs_new", snapshot.JobsNew),
		zap.Int("completed_sources", snapshot.CompletedSources),
	)

	c.release(run.UserID, handle)
}

// release removes the keyed active entry if it still points at handle.
func (c *Controller) release(userID string, handle *activeRun) {
	c.mu.Lock()
	if current, ok := c.active[userID]; ok && current == handle {
		delete(c.active, userID)
	}
	c.mu.Unlock()
	close(handle.done)
}

func (c *Controller) emit(evt progress.Event) {
	if c.emitter != nil {
		c.emitter.Emit(evt)
	}
}

func descriptorIDs(descriptors []discovery.SourceDescriptor) []string {
	ids := make([]string, len(descriptors))
	for i, d := range descriptors {
		ids[i] = d.ID
	}
	return ids
}
