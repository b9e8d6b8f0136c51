package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/dedup"
	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/policy/compliance"
	"github.com/jobsonar/jobsonar/internal/registry"
	"github.com/jobsonar/jobsonar/internal/scoring"
	"github.com/jobsonar/jobsonar/internal/storage/memory"
)

type failingProfileStore struct{}

func (failingProfileStore) GetProfile(context.Context, string) (discovery.Profile, error) {
	return discovery.Profile{}, fmt.Errorf("profiles unavailable")
}

func (failingProfileStore) GetPreferences(context.Context, string) (discovery.Preferences, error) {
	return discovery.Preferences{}, fmt.Errorf("profiles unavailable")
}

type controllerFixture struct {
	controller *Controller
	runs       *memory.RunStore
	connectors map[string]discovery.Connector
}

func newControllerFixture(t *testing.T, connectors map[string]discovery.Connector, descriptors []discovery.SourceDescriptor) *controllerFixture {
	t.Helper()
	clock := fixedClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	runs := memory.NewRunStore(nil)
	deps := PoolDeps{
		Connectors: connectors,
		Gate:       compliance.New(compliance.Config{}, clock),
		Limiter:    nopLimiter{},
		Dedup:      dedup.New(memory.NewPostingStore(), clock, &seqIDs{}),
		Scorer:     scoring.New(clock),
		Runs:       runs,
		Profiles:   memory.NewProfileStore(),
		Retry:      NewExponentialRetryPolicy(2, time.Millisecond, 5*time.Millisecond),
		Clock:      clock,
	}
	pool := NewPool(deps, PoolConfig{Workers: 2})
	reg, err := registry.New(descriptors)
	require.NoError(t, err)
	controller := NewController(pool, runs, reg, clock, &seqIDs{}, nil, nil, ControllerConfig{})
	return &controllerFixture{controller: controller, runs: runs, connectors: connectors}
}

func requireTerminal(t *testing.T, f *controllerFixture, runID string, want discovery.RunStatus) discovery.Run {
	t.Helper()
	var got discovery.Run
	require.Eventually(t, func() bool {
		run, err := f.runs.GetRun(context.Background(), runID)
		if err != nil || !run.Status.Terminal() {
			return false
		}
		got = run
		return true
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, want, got.Status)
	return got
}

func TestStartRunsToCompletion(t *testing.T) {
	t.Parallel()
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", postings: rawPostings("alpha", 2)},
		"beta":  &scriptConnector{sourceID: "beta", postings: rawPostings("beta", 1)},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha"), src("beta")})

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
	require.Equal(t, discovery.RunStatusRunning, run.Status)
	require.Equal(t, []string{"alpha", "beta"}, run.SourceIDs)

	final := requireTerminal(t, f, run.ID, discovery.RunStatusCompleted)
	require.Equal(t, 2, final.Progress.CompletedSources)
	require.Equal(t, 3, final.Progress.JobsFound)
	require.Equal(t, 3, final.Progress.JobsNew)
	require.NotNil(t, final.FinishedAt)
	require.Empty(t, final.Errors)
}

func TestStartRejectsSecondActiveRun(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	proceed := make(chan struct{})
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", started: started, proceed: proceed},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha")})

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
	<-started

	_, err = f.controller.Start(context.Background(), "user-1", nil, "api")
	require.True(t, discovery.IsConflict(err))

	// A different user is unaffected by the first user's active run.
	other, err := f.controller.Start(context.Background(), "user-2", nil, "api")
	require.NoError(t, err)
	require.NotEqual(t, run.ID, other.ID)

	close(proceed)
	requireTerminal(t, f, run.ID, discovery.RunStatusCompleted)

	// Once settled, the user can start again.
	_, err = f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
}

func TestStartUnknownSourceFails(t *testing.T) {
	t.Parallel()
	f := newControllerFixture(t, nil, []discovery.SourceDescriptor{src("alpha")})

	_, err := f.controller.Start(context.Background(), "user-1", []string{"nope"}, "api")
	require.Error(t, err)
	require.False(t, discovery.IsConflict(err))

	status, err := f.controller.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusIdle, status.Status)
	require.Nil(t, status.Run)
}

func TestStopSettlesRunAsStopped(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	proceed := make(chan struct{})
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", postings: rawPostings("alpha", 1), started: started, proceed: proceed},
		"beta":  &scriptConnector{sourceID: "beta", postings: rawPostings("beta", 1)},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha"), src("beta")})
	// Single worker so beta is never claimed once stop lands.
	f.controller.pool.cfg.Workers = 1

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
	<-started

	require.NoError(t, f.controller.Stop(context.Background(), run.ID))
	close(proceed)

	final := requireTerminal(t, f, run.ID, discovery.RunStatusStopped)
	// The in-flight source finished naturally; progress is preserved.
	require.Equal(t, 1, final.Progress.CompletedSources)
	require.Equal(t, 1, final.Progress.JobsFound)
}

func TestStopUnknownRun(t *testing.T) {
	t.Parallel()
	f := newControllerFixture(t, nil, []discovery.SourceDescriptor{src("alpha")})
	err := f.controller.Stop(context.Background(), "ghost")
	require.True(t, discovery.IsNotFound(err))
}

func TestStatusReflectsLifecycle(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	proceed := make(chan struct{})
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", postings: rawPostings("alpha", 1), started: started, proceed: proceed},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha")})

	status, err := f.controller.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusIdle, status.Status)
	require.Nil(t, status.Run)

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
	<-started

	status, err = f.controller.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, status.Status)
	require.NotNil(t, status.Run)
	require.Equal(t, run.ID, status.Run.ID)

	close(proceed)
	requireTerminal(t, f, run.ID, discovery.RunStatusCompleted)

	require.Eventually(t, func() bool {
		status, err = f.controller.Status(context.Background(), "user-1")
		return err == nil && status.Status == StatusIdle
	}, 2*time.Second, 5*time.Millisecond)
	require.NotNil(t, status.Run)
	require.Equal(t, run.ID, status.Run.ID)
	require.Equal(t, discovery.RunStatusCompleted, status.Run.Status)
}

func TestSystemicFailureSettlesRunAsFailed(t *testing.T) {
	t.Parallel()
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", postings: rawPostings("alpha", 1)},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha")})
	f.controller.pool.deps.Profiles = failingProfileStore{}

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)

	final := requireTerminal(t, f, run.ID, discovery.RunStatusFailed)
	require.Contains(t, final.ErrorText, "systemic failure")
}

func TestPerSourceErrorsDoNotFailRun(t *testing.T) {
	t.Parallel()
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", permanent: true, failKind: discovery.SourceErrParse},
		"beta":  &scriptConnector{sourceID: "beta", postings: rawPostings("beta", 2)},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha"), src("beta")})

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)

	final := requireTerminal(t, f, run.ID, discovery.RunStatusCompleted)
	require.Len(t, final.Errors, 1)
	require.Equal(t, "alpha", final.Errors[0].SourceID)
	require.Equal(t, 2, final.Progress.CompletedSources)
	require.Equal(t, 2, final.Progress.JobsFound)
}

func TestListFiltersHistory(t *testing.T) {
	t.Parallel()
	connectors := map[string]discovery.Connector{
		"alpha": &scriptConnector{sourceID: "alpha", postings: rawPostings("alpha", 1)},
	}
	f := newControllerFixture(t, connectors, []discovery.SourceDescriptor{src("alpha")})

	run, err := f.controller.Start(context.Background(), "user-1", nil, "api")
	require.NoError(t, err)
	requireTerminal(t, f, run.ID, discovery.RunStatusCompleted)

	runs, err := f.controller.List(context.Background(), "user-1", discovery.RunStatusCompleted, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	runs, err = f.controller.List(context.Background(), "user-1", discovery.RunStatusFailed, 10)
	require.NoError(t, err)
	require.Empty(t, runs)

	got, err := f.controller.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)

	_, err = f.controller.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, discovery.ErrNotFound)
}
