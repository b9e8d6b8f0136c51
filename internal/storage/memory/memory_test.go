package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRunStore(nil)

	run := discovery.Run{
		ID:        "run-1",
		UserID:    "user-1",
		Status:    discovery.RunStatusPending,
		SourceIDs: []string{"remotive"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run))

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", discovery.RunStatusRunning, ""))
	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, discovery.RunStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.FinishedAt)

	require.NoError(t, store.UpdateRunProgress(ctx, "run-1", discovery.RunProgress{
		TotalSources:     1,
		CompletedSources: 1,
		JobsFound:        4,
		JobsNew:          2,
	}))
	require.NoError(t, store.AppendRunError(ctx, "run-1", discovery.RunError{
		SourceID: "remotive",
		Message:  "network: connection reset",
		At:       time.Now().UTC(),
	}))

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", discovery.RunStatusCompleted, ""))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, discovery.RunStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, 4, got.Progress.JobsFound)
	require.Len(t, got.Errors, 1)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestRunStoreStatusTimestampsUseClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := fixedClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)}
	store := NewRunStore(clock)

	require.NoError(t, store.CreateRun(ctx, discovery.Run{
		ID:        "run-1",
		UserID:    "user-1",
		Status:    discovery.RunStatusPending,
		CreatedAt: clock.Now(),
	}))

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", discovery.RunStatusRunning, ""))
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", discovery.RunStatusCompleted, ""))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	require.True(t, got.StartedAt.Equal(clock.Now()))
	require.True(t, got.FinishedAt.Equal(clock.Now()))
}

func TestRunStoreMissingRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRunStore(nil)

	_, err := store.GetRun(ctx, "nope")
	require.ErrorIs(t, err, discovery.ErrNotFound)
	require.ErrorIs(t, store.UpdateRunStatus(ctx, "nope", discovery.RunStatusFailed, "x"), discovery.ErrNotFound)
	require.ErrorIs(t, store.UpdateRunProgress(ctx, "nope", discovery.RunProgress{}), discovery.ErrNotFound)
	require.ErrorIs(t, store.AppendRunError(ctx, "nope", discovery.RunError{}), discovery.ErrNotFound)
}

func TestRunStoreListAndLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRunStore(nil)

	base := time.Now().UTC()
	for i, status := range []discovery.RunStatus{
		discovery.RunStatusCompleted,
		discovery.RunStatusFailed,
		discovery.RunStatusCompleted,
	} {
		require.NoError(t, store.CreateRun(ctx, discovery.Run{
			ID:        string(rune('a' + i)),
			UserID:    "user-1",
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateRun(ctx, discovery.Run{
		ID:        "other",
		UserID:    "user-2",
		Status:    discovery.RunStatusCompleted,
		CreatedAt: base.Add(time.Hour),
	}))

	runs, err := store.ListRuns(ctx, "user-1", "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "c", runs[0].ID)

	runs, err = store.ListRuns(ctx, "user-1", discovery.RunStatusCompleted, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	runs, err = store.ListRuns(ctx, "user-1", "", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	latest, err := store.LatestRun(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "c", latest.ID)

	_, err = store.LatestRun(ctx, "user-3")
	require.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestPostingStoreFingerprintConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewPostingStore()

	posting := discovery.Posting{
		ID:          "p-1",
		UserID:      "user-1",
		Fingerprint: "abc",
		Title:       "Backend Engineer",
		LastSeenAt:  time.Now().UTC(),
	}
	created, err := store.CreatePosting(ctx, posting)
	require.NoError(t, err)
	require.True(t, created)

	dup := posting
	dup.ID = "p-2"
	created, err = store.CreatePosting(ctx, dup)
	require.NoError(t, err)
	require.False(t, created)

	got, err := store.FindByFingerprint(ctx, "user-1", "abc")
	require.NoError(t, err)
	require.Equal(t, "p-1", got.ID)

	// Same fingerprint under another user is a distinct posting.
	other := posting
	other.ID = "p-3"
	other.UserID = "user-2"
	created, err = store.CreatePosting(ctx, other)
	require.NoError(t, err)
	require.True(t, created)
}

func TestPostingStoreTouch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewPostingStore()

	seen := time.Now().UTC()
	_, err := store.CreatePosting(ctx, discovery.Posting{
		ID:          "p-1",
		UserID:      "user-1",
		Fingerprint: "abc",
		LastSeenAt:  seen,
	})
	require.NoError(t, err)

	later := seen.Add(time.Hour)
	require.NoError(t, store.TouchPosting(ctx, "p-1", later))
	got, err := store.FindByFingerprint(ctx, "user-1", "abc")
	require.NoError(t, err)
	require.True(t, got.LastSeenAt.Equal(later))

	// Touch never moves last_seen_at backwards.
	require.NoError(t, store.TouchPosting(ctx, "p-1", seen))
	got, err = store.FindByFingerprint(ctx, "user-1", "abc")
	require.NoError(t, err)
	require.True(t, got.LastSeenAt.Equal(later))

	require.ErrorIs(t, store.TouchPosting(ctx, "missing", later), discovery.ErrNotFound)
}

func TestProfileStoreDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewProfileStore()

	profile, err := store.GetProfile(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, profile.Skills)

	require.NoError(t, store.PutProfile(ctx, "user-1", discovery.Profile{
		Skills: []string{"go", "postgres"},
	}))
	require.NoError(t, store.PutPreferences(ctx, "user-1", discovery.Preferences{
		TargetRoles: []string{"backend engineer"},
	}))

	profile, err = store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"go", "postgres"}, profile.Skills)

	prefs, err := store.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"backend engineer"}, prefs.TargetRoles)
}
