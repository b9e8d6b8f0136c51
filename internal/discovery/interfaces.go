package discovery

import (
	"context"
	"time"
)

// Connector is the uniform capability every source implements. The
// orchestration core treats all sources identically regardless of whether
// they are browser-driven or API-driven. Failures must be *SourceError.
type Connector interface {
	Fetch(ctx context.Context, query Query, limit int) ([]RawPosting, error)
}

// RunStore persists run lifecycle and progress.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string) error
	UpdateRunProgress(ctx context.Context, runID string, progress RunProgress) error
	AppendRunError(ctx context.Context, runID string, runErr RunError) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, userID string, status RunStatus, limit int) ([]Run, error)
	LatestRun(ctx context.Context, userID string) (Run, error)
}

// PostingStore persists deduplicated postings. CreatePosting must be
// atomic with respect to the per-user fingerprint uniqueness constraint:
// it returns created=false when the fingerprint already exists.
type PostingStore interface {
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (Posting, error)
	CreatePosting(ctx context.Context, posting Posting) (created bool, err error)
	TouchPosting(ctx context.Context, postingID string, seenAt time.Time) error
}

// ProfileStore supplies scoring inputs for a user.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
}

// ComplianceGate decides whether a source may be used at all. A non-nil
// error is a *ComplianceViolation describing why.
type ComplianceGate interface {
	Allow(ctx context.Context, src SourceDescriptor) error
}

// Publisher pushes run events to a notification pipeline.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ArchiveStore writes raw connector payloads and returns a URI.
type ArchiveStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and posting IDs.
type IDGenerator interface {
	NewID() (string, error)
}
