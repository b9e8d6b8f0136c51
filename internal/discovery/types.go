// Package discovery defines core types shared across subsystems.
package discovery

import (
	"time"
)

// RunStatus represents the lifecycle state of a discovery run.
type RunStatus string

// Run status values persisted in the run store. Transitions only move
// forward: pending -> running -> completed|stopped|failed.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusStopped, RunStatusFailed:
		return true
	default:
		return false
	}
}

// SourceType distinguishes how a connector reaches its platform.
type SourceType string

// Supported source types.
const (
	SourceTypeAPI     SourceType = "api"
	SourceTypeBrowser SourceType = "browser"
)

// RatePolicy bounds request pacing for one source.
type RatePolicy struct {
	MaxPerMinute int           `json:"max_per_minute"`
	Burst        int           `json:"burst"`
	MinJitter    time.Duration `json:"min_jitter"`
	MaxJitter    time.Duration `json:"max_jitter"`
}

// SourceDescriptor is an immutable catalog entry describing one platform
// integration. Descriptors are loaded at process start and never mutated.
type SourceDescriptor struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      SourceType `json:"type"`
	Region    string     `json:"region"`
	Rate      RatePolicy `json:"rate"`
	ResultCap int        `json:"result_cap"`
}

// Query carries the search terms handed to every connector.
type Query struct {
	Keywords string `json:"keywords"`
	Location string `json:"location"`
}

// RawPosting is the source-local representation returned by a connector.
// It exists only within one worker's processing of one source.
type RawPosting struct {
	SourceID    string
	ExternalID  string
	Title       string
	Company     string
	Location    string
	Description string
	URL         string
	PostedAt    *time.Time
	SalaryText  string
	SalaryMin   *float64
	SalaryMax   *float64
	Currency    string
	Payload     []byte
}

// RemoteType classifies a posting's work arrangement.
type RemoteType string

// Remote classifications inferred at the connector boundary.
const (
	RemoteTypeRemote  RemoteType = "remote"
	RemoteTypeHybrid  RemoteType = "hybrid"
	RemoteTypeOnsite  RemoteType = "onsite"
	RemoteTypeUnknown RemoteType = "unknown"
)

// PostingStatus tracks the user-facing state of a stored posting.
type PostingStatus string

// Posting status values. Only Status is user-mutable after creation.
const (
	PostingStatusNew      PostingStatus = "new"
	PostingStatusSaved    PostingStatus = "saved"
	PostingStatusApplied  PostingStatus = "applied"
	PostingStatusRejected PostingStatus = "rejected"
)

// Posting is the persisted, deduplicated record of a discovered job.
// Fingerprint is unique per user; fingerprint and source fields are
// immutable once created.
type Posting struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	RunID           string        `json:"run_id"`
	Fingerprint     string        `json:"fingerprint"`
	SourceID        string        `json:"source_id"`
	Title           string        `json:"title"`
	Company         string        `json:"company"`
	Location        string        `json:"location"`
	Region          string        `json:"region"`
	RemoteType      RemoteType    `json:"remote_type"`
	Seniority       string        `json:"seniority"`
	Description     string        `json:"description"`
	URL             string        `json:"url"`
	SalaryMin       *float64      `json:"salary_min,omitempty"`
	SalaryMax       *float64      `json:"salary_max,omitempty"`
	Currency        string        `json:"currency,omitempty"`
	PostedAt        *time.Time    `json:"posted_at,omitempty"`
	MatchScore      int           `json:"match_score"`
	MatchedSkills   []string      `json:"matched_skills"`
	MatchedKeywords []string      `json:"matched_keywords"`
	Status          PostingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	LastSeenAt      time.Time     `json:"last_seen_at"`
}

// RunError records one non-fatal per-source failure.
type RunError struct {
	SourceID string    `json:"source_id"`
	Message  string    `json:"message"`
	At       time.Time `json:"timestamp"`
}

// RunProgress is the live counter snapshot for a run.
type RunProgress struct {
	TotalSources     int    `json:"total_sources"`
	CompletedSources int    `json:"completed_sources"`
	JobsFound        int    `json:"jobs_found"`
	JobsNew          int    `json:"jobs_new"`
	CurrentSource    string `json:"current_source,omitempty"`
}

// Run is one discovery attempt with its own lifecycle and progress.
type Run struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      RunStatus   `json:"status"`
	TriggeredBy string      `json:"triggered_by"`
	SourceIDs   []string    `json:"source_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Progress    RunProgress `json:"progress"`
	Errors      []RunError  `json:"errors"`
	ErrorText   string      `json:"error_text,omitempty"`
}

// Profile holds the resume-derived inputs consumed by the scoring engine.
type Profile struct {
	UserID          string   `json:"user_id"`
	Skills          []string `json:"skills"`
	Roles           []string `json:"roles"`
	Keywords        []string `json:"keywords"`
	ExperienceYears int      `json:"experience_years"`
}

// Preferences holds the user-authored inputs consumed by the scoring engine.
type Preferences struct {
	UserID            string   `json:"user_id"`
	TargetRoles       []string `json:"target_roles"`
	TargetLocations   []string `json:"target_locations"`
	PreferredRegions  []string `json:"preferred_regions"`
	RemotePreference  string   `json:"remote_preference"`
	SeniorityLevels   []string `json:"seniority_levels"`
	IncludedCompanies []string `json:"included_companies"`
	ExcludedCompanies []string `json:"excluded_companies"`
	IncludeKeywords   []string `json:"include_keywords"`
	ExcludeKeywords   []string `json:"exclude_keywords"`
	PostedWithinDays  int      `json:"posted_within_days"`
}
