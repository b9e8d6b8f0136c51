package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// PostingStore persists deduplicated postings in Postgres. The table
// carries a unique constraint on (user_id, fingerprint); inserts race
// through ON CONFLICT DO NOTHING so the first writer wins.
type PostingStore struct {
	db DB
}

// NewPostingStore constructs a PostingStore over an existing pool.
func NewPostingStore(db DB) (*PostingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &PostingStore{db: db}, nil
}

const insertPostingSQL = `
INSERT INTO postings (
	id, user_id, run_id, fingerprint, source_id,
	title, company, location, region, remote_type, seniority,
	description, url, salary_min, salary_max, currency, posted_at,
	match_score, matched_skills, matched_keywords, status,
	created_at, last_seen_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
)
ON CONFLICT (user_id, fingerprint) DO NOTHING`

// CreatePosting inserts a posting unless the fingerprint already exists
// for the user. It reports whether a row was created.
func (s *PostingStore) CreatePosting(ctx context.Context, posting discovery.Posting) (bool, error) {
	if posting.ID == "" {
		return false, fmt.Errorf("posting id is required")
	}
	skills, err := json.Marshal(stringsOrEmpty(posting.MatchedSkills))
	if err != nil {
		return false, fmt.Errorf("marshal matched skills: %w", err)
	}
	keywords, err := json.Marshal(stringsOrEmpty(posting.MatchedKeywords))
	if err != nil {
		return false, fmt.Errorf("marshal matched keywords: %w", err)
	}
	args := []any{
		posting.ID, posting.UserID, posting.RunID, posting.Fingerprint, posting.SourceID,
		posting.Title, posting.Company, posting.Location, posting.Region, posting.RemoteType, posting.Seniority,
		posting.Description, posting.URL, posting.SalaryMin, posting.SalaryMax, posting.Currency, posting.PostedAt,
		posting.MatchScore, skills, keywords, posting.Status,
		posting.CreatedAt, posting.LastSeenAt,
	}
	tag, err := s.db.Exec(ctx, insertPostingSQL, args...)
	if err != nil {
		return false, fmt.Errorf("insert posting: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const selectPostingSQL = `
SELECT id, user_id, run_id, fingerprint, source_id,
	title, company, location, region, remote_type, seniority,
	description, url, salary_min, salary_max, currency, posted_at,
	match_score, matched_skills, matched_keywords, status,
	created_at, last_seen_at
FROM postings`

// FindByFingerprint loads the posting stored under a user's fingerprint.
func (s *PostingStore) FindByFingerprint(ctx context.Context, userID, fingerprint string) (discovery.Posting, error) {
	row := s.db.QueryRow(ctx,
		selectPostingSQL+` WHERE user_id = $1 AND fingerprint = $2`, userID, fingerprint)
	return scanPosting(row)
}

// TouchPosting refreshes last_seen_at. The stamp never moves backwards.
func (s *PostingStore) TouchPosting(ctx context.Context, postingID string, seenAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE postings SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1`,
		postingID, seenAt)
	if err != nil {
		return fmt.Errorf("touch posting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

func scanPosting(row pgx.Row) (discovery.Posting, error) {
	var (
		posting  discovery.Posting
		skills   []byte
		keywords []byte
	)
	err := row.Scan(
		&posting.ID, &posting.UserID, &posting.RunID, &posting.Fingerprint, &posting.SourceID,
		&posting.Title, &posting.Company, &posting.Location, &posting.Region, &posting.RemoteType, &posting.Seniority,
		&posting.Description, &posting.URL, &posting.SalaryMin, &posting.SalaryMax, &posting.Currency, &posting.PostedAt,
		&posting.MatchScore, &skills, &keywords, &posting.Status,
		&posting.CreatedAt, &posting.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.Posting{}, discovery.ErrNotFound
	}
	if err != nil {
		return discovery.Posting{}, fmt.Errorf("scan posting: %w", err)
	}
	if err := json.Unmarshal(skills, &posting.MatchedSkills); err != nil {
		return discovery.Posting{}, fmt.Errorf("decode matched skills: %w", err)
	}
	if err := json.Unmarshal(keywords, &posting.MatchedKeywords); err != nil {
		return discovery.Posting{}, fmt.Errorf("decode matched keywords: %w", err)
	}
	return posting, nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
