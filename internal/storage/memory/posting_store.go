package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// PostingStore is an in-memory discovery.PostingStore. Postings are keyed
// by (user, fingerprint) so duplicate creates resolve to the first writer.
type PostingStore struct {
	mu   sync.RWMutex
	byFP map[fpKey]discovery.Posting
	byID map[string]fpKey
}

type fpKey struct {
	userID      string
	fingerprint string
}

// NewPostingStore constructs a PostingStore.
func NewPostingStore() *PostingStore {
	return &PostingStore{
		byFP: make(map[fpKey]discovery.Posting),
		byID: make(map[string]fpKey),
	}
}

// FindByFingerprint looks up a posting by (user, fingerprint). Returns
// discovery.ErrNotFound when absent.
func (s *PostingStore) FindByFingerprint(
	_ context.Context,
	userID, fingerprint string,
) (discovery.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posting, ok := s.byFP[fpKey{userID, fingerprint}]
	if !ok {
		return discovery.Posting{}, discovery.ErrNotFound
	}
	return clonePosting(posting), nil
}

// CreatePosting inserts the posting unless one with the same
// (user, fingerprint) already exists, in which case created is false.
func (s *PostingStore) CreatePosting(_ context.Context, posting discovery.Posting) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fpKey{posting.UserID, posting.Fingerprint}
	if _, exists := s.byFP[key]; exists {
		return false, nil
	}
	s.byFP[key] = clonePosting(posting)
	s.byID[posting.ID] = key
	return true, nil
}

// TouchPosting advances last_seen_at for an existing posting.
func (s *PostingStore) TouchPosting(_ context.Context, postingID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[postingID]
	if !ok {
		return discovery.ErrNotFound
	}
	posting := s.byFP[key]
	if seenAt.After(posting.LastSeenAt) {
		posting.LastSeenAt = seenAt
		s.byFP[key] = posting
	}
	return nil
}

func clonePosting(posting discovery.Posting) discovery.Posting {
	cp := posting
	cp.MatchedSkills = append([]string(nil), posting.MatchedSkills...)
	cp.MatchedKeywords = append([]string(nil), posting.MatchedKeywords...)
	return cp
}
