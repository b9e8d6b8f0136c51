// Package dedup decides new-vs-duplicate for discovered postings using
// content-derived fingerprints.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

const stripeCount = 64

// Engine applies first-writer-wins deduplication per user. Decisions for
// the same fingerprint are serialized through striped locks so two workers
// of one run can never both decide "new"; the posting store's uniqueness
// constraint backs this up at the persistence boundary.
type Engine struct {
	store discovery.PostingStore
	clock discovery.Clock
	ids   discovery.IDGenerator

	stripes [stripeCount]sync.Mutex
}

// New constructs an Engine.
func New(store discovery.PostingStore, clock discovery.Clock, ids discovery.IDGenerator) *Engine {
	return &Engine{store: store, clock: clock, ids: ids}
}

// Outcome reports what Absorb did with one raw posting.
type Outcome struct {
	Created bool
	Posting discovery.Posting
}

// Absorb ingests one raw posting for a user. If a posting with the same
// fingerprint already exists, only its last_seen_at is refreshed and the
// originally captured content is retained. Otherwise build is invoked to
// produce the new record, which is then created and counted as new.
func (e *Engine) Absorb(
	ctx context.Context,
	userID string,
	raw discovery.RawPosting,
	build func(fingerprint string) (discovery.Posting, error),
) (Outcome, error) {
	fp := discovery.Fingerprint(raw.Title, raw.Company, raw.Location, raw.SourceID)

	lock := e.stripeFor(userID, fp)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now().UTC()

	existing, err := e.store.FindByFingerprint(ctx, userID, fp)
	switch {
	case err == nil:
		if touchErr := e.store.TouchPosting(ctx, existing.ID, now); touchErr != nil {
			return Outcome{}, fmt.Errorf("touch posting %s: %w", existing.ID, touchErr)
		}
		existing.LastSeenAt = now
		return Outcome{Created: false, Posting: existing}, nil
	case !errors.Is(err, discovery.ErrNotFound):
		return Outcome{}, fmt.Errorf("find posting by fingerprint: %w", err)
	}

	posting, err := build(fp)
	if err != nil {
		return Outcome{}, fmt.Errorf("build posting: %w", err)
	}
	posting.UserID = userID
	posting.Fingerprint = fp
	posting.Status = discovery.PostingStatusNew
	posting.CreatedAt = now
	posting.LastSeenAt = now
	if posting.ID == "" {
		id, idErr := e.ids.NewID()
		if idErr != nil {
			return Outcome{}, fmt.Errorf("generate posting id: %w", idErr)
		}
		posting.ID = id
	}

	created, err := e.store.CreatePosting(ctx, posting)
	if err != nil {
		return Outcome{}, fmt.Errorf("create posting: %w", err)
	}
	if !created {
		// Lost a cross-process race; the persistence constraint decided.
		existing, err = e.store.FindByFingerprint(ctx, userID, fp)
		if err != nil {
			return Outcome{}, fmt.Errorf("reload posting after conflict: %w", err)
		}
		if touchErr := e.store.TouchPosting(ctx, existing.ID, now); touchErr != nil {
			return Outcome{}, fmt.Errorf("touch posting %s: %w", existing.ID, touchErr)
		}
		return Outcome{Created: false, Posting: existing}, nil
	}
	return Outcome{Created: true, Posting: posting}, nil
}

func (e *Engine) stripeFor(userID, fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(fingerprint))
	return &e.stripes[h.Sum32()%stripeCount]
}
