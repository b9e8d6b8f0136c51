// Package runner implements the run controller and the bounded worker
// pool that fans a discovery run out over its configured sources.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jobsonar/jobsonar/internal/dedup"
	"github.com/jobsonar/jobsonar/internal/discovery"
	"github.com/jobsonar/jobsonar/internal/normalize"
	"github.com/jobsonar/jobsonar/internal/progress"
	"github.com/jobsonar/jobsonar/internal/scoring"
	"github.com/jobsonar/jobsonar/internal/telemetry"
)

// RateLimiter paces requests per source.
type RateLimiter interface {
	Acquire(ctx context.Context, src discovery.SourceDescriptor) error
}

// PoolConfig controls pool behavior.
type PoolConfig struct {
	// Workers bounds concurrently active source fetches.
	Workers int
	// SourceTimeout is the hard per-attempt fetch deadline. A hung
	// connector surfaces as a network-kind error subject to retry.
	SourceTimeout time.Duration
	// ArchivePrefix prefixes payload paths in the archive store.
	ArchivePrefix string
}

const (
	defaultWorkers       = 3
	defaultSourceTimeout = 60 * time.Second
)

// PoolDeps collects the collaborators a Pool drives.
type PoolDeps struct {
	Connectors map[string]discovery.Connector
	Gate       discovery.ComplianceGate
	Limiter    RateLimiter
	Dedup      *dedup.Engine
	Scorer     *scoring.Engine
	Runs       discovery.RunStore
	Profiles   discovery.ProfileStore
	Archive    discovery.ArchiveStore
	Retry      RetryPolicy
	Clock      discovery.Clock
	Emitter    progress.Emitter
	Logger     *zap.Logger
}

// Pool executes one run's source list with bounded concurrency. Each
// source passes through the compliance gate and rate limiter before its
// connector fetch; failures are isolated per source.
type Pool struct {
	deps PoolDeps
	cfg  PoolConfig
}

// NewPool constructs a Pool.
func NewPool(deps PoolDeps, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if deps.Retry == nil {
		deps.Retry = NewExponentialRetryPolicy(2, 0, 0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pool{deps: deps, cfg: cfg}
}

// Execute fans out over sources and blocks until every claimed source is
// drained. cancelled is checked before each claim; once it reports true,
// no further sources are claimed and in-flight fetches finish naturally.
// A non-nil error means a systemic failure: the run cannot proceed and
// must terminate as failed.
func (p *Pool) Execute(
	ctx context.Context,
	run discovery.Run,
	sources []discovery.SourceDescriptor,
	cancelled func() bool,
) (discovery.RunProgress, error) {
	profile, err := p.deps.Profiles.GetProfile(ctx, run.UserID)
	if err != nil {
		return discovery.RunProgress{}, &discovery.SystemicFailure{Err: fmt.Errorf("load profile: %w", err)}
	}
	prefs, err := p.deps.Profiles.GetPreferences(ctx, run.UserID)
	if err != nil {
		return discovery.RunProgress{}, &discovery.SystemicFailure{Err: fmt.Errorf("load preferences: %w", err)}
	}
	query := buildQuery(profile, prefs)

	tr := &tracker{progress: discovery.RunProgress{TotalSources: len(sources)}}
	p.persistProgress(ctx, run.ID, tr)

	var (
		wg       sync.WaitGroup
		next     atomic.Int64
		systemic atomic.Pointer[discovery.SystemicFailure]
	)
	workers := p.cfg.Workers
	if workers > len(sources) {
		workers = len(sources)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			telemetry.IncActiveWorkers()
			defer telemetry.DecActiveWorkers()
			for {
				if cancelled() || ctx.Err() != nil || systemic.Load() != nil {
					return
				}
				idx := int(next.Add(1)) - 1
				if idx >= len(sources) {
					return
				}
				if err := p.processSource(ctx, run, sources[idx], query, profile, prefs, tr); err != nil {
					var sf *discovery.SystemicFailure
					if errors.As(err, &sf) {
						systemic.CompareAndSwap(nil, sf)
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	tr.clearCurrent()
	p.persistProgress(ctx, run.ID, tr)
	if sf := systemic.Load(); sf != nil {
		return tr.snapshot(), sf
	}
	return tr.snapshot(), nil
}

// processSource drives one source end to end. Only store-level failures
// return an error; connector and compliance failures are recorded on the
// run and the source still counts as completed.
func (p *Pool) processSource(
	ctx context.Context,
	run discovery.Run,
	src discovery.SourceDescriptor,
	query discovery.Query,
	profile discovery.Profile,
	prefs discovery.Preferences,
	tr *tracker,
) error {
	start := p.deps.Clock.Now()
	tr.setCurrent(src.Name)
	p.persistProgress(ctx, run.ID, tr)
	p.emit(progress.Event{
		RunID:    run.ID,
		UserID:   run.UserID,
		TS:       start.UTC(),
		Stage:    progress.StageSourceStart,
		SourceID: src.ID,
	})

	if err := p.deps.Gate.Allow(ctx, src); err != nil {
		telemetry.ObserveSourceFetch(src.ID, "skipped")
		return p.finishSource(ctx, run, src, tr, start, 0, 0, err)
	}

	if err := p.deps.Limiter.Acquire(ctx, src); err != nil {
		err = discovery.NewSourceError(src.ID, discovery.SourceErrNetwork, err)
		telemetry.ObserveSourceFetch(src.ID, "error")
		return p.finishSource(ctx, run, src, tr, start, 0, 0, err)
	}

	raws, err := p.fetchWithRetry(ctx, src, query)
	if err != nil {
		telemetry.ObserveSourceFetch(src.ID, "error")
		return p.finishSource(ctx, run, src, tr, start, 0, 0, err)
	}
	telemetry.ObserveSourceFetch(src.ID, "success")
	p.archivePayload(ctx, run, src, raws)

	found, fresh := 0, 0
	for _, raw := range raws {
		outcome, absorbErr := p.deps.Dedup.Absorb(ctx, run.UserID, raw, p.buildPosting(run, src, raw, profile, prefs))
		if absorbErr != nil {
			return &discovery.SystemicFailure{Err: fmt.Errorf("absorb posting from %s: %w", src.ID, absorbErr)}
		}
		found++
		tr.addFound(1)
		if outcome.Created {
			fresh++
			tr.addNew(1)
		}
	}
	telemetry.ObservePostings(src.ID, found, fresh)
	return p.finishSource(ctx, run, src, tr, start, found, fresh, nil)
}

// finishSource records the outcome, bumps completed_sources, and emits the
// terminal source event. srcErr nil means success.
func (p *Pool) finishSource(
	ctx context.Context,
	run discovery.Run,
	src discovery.SourceDescriptor,
	tr *tracker,
	start time.Time,
	found, fresh int,
	srcErr error,
) error {
	now := p.deps.Clock.Now()
	if srcErr != nil {
		runErr := discovery.RunError{SourceID: src.ID, Message: srcErr.Error(), At: now.UTC()}
		if err := p.deps.Runs.AppendRunError(ctx, run.ID, runErr); err != nil {
			return &discovery.SystemicFailure{Err: fmt.Errorf("append run error: %w", err)}
		}
		p.deps.Logger.Warn("source failed",
			zap.String("run_id", run.ID),
			zap.String("source_id", src.ID),
			zap.Error(srcErr),
		)
		p.emit(progress.Event{
			RunID:    run.ID,
			UserID:   run.UserID,
			TS:       now.UTC(),
			Stage:    progress.StageSourceError,
			SourceID: src.ID,
			Dur:      now.Sub(start),
			Note:     srcErr.Error(),
		})
	} else {
		p.emit(progress.Event{
			RunID:     run.ID,
			UserID:    run.UserID,
			TS:        now.UTC(),
			Stage:     progress.StageSourceDone,
			SourceID:  src.ID,
			JobsFound: found,
			JobsNew:   fresh,
			Dur:       now.Sub(start),
		})
	}
	tr.complete()
	p.persistProgress(ctx, run.ID, tr)
	return nil
}

func (p *Pool) fetchWithRetry(
	ctx context.Context,
	src discovery.SourceDescriptor,
	query discovery.Query,
) ([]discovery.RawPosting, error) {
	for attempt := 0; ; attempt++ {
		raws, err := p.fetchOnce(ctx, src, query)
		if err == nil {
			return raws, nil
		}
		if !p.deps.Retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		backoff := p.deps.Retry.Backoff(attempt)
		p.deps.Logger.Debug("retrying source fetch",
			zap.String("source_id", src.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, discovery.NewSourceError(src.ID, discovery.SourceErrNetwork, ctx.Err())
		}
	}
}

func (p *Pool) fetchOnce(
	ctx context.Context,
	src discovery.SourceDescriptor,
	query discovery.Query,
) ([]discovery.RawPosting, error) {
	connector, ok := p.deps.Connectors[src.ID]
	if !ok {
		return nil, discovery.NewSourceError(src.ID, discovery.SourceErrParse,
			fmt.Errorf("no connector registered for %s", src.ID))
	}
	fctx, cancel := context.WithTimeout(ctx, p.cfg.SourceTimeout)
	defer cancel()
	raws, err := connector.Fetch(fctx, query, src.ResultCap)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, discovery.NewSourceError(src.ID, discovery.SourceErrNetwork, err)
		}
		var se *discovery.SourceError
		if !errors.As(err, &se) {
			return nil, discovery.NewSourceError(src.ID, discovery.SourceErrNetwork, err)
		}
		return nil, err
	}
	return raws, nil
}

// buildPosting returns the dedup build callback that normalizes, scores,
// and shapes one raw posting into its persisted form.
func (p *Pool) buildPosting(
	run discovery.Run,
	src discovery.SourceDescriptor,
	raw discovery.RawPosting,
	profile discovery.Profile,
	prefs discovery.Preferences,
) func(fingerprint string) (discovery.Posting, error) {
	return func(string) (discovery.Posting, error) {
		salaryMin, salaryMax := raw.SalaryMin, raw.SalaryMax
		if salaryMin == nil && salaryMax == nil && raw.SalaryText != "" {
			salaryMin, salaryMax = normalize.ParseSalary(raw.SalaryText)
		}
		posting := discovery.Posting{
			RunID:       run.ID,
			SourceID:    raw.SourceID,
			Title:       raw.Title,
			Company:     raw.Company,
			Location:    raw.Location,
			Region:      normalize.InferRegion(raw.Location),
			RemoteType:  normalize.InferRemoteType(raw.Title, raw.Location, raw.Description),
			Seniority:   normalize.InferSeniority(raw.Title),
			Description: raw.Description,
			URL:         raw.URL,
			SalaryMin:   salaryMin,
			SalaryMax:   salaryMax,
			Currency:    raw.Currency,
			PostedAt:    raw.PostedAt,
		}
		result := p.deps.Scorer.Score(posting, profile, prefs)
		posting.MatchScore = result.Score
		posting.MatchedSkills = result.MatchedSkills
		posting.MatchedKeywords = result.MatchedKeywords
		return posting, nil
	}
}

// archivePayload stores the raw source output for replay. Best effort: an
// archive failure never affects the run.
func (p *Pool) archivePayload(
	ctx context.Context,
	run discovery.Run,
	src discovery.SourceDescriptor,
	raws []discovery.RawPosting,
) {
	if p.deps.Archive == nil || len(raws) == 0 {
		return
	}
	data, err := json.Marshal(raws)
	if err != nil {
		p.deps.Logger.Warn("marshal archive payload failed", zap.String("source_id", src.ID), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%sruns/%s/%s.json", p.cfg.ArchivePrefix, run.ID, src.ID)
	if _, err := p.deps.Archive.PutObject(ctx, path, "application/json", data); err != nil {
		p.deps.Logger.Warn("archive payload failed",
			zap.String("run_id", run.ID),
			zap.String("source_id", src.ID),
			zap.Error(err),
		)
	}
}

// persistProgress writes the tracker's current snapshot. Writes are
// serialized and skipped when a newer snapshot has already been
// persisted, so stored progress counters never regress mid-run.
func (p *Pool) persistProgress(ctx context.Context, runID string, tr *tracker) {
	snap, seq := tr.snapshotSeq()
	tr.persistMu.Lock()
	defer tr.persistMu.Unlock()
	if seq < tr.persisted {
		return
	}
	tr.persisted = seq
	if err := p.deps.Runs.UpdateRunProgress(ctx, runID, snap); err != nil {
		p.deps.Logger.Warn("persist progress failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pool) emit(evt progress.Event) {
	if p.deps.Emitter != nil {
		p.deps.Emitter.Emit(evt)
	}
}

func buildQuery(profile discovery.Profile, prefs discovery.Preferences) discovery.Query {
	keywords := strings.Join(prefs.TargetRoles, " ")
	if keywords == "" {
		keywords = strings.Join(profile.Roles, " ")
	}
	if keywords == "" {
		keywords = strings.Join(profile.Skills, " ")
	}
	location := ""
	if len(prefs.TargetLocations) > 0 {
		location = prefs.TargetLocations[0]
	}
	return discovery.Query{Keywords: keywords, Location: location}
}

// tracker serializes progress updates from concurrent workers. Each
// mutation bumps seq so persists can be ordered: a worker holding an
// older snapshot never overwrites a newer one in the store.
type tracker struct {
	mu       sync.Mutex
	seq      uint64
	progress discovery.RunProgress

	persistMu sync.Mutex
	persisted uint64
}

func (t *tracker) setCurrent(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.progress.CurrentSource = label
}

func (t *tracker) clearCurrent() {
	t.setCurrent("")
}

func (t *tracker) addFound(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.progress.JobsFound += n
}

func (t *tracker) addNew(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.progress.JobsNew += n
}

func (t *tracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.progress.CompletedSources++
}

func (t *tracker) snapshot() discovery.RunProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *tracker) snapshotSeq() (discovery.RunProgress, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress, t.seq
}
