// Package compliance implements the pre-fetch gate deciding whether a
// source may be used at all.
package compliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// Config declares the gate's policy knobs.
//   - DeniedSources: source ids that must never be fetched.
//   - WindowStartHour/WindowEndHour: UTC hours between which fetching is
//     permitted; zero values for both disable the window.
//   - DailyFetchCap: maximum gate passes per source per UTC day; zero
//     disables the cap.
type Config struct {
	DeniedSources   []string
	WindowStartHour int
	WindowEndHour   int
	DailyFetchCap   int
}

// Gate evaluates compliance policy per source. Safe for concurrent use.
type Gate struct {
	cfg    Config
	denied map[string]struct{}
	clock  discovery.Clock

	mu     sync.Mutex
	day    string
	counts map[string]int
}

// New builds a Gate. clock may be nil, in which case wall time is used.
func New(cfg Config, clock discovery.Clock) *Gate {
	denied := make(map[string]struct{}, len(cfg.DeniedSources))
	for _, id := range cfg.DeniedSources {
		denied[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	return &Gate{
		cfg:    cfg,
		denied: denied,
		clock:  clock,
		counts: make(map[string]int),
	}
}

// Allow returns nil when src may be fetched now, or a *ComplianceViolation
// explaining the refusal. A refusal is final for this attempt; the caller
// records it and moves on without retrying.
func (g *Gate) Allow(_ context.Context, src discovery.SourceDescriptor) error {
	if _, blocked := g.denied[strings.ToLower(src.ID)]; blocked {
		return &discovery.ComplianceViolation{
			SourceID: src.ID,
			Reason:   "source is on the denied list",
		}
	}

	now := g.now()
	if !g.withinWindow(now) {
		return &discovery.ComplianceViolation{
			SourceID: src.ID,
			Reason: fmt.Sprintf("outside permitted window %02d:00-%02d:00 UTC",
				g.cfg.WindowStartHour, g.cfg.WindowEndHour),
		}
	}

	if g.cfg.DailyFetchCap > 0 && !g.consumeDaily(src.ID, now) {
		return &discovery.ComplianceViolation{
			SourceID: src.ID,
			Reason:   fmt.Sprintf("daily fetch cap of %d reached", g.cfg.DailyFetchCap),
		}
	}
	return nil
}

func (g *Gate) now() time.Time {
	if g.clock != nil {
		return g.clock.Now()
	}
	return time.Now()
}

func (g *Gate) withinWindow(now time.Time) bool {
	start, end := g.cfg.WindowStartHour, g.cfg.WindowEndHour
	if start == 0 && end == 0 {
		return true
	}
	hour := now.UTC().Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	// Window wraps midnight, e.g. 22-06.
	return hour >= start || hour < end
}

// consumeDaily counts a gate pass against the source's daily budget,
// resetting all counters at the UTC day boundary.
func (g *Gate) consumeDaily(sourceID string, now time.Time) bool {
	day := now.UTC().Format("2006-01-02")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day != day {
		g.day = day
		g.counts = make(map[string]int)
	}
	if g.counts[sourceID] >= g.cfg.DailyFetchCap {
		return false
	}
	g.counts[sourceID]++
	return true
}
