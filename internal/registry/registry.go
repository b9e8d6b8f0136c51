// Package registry holds the static catalog of source descriptors.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// Registry is an immutable catalog of source descriptors keyed by id.
// It is built once at process start and is safe for concurrent reads.
type Registry struct {
	byID  map[string]discovery.SourceDescriptor
	order []string
}

// New builds a Registry from descriptors. Duplicate ids are rejected.
func New(descriptors []discovery.SourceDescriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]discovery.SourceDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("source descriptor missing id (name %q)", d.Name)
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (discovery.SourceDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every descriptor in registration order.
func (r *Registry) All() []discovery.SourceDescriptor {
	out := make([]discovery.SourceDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the sorted set of registered source ids.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// UnknownSourceError reports a requested source id absent from the
// catalog. Callers match it with errors.As to map resolution failures to
// request-level errors.
type UnknownSourceError struct {
	ID string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source id %q", e.ID)
}

// Resolve maps the requested ids onto descriptors, or returns the full
// catalog when ids is empty. Unknown ids fail the whole resolution so a
// typo is surfaced at start time rather than silently skipped.
func (r *Registry) Resolve(ids []string) ([]discovery.SourceDescriptor, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}
	out := make([]discovery.SourceDescriptor, 0, len(ids))
	for _, id := range ids {
		d, ok := r.byID[id]
		if !ok {
			return nil, &UnknownSourceError{ID: id}
		}
		out = append(out, d)
	}
	return out, nil
}

// Default returns the built-in catalog. Rate policies reflect each
// platform's published limits; result caps keep one run from flooding the
// posting store.
func Default() []discovery.SourceDescriptor {
	return []discovery.SourceDescriptor{
		{
			ID:     "remotive",
			Name:   "Remotive",
			Type:   discovery.SourceTypeAPI,
			Region: "Global",
			Rate: discovery.RatePolicy{
				MaxPerMinute: 30,
				Burst:        1,
				MinJitter:    250 * time.Millisecond,
				MaxJitter:    1500 * time.Millisecond,
			},
			ResultCap: 50,
		},
		{
			ID:     "arbeitnow",
			Name:   "Arbeitnow",
			Type:   discovery.SourceTypeAPI,
			Region: "EU",
			Rate: discovery.RatePolicy{
				MaxPerMinute: 30,
				Burst:        1,
				MinJitter:    250 * time.Millisecond,
				MaxJitter:    1500 * time.Millisecond,
			},
			ResultCap: 50,
		},
		{
			ID:     "weworkremotely",
			Name:   "We Work Remotely",
			Type:   discovery.SourceTypeBrowser,
			Region: "Global",
			Rate: discovery.RatePolicy{
				MaxPerMinute: 12,
				Burst:        1,
				MinJitter:    500 * time.Millisecond,
				MaxJitter:    3 * time.Second,
			},
			ResultCap: 25,
		},
		{
			ID:     "wellfound",
			Name:   "Wellfound",
			Type:   discovery.SourceTypeBrowser,
			Region: "US",
			Rate: discovery.RatePolicy{
				MaxPerMinute: 6,
				Burst:        1,
				MinJitter:    1 * time.Second,
				MaxJitter:    5 * time.Second,
			},
			ResultCap: 25,
		},
	}
}
