// Package system adapts wall-clock time to the discovery.Clock interface.
package system

import "time"

// Clock reads the system clock. All timestamps it hands out are UTC so
// stored values compare across processes.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
