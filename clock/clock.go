// Package clock is the monotonic time source shared by the Sender retry
// loop and the Receiver's duty-cycle scheduling. Every wait in this system
// states an explicit deadline against this clock rather than blocking on a
// bare delay (spec §9's "replace blocking delay(ms) with deadline-based
// scheduling" re-architecture note).
//
// Grounded on amken3d-gopper's core/timer_go.go / core/timer_tinygo.go
// cross-build split: a !tinygo build reads the host's monotonic clock, a
// tinygo build reads a hardware tick source. Unlike the teacher, this
// package speaks in time.Duration/time.Time rather than raw timer ticks,
// since nothing downstream needs tick-level step timing.
package clock

import "time"

// Source abstracts the monotonic clock so sender/receiver logic can be
// tested with a fake without real sleeps.
type Source interface {
	Now() time.Time
}

// real is the production clock, backed by the platform-specific Now
// implementation in clock_go.go / clock_tinygo.go.
type real struct{}

// Real is the process-wide production clock.
var Real Source = real{}

func (real) Now() time.Time { return platformNow() }
