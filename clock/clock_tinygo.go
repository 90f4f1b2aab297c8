//go:build tinygo

package clock

import "time"

// platformNow uses TinyGo's runtime clock. Unlike the teacher's raw
// hardware-tick timer (needed there for sub-microsecond stepper pulse
// timing), nothing in this system schedules tighter than milliseconds, so
// the portable time.Now() is precise enough and avoids a bespoke
// tick-to-duration conversion.
func platformNow() time.Time {
	return time.Now()
}
