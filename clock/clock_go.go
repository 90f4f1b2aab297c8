//go:build !tinygo

package clock

import "time"

func platformNow() time.Time {
	return time.Now()
}
