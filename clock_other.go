//go:build !unix

package parklot

import (
	"time"
)

// clockAnchor pins the epoch of the fallback clock. time.Since reads the
// runtime's monotonic clock, so the result is non-decreasing.
var clockAnchor = time.Now()

func nanotime() uint64 {
	return uint64(time.Since(clockAnchor))
}
