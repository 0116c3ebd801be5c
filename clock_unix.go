//go:build unix

package parklot

import (
	"golang.org/x/sys/unix"
)

// nanotime reads CLOCK_MONOTONIC directly. The kernel guarantees the value is
// non-decreasing, which the parking lot's fairness deadlines rely on.
func nanotime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// clock_gettime(CLOCK_MONOTONIC) cannot fail on any supported
		// platform once the vDSO is mapped; treat failure as fatal.
		panic("parklot: clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return uint64(unix.TimespecToNsec(ts))
}
