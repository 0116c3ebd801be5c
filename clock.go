package parklot

// Nanotime returns the current value of the process-wide monotonic clock, in
// nanoseconds. The clock is non-decreasing and has an arbitrary epoch; it is
// only meaningful for measuring intervals and computing park deadlines.
//
// Use it to build absolute deadlines for [ParkConditionally]:
//
//	deadline := parklot.Nanotime() + uint64(10*time.Millisecond)
func Nanotime() uint64 {
	return nanotime()
}
