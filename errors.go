package parklot

import (
	"errors"
)

// Standard errors.
var (
	// ErrPoolShutdown is returned when work is scheduled on, or Run is
	// called on, a pool that has been shut down.
	ErrPoolShutdown = errors.New("parklot: pool has been shut down")

	// ErrPoolRunning is returned when Run is called on a pool that
	// already has workers.
	ErrPoolRunning = errors.New("parklot: pool is already running")

	// ErrTooManyWorkers is returned by New when the requested worker
	// ceiling exceeds what the packed idle-queue word can count.
	ErrTooManyWorkers = errors.New("parklot: max workers exceeds supported limit")
)
