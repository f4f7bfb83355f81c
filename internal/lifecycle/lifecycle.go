// Package lifecycle holds the process-wide drain flag set on SIGTERM/SIGINT.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	drainStarted atomic.Int64
)

// SetShuttingDown sets the shutdown flag. While true, /health returns 503 with
// status shutting-down and no new dashboards should be created.
func SetShuttingDown(v bool) {
	if v {
		drainStarted.CompareAndSwap(0, time.Now().UnixNano())
	} else {
		drainStarted.Store(0)
	}
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// DrainingSince returns when the shutdown flag was first set, or the zero time.
func DrainingSince() time.Time {
	ns := drainStarted.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
