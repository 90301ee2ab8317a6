//go:build unix

package observability

import (
	"time"

	"golang.org/x/sys/unix"
)

// ProcessCPUTime returns user plus system CPU time consumed by the process.
func ProcessCPUTime() (time.Duration, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano()), true
}
