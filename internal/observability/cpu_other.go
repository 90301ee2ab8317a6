//go:build !unix

package observability

import "time"

// ProcessCPUTime is unavailable on this platform.
func ProcessCPUTime() (time.Duration, bool) {
	return 0, false
}
