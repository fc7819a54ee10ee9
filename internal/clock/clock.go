// Package clock provides monotonic timestamps for rate pacing and latency
// measurement. All values are offsets from a process-wide base captured at
// startup, so they are steady across wall-clock adjustments.
package clock

import "time"

var base = time.Now()

// Nanoseconds returns monotonic nanoseconds since process start.
func Nanoseconds() int64 {
	return time.Since(base).Nanoseconds()
}

// Microseconds returns monotonic microseconds since process start.
func Microseconds() int64 {
	return time.Since(base).Microseconds()
}

// Milliseconds returns monotonic milliseconds since process start.
func Milliseconds() int64 {
	return time.Since(base).Milliseconds()
}
