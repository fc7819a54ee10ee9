package act

import (
	"fmt"
	"io"
	"math/bits"
	"sync"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// histMaxValue covers an hour of latency at microsecond scale. Values are
// kept to three significant digits.
const histMaxValue = 3_600_000_000

// Histogram wraps an HDR histogram with the locking that concurrent
// insertion and periodic snapshot printing need. Values are tracked in
// milliseconds, or microseconds when configured.
type Histogram struct {
	mu        sync.Mutex
	h         *hdrhistogram.Histogram
	nsPerUnit int64
}

// NewHistogram creates an empty latency histogram. microseconds selects
// the finer bucket scale.
func NewHistogram(microseconds bool) *Histogram {
	nsPerUnit := int64(1_000_000)
	if microseconds {
		nsPerUnit = 1_000
	}
	return &Histogram{
		h:         hdrhistogram.New(1, histMaxValue, 3),
		nsPerUnit: nsPerUnit,
	}
}

// RecordNs inserts one latency sample measured in nanoseconds.
func (h *Histogram) RecordNs(ns int64) {
	v := ns / h.nsPerUnit
	h.mu.Lock()
	_ = h.h.RecordValue(v)
	h.mu.Unlock()
}

// TotalCount returns the number of recorded samples.
func (h *Histogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.h.TotalCount()
}

// Dump prints the tagged bucket rendering: the total sample count, then
// one `(ii: n)` column per occupied power-of-two latency bucket. Bucket i
// holds samples in [2^(i-1), 2^i) units; bucket 0 holds sub-unit samples.
// Printing is concurrent with insertion; the totals of a snapshot may skew
// by the handful of samples in flight.
func (h *Histogram) Dump(w io.Writer, tag string) {
	var counts [64]int64
	maxBucket := -1

	h.mu.Lock()
	total := h.h.TotalCount()
	for _, bar := range h.h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		b := bucketIndex(bar.To)
		counts[b] += bar.Count
		if b > maxBucket {
			maxBucket = b
		}
	}
	h.mu.Unlock()

	fmt.Fprintf(w, "%s (%d total)\n", tag, total)
	if maxBucket < 0 {
		return
	}
	for i := 0; i <= maxBucket; i++ {
		if counts[i] != 0 {
			fmt.Fprintf(w, " (%02d: %010d)", i, counts[i])
		}
	}
	fmt.Fprintln(w)
}

func bucketIndex(v int64) int {
	if v < 1 {
		return 0
	}
	return bits.Len64(uint64(v))
}
