package act

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram(false) // millisecond scale

	h.RecordNs(500_000)     // 0.5ms -> bucket 0
	h.RecordNs(3_000_000)   // 3ms   -> bucket 2
	h.RecordNs(100_000_000) // 100ms -> bucket 7

	var buf bytes.Buffer
	h.Dump(&buf, "RAW READS")
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "RAW READS (3 total)\n"), "got %q", out)
	assert.Contains(t, out, "(00: 0000000001)")
	assert.Contains(t, out, "(02: 0000000001)")
	assert.Contains(t, out, "(07: 0000000001)")
}

func TestHistogramMicrosecondScale(t *testing.T) {
	h := NewHistogram(true)
	h.RecordNs(500_000) // 500us -> bucket 9 ([256, 512))

	var buf bytes.Buffer
	h.Dump(&buf, "READS")
	assert.Contains(t, buf.String(), "(09: 0000000001)")
}

func TestHistogramEmptyDump(t *testing.T) {
	h := NewHistogram(false)
	var buf bytes.Buffer
	h.Dump(&buf, "LARGE BLOCK WRITES")
	assert.Equal(t, "LARGE BLOCK WRITES (0 total)\n", buf.String())
}

func TestHistogramConcurrentInsertAndDump(t *testing.T) {
	h := NewHistogram(false)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10000; i++ {
				h.RecordNs(int64(i) * 1_000)
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var buf bytes.Buffer
		for i := 0; i < 100; i++ {
			buf.Reset()
			h.Dump(&buf, "X")
		}
	}()
	wg.Wait()
	<-done

	assert.Equal(t, int64(40000), h.TotalCount())
}

func TestBucketIndex(t *testing.T) {
	cases := map[int64]int{0: 0, 1: 1, 2: 2, 3: 2, 4: 3, 100: 7, 1023: 10, 1024: 11}
	for v, want := range cases {
		assert.Equal(t, want, bucketIndex(v), "value %d", v)
	}
}
