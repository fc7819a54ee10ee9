package act

import (
	"github.com/behrlich/go-act/internal/clock"
	"github.com/behrlich/go-act/internal/device"
	"github.com/behrlich/go-act/internal/iobuf"
	"github.com/behrlich/go-act/internal/queue"
)

// runWorker consumes one queue, issuing each small read through a reused
// page-aligned buffer. Each completed read feeds three histograms: the
// global raw-read and per-device raw-read histograms get the time around
// the I/O itself, and the end-to-end histogram gets the time since the
// request was enqueued. The latter is the application-visible latency and
// diverges from raw as the queue grows. Failed reads are dropped, not
// recorded.
func (rc *RunContext) runWorker(q *queue.Queue) {
	defer rc.wg.Done()

	buf := iobuf.Alloc(iobuf.RoundUp(int(rc.maxReadBytes)))
	for {
		req := q.Pop(rc.stop)
		if req == nil {
			return
		}

		rawStartNs := clock.Nanoseconds()
		stopNs, err := req.Dev.IO(device.KindRead, req.Offset, buf[:req.Size])
		if err == nil {
			rc.rawReads.RecordNs(stopNs - rawStartNs)
			rc.devRawReads[req.Dev.Index].RecordNs(stopNs - rawStartNs)
			rc.reads.RecordNs(stopNs - req.EnqueueNs)
		}
		rc.reqsQueued.Add(-1)
	}
}
