package act

import (
	"fmt"
	"math/rand"

	"github.com/behrlich/go-act/internal/clock"
	"github.com/behrlich/go-act/internal/device"
	"github.com/behrlich/go-act/internal/queue"
)

// runGenerator is the single transaction-request producer. Requests fan
// out strict round-robin across the queues so load spreads evenly
// regardless of device count; the target device is picked uniformly. The
// loop is paced by cumulative target time, so the Nth request converges to
// startUs + N/rate rather than accumulating per-sleep drift.
func (rc *RunContext) runGenerator() {
	defer rc.wg.Done()

	rate := int64(rc.cfg.ReadReqsPerSec)
	if rate == 0 {
		return
	}

	r := rand.New(rand.NewSource(clock.Nanoseconds()))
	numQueues := int64(len(rc.queues))
	numDevices := int64(len(rc.devices))
	maxQueued := int32(rc.cfg.MaxReqsQueued)

	for count := int64(0); rc.running.Load(); count++ {
		if rc.reqsQueued.Add(1) > maxQueued {
			rc.reqsQueued.Add(-1) // nothing was enqueued for this increment
			rc.flagOverload(device.WrapError("generate", device.CodeOverload,
				fmt.Errorf("%d requests queued", maxQueued)))
			return
		}

		d := rc.devices[r.Int63n(numDevices)]
		rc.queues[count%numQueues].Push(&queue.Request{
			Dev:       d,
			Offset:    r.Int63n(d.NumReadOffsets) * d.MinOpBytes,
			Size:      d.ReadBytes,
			EnqueueNs: clock.Nanoseconds(),
		})

		rc.sleepUntil(rc.startUs + (count+1)*1_000_000/rate)
	}
}
