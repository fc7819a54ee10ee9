package act

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/behrlich/go-act/internal/clock"
	"github.com/behrlich/go-act/internal/device"
	"github.com/behrlich/go-act/internal/iobuf"
)

// Stagger offsets applied to each loop's nominal start time so device
// loops, and the read/write pair on one device, don't peak in sync.
const (
	deviceStaggerUs = 1000
	rwStaggerUs     = 500
)

// runLargeBlockLoop issues large block-aligned operations against d in one
// direction, paced so the aggregate rate across all devices converges to
// largeBlockOpsPerSec. If the loop falls further behind than the
// configured lag allowance it declares the drive overloaded and stops the
// run.
func (rc *RunContext) runLargeBlockLoop(d *device.Device, kind device.Kind) {
	defer rc.wg.Done()

	r := rand.New(rand.NewSource(clock.Nanoseconds() + int64(d.Index)*2 + int64(kind)))
	buf := iobuf.Alloc(int(rc.largeBlockBytes))

	hist := rc.largeBlockReads
	startUs := rc.startUs - int64(d.Index)*deviceStaggerUs
	if kind == device.KindWrite {
		hist = rc.largeBlockWrites
		startUs -= rwStaggerUs
	}

	numDevices := int64(len(rc.devices))
	maxLagUs := int64(rc.cfg.MaxLagSec) * 1_000_000

	for count := int64(0); rc.running.Load(); count++ {
		offset := r.Int63n(d.NumLargeBlocks) * rc.largeBlockBytes
		if kind == device.KindWrite {
			salt(r, buf)
		}

		startNs := clock.Nanoseconds()
		stopNs, err := d.IO(kind, offset, buf)
		if err == nil {
			hist.RecordNs(stopNs - startNs)
		}

		targetUs := (count + 1) * 1_000_000 * numDevices / rc.largeBlockOpsPerSec
		lagUs := clock.Microseconds() - startUs - targetUs
		if lagUs > maxLagUs {
			rc.flagOverload(device.WrapDeviceError("large block "+kind.String(), d.Name,
				device.CodeOverload, fmt.Errorf("lagging %d sec behind", lagUs/1_000_000)))
			return
		}
		if lagUs < 0 {
			rc.sleepUntil(startUs + targetUs)
		}
	}
}

// salt overwrites buf with fresh pseudo-random bytes before each write so
// the device cannot compress or deduplicate the block away.
func salt(r *rand.Rand, buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], r.Uint64())
	}
}
