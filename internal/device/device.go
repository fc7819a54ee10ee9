// Package device opens raw block devices for direct I/O, probes their
// geometry, and issues the positioned reads and writes the workload loops
// time. It also carries the per-device descriptor pool and the best-effort
// sysfs scheduler configurator.
package device

import (
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/behrlich/go-act/internal/iobuf"
)

// minOpProbeSizes are the candidate minimum direct-I/O block sizes, probed
// smallest first.
var minOpProbeSizes = []int64{512, 1024, 2048, 4096}

// Options fixes the open semantics and the geometry inputs for a device.
type Options struct {
	LargeBlockBytes int64
	RecordBytes     int64
	DisableODSync   bool // omit O_DSYNC when opening
	NoDirect        bool // omit O_DIRECT; for tests against regular files
}

// Device describes one block device under test. All geometry fields are
// fixed at Open; the descriptor pool it carries is internally synchronized.
type Device struct {
	Name  string
	Index int

	SizeBytes      int64
	MinOpBytes     int64 // power of two in [512, 4096]
	NumLargeBlocks int64
	NumMinOpBlocks int64
	ReadReqBlocks  int64
	ReadBytes      int64 // record size rounded up to MinOpBytes
	NumReadOffsets int64

	pool *FDPool
}

// Open opens name, probes its geometry, and returns a Device ready for
// I/O. The initial descriptor stays pooled for reuse.
func Open(name string, index int, opts Options) (*Device, error) {
	d := &Device{Name: name, Index: index}
	d.pool = newFDPool(name, openFlags(opts))

	fd, err := d.pool.Acquire()
	if err != nil {
		return nil, newError("open", name, CodeUnreadable, err)
	}

	size, err := blockDeviceSize(fd)
	if err != nil {
		d.pool.discard(fd)
		d.pool.CloseAll()
		return nil, newError("size", name, CodeUnreadable, err)
	}

	minOp, err := probeMinOpBytes(fd)
	if err != nil {
		d.pool.discard(fd)
		d.pool.CloseAll()
		return nil, newError("probe", name, CodeUnreadable, err)
	}
	d.pool.Release(fd)

	d.SizeBytes = size
	d.MinOpBytes = minOp
	d.NumLargeBlocks, d.NumMinOpBlocks, d.ReadReqBlocks, d.ReadBytes, d.NumReadOffsets =
		geometry(size, minOp, opts.RecordBytes, opts.LargeBlockBytes)

	if d.NumReadOffsets <= 0 {
		d.pool.CloseAll()
		return nil, newError("probe", name, CodeTooSmall, nil)
	}

	log.Debugf("%s: size %d, min op %d, %d large blocks, %d read offsets, read size %d",
		name, d.SizeBytes, d.MinOpBytes, d.NumLargeBlocks, d.NumReadOffsets, d.ReadBytes)
	return d, nil
}

// geometry derives the valid offset space from the probed device size and
// minimum operation size.
func geometry(sizeBytes, minOpBytes, recordBytes, largeBlockBytes int64) (
	numLargeBlocks, numMinOpBlocks, readReqBlocks, readBytes, numReadOffsets int64) {

	numLargeBlocks = sizeBytes / largeBlockBytes
	numMinOpBlocks = numLargeBlocks * largeBlockBytes / minOpBytes
	readReqBlocks = (recordBytes + minOpBytes - 1) / minOpBytes
	readBytes = readReqBlocks * minOpBytes
	numReadOffsets = numMinOpBlocks - readReqBlocks + 1
	return
}

func openFlags(opts Options) int {
	flags := unix.O_RDWR
	if !opts.NoDirect {
		flags |= unix.O_DIRECT
	}
	if !opts.DisableODSync {
		flags |= unix.O_DSYNC
	}
	return flags
}

// blockDeviceSize queries the device byte size. ENOTTY means the path is a
// regular file standing in for a device; fall back to its stat size.
func blockDeviceSize(fd int) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.BLKGETSIZE64), uintptr(unsafe.Pointer(&size)))
	if errno == unix.ENOTTY {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return 0, err
		}
		return st.Size, nil
	}
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}

// probeMinOpBytes finds the smallest size whose direct read from offset 0
// succeeds. The first success fixes the device's minimum operation size.
func probeMinOpBytes(fd int) (int64, error) {
	buf := iobuf.Alloc(int(minOpProbeSizes[len(minOpProbeSizes)-1]))
	var lastErr error
	for _, size := range minOpProbeSizes {
		n, err := unix.Pread(fd, buf[:size], 0)
		if err == nil && int64(n) == size {
			return size, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errShortRead
	}
	return 0, lastErr
}

// ClosePool drains and closes every pooled descriptor.
func (d *Device) ClosePool() {
	d.pool.CloseAll()
}
