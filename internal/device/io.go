package device

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/behrlich/go-act/internal/clock"
)

// Kind selects the direction of a positioned operation.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}
	return "read"
}

var errShortRead = errors.New("short transfer")

// IO issues one positioned read or write of exactly len(buf) bytes at
// offset, using a descriptor borrowed from the device's pool, and returns
// the monotonic nanosecond timestamp taken immediately after the transfer
// completed. The caller guarantees offset, len(buf), and the buffer
// address satisfy the device's direct-I/O alignment; a violation is a
// programming error, not a runtime condition.
//
// On failure the borrowed descriptor is closed rather than pooled, the
// error is logged with its errno, and a CodeIO error is returned. The
// caller drops the sample and continues.
func (d *Device) IO(kind Kind, offset int64, buf []byte) (int64, error) {
	fd, err := d.pool.Acquire()
	if err != nil {
		log.Errorf("%s: open for %s failed: %v", d.Name, kind, err)
		return 0, newError("open", d.Name, CodeIO, err)
	}

	var n int
	if kind == KindWrite {
		n, err = unix.Pwrite(fd, buf, offset)
	} else {
		n, err = unix.Pread(fd, buf, offset)
	}
	stopNs := clock.Nanoseconds()

	if err == nil && n != len(buf) {
		err = errShortRead
	}
	if err != nil {
		d.pool.discard(fd)
		e := newError("p"+kind.String(), d.Name, CodeIO, err)
		log.Errorf("%s of %d bytes at %d on %s failed: %v", kind, len(buf), offset, d.Name, e)
		return 0, e
	}

	d.pool.Release(fd)
	return stopNs, nil
}
