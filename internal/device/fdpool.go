package device

import (
	"sync"

	"golang.org/x/sys/unix"
)

// FDPool caches open descriptors for one device so workers don't pay an
// open per operation. A descriptor is owned by exactly one goroutine
// between Acquire and Release.
type FDPool struct {
	path  string
	flags int

	mu     sync.Mutex
	fds    []int
	closed bool
}

func newFDPool(path string, flags int) *FDPool {
	return &FDPool{path: path, flags: flags}
}

// Acquire pops a pooled descriptor, opening a fresh one when the pool is
// empty.
func (p *FDPool) Acquire() (int, error) {
	p.mu.Lock()
	if n := len(p.fds); n > 0 {
		fd := p.fds[n-1]
		p.fds = p.fds[:n-1]
		p.mu.Unlock()
		return fd, nil
	}
	p.mu.Unlock()
	return unix.Open(p.path, p.flags, 0)
}

// Release returns fd to the pool for reuse. After CloseAll the descriptor
// is closed instead.
func (p *FDPool) Release(fd int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		unix.Close(fd)
		return
	}
	p.fds = append(p.fds, fd)
	p.mu.Unlock()
}

// discard closes fd without pooling it. Used after a failed operation,
// when the descriptor's state is suspect.
func (p *FDPool) discard(fd int) {
	unix.Close(fd)
}

// CloseAll drains the pool and closes every cached descriptor. Descriptors
// still out on loan are closed as they are released.
func (p *FDPool) CloseAll() {
	p.mu.Lock()
	fds := p.fds
	p.fds = nil
	p.closed = true
	p.mu.Unlock()

	for _, fd := range fds {
		unix.Close(fd)
	}
}

// size returns the number of pooled descriptors.
func (p *FDPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fds)
}
