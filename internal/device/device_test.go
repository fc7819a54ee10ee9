package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-act/internal/iobuf"
)

// testOptions opens regular files without O_DIRECT so the tests run on any
// filesystem.
func testOptions() Options {
	return Options{
		LargeBlockBytes: 128 * 1024,
		RecordBytes:     1536,
		DisableODSync:   true,
		NoDirect:        true,
	}
}

func makeTestFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dev")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestOpenGeometry(t *testing.T) {
	path := makeTestFile(t, 1024*1024)
	d, err := Open(path, 0, testOptions())
	require.NoError(t, err)
	defer d.ClosePool()

	assert.Equal(t, int64(1024*1024), d.SizeBytes)
	assert.Equal(t, int64(512), d.MinOpBytes)
	assert.Equal(t, int64(8), d.NumLargeBlocks)
	assert.Equal(t, int64(2048), d.NumMinOpBlocks)
	assert.Equal(t, int64(3), d.ReadReqBlocks)
	assert.Equal(t, int64(1536), d.ReadBytes)
	assert.Equal(t, int64(2046), d.NumReadOffsets)
}

func TestGeometryBoundaries(t *testing.T) {
	// Device of exactly one large block.
	numLarge, numMinOp, reqBlocks, readBytes, offsets :=
		geometry(128*1024, 4096, 1536, 128*1024)
	assert.Equal(t, int64(1), numLarge)
	assert.Equal(t, int64(32), numMinOp)
	assert.Equal(t, int64(1), reqBlocks)
	assert.Equal(t, int64(4096), readBytes)
	assert.Equal(t, int64(128*1024)/4096-reqBlocks+1, offsets)

	// Record size already a multiple of the min op size.
	_, _, _, readBytes, _ = geometry(1024*1024, 512, 1536, 128*1024)
	assert.Equal(t, int64(1536), readBytes)

	// Trailing partial large block does not contribute offsets.
	numLarge, numMinOp, _, _, _ = geometry(128*1024+4096, 512, 1536, 128*1024)
	assert.Equal(t, int64(1), numLarge)
	assert.Equal(t, int64(256), numMinOp)
}

func TestOpenTooSmall(t *testing.T) {
	path := makeTestFile(t, 4096)
	_, err := Open(path, 0, testOptions())
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeTooSmall), "got %v", err)
}

func TestOpenUnreadable(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), 0, testOptions())
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnreadable), "got %v", err)
}

func TestProbeFailsOnTinyFile(t *testing.T) {
	path := makeTestFile(t, 256)
	_, err := Open(path, 0, testOptions())
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnreadable), "got %v", err)
}

func TestIORoundTrip(t *testing.T) {
	path := makeTestFile(t, 1024*1024)
	d, err := Open(path, 0, testOptions())
	require.NoError(t, err)
	defer d.ClosePool()

	wbuf := iobuf.Alloc(4096)
	for i := range wbuf {
		wbuf[i] = byte(i)
	}
	start, err := d.IO(KindWrite, 8192, wbuf)
	require.NoError(t, err)
	assert.Greater(t, start, int64(0))

	rbuf := iobuf.Alloc(4096)
	stop, err := d.IO(KindRead, 8192, rbuf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stop, start)
	assert.Equal(t, wbuf, rbuf)
}

func TestIOErrorDiscardsDescriptor(t *testing.T) {
	path := makeTestFile(t, 1024*1024)
	d, err := Open(path, 0, testOptions())
	require.NoError(t, err)
	defer d.ClosePool()

	pooled := d.pool.size()

	// A read past EOF transfers short, which the engine treats as an I/O
	// error; the descriptor must not return to the pool.
	buf := iobuf.Alloc(4096)
	_, err = d.IO(KindRead, d.SizeBytes, buf)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeIO), "got %v", err)
	assert.Equal(t, pooled-1, d.pool.size())

	// A successful operation pools its descriptor again.
	_, err = d.IO(KindRead, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, pooled, d.pool.size())
}

func TestFDPoolReuse(t *testing.T) {
	path := makeTestFile(t, 4096)
	p := newFDPool(path, os.O_RDWR)

	fd1, err := p.Acquire()
	require.NoError(t, err)
	fd2, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, fd1, fd2)

	p.Release(fd1)
	p.Release(fd2)
	assert.Equal(t, 2, p.size())

	fd3, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, fd2, fd3)
	p.Release(fd3)

	p.CloseAll()
	assert.Equal(t, 0, p.size())

	// Late release of a loaned descriptor closes it instead of pooling.
	fd4, err := p.Acquire()
	require.NoError(t, err)
	p.Release(fd4)
	assert.Equal(t, 0, p.size())
}

func TestConfigureSchedulerBestEffort(t *testing.T) {
	// No sysfs entry exists for a temp file; the call must only log.
	ConfigureScheduler(makeTestFile(t, 4096), "noop")
}
