package device

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := WrapDeviceError("pread", "/dev/loop0", CodeIO, syscall.EIO)
	msg := e.Error()
	assert.Contains(t, msg, "/dev/loop0")
	assert.Contains(t, msg, "pread")
	assert.Contains(t, msg, "I/O error")
	assert.Contains(t, msg, "errno 5")
}

func TestErrorMessageWithoutDevice(t *testing.T) {
	e := WrapError("generate", CodeOverload, fmt.Errorf("100000 requests queued"))
	msg := e.Error()
	assert.Equal(t, "generate: overload: 100000 requests queued", msg)
}

func TestErrnoExtraction(t *testing.T) {
	e := WrapError("open", CodeUnreadable, syscall.EACCES)
	assert.Equal(t, syscall.EACCES, e.Errno)

	e = WrapError("probe", CodeUnreadable, errors.New("short transfer"))
	assert.Equal(t, syscall.Errno(0), e.Errno)
}

func TestIsCode(t *testing.T) {
	e := WrapError("config", CodeConfigInvalid, errors.New("missing key"))
	assert.True(t, IsCode(e, CodeConfigInvalid))
	assert.False(t, IsCode(e, CodeIO))
	assert.False(t, IsCode(nil, CodeConfigInvalid))

	// errors.Is matches by category code.
	assert.True(t, errors.Is(e, &Error{Code: CodeConfigInvalid}))

	wrapped := fmt.Errorf("loading: %w", e)
	assert.True(t, IsCode(wrapped, CodeConfigInvalid))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := WrapError("io", CodeIO, inner)
	assert.True(t, errors.Is(e, inner))
}
