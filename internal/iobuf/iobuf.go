// Package iobuf allocates buffers suitable for direct I/O. O_DIRECT
// requires the buffer address, the I/O length, and the file offset to be
// aligned to the device's logical block size; aligning buffers to 4096
// satisfies every block size this tool issues.
package iobuf

import "unsafe"

// Alignment is the boundary required of every direct-I/O buffer.
const Alignment = 4096

// Alloc returns a buffer of exactly size bytes whose backing address is a
// multiple of Alignment. size must be a multiple of Alignment.
func Alloc(size int) []byte {
	raw := make([]byte, size+Alignment)
	return AlignUp(raw)[:size]
}

// AlignUp slices b forward to its next Alignment boundary. The result is
// shorter than b by up to Alignment-1 bytes.
func AlignUp(b []byte) []byte {
	addr := uintptr(unsafe.Pointer(&b[0]))
	pad := (Alignment - addr%Alignment) % Alignment
	return b[pad:]
}

// RoundUp rounds size up to the next multiple of Alignment.
func RoundUp(size int) int {
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// IsAligned reports whether b's address and length are both multiples of
// Alignment.
func IsAligned(b []byte) bool {
	if len(b) == 0 || len(b)%Alignment != 0 {
		return false
	}
	return uintptr(unsafe.Pointer(&b[0]))%Alignment == 0
}
