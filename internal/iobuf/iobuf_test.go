package iobuf

import (
	"testing"
	"unsafe"
)

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{4096, 8192, 128 * 1024, 1024 * 1024} {
		buf := Alloc(size)
		if len(buf) != size {
			t.Errorf("Alloc(%d) length = %d", size, len(buf))
		}
		if !IsAligned(buf) {
			t.Errorf("Alloc(%d) not aligned: addr=%#x", size,
				uintptr(unsafe.Pointer(&buf[0])))
		}
	}
}

func TestAlignUp(t *testing.T) {
	raw := make([]byte, 1536+Alignment)
	buf := AlignUp(raw)
	if uintptr(unsafe.Pointer(&buf[0]))%Alignment != 0 {
		t.Errorf("AlignUp produced unaligned address %#x",
			uintptr(unsafe.Pointer(&buf[0])))
	}
	if len(buf) < 1536 {
		t.Errorf("AlignUp left only %d bytes, want >= 1536", len(buf))
	}
}

func TestRoundUp(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4096, 1536: 4096, 4096: 4096, 4097: 8192}
	for in, want := range cases {
		if got := RoundUp(in); got != want {
			t.Errorf("RoundUp(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestIsAligned(t *testing.T) {
	buf := Alloc(8192)

	if IsAligned(buf[:100]) {
		t.Error("length 100 reported aligned")
	}
	if IsAligned(buf[512 : 512+4096]) {
		t.Error("offset 512 reported aligned")
	}
	if IsAligned(nil) {
		t.Error("empty buffer reported aligned")
	}
	if !IsAligned(buf[4096:8192]) {
		t.Error("aligned sub-slice reported unaligned")
	}
}
