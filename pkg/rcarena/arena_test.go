package rcarena

import (
	"testing"
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

func TestSlabArenaAlignment(t *testing.T) {
	a := NewSlabArena(256)
	for i := 0; i < 100; i++ {
		ptr := a.AllocRow(24, 8)
		if uintptr(ptr)%8 != 0 {
			t.Fatalf("row %d misaligned: %v", i, ptr)
		}
	}
}

func TestSlabArenaSpansMultipleSlabs(t *testing.T) {
	a := NewSlabArena(128)
	ptrs := map[unsafe.Pointer]bool{}
	for i := 0; i < 50; i++ {
		ptr := a.AllocRow(32, 8)
		if ptrs[ptr] {
			t.Fatalf("duplicate row pointer at iter %d", i)
		}
		ptrs[ptr] = true
	}
	if len(a.Ranges()) < 2 {
		t.Fatalf("expected multiple slabs, got %d", len(a.Ranges()))
	}
}

func TestFindRangeExclusiveTop(t *testing.T) {
	a := NewSlabArena(64)
	first := a.AllocRow(32, 8)
	ranges := a.Ranges()
	if !FindRange(ranges, first) {
		t.Fatalf("expected first row to be found")
	}
	top := rcmem.Add(ranges[0].Start, ranges[0].Len)
	if FindRange(ranges, top) {
		t.Fatalf("range top boundary must be exclusive")
	}
	beforeStart := rcmem.Add(ranges[0].Start, -1)
	if FindRange(ranges, beforeStart) {
		t.Fatalf("address before the first range must not be found")
	}
}

func TestSlabArenaReleaseFreesMemory(t *testing.T) {
	a := NewSlabArena(64)
	a.AllocRow(32, 8)
	a.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected AllocRow after Release to panic")
		}
	}()
	a.AllocRow(32, 8)
}
