package rcheap

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaHeapCopyMultipartContiguousRoundTrip(t *testing.T) {
	h := NewArenaHeap(1024)
	defer h.Close()

	d := h.CopyMultipart([]byte("hello, row container"))
	b, ok := h.Contiguous(d)
	require.True(t, ok)
	require.Equal(t, "hello, row container", string(b))
}

func TestArenaHeapEmptyValueNoAllocation(t *testing.T) {
	h := NewArenaHeap(1024)
	defer h.Close()

	d := h.CopyMultipart(nil)
	require.Equal(t, Descriptor{}, d)
	b, ok := h.Contiguous(d)
	require.True(t, ok)
	require.Empty(t, b)
}

func TestArenaHeapFragmentedLargeValue(t *testing.T) {
	h := NewArenaHeap(128)
	defer h.Close()

	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	d := h.CopyMultipart(payload)

	_, ok := h.Contiguous(d)
	require.False(t, ok, "a value larger than one block must not be reported contiguous")

	out, err := io.ReadAll(h.Reader(d))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestArenaHeapReleaseReusesFragments(t *testing.T) {
	h := NewArenaHeap(1 << 16)
	defer h.Close()

	d1 := h.CopyMultipart(make([]byte, 64))
	retainedBefore := h.RetainedBytes()
	h.Release(d1)
	require.Equal(t, uint64(0), h.RetainedBytes())
	require.Equal(t, retainedBefore, h.FreeBytes())

	// A same-size allocation should come out of the free list rather
	// than growing retained bytes further.
	d2 := h.CopyMultipart(make([]byte, 64))
	require.Equal(t, retainedBefore, h.RetainedBytes())
	require.Equal(t, uint64(0), h.FreeBytes())
	_ = d2
}

func TestArenaHeapReserveWriter(t *testing.T) {
	h := NewArenaHeap(1024)
	defer h.Close()

	d, w := h.Reserve(11)
	n, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)

	b, ok := h.Contiguous(d)
	require.True(t, ok)
	require.Equal(t, "hello world", string(b))
}

func TestArenaHeapReaderMatchesContiguousBytes(t *testing.T) {
	h := NewArenaHeap(1024)
	defer h.Close()

	d := h.CopyMultipart([]byte("streamed"))
	out, err := io.ReadAll(h.Reader(d))
	require.NoError(t, err)
	require.Equal(t, "streamed", string(out))
}
