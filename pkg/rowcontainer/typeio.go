package rowcontainer

import (
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcheap"
	"github.com/daviszhen/rowcontainer/pkg/rcmem"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
	"github.com/daviszhen/rowcontainer/pkg/rcvector"
)

// inlineCapacity is how many payload bytes a variable-width
// descriptor can hold without touching the string allocator at all,
// the row-container analogue of a small-string optimization: most
// aggregation/join keys are short enough that going through rcheap at
// all would be pure overhead.
const inlineCapacity = varDescriptorSize - 4

func bitGet(row unsafe.Pointer, absBit int) bool {
	b := rcmem.Load[byte](rcmem.Add(row, absBit/8))
	return b&(1<<(uint(absBit)%8)) != 0
}

func bitSet(row unsafe.Pointer, absBit int, v bool) {
	addr := rcmem.Add(row, absBit/8)
	b := rcmem.Load[byte](addr)
	mask := byte(1) << (uint(absBit) % 8)
	if v {
		b |= mask
	} else {
		b &^= mask
	}
	rcmem.Store(addr, b)
}

// chargeRowSize charges bytes allocated out of the string allocator
// during a store to the row's own uint32 counter, per spec.md §4.3,
// so estimateRowSize can later account for per-row variable-width
// retention without rescanning the heap.
func chargeRowSize(row unsafe.Pointer, l *Layout, delta uint32) {
	if l.RowSizeOffset == 0 || delta == 0 {
		return
	}
	addr := rcmem.Add(row, l.RowSizeOffset)
	cur := rcmem.Load[uint32](addr)
	rcmem.Store(addr, cur+delta)
}

func readRowSize(row unsafe.Pointer, l *Layout) uint32 {
	if l.RowSizeOffset == 0 {
		return 0
	}
	return rcmem.Load[uint32](rcmem.Add(row, l.RowSizeOffset))
}

// storeFixed copies a fixed-width value's raw bytes into the row at
// offset, used for every IsConstant() kind: integers, booleans,
// dates, decimals, intervals, floats. Floats are stored bit-for-bit;
// NaN canonicalization is a hash/compare-time concern, not a storage
// one.
func storeFixed(row unsafe.Pointer, offset int, kind rctype.Kind, src []byte) {
	n := rctype.FixedWidthOf(kind)
	dst := rcmem.Add(row, offset)
	if len(src) == 0 {
		rcmem.Memset(dst, 0, n)
		return
	}
	rcmem.Copy(dst, rcmem.BytesPointer(src), n)
}

func extractFixed(row unsafe.Pointer, offset int, kind rctype.Kind) []byte {
	n := rctype.FixedWidthOf(kind)
	return append([]byte(nil), rcmem.ToSlice(rcmem.Add(row, offset), n)...)
}

// storeVar writes a variable-width or serialized-complex value at
// offset, choosing between the inline slot and the string allocator
// by size alone, and returns the number of bytes charged against the
// row's size tracker (zero for an inline write).
func storeVar(row unsafe.Pointer, offset int, data []byte, heap rcheap.Heap) uint32 {
	base := rcmem.Add(row, offset)
	rcmem.Store(base, uint32(len(data)))
	payload := rcmem.Add(base, 4)
	rcmem.Memset(payload, 0, inlineCapacity)
	if len(data) <= inlineCapacity {
		if len(data) > 0 {
			rcmem.Copy(payload, rcmem.BytesPointer(data), len(data))
		}
		return 0
	}
	d := heap.CopyMultipart(data)
	rcmem.Store(payload, d.Ptr)
	return uint32(len(data))
}

func extractVar(row unsafe.Pointer, offset int, heap rcheap.Heap) []byte {
	base := rcmem.Add(row, offset)
	n := int(rcmem.Load[uint32](base))
	if n == 0 {
		return nil
	}
	payload := rcmem.Add(base, 4)
	if n <= inlineCapacity {
		return append([]byte(nil), rcmem.ToSlice(payload, n)...)
	}
	ptr := rcmem.Load[unsafe.Pointer](payload)
	d := rcheap.Descriptor{Size: n, Ptr: ptr}
	if b, ok := heap.Contiguous(d); ok {
		return append([]byte(nil), b...)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(heap.Reader(d), out); err != nil {
		panic("rowcontainer: short read reassembling fragmented value: " + err.Error())
	}
	return out
}

// freeVar releases any out-of-line bytes a variable-width field
// references; a no-op for inline values. It does not clear the slot
// itself — the whole row is re-zeroed before it is reused (by
// Store.NewRow for a free-list row, or by initializeRow with reuse).
func freeVar(row unsafe.Pointer, offset int, heap rcheap.Heap) {
	base := rcmem.Add(row, offset)
	n := int(rcmem.Load[uint32](base))
	if n <= inlineCapacity {
		return
	}
	ptr := rcmem.Load[unsafe.Pointer](rcmem.Add(base, 4))
	heap.Release(rcheap.Descriptor{Size: n, Ptr: ptr})
}

// storeColumn implements both storeWithNulls and storeNoNulls for one
// (row, column) pair depending on nullable, per spec.md §4.3. A
// complex (Row/Array/Map) value is handed to the Container Serde
// first so its stored bytes carry the isKey option header hash/compare
// later read back out; every other kind still goes straight through
// storeVar/storeFixed unchanged.
func storeColumn(
	row unsafe.Pointer,
	offset, nullBitOffset int,
	colType rctype.ColumnType,
	src rcvector.DecodedVector,
	idx int,
	heap rcheap.Heap,
	l *Layout,
	nullable bool,
	isKey bool,
) {
	kind := colType.Kind
	isNull := src.IsNull(idx)
	if !nullable {
		assertFunc(!isNull, "storeNoNulls given a null value for a non-nullable column")
	} else {
		bitSet(row, nullBitOffset, isNull)
	}
	if isNull {
		return
	}
	if kind.IsConstant() {
		storeFixed(row, offset, kind, src.FixedBytes(idx))
		return
	}
	data := src.VarBytes(idx)
	if kind.IsComplex() {
		data = defaultContainerSerde.Serialize(data, ContainerSerdeOptions{IsKey: isKey})
	}
	charged := storeVar(row, offset, data, heap)
	chargeRowSize(row, l, charged)
}

// extractColumnInto implements extractColumn for one column across a
// set of rows. A complex value is unwrapped back through the
// Container Serde before being handed to the caller, so the value it
// sees matches what it originally passed to storeColumn.
func extractColumnInto(
	rows []unsafe.Pointer,
	offset, nullBitOffset int,
	colType rctype.ColumnType,
	heap rcheap.Heap,
	nullable bool,
	dst rcvector.WritableVector,
) {
	kind := colType.Kind
	for i, row := range rows {
		isNull := nullable && bitGet(row, nullBitOffset)
		dst.SetNull(i, isNull)
		if isNull {
			continue
		}
		if kind.IsConstant() {
			dst.SetFixedBytes(i, extractFixed(row, offset, kind))
			continue
		}
		data := extractVar(row, offset, heap)
		if kind.IsComplex() {
			_, body := defaultContainerSerde.Deserialize(data)
			data = body
		}
		dst.SetVarBytes(i, data)
	}
}

// serializeRow writes one row's spill-format bytes: the flag-byte
// block verbatim, then for each column either fixedWidthOf(kind)
// bytes (copied in native byte order) or a [u32 little-endian
// size][size bytes] pair, per
// spec.md §4.3/§6. The free bit is included verbatim on the way out
// (ingest clears it, not extract).
func serializeRow(w io.Writer, row unsafe.Pointer, l *Layout, heap rcheap.Heap) error {
	if _, err := w.Write(rcmem.ToSlice(rcmem.Add(row, l.FlagOffset), l.FlagBytes)); err != nil {
		return err
	}
	kinds := append(append([]rctype.Kind{}, l.KeyKinds...), dependentKindsPlaceholder(l)...)
	for i, kind := range kinds {
		offset := l.Offsets[columnIndexForSerialize(l, i)]
		if kind.IsConstant() {
			if _, err := w.Write(rcmem.ToSlice(rcmem.Add(row, offset), rctype.FixedWidthOf(kind))); err != nil {
				return err
			}
			continue
		}
		data := extractVar(row, offset, heap)
		var szBuf [4]byte
		binary.LittleEndian.PutUint32(szBuf[:], uint32(len(data)))
		if _, err := w.Write(szBuf[:]); err != nil {
			return err
		}
		if len(data) > 0 {
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
	}
	return nil
}

// deserializeRow is serializeRow's exact inverse: it overwrites row's
// flag-byte block and every key/dependent column from r, clears the
// free bit (ingest never resurrects a free row as live-with-free-bit-
// set), and recomputes the row-size tracker since the bytes it
// describes may now live in a different heap instance.
func deserializeRow(r io.Reader, row unsafe.Pointer, l *Layout, heap rcheap.Heap) error {
	if _, err := io.ReadFull(r, rcmem.ToSlice(rcmem.Add(row, l.FlagOffset), l.FlagBytes)); err != nil {
		return err
	}
	bitSet(row, l.FreeFlagOffset, false)

	kinds := append(append([]rctype.Kind{}, l.KeyKinds...), dependentKindsPlaceholder(l)...)
	var charged uint32
	for i, kind := range kinds {
		offset := l.Offsets[columnIndexForSerialize(l, i)]
		if kind.IsConstant() {
			buf := make([]byte, rctype.FixedWidthOf(kind))
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			storeFixed(row, offset, kind, buf)
			continue
		}
		var szBuf [4]byte
		if _, err := io.ReadFull(r, szBuf[:]); err != nil {
			return err
		}
		sz := binary.LittleEndian.Uint32(szBuf[:])
		data := make([]byte, sz)
		if sz > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return err
			}
		}
		charged += storeVar(row, offset, data, heap)
	}
	if l.RowSizeOffset != 0 {
		rcmem.Store(rcmem.Add(row, l.RowSizeOffset), charged)
	}
	return nil
}

// dependentKindsPlaceholder and columnIndexForSerialize exist only to
// keep serializeRow/deserializeRow's column walk in the same
// declaration order (keys, then dependents -- accumulator payloads
// are not part of this format; SpillAccumulator/RestoreAccumulator
// move them separately) without duplicating
// the index arithmetic twice.
func dependentKindsPlaceholder(l *Layout) []rctype.Kind { return l.DependentKinds }

func columnIndexForSerialize(l *Layout, i int) int {
	if i < len(l.KeyKinds) {
		return i
	}
	return len(l.KeyKinds) + len(l.Accumulators) + (i - len(l.KeyKinds))
}

