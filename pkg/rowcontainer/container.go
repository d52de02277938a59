package rowcontainer

import (
	"fmt"
	"io"
	"strings"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviszhen/rowcontainer/pkg/rcaccum"
	"github.com/daviszhen/rowcontainer/pkg/rcarena"
	"github.com/daviszhen/rowcontainer/pkg/rcheap"
	"github.com/daviszhen/rowcontainer/pkg/rcmem"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
	"github.com/daviszhen/rowcontainer/pkg/rcvector"
)

// Params gathers the creation parameters spec.md §6 lists, plus the
// one ambient field (Logger) the expanded spec adds.
type Params struct {
	KeyTypes          []rctype.ColumnType
	NullableKeys      bool
	Accumulators      rcaccum.Set
	DependentTypes    []rctype.ColumnType
	HasNext           bool
	IsJoinBuild       bool
	HasProbedFlag     bool
	HasNormalizedKeys bool
	SlabBytes         int // 0 uses rcarena.DefaultSlabBytes
	HeapBlockBytes    int // 0 uses rcheap.DefaultBlockBytes
	Logger            *zap.Logger
}

// Container is the public façade over the row layout planner, row
// store, typed value I/O, hash/compare, and column stats: the single
// type an aggregation, join-build, or sort operator is expected to
// hold, mirroring the teacher's TupleDataCollection as the one object
// pkg/compute operators embed for build-side row storage.
type Container struct {
	id     uuid.UUID
	layout *Layout
	store  *Store
	arena  rcarena.Arena
	heap   rcheap.Heap

	keyTypes       []rctype.ColumnType
	dependentTypes []rctype.ColumnType
	isJoinBuild    bool

	stats  []*ColumnStats // one per key+dependent column, declaration order
	logger *zap.Logger

	partitions *PartitionMap
}

// NewContainer plans the row layout and wires a fresh slab arena and
// string allocator behind it.
func NewContainer(p Params) (*Container, error) {
	keyKinds := make([]rctype.Kind, len(p.KeyTypes))
	for i, t := range p.KeyTypes {
		keyKinds[i] = t.Kind
	}
	depKinds := make([]rctype.Kind, len(p.DependentTypes))
	for i, t := range p.DependentTypes {
		depKinds[i] = t.Kind
	}

	layout, err := PlanLayout(keyKinds, p.NullableKeys, p.Accumulators, depKinds, p.HasNext, p.HasProbedFlag, p.HasNormalizedKeys)
	if err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = nopLogger()
	}

	arena := rcarena.NewSlabArena(p.SlabBytes)
	heap := rcheap.NewArenaHeap(p.HeapBlockBytes)

	stats := make([]*ColumnStats, len(p.KeyTypes)+len(p.DependentTypes))
	for i := range stats {
		stats[i] = NewColumnStats()
	}

	id := uuid.New()
	logger.Debug("row container created",
		zap.Stringer("containerID", id),
		zap.Int("keyColumns", len(p.KeyTypes)),
		zap.Int("dependentColumns", len(p.DependentTypes)),
		zap.Int("accumulators", len(p.Accumulators)),
		zap.Int("fixedRowSize", layout.FixedRowSize),
	)

	return &Container{
		id:             id,
		layout:         layout,
		store:          NewStore(layout, arena, heap),
		arena:          arena,
		heap:           heap,
		keyTypes:       p.KeyTypes,
		dependentTypes: p.DependentTypes,
		isJoinBuild:    p.IsJoinBuild,
		stats:          stats,
		logger:         logger,
	}, nil
}

// Layout exposes the planned row layout for callers that need direct
// offset access (e.g. an aggregation executor driving accumulator
// Update/Combine calls against AccumOffset pointers).
func (c *Container) Layout() *Layout { return c.layout }

// ID identifies this container instance for log correlation across a
// query's build/probe/spill phases.
func (c *Container) ID() uuid.UUID { return c.id }

func (c *Container) SetNormalizedKeyBudget(n int) { c.store.SetNormalizedKeyBudget(n) }

func (c *Container) NumRows() int     { return c.store.NumRows() }
func (c *Container) NumFreeRows() int { return c.store.NumFreeRows() }
func (c *Container) Frozen() bool     { return c.store.Frozen() }

func (c *Container) numColumns() int { return len(c.keyTypes) + len(c.dependentTypes) }

// resolveColumn maps a combined key+dependent column index to its
// type, byte offset, null-bit offset, and whether that bit is
// meaningful (non-nullable keys carry a sentinel -1 offset that must
// never be dereferenced).
func (c *Container) resolveColumn(column int) (rctype.ColumnType, int, int, bool) {
	nk := len(c.keyTypes)
	if column < nk {
		nullable := c.layout.NullableKeys
		nullOff := -1
		if nullable {
			nullOff = c.layout.KeyNullOffsets[column]
		}
		return c.keyTypes[column], c.layout.KeyOffset(column), nullOff, nullable
	}
	di := column - nk
	return c.dependentTypes[di], c.layout.DependentOffset(di), c.layout.DependentNullOffsets[di], true
}

// NewRow implements newRow.
func (c *Container) NewRow() (unsafe.Pointer, error) {
	return c.store.NewRow()
}

// StoreOne implements store(column, decodedBatch, rowIndex, row): one
// column of one row.
func (c *Container) StoreOne(column int, src rcvector.DecodedVector, srcIdx int, row unsafe.Pointer) error {
	if c.store.Frozen() {
		return fmt.Errorf("store: %w", ErrFrozenContainer)
	}
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	storeColumn(row, offset, nullBitOffset, colType, src, srcIdx, c.heap, c.layout, nullable, column < len(c.keyTypes))
	c.observeStore(column, row, offset, nullBitOffset, colType.Kind, nullable)
	return nil
}

// StoreBatch implements store(column, decodedBatch, rows[]): src[i]
// is stored into rows[i], for a decoded batch whose logical order
// matches rows.
func (c *Container) StoreBatch(column int, src rcvector.DecodedVector, rows []unsafe.Pointer) error {
	if c.store.Frozen() {
		return fmt.Errorf("store: %w", ErrFrozenContainer)
	}
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	isKey := column < len(c.keyTypes)
	for i, row := range rows {
		storeColumn(row, offset, nullBitOffset, colType, src, i, c.heap, c.layout, nullable, isKey)
		c.observeStore(column, row, offset, nullBitOffset, colType.Kind, nullable)
	}
	return nil
}

func (c *Container) observeStore(column int, row unsafe.Pointer, offset, nullBitOffset int, kind rctype.Kind, nullable bool) {
	st := c.stats[column]
	if nullable && bitGet(row, nullBitOffset) {
		st.ObserveNull()
		return
	}
	if kind.IsConstant() {
		st.ObserveValue(rctype.FixedWidthOf(kind), nil)
		return
	}
	n := int(rcmem.Load[uint32](rcmem.Add(row, offset)))
	var sample []byte
	if n > inlineCapacity {
		ptr := rcmem.Load[unsafe.Pointer](rcmem.Add(row, offset+4))
		sample = heapAwareSample(c.heap, rcheap.Descriptor{Size: n, Ptr: ptr})
	}
	st.ObserveValue(n, sample)
}

// ExtractColumn implements extractColumn(rows[], column, result).
func (c *Container) ExtractColumn(rows []unsafe.Pointer, column int, dst rcvector.WritableVector) error {
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	extractColumnInto(rows, offset, nullBitOffset, colType, c.heap, nullable, dst)
	return nil
}

// ExtractSerializedRows implements extractSerializedRows(rows[], result).
func (c *Container) ExtractSerializedRows(rows []unsafe.Pointer, w io.Writer) error {
	for _, row := range rows {
		if err := serializeRow(w, row, c.layout, c.heap); err != nil {
			return err
		}
	}
	return nil
}

// StoreSerializedRow implements storeSerializedRow(row): the inverse
// of ExtractSerializedRows for one row, allocating a fresh row from
// the store.
func (c *Container) StoreSerializedRow(r io.Reader) (unsafe.Pointer, error) {
	row, err := c.store.NewRow()
	if err != nil {
		return nil, err
	}
	if err := deserializeRow(r, row, c.layout, c.heap); err != nil {
		return nil, err
	}
	for i := 0; i < c.numColumns(); i++ {
		colType, offset, nullBitOffset, nullable := c.resolveColumn(i)
		c.observeStore(i, row, offset, nullBitOffset, colType.Kind, nullable)
	}
	return row, nil
}

func (c *Container) columnKind(column int) rctype.Kind {
	t, _, _, _ := c.resolveColumn(column)
	return t.Kind
}

// Hash implements hash(column, rows[], mix, out): combine=true folds
// into out via the fixed mix function instead of overwriting it.
func (c *Container) Hash(column int, rows []unsafe.Pointer, combine bool, out []uint64) {
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	c.HashColumn(rows, colType, offset, nullBitOffset, nullable, combine, out)
}

// Compare implements compare(leftRow, rightRow, column, flags).
func (c *Container) Compare(left, right unsafe.Pointer, column int, flags CompareFlags) (int, error) {
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	return c.CompareColumn(left, right, colType, offset, nullBitOffset, nullable, flags)
}

// CompareToVector implements compare(decoded, index, row): the sign
// is from the row's perspective, i.e. positive means row > decoded[idx].
func (c *Container) CompareToVector(decoded rcvector.DecodedVector, idx int, row unsafe.Pointer, column int, flags CompareFlags) (int, error) {
	colType, offset, nullBitOffset, nullable := c.resolveColumn(column)
	kind := colType.Kind

	rowNull := nullable && bitGet(row, nullBitOffset)
	vecNull := decoded.IsNull(idx)
	if rowNull && vecNull {
		return 0, nil
	}
	if vecNull {
		// row (non-null) plays the "left" role, vec (null) the "right".
		return nullSign(flags, false), nil
	}
	if rowNull {
		// row (null) plays the "left" role, vec (non-null) the "right".
		return nullSign(flags, true), nil
	}
	if kind.IsComplex() && !flags.NullAsValue {
		return 0, ErrUnsupportedCompareFlags
	}

	var cmp int
	switch {
	case colType.Comparator != nil:
		var rowBytes []byte
		if kind.IsConstant() {
			rowBytes = extractFixed(row, offset, kind)
		} else {
			rowBytes = extractVar(row, offset, c.heap)
		}
		vecBytes := decoded.VarBytes(idx)
		if kind.IsConstant() {
			vecBytes = decoded.FixedBytes(idx)
		}
		cmp = colType.Comparator.Compare(rowBytes, vecBytes)
	case kind == rctype.Unknown:
		cmp = 0
	case kind.IsConstant():
		cmp = compareFixed(kind, extractFixed(row, offset, kind), decoded.FixedBytes(idx))
	case kind.IsComplex():
		var err error
		cmp, err = defaultContainerSerde.CompareRowToElementStream(extractVar(row, offset, c.heap), decoded.VarBytes(idx), kind, colType.Children, flags)
		if err != nil {
			return 0, err
		}
	default:
		cmp = bytesCompareVarVsVec(extractVar(row, offset, c.heap), decoded.VarBytes(idx))
	}
	if flags.Descending {
		cmp = -cmp
	}
	return cmp, nil
}

func bytesCompareVarVsVec(a, b []byte) int {
	switch {
	case len(a) < len(b):
		for i := range a {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return -1
	case len(a) > len(b):
		return -bytesCompareVarVsVec(b, a)
	default:
		for i := range a {
			if a[i] != b[i] {
				return int(a[i]) - int(b[i])
			}
		}
		return 0
	}
}

// SetProbedFlag implements setProbedFlag(rows[]): marks every row in
// rows as probed, for hash-join build-side chains (Scenario C).
func (c *Container) SetProbedFlag(rows []unsafe.Pointer) error {
	if !c.layout.HasProbedFlag {
		return fmt.Errorf("setProbedFlag: %w", ErrInvalidLayout)
	}
	for _, row := range rows {
		bitSet(row, c.layout.ProbedFlagOffset, true)
	}
	return nil
}

// ExtractProbedFlags implements extractProbedFlags(rows[],
// setNullForNullKeysRow, setNullForNonProbedRow, result): result is a
// boolean WritableVector reporting whether each row was probed, with
// spec.md §9's outer-join null-production left entirely to flags the
// caller sets.
func (c *Container) ExtractProbedFlags(rows []unsafe.Pointer, setNullForNullKeysRow, setNullForNonProbedRow bool, dst rcvector.WritableVector) error {
	if !c.layout.HasProbedFlag {
		return fmt.Errorf("extractProbedFlags: %w", ErrInvalidLayout)
	}
	for i, row := range rows {
		probed := bitGet(row, c.layout.ProbedFlagOffset)
		nullKeys := setNullForNullKeysRow && c.rowHasNullKey(row)
		wantNull := nullKeys || (setNullForNonProbedRow && !probed)
		dst.SetNull(i, wantNull)
		if wantNull {
			continue
		}
		v := byte(0)
		if probed {
			v = 1
		}
		dst.SetFixedBytes(i, []byte{v})
	}
	return nil
}

func (c *Container) rowHasNullKey(row unsafe.Pointer) bool {
	if !c.layout.NullableKeys {
		return false
	}
	for _, off := range c.layout.KeyNullOffsets {
		if off >= 0 && bitGet(row, off) {
			return true
		}
	}
	return false
}

// NextRow and SetNextRow expose the next-row overlay used to chain
// hash-join build-side duplicates (spec.md §9's "chain-of-duplicates
// next-row link"), valid only when the layout carries one.
func (c *Container) NextRow(row unsafe.Pointer) unsafe.Pointer {
	assertFunc(c.layout.HasNext, "NextRow called on a layout without a next-row slot")
	return rcmem.Load[unsafe.Pointer](rcmem.Add(row, c.layout.NextOffset))
}

func (c *Container) SetNextRow(row, next unsafe.Pointer) {
	assertFunc(c.layout.HasNext, "SetNextRow called on a layout without a next-row slot")
	rcmem.Store(rcmem.Add(row, c.layout.NextOffset), next)
}

// EraseRows implements eraseRows(rows[]), also rolling back each
// erased row's contribution to column stats.
func (c *Container) EraseRows(rows []unsafe.Pointer) error {
	for _, row := range rows {
		for i := 0; i < c.numColumns(); i++ {
			_, offset, nullBitOffset, nullable := c.resolveColumn(i)
			kind := c.columnKind(i)
			if nullable && bitGet(row, nullBitOffset) {
				c.stats[i].RemoveNull()
				continue
			}
			if kind.IsConstant() {
				c.stats[i].RemoveValue(rctype.FixedWidthOf(kind))
			} else {
				n := int(rcmem.Load[uint32](rcmem.Add(row, offset)))
				c.stats[i].RemoveValue(n)
			}
		}
	}
	return c.store.EraseRows(rows)
}

// Clear implements clear(). liveRows is required only when an
// accumulator uses external memory (spec.md §4.2); pass nil otherwise.
func (c *Container) Clear(liveRows []unsafe.Pointer) {
	c.store.Clear(liveRows)
	for _, st := range c.stats {
		st.Reset()
	}
	c.partitions = nil
}

// EstimateRowSize implements estimateRowSize: (allocatedBytes -
// freeBytes + stringRetained - stringFree) / numRows, or ok=false if
// there are no rows.
func (c *Container) EstimateRowSize() (float64, bool) {
	numRows := c.store.NumRows()
	if numRows == 0 {
		return 0, false
	}
	allocated := 0
	for _, r := range c.arena.Ranges() {
		allocated += r.Len
	}
	freeBytes := c.store.NumFreeRows() * c.layout.FixedRowSize
	retained := c.heap.RetainedBytes()
	stringFree := c.heap.FreeBytes()
	total := float64(allocated-freeBytes) + float64(retained) - float64(stringFree)
	return total / float64(numRows), true
}

const hugePageBytes = 2 << 20

func roundUpHugePage(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + hugePageBytes - 1) &^ (hugePageBytes - 1)
}

// SizeIncrement implements sizeIncrement(numRows, varBytes).
func (c *Container) SizeIncrement(numRows int, varBytes int64) int64 {
	needRows := numRows - c.store.NumFreeRows()
	if needRows < 0 {
		needRows = 0
	}
	rowBytes := int64(needRows) * int64(c.layout.FixedRowSize)

	needVar := varBytes - int64(c.heap.FreeBytes())
	if needVar < 0 {
		needVar = 0
	}
	return roundUpHugePage(rowBytes) + roundUpHugePage(needVar)
}

// ListRows implements listRows(iter, max, out): fills out with up to
// len(out) row addresses starting at iter's position, advancing iter,
// and returns the count emitted.
func (c *Container) ListRows(it *RowContainerIterator, out []unsafe.Pointer) int {
	emitted := 0
	for emitted < len(out) && !it.Done() {
		out[emitted] = it.Row()
		emitted++
		it.Advance(1)
	}
	return emitted
}

// NewIterator builds a RowContainerIterator over the container's
// current allocation ranges, per spec.md §4.6.
func (c *Container) NewIterator() *RowContainerIterator {
	return newRowContainerIterator(c.store.Ranges(), c.layout.FixedRowSize, c.layout.OriginalNormalizedKeySize, c.store.NumRowsWithNormalizedKey())
}

// CreateRowPartitions implements createRowPartitions(): freezes the
// container and returns a byte-per-row vector sized to numRows.
func (c *Container) CreateRowPartitions() *PartitionMap {
	c.store.Freeze()
	c.partitions = NewPartitionMap(c.store.NumRows())
	return c.partitions
}

// ListPartitionRows implements listPartitionRows(iter, partition,
// maxRows, partitions, out).
func (c *Container) ListPartitionRows(it *RowContainerIterator, partitions *PartitionMap, partition byte, out []unsafe.Pointer) int {
	return listPartitionRows(it, partitions, partition, out)
}

func (c *Container) ColumnStats(column int) *ColumnStats { return c.stats[column] }

// ToString implements toString: a short, human-readable summary, in
// the same spirit as the teacher's TupleDataCollection debug dumps.
func (c *Container) ToString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Container{rows=%d free=%d fixedRowSize=%d keys=%d dependents=%d accumulators=%d frozen=%v}",
		c.store.NumRows(), c.store.NumFreeRows(), c.layout.FixedRowSize,
		len(c.keyTypes), len(c.dependentTypes), len(c.layout.Accumulators), c.store.Frozen())
	return b.String()
}
