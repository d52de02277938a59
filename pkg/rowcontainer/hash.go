package rowcontainer

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"

	"github.com/daviszhen/rowcontainer/pkg/rcheap"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// NullHash is the canonical hash every null value produces regardless
// of column kind, grounded on the teacher's chunk.NULL_HASH constant
// (pkg/chunk/hash.go) so a container built to interoperate with the
// teacher's join/aggregate hash tables sees the same null-bucketing
// behavior.
const NullHash uint64 = 0xbf58476d1ce4e5b9

// sipKey is the fixed key for the custom-comparator escape hatch's
// siphash dispatch. It only needs to be stable within one process: no
// persisted hash value ever outlives the container that produced it.
var sipKey = [16]byte{0x52, 0x6f, 0x77, 0x43, 0x6f, 0x6e, 0x74, 0x61, 0x69, 0x6e, 0x65, 0x72, 0x48, 0x61, 0x73, 0x68}

// mix folds one column's hash into a running combined hash, the same
// multiply-then-xor fold as the teacher's CombineHashScalar
// (pkg/chunk/hash.go), so a caller hashing several key columns in
// sequence gets the same avalanche characteristics the teacher's
// join/group-by hash tables rely on.
func mix(acc, h uint64) uint64 {
	return (acc * NullHash) ^ h
}

// splitMix64 is the teacher's murmurhash64 finalizer (pkg/chunk/hash.go),
// used here for every fixed-width scalar kind.
func splitMix64(x uint64) uint64 {
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	return x
}

// canonicalizeFloat64Bits and canonicalizeFloat32Bits map every NaN
// bit pattern of their width to one representative value (and -0.0 to
// +0.0) before hashFixed hashes it, so
// hash(NaN_a) == hash(NaN_b) regardless of payload bits (spec.md §4.4,
// Testable Property 6, Scenario B).
func canonicalizeFloat64Bits(bits uint64) uint64 {
	f := math.Float64frombits(bits)
	if math.IsNaN(f) {
		return math.Float64bits(math.NaN())
	}
	if f == 0 {
		return 0 // canonicalize +0.0 and -0.0 to the same bit pattern
	}
	return bits
}

func canonicalizeFloat32Bits(bits uint32) uint32 {
	f := math.Float32frombits(bits)
	if float32IsNaN(f) {
		return math.Float32bits(float32(math.NaN()))
	}
	if f == 0 {
		return 0
	}
	return bits
}

func float32IsNaN(f float32) bool { return f != f }

// hashFixed hashes a fixed-width column's raw bytes by kind, applying
// float NaN/zero canonicalization before folding into splitMix64.
func hashFixed(kind rctype.Kind, raw []byte) uint64 {
	switch kind {
	case rctype.Float64:
		bits := canonicalizeFloat64Bits(binary.LittleEndian.Uint64(raw))
		return splitMix64(bits)
	case rctype.Float32:
		bits := canonicalizeFloat32Bits(binary.LittleEndian.Uint32(raw))
		return splitMix64(uint64(bits))
	default:
		var buf [8]byte
		copy(buf[:], raw)
		return splitMix64(binary.LittleEndian.Uint64(buf[:]))
	}
}

// hashVar hashes a variable-width or complex column's reassembled
// bytes with xxhash, grounded on cockroachdb-pebble's use of xxhash
// for checksumming variable-length block payloads; it is far faster
// than splitMix64 applied byte-by-byte and has no patent/licensing
// concerns the way some alternatives do.
func hashVar(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// hashCustom dispatches to a column type's own comparator when one is
// declared (spec.md §9's "bounded escape hatch"); siphash is the
// teacher-adjacent default used by SnellerInc-sneller for keyed
// hashing of tenant/partition identifiers, reused here as the keyed
// hash backing rctype.CustomComparator implementations that don't
// supply their own.
func hashCustom(data []byte) uint64 {
	return siphash.Hash(binary.LittleEndian.Uint64(sipKey[:8]), binary.LittleEndian.Uint64(sipKey[8:]), data)
}

// HashColumn computes the hash of one column across a set of rows,
// per spec.md's hash(column, rows[], mix, out) operation. With combine
// set it folds each hash into the caller's existing out[i] via mix, for
// a caller combining multiple columns; otherwise it overwrites out[i].
func (c *Container) HashColumn(rows []unsafe.Pointer, colType rctype.ColumnType, offset, nullBitOffset int, nullable bool, combine bool, out []uint64) {
	for i, row := range rows {
		h := c.hashOne(row, colType, offset, nullBitOffset, nullable)
		if combine {
			out[i] = mix(out[i], h)
		} else {
			out[i] = h
		}
	}
}

func (c *Container) hashOne(row unsafe.Pointer, colType rctype.ColumnType, offset, nullBitOffset int, nullable bool) uint64 {
	if nullable && bitGet(row, nullBitOffset) {
		return NullHash
	}
	kind := colType.Kind
	if colType.Comparator != nil {
		return colType.Comparator.Hash(columnBytes(row, offset, kind, c.heap))
	}
	if kind == rctype.Unknown {
		return NullHash
	}
	if kind.IsConstant() {
		return hashFixed(kind, rcViewFixed(row, offset, kind))
	}
	data := extractVar(row, offset, c.heap)
	if kind.IsComplex() {
		if h, err := defaultContainerSerde.Hash(data, kind, colType.Children); err == nil {
			return h
		}
		return hashVar(data)
	}
	return hashVar(data)
}

func rcViewFixed(row unsafe.Pointer, offset int, kind rctype.Kind) []byte {
	return extractFixed(row, offset, kind)
}

// siphashComparator is the default rctype.CustomComparator a caller
// can attach to a ColumnType when its kind needs the escape hatch but
// has no domain-specific ordering of its own -- keyed hash plus
// lexicographic byte compare.
type siphashComparator struct{}

// NewSiphashComparator returns a CustomComparator suitable for any
// column kind whose custom comparison need is "hash it and compare it
// as an opaque byte string", which is the common case for the escape
// hatch spec.md §9 describes.
func NewSiphashComparator() rctype.CustomComparator { return siphashComparator{} }

func (siphashComparator) Hash(data []byte) uint64 { return hashCustom(data) }

func (siphashComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func columnBytes(row unsafe.Pointer, offset int, kind rctype.Kind, heap rcheap.Heap) []byte {
	if kind.IsConstant() {
		return rcViewFixed(row, offset, kind)
	}
	return extractVar(row, offset, heap)
}
