package rowcontainer

import "errors"

// Sentinel errors for the failure modes a caller can legitimately hit
// at runtime. Checked with errors.Is after being wrapped with
// fmt.Errorf("...: %w", ...) context at the call site, following the
// teacher's mix of typed error values and wrapped context elsewhere in
// pkg/storage. A double free is reported as ErrDoubleFree like the
// others. States that should be unreachable given correct internal
// bookkeeping (corrupt layout arithmetic, a null handed to a
// non-nullable column) instead go through util.AssertFunc's panic
// style, kept as assertFunc below.
var (
	// ErrInvalidLayout is returned when a requested row layout cannot
	// be realized: a non-power-of-two alignment, or a key/accumulator
	// combination the planner cannot reconcile.
	ErrInvalidLayout = errors.New("rowcontainer: invalid layout")
	// ErrFrozenContainer is returned by any mutating operation called
	// after createRowPartitions has frozen the container.
	ErrFrozenContainer = errors.New("rowcontainer: container is frozen")
	// ErrDoubleFree is returned when erasing a row whose free bit is
	// already set.
	ErrDoubleFree = errors.New("rowcontainer: double free")
	// ErrUnsupportedCompareFlags is returned when a complex-type
	// compare is requested without nullAsValue.
	ErrUnsupportedCompareFlags = errors.New("rowcontainer: unsupported compare flags for this kind")
	// ErrCapacityExceeded is returned when appendPartitions would
	// write past the partition vector's declared capacity.
	ErrCapacityExceeded = errors.New("rowcontainer: capacity exceeded")
)

// assertFunc panics if cond is false, mirroring the teacher's
// util.AssertFunc: a fail-fast guard for states that should be
// unreachable given correct internal bookkeeping, not conditions a
// caller can trigger through normal API misuse.
func assertFunc(cond bool, msg string) {
	if !cond {
		panic("rowcontainer: " + msg)
	}
}
