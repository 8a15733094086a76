package unreachable

import "github.com/joeycumines/go-unreachable/internal/model"

// The public types below are aliases of the shared internal model types, so
// that every internal component (registry, classifier, mark engine,
// orchestrator, pipe) operates on exactly the same concrete types the
// caller sees -- no copying or translation at the package boundary.
type (
	// Range is a half-open interval [Begin, End) of process-virtual byte
	// addresses. Begin must be strictly less than End.
	Range = model.Range

	// Allocation is a live heap object tracked by the interval registry: a
	// Range plus the two bits the mark engine flips during a walk.
	// Allocations never overlap.
	Allocation = model.Allocation

	// MappingClass identifies which bucket a Mapping was classified into by
	// the mapping classifier.
	MappingClass = model.MappingClass

	// Mapping is a single region parsed from /proc/<pid>/maps.
	Mapping = model.Mapping

	// ThreadInfo is a per-thread record captured while the target's
	// threads are frozen.
	ThreadInfo = model.ThreadInfo

	// Leak describes a single unreachable allocation.
	Leak = model.Leak

	// UnreachableMemoryInfo is the result of a scan.
	UnreachableMemoryInfo = model.UnreachableMemoryInfo
)

const (
	ClassIgnored = model.ClassIgnored
	ClassHeap    = model.ClassHeap
	ClassAnon    = model.ClassAnon
	ClassGlobals = model.ClassGlobals
	ClassStack   = model.ClassStack

	// DefaultLeakContentLength is the default fixed-length byte prefix
	// copied from a leaked allocation into Leak.Contents.
	DefaultLeakContentLength = model.DefaultLeakContentLength
)

// SortLeaks orders leaks by descending Size, ties broken by ascending
// Begin, matching the UnreachableMemoryInfo ordering invariant.
func SortLeaks(leaks []Leak) { model.SortLeaks(leaks) }
