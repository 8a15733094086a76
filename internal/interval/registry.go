// Package interval implements the heap walker's allocation registry: an
// address-ordered set of disjoint ranges, answering "which allocation, if
// any, contains address p?" in O(log n), with deterministic iteration
// order for the sweep phase.
package interval

import (
	"fmt"
	"sort"

	"github.com/joeycumines/go-unreachable/internal/model"
)

// Registry stores the set of live allocations for one scan, ordered by
// Begin. It is not safe for concurrent use.
type Registry struct {
	entries []model.Allocation
	bytes   uint64
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Insert records a new allocation spanning [begin, end). It is undefined
// behavior (panics, in this implementation, to fail loudly rather than
// silently corrupt the ordering invariant) to insert a range that overlaps
// an existing entry; callers (the mapping classifier and heap iterator)
// must guarantee disjointness before calling Insert.
func (r *Registry) Insert(begin, end uintptr) {
	if begin >= end {
		panic(fmt.Sprintf("interval: invalid range [%#x, %#x)", begin, end))
	}

	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Begin >= begin
	})

	if i > 0 && r.entries[i-1].End > begin {
		panic(fmt.Sprintf("interval: range [%#x, %#x) overlaps [%#x, %#x)",
			begin, end, r.entries[i-1].Begin, r.entries[i-1].End))
	}
	if i < len(r.entries) && end > r.entries[i].Begin {
		panic(fmt.Sprintf("interval: range [%#x, %#x) overlaps [%#x, %#x)",
			begin, end, r.entries[i].Begin, r.entries[i].End))
	}

	r.entries = append(r.entries, model.Allocation{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = model.Allocation{Range: model.Range{Begin: begin, End: end}}
	r.bytes += uint64(end - begin)
}

// FindContaining returns a pointer to the allocation whose range contains
// p, following interior pointers (p need not equal the allocation's
// Begin), or nil if no allocation contains p.
func (r *Registry) FindContaining(p uintptr) *model.Allocation {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].End > p
	})
	if i < len(r.entries) && r.entries[i].Begin <= p {
		return &r.entries[i]
	}
	return nil
}

// Iterate calls fn for every allocation in ascending Begin order, stopping
// early if fn returns false.
func (r *Registry) Iterate(fn func(*model.Allocation) bool) {
	for i := range r.entries {
		if !fn(&r.entries[i]) {
			return
		}
	}
}

// Count returns the number of allocations currently registered.
func (r *Registry) Count() int {
	return len(r.entries)
}

// TotalBytes returns the sum of every registered allocation's size.
func (r *Registry) TotalBytes() uint64 {
	return r.bytes
}
