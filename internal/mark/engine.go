// Package mark implements the conservative, iterative, breadth-first mark
// phase: every root range and every reached allocation's bytes are scanned
// at word alignment, and any word that lands anywhere inside a known
// allocation (its base or any interior byte) marks that allocation
// reachable.
package mark

import (
	"unsafe"

	"github.com/joeycumines/go-unreachable/internal/interval"
	"github.com/joeycumines/go-unreachable/internal/model"
)

// WordSize is the native pointer size; only word-aligned offsets are
// scanned for candidate pointers.
const WordSize = uintptr(unsafe.Sizeof(uintptr(0)))

// ReadWord reads one native-width word at addr from the memory image being
// walked. It returns ok=false if addr is not mapped/readable, in which case
// the engine silently skips it (the caller is expected to have restricted
// root ranges and allocation ranges to addresses known to be mapped; a
// false return only occurs for defensive robustness, e.g. a racing unmap).
type ReadWord func(addr uintptr) (value uintptr, ok bool)

// StripTag removes any architecture-specific tag bits (e.g. pointer
// authentication codes) from a candidate pointer value before it is looked
// up in the registry. The identity function is used if none is supplied.
type StripTag func(value uintptr) uintptr

// Stats summarizes one mark run.
type Stats struct {
	RootWordsScanned  int
	AllocWordsScanned int
	Marked            int
}

// Run performs the BFS mark phase described in spec.md §4.C:
//
//  1. every allocation in reg starts unmarked (the zero value).
//  2. every root range is scanned at word alignment; a hit marks and
//     enqueues the target allocation.
//  3. the queue is drained, scanning each popped allocation's own bytes the
//     same way.
//
// After Run returns, every Allocation in reg has Marked set if and only if
// it is reachable from some root.
func Run(reg *interval.Registry, q Queue, roots []model.Range, read ReadWord, strip StripTag) Stats {
	if strip == nil {
		strip = func(v uintptr) uintptr { return v }
	}

	var stats Stats

	scan := func(r model.Range, fromRoot bool) {
		begin := alignUp(r.Begin, WordSize)
		for addr := begin; addr+WordSize <= r.End; addr += WordSize {
			w, ok := read(addr)
			if fromRoot {
				stats.RootWordsScanned++
			} else {
				stats.AllocWordsScanned++
			}
			if !ok {
				continue
			}
			w = strip(w)
			a := reg.FindContaining(w)
			if a == nil || a.Marked {
				continue
			}
			a.Marked = true
			a.RootReferenced = fromRoot
			stats.Marked++
			q.Push(a.Begin)
		}
	}

	for _, r := range roots {
		scan(r, true)
	}

	for {
		begin, ok := q.Pop()
		if !ok {
			break
		}
		a := reg.FindContaining(begin)
		if a == nil {
			// unreachable: every pushed begin came from a registry hit.
			continue
		}
		scan(a.Range, false)
	}

	return stats
}

func alignUp(p uintptr, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}
