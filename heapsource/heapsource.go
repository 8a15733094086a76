// Package heapsource defines the contract for enumerating candidate
// allocation ranges inside a mapping the classifier has labelled as heap.
//
// Real allocator introspection (walking malloc's free lists or size-class
// bookkeeping) is necessarily allocator-specific, and is explicitly an
// external collaborator rather than part of the walkable core -- the same
// way spec.md treats the platform's malloc-internal iteration primitive.
// This package ships that interface plus two implementations: Conservative,
// a dependency-free fallback that treats an entire heap mapping as one
// allocation (sound but imprecise -- it can only ever report the whole
// mapping as either fully reachable or fully leaked), and Mock, a
// deterministic test double that returns a pre-seeded allocation list.
package heapsource

import "github.com/joeycumines/go-unreachable/internal/model"

// AllocationSource enumerates the live allocation ranges inside a single
// heap-classified mapping. Returned ranges must be disjoint and must fall
// entirely within mapping.Range; the caller (the orchestrator) is
// responsible for inserting them into the interval registry and will
// reject overlaps.
type AllocationSource interface {
	Allocations(mapping model.Mapping) ([]model.Range, error)
}

// Factory constructs an AllocationSource, mirroring capture.Factory's
// shape so orchestration code can treat both external collaborators
// uniformly.
type Factory func() AllocationSource

// Conservative is the dependency-free default: absent a real allocator
// hook, it reports the entire heap mapping as a single allocation. This is
// sound (no allocation is ever missed, and scanning its full span never
// skips a pointer) but coarse: it cannot distinguish individual objects
// within the mapping, so a single reachable pointer anywhere in it marks
// the whole mapping reachable.
type Conservative struct{}

func (Conservative) Allocations(mapping model.Mapping) ([]model.Range, error) {
	if mapping.Size() == 0 {
		return nil, nil
	}
	return []model.Range{mapping.Range}, nil
}

// Mock is a deterministic AllocationSource for tests: it returns exactly
// the ranges it was seeded with, regardless of the mapping passed in,
// letting tests construct arbitrary interval-registry fixtures without a
// real heap mapping.
type Mock struct {
	Ranges []model.Range
	Err    error
}

func (m Mock) Allocations(model.Mapping) ([]model.Range, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Ranges, nil
}
