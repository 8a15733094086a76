// Package sysmem reports total and free system memory, so the arena can
// size its first chunk relative to what's actually available and
// GetUnreachableMemory can refuse to start a scan on an already memory-starved
// host instead of making things worse.
package sysmem

import "github.com/pbnjay/memory"

// Probe reports point-in-time system memory figures, in bytes.
type Probe struct {
	Total uint64
	Free  uint64
}

// Read queries the host for its current memory figures. Either field may
// be 0 if the platform doesn't expose it (memory.TotalMemory and
// memory.FreeMemory both document this fallback).
func Read() Probe {
	return Probe{Total: memory.TotalMemory(), Free: memory.FreeMemory()}
}

// ChunkSize picks an initial arena chunk size as a fraction of free
// memory, clamped between min and max, so a single large scan doesn't
// eagerly reserve an unreasonable amount of address space on a small
// host nor under-allocate on a large one.
func (p Probe) ChunkSize(fraction float64, min, max int) int {
	if fraction <= 0 || p.Free == 0 {
		return min
	}
	size := int(float64(p.Free) * fraction)
	if size < min {
		return min
	}
	if max > 0 && size > max {
		return max
	}
	return size
}

// BelowFloor reports whether free memory is below floor bytes, the signal
// GetUnreachableMemory uses to refuse a scan outright rather than start a
// memory-hungry walk that's likely to make the host's situation worse.
// A zero floor disables the check.
func (p Probe) BelowFloor(floor uint64) bool {
	return floor > 0 && p.Free > 0 && p.Free < floor
}
