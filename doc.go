// Package unreachable implements an in-process unreachable-memory detector
// for POSIX-like systems.
//
// Given a target process (typically the caller itself), it enumerates every
// live heap allocation and determines which allocations are not
// transitively reachable from any root: CPU registers of every thread,
// thread stacks, global data, and anonymous read/write mappings owned by
// language runtimes. Unreachable allocations are reported as leaks, with
// size, address, and a short content snapshot.
//
// The detector is conservative, in the Boehm-style mark-sweep sense: it
// does not require precise type information, and it follows interior
// pointers. It does not deallocate leaks, does not symbolicate them, and
// cannot detect intentionally hidden pointers (XOR-encoded, stored in
// files, or held only in device memory).
//
// A scan freezes every thread of the target process, snapshots its memory
// map, and then walks the heap from a separate, re-exec'd subprocess, so
// that the (potentially slow) pointer trace never blocks the target for
// longer than it takes to capture its state.
package unreachable
