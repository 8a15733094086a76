//go:build linux

// Package orchestrate implements the P0-P5 orchestration dance: a
// collection goroutine pinned to one OS thread freezes every peer thread
// via capture.ThreadCapture, snapshots /proc/<pid>/maps, then releases the
// caller's thread while a walker subprocess performs the mark phase
// against the still-frozen remainder of the process.
//
// spec.md's walker is a forked child sharing the parent's address space via
// copy-on-write. Go cannot fork safely: only the calling goroutine's OS
// thread survives a raw fork() syscall, while the runtime's other threads
// (GC workers, sysmon, the scheduler) do not, so anything beyond the
// simplest syscalls in the child is undefined behavior. This package
// instead re-execs the running binary as a walker subprocess and has it
// read the frozen target's memory remotely via process_vm_readv(2) --
// spec.md §9 names this exact substitution ("an alternative is
// process_vm_readv ... which changes no other part of the design").
package orchestrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/go-unreachable/internal/arena"
	"github.com/joeycumines/go-unreachable/internal/guard"
	"github.com/joeycumines/go-unreachable/internal/interval"
	"github.com/joeycumines/go-unreachable/internal/mark"
	"github.com/joeycumines/go-unreachable/internal/model"
	"github.com/joeycumines/go-unreachable/internal/pipe"
	"github.com/joeycumines/go-unreachable/internal/sysmem"
)

// arena chunk sizing: a small slice of whatever's free, bounded so a
// memory-starved host still gets a usable first chunk and a huge host
// doesn't get one arena chunk sized like a small allocator all by itself.
const (
	arenaChunkFraction = 0.001
	arenaChunkMin      = 64 * 1024
	arenaChunkMax      = 16 * 1024 * 1024
)

// walker subprocess exit codes, matching spec.md §6 exactly.
const (
	exitOK         = 0
	exitPipeOpen   = 1
	exitCollection = 2
	exitSend       = 3
)

// WalkerJob is the snapshot the collection thread hands to the walker
// subprocess: enough information to scan the target's memory without
// re-deriving anything from the (by then, resumed) caller.
type WalkerJob struct {
	TargetPID     int
	RegisterData  [][]byte // one entry per captured thread, index-aligned with registerWindowBase+i*stride
	RemoteRoots   []model.Range
	HeapRanges    []model.Range
	ContentLength int
}

// RunWalker executes P3 entirely: it is the walker subprocess's whole
// reason for existing, called from the re-exec trampoline installed by the
// root package's init(). It reads job from jobR, runs the mark phase
// against the target's live (frozen) memory, sends the result down
// leakW, and always terminates the process -- it never returns.
func RunWalker(jobR *os.File, leakW *os.File) {
	payload, err := io.ReadAll(jobR)
	if err != nil {
		os.Exit(exitPipeOpen)
	}

	var job WalkerJob
	if err := json.Unmarshal(payload, &job); err != nil {
		os.Exit(exitCollection)
	}

	sender := pipe.OpenSender(leakW)

	result, err := runWalkerJob(job)
	if err != nil {
		os.Exit(exitCollection)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		os.Exit(exitSend)
	}
	if err := sender.Send(encoded); err != nil {
		os.Exit(exitSend)
	}
	if err := sender.Close(); err != nil {
		os.Exit(exitSend)
	}
	os.Exit(exitOK)
}

// runWalkerJob builds the registry, runs the mark phase, and assembles the
// totals and leak vector, matching spec.md §4.F's P3 and the
// UnreachableMemoryInfo assembly step.
func runWalkerJob(job WalkerJob) (model.UnreachableMemoryInfo, error) {
	// defensive: matches the parent's malloc-guard invariant even though
	// this subprocess shares no allocator state with the target.
	g, err := guard.Acquire(guard.NoopMallocator{})
	if err != nil {
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: walker malloc guard: %w", err)
	}
	defer g.Release()

	reg := interval.New()
	var allocationBytes uint64
	for _, r := range job.HeapRanges {
		if r.Size() == 0 {
			continue
		}
		reg.Insert(r.Begin, r.End)
		allocationBytes += uint64(r.Size())
	}

	windows := make([]registerWindow, len(job.RegisterData))
	roots := append([]model.Range(nil), job.RemoteRoots...)
	for i, data := range job.RegisterData {
		windows[i] = registerWindow{Base: registerWindowBase + uintptr(i)*0x10000, Data: data}
		roots = append(roots, model.Range{Begin: windows[i].Base, End: windows[i].Base + uintptr(len(data))})
	}
	read := composedReader(windows, remoteReader{pid: job.TargetPID})

	chunkSize := sysmem.Read().ChunkSize(arenaChunkFraction, arenaChunkMin, arenaChunkMax)
	a := arena.NewWithChunkSize(chunkSize)
	q := mark.NewArenaQueue(a, 64)
	mark.Run(reg, q, roots, read, nil)

	contentLength := job.ContentLength
	if contentLength <= 0 {
		contentLength = model.DefaultLeakContentLength
	}

	var info model.UnreachableMemoryInfo
	info.NumAllocations = uint64(reg.Count())
	info.AllocationBytes = allocationBytes

	reg.Iterate(func(alloc *model.Allocation) bool {
		if alloc.Marked {
			return true
		}
		info.NumLeaks++
		info.LeakBytes += uint64(alloc.Size())
		n := contentLength
		if uintptr(n) > alloc.Size() {
			n = int(alloc.Size())
		}
		info.Leaks = append(info.Leaks, model.Leak{
			Begin:    alloc.Begin,
			Size:     alloc.Size(),
			Contents: readRemoteBytes(job.TargetPID, alloc.Begin, n),
		})
		return true
	})

	model.SortLeaks(info.Leaks)
	return info, nil
}
