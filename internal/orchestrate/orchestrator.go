//go:build linux

package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-unreachable/capture"
	"github.com/joeycumines/go-unreachable/heapsource"
	"github.com/joeycumines/go-unreachable/internal/classify"
	"github.com/joeycumines/go-unreachable/internal/guard"
	"github.com/joeycumines/go-unreachable/internal/model"
	"github.com/joeycumines/go-unreachable/internal/pipe"
)

// WalkerEnv is the environment variable the re-exec trampoline checks for
// at process startup; its presence (any non-empty value) means "this
// process is a walker subprocess, not the embedding application" and must
// be handled before any of the embedding application's own main() runs.
const WalkerEnv = "GO_UNREACHABLE_WALKER"

// Options configures a single orchestrated scan.
type Options struct {
	// PID is the target process; typically os.Getpid() (the caller itself).
	PID int

	// CaptureFactory constructs the ThreadCapture used to freeze peers.
	// Required.
	CaptureFactory capture.Factory

	// HeapSource enumerates candidate allocations inside heap mappings.
	// Defaults to heapsource.Conservative{} if nil.
	HeapSource heapsource.AllocationSource

	// Mallocator is quiesced for the critical section, best-effort: a
	// quiesce or resume failure is swallowed rather than aborting the scan.
	// Defaults to guard.NoopMallocator{} if nil.
	Mallocator guard.Mallocator

	// ContentLength is the leak-content snapshot length. Defaults to
	// model.DefaultLeakContentLength if zero.
	ContentLength int

	// ContinuationTimeout bounds the caller's wait on the continuation
	// semaphore. Defaults to 100s (spec.md §4.H) if zero.
	ContinuationTimeout time.Duration

	// WalkerPath is the executable re-exec'd as the walker subprocess.
	// Defaults to os.Args[0] if empty (the tests run the test binary itself
	// as the walker, via a TestMain that checks WalkerEnv).
	WalkerPath string
}

func (o Options) withDefaults() Options {
	if o.HeapSource == nil {
		o.HeapSource = heapsource.Conservative{}
	}
	if o.Mallocator == nil {
		o.Mallocator = guard.NoopMallocator{}
	}
	if o.ContentLength <= 0 {
		o.ContentLength = model.DefaultLeakContentLength
	}
	if o.ContinuationTimeout <= 0 {
		o.ContinuationTimeout = 100 * time.Second
	}
	if o.WalkerPath == "" {
		o.WalkerPath = os.Args[0]
	}
	return o
}

// collectionResult is everything P1 (the collection thread) hands back to
// P2 (the resumed caller) once it has snapshotted the process and released
// the caller's own thread.
type collectionResult struct {
	job WalkerJob
	err error
}

// Run executes the full P0-P5 protocol described in spec.md §4.F and
// returns the assembled scan result.
func Run(ctx context.Context, opt Options) (model.UnreachableMemoryInfo, error) {
	opt = opt.withDefaults()

	// the target allocator's quiesce/resume hook is best-effort: a target
	// whose allocator can't be paused (or can't be resumed) must not gate
	// the arena-backed mark phase that follows, which never touches the
	// target's malloc state. A failure here is swallowed, not returned.
	g, _ := guard.Acquire(opt.Mallocator)
	guardReleased := false
	releaseGuard := func() {
		if guardReleased || g == nil {
			return
		}
		guardReleased = true
		_ = g.Release()
	}
	defer releaseGuard()

	sem := guard.NewContinuationSemaphore()
	resultCh := make(chan collectionResult, 1)
	callerTID := unix.Gettid()

	go runCollectionThread(opt, callerTID, sem, resultCh)

	// P0/P2: the caller blocks here until P1 step 5 posts the semaphore,
	// at which point the caller's own thread has already been released by
	// the collection thread (P1 step 4) -- it simply hasn't been
	// scheduled yet. The semaphore wait is the caller's only synchronization
	// point with that fact.
	if err := sem.Wait(ctx, opt.ContinuationTimeout); err != nil {
		return model.UnreachableMemoryInfo{}, err
	}

	releaseGuard()

	// P4/P2 continued: wait for the collection thread's job. It completes
	// the maps snapshot and thread-info read before posting the semaphore
	// and sends the assembled job just after, so the caller waits on its
	// result here rather than racing the subprocess launch against it.
	coll := <-resultCh
	if coll.err != nil {
		return model.UnreachableMemoryInfo{}, coll.err
	}

	return runWalkerSubprocess(ctx, opt, coll.job)
}

// runCollectionThread implements P1: it must run on a dedicated, locked OS
// thread because Linux ptrace ties a tracee to the specific thread that
// attached to it.
func runCollectionThread(opt Options, callerTID int, sem *guard.ContinuationSemaphore, resultCh chan<- collectionResult) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tc := opt.CaptureFactory(opt.PID, callerTID)
	defer tc.Close()

	if err := tc.CaptureThreads(); err != nil {
		sem.Post()
		resultCh <- collectionResult{err: fmt.Errorf("orchestrate: capture threads: %w", err)}
		return
	}

	threads, err := tc.CapturedThreadInfo()
	if err != nil {
		_ = tc.ReleaseAll()
		sem.Post()
		resultCh <- collectionResult{err: fmt.Errorf("orchestrate: read captured thread info: %w", err)}
		return
	}

	mappings, err := classify.ParseMapsFile(opt.PID)
	if err != nil {
		_ = tc.ReleaseAll()
		sem.Post()
		resultCh <- collectionResult{err: fmt.Errorf("orchestrate: parse maps: %w", err)}
		return
	}
	cls := classify.Classify(mappings, nil)

	var heapRanges []model.Range
	for _, m := range cls.Heap {
		ranges, err := opt.HeapSource.Allocations(m)
		if err != nil {
			_ = tc.ReleaseAll()
			sem.Post()
			resultCh <- collectionResult{err: fmt.Errorf("orchestrate: enumerate heap allocations: %w", err)}
			return
		}
		heapRanges = append(heapRanges, ranges...)
	}

	windows, remoteRoots := buildRoots(cls, threads)
	registerData := make([][]byte, len(windows))
	for i, w := range windows {
		registerData[i] = w.Data
	}

	// P1.4: release the caller's own thread while this thread still holds
	// the malloc guard (P2 drops it once released from the semaphore wait).
	_ = tc.ReleaseThread(callerTID)

	// P1.5: post the continuation semaphore.
	sem.Post()

	job := WalkerJob{
		TargetPID:     opt.PID,
		RegisterData:  registerData,
		RemoteRoots:   remoteRoots,
		HeapRanges:    heapRanges,
		ContentLength: opt.ContentLength,
	}
	resultCh <- collectionResult{job: job}

	// P4: this thread's remaining job is done; tc.Close() (deferred)
	// releases every peer still frozen.
}

// runWalkerSubprocess implements P3/P5: it re-execs opt.WalkerPath with
// WalkerEnv set, hands it job over an inherited pipe, and reads the leak
// report back over a second inherited pipe.
func runWalkerSubprocess(ctx context.Context, opt Options, job WalkerJob) (model.UnreachableMemoryInfo, error) {
	jobR, jobW, err := os.Pipe()
	if err != nil {
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: create job pipe: %w", err)
	}

	leakR, leakW, err := os.Pipe()
	if err != nil {
		jobR.Close()
		jobW.Close()
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: create leak pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, opt.WalkerPath)
	cmd.Env = append(os.Environ(), WalkerEnv+"=1")
	cmd.ExtraFiles = []*os.File{jobR, leakW}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		jobR.Close()
		jobW.Close()
		leakR.Close()
		leakW.Close()
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: start walker subprocess: %w", err)
	}

	// the subprocess has its own dup of both ends; the parent's copies of
	// the child-only ends must close so EOF/closure is observed correctly.
	jobR.Close()
	leakW.Close()

	encoded, err := json.Marshal(job)
	if err != nil {
		jobW.Close()
		leakR.Close()
		_ = cmd.Wait()
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: encode walker job: %w", err)
	}
	if _, err := jobW.Write(encoded); err != nil {
		jobW.Close()
		leakR.Close()
		_ = cmd.Wait()
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: write walker job: %w", err)
	}
	jobW.Close()

	receiver := pipe.OpenReceiver(leakR)
	payload, recvErr := receiver.Receive()

	waitErr := cmd.Wait()

	if recvErr != nil {
		return model.UnreachableMemoryInfo{}, classifyWalkerFailure(waitErr, recvErr)
	}

	var info model.UnreachableMemoryInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return model.UnreachableMemoryInfo{}, fmt.Errorf("orchestrate: decode walker result: %w", err)
	}
	return info, nil
}
