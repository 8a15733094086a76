//go:build linux

package orchestrate

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-unreachable/internal/mark"
)

// remoteReader reads single words out of a live, frozen target process via
// process_vm_readv(2) -- the alternative spec.md names explicitly for
// systems where the walker cannot share the target's address space via
// COW-fork (see the package doc in walker.go for why that applies to Go).
type remoteReader struct {
	pid int
}

// ReadWord implements mark.ReadWord against the target's real address
// space. One syscall per word: simple and correct, at the cost of a
// pointer-chasing walk doing one process_vm_readv per candidate word
// rather than batching a whole range in one call.
func (r remoteReader) ReadWord(addr uintptr) (uintptr, bool) {
	var buf [unsafe.Sizeof(uintptr(0))]byte
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(r.pid, local, remote, 0)
	if err != nil || n != len(buf) {
		return 0, false
	}
	return *(*uintptr)(unsafe.Pointer(&buf[0])), true
}

// composedReader dispatches a read to whichever synthetic register window
// contains addr, falling back to a live process_vm_readv against the
// target for every other address (stacks, globals, anon mappings, and heap
// allocation contents -- all real target addresses).
func composedReader(windows []registerWindow, remote remoteReader) mark.ReadWord {
	return func(addr uintptr) (uintptr, bool) {
		const wordSize = uintptr(unsafe.Sizeof(uintptr(0)))
		for _, w := range windows {
			if len(w.Data) == 0 {
				continue
			}
			end := w.Base + uintptr(len(w.Data))
			if addr >= w.Base && addr+wordSize <= end {
				off := addr - w.Base
				return *(*uintptr)(unsafe.Pointer(&w.Data[off])), true
			}
		}
		return remote.ReadWord(addr)
	}
}

// readRemoteBytes copies n bytes starting at addr out of the target
// process, best-effort: a failed process_vm_readv yields as many leading
// bytes as were successfully read (possibly zero), never an error, since
// Leak.Contents is a best-effort diagnostic snapshot, not load-bearing
// data.
func readRemoteBytes(pid int, addr uintptr, n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(n)}}
	remote := []unix.RemoteIovec{{Base: addr, Len: n}}
	got, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil || got < 0 {
		return nil
	}
	if got > n {
		got = n
	}
	return buf[:got]
}
