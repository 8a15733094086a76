//go:build linux && amd64

package capture

import "golang.org/x/sys/unix"

func regsStackPointer(regs *unix.PtraceRegs) uint64 {
	return regs.Rsp
}
