package orchestrate

import (
	"github.com/joeycumines/go-unreachable/internal/classify"
	"github.com/joeycumines/go-unreachable/internal/model"
)

// registerWindowBase assigns each captured thread's register buffer a
// synthetic, non-canonical address window so it can be scanned by the same
// word-aligned reader used for every other root, without it ever being
// confused for a real target address. On amd64 (and arm64) addresses with
// bit 63 set and bits 48-62 clear are non-canonical and always fault on
// real hardware, so they can never collide with a live user-space pointer
// captured from the target.
const registerWindowBase = uintptr(1) << 63

// registerWindow is one thread's register buffer, addressed at a synthetic
// base for uniform word-aligned scanning.
type registerWindow struct {
	Base uintptr
	Data []byte
}

// stackTop finds the end of the stack-class mapping containing sp, per
// spec.md's "stack top is the mapping-end of whichever stack-class mapping
// contains stack.first" rule.
func stackTop(stacks []model.Mapping, sp uintptr) (uintptr, bool) {
	for _, m := range stacks {
		if m.Contains(sp) {
			return m.End, true
		}
	}
	return 0, false
}

// buildRoots assembles the register windows (synthetic, locally scanned)
// and the remote root ranges (globals, anon, and per-thread stacks) from a
// mapping classification and a captured thread list.
func buildRoots(cls classify.Result, threads []model.ThreadInfo) (windows []registerWindow, remoteRoots []model.Range) {
	for _, m := range cls.Globals {
		remoteRoots = append(remoteRoots, m.Range)
	}
	for _, m := range cls.Anon {
		remoteRoots = append(remoteRoots, m.Range)
	}

	for i, t := range threads {
		base := registerWindowBase + uintptr(i)*0x10000
		windows = append(windows, registerWindow{Base: base, Data: t.Regs})

		if top, ok := stackTop(cls.Stack, t.SP); ok && top > t.SP {
			remoteRoots = append(remoteRoots, model.Range{Begin: t.SP, End: top})
		}
	}

	return windows, remoteRoots
}
