// Package classify implements the mapping classifier: it partitions the
// ordered regions of /proc/<pid>/maps into heap, anon, globals, and stack
// buckets, following the nine-rule policy table.
package classify

import (
	"strings"

	"github.com/joeycumines/go-unreachable/internal/model"
)

// Rule is one row of the classification policy table. Rules are evaluated
// in order; the first matching rule wins, and a mapping matches at most
// one rule. A Rule that returns (class, true) claims the mapping; a Rule
// that returns (_, false) defers to the next rule.
type Rule func(m model.Mapping, currentLib string) (class model.MappingClass, matched bool)

// DefaultPolicy is the nine-rule table of spec.md's classifier, in order.
// Rule 1 (executable) and rule 2 (not readable) are handled directly by
// Classify, since they also drive the "current library" bookkeeping and
// the readable gate that every later rule assumes; they are listed here
// only for documentation purposes and are not present in this slice.
var DefaultPolicy = []Rule{
	ruleBSSOrCurrentLib,
	ruleLibcMalloc,
	ruleDalvikHeap,
	ruleStack,
	ruleEmptyName,
	ruleUnknownAnon,
}

func ruleBSSOrCurrentLib(m model.Mapping, currentLib string) (model.MappingClass, bool) {
	if m.Name == "[anon:.bss]" || (currentLib != "" && m.Name == currentLib) {
		return model.ClassGlobals, true
	}
	return 0, false
}

func ruleLibcMalloc(m model.Mapping, _ string) (model.MappingClass, bool) {
	if m.Name == "[anon:libc_malloc]" {
		return model.ClassHeap, true
	}
	return 0, false
}

func ruleDalvikHeap(m model.Mapping, _ string) (model.MappingClass, bool) {
	if strings.HasPrefix(m.Name, "/dev/ashmem/dalvik") {
		return model.ClassGlobals, true
	}
	return 0, false
}

func ruleStack(m model.Mapping, _ string) (model.MappingClass, bool) {
	if strings.HasPrefix(m.Name, "[stack") {
		return model.ClassStack, true
	}
	return 0, false
}

func ruleEmptyName(m model.Mapping, _ string) (model.MappingClass, bool) {
	if m.Name == "" {
		return model.ClassGlobals, true
	}
	return 0, false
}

// ruleUnknownAnon is the documented imprecision: any other "[anon:...]"
// mapping is conservatively treated as a root, to prefer false negatives
// (missed leaks) over false positives (reporting live memory as leaked).
// "[anon:leak_detector_malloc]" is excluded since it is this detector's own
// arena, never a candidate root or heap mapping.
func ruleUnknownAnon(m model.Mapping, _ string) (model.MappingClass, bool) {
	if strings.HasPrefix(m.Name, "[anon:") && m.Name != "[anon:leak_detector_malloc]" {
		return model.ClassGlobals, true
	}
	return 0, false
}

// Result is the classifier's output: the four disjoint mapping buckets.
type Result struct {
	Heap    []model.Mapping
	Anon    []model.Mapping
	Globals []model.Mapping
	Stack   []model.Mapping
}

// Classify partitions mappings into Result's buckets using policy (nil
// selects DefaultPolicy), applying rules 1 and 2 first (executable /
// not-readable), exactly as spec.md §4.D describes. The input order is
// preserved within each bucket; "current library" tracking walks mappings
// in the order given, so callers must pass mappings in /proc/<pid>/maps
// order (ascending address).
func Classify(mappings []model.Mapping, policy []Rule) Result {
	if policy == nil {
		policy = DefaultPolicy
	}

	var res Result
	var currentLib string

	for _, m := range mappings {
		if m.Execute {
			// Rule 1: record as the current library for rule 3, then skip.
			currentLib = m.Name
			continue
		}
		if !m.Read {
			// Rule 2: not readable, skip.
			continue
		}

		class, matched := model.ClassIgnored, false
		for _, rule := range policy {
			if class, matched = rule(m, currentLib); matched {
				break
			}
		}
		if !matched {
			// Rule 9: otherwise, skip.
			continue
		}

		m.Class = class
		switch class {
		case model.ClassHeap:
			res.Heap = append(res.Heap, m)
		case model.ClassAnon:
			res.Anon = append(res.Anon, m)
		case model.ClassGlobals:
			res.Globals = append(res.Globals, m)
		case model.ClassStack:
			res.Stack = append(res.Stack, m)
		}
	}

	return res
}
