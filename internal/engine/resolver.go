package engine

import (
	"strings"

	"github.com/floegence/docplanner/internal/plan"
)

// Resolution is the outcome of substituting evidence into a step input.
type Resolution struct {
	Text       string
	Unresolved []string
}

// UnresolvedMarker is what a missing reference is replaced with.
func UnresolvedMarker(id string) string {
	return "[unresolved " + id + "]"
}

// Resolve replaces every evidence id in raw with its value from evidence.
// Ids absent from evidence become UnresolvedMarker(id) and are reported once each,
// in order of first appearance. Resolve is pure.
func Resolve(raw string, evidence map[string]string) Resolution {
	refs := plan.FindReferences(raw)
	if len(refs) == 0 {
		return Resolution{Text: raw}
	}
	var b strings.Builder
	var unresolved []string
	seen := map[string]struct{}{}
	last := 0
	for _, ref := range refs {
		b.WriteString(raw[last:ref.Start])
		if v, ok := evidence[ref.ID]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(UnresolvedMarker(ref.ID))
			if _, dup := seen[ref.ID]; !dup {
				seen[ref.ID] = struct{}{}
				unresolved = append(unresolved, ref.ID)
			}
		}
		last = ref.End
	}
	b.WriteString(raw[last:])
	return Resolution{Text: b.String(), Unresolved: unresolved}
}
