package engine

import (
	"reflect"
	"testing"
)

func TestResolve_SubstitutesKnownEvidence(t *testing.T) {
	t.Parallel()

	ev := map[string]string{"#E1": "RAW TEXT", "#E12": "twelve"}
	got := Resolve("Summarize #E1 and #E12, then #E1 again", ev)
	if got.Text != "Summarize RAW TEXT and twelve, then RAW TEXT again" {
		t.Fatalf("Text=%q", got.Text)
	}
	if len(got.Unresolved) != 0 {
		t.Fatalf("Unresolved=%v, want none", got.Unresolved)
	}
}

func TestResolve_UnresolvedMarkerAndReport(t *testing.T) {
	t.Parallel()

	got := Resolve("compare #E9 with #E1 and #E9", map[string]string{"#E1": "one"})
	want := "compare [unresolved #E9] with one and [unresolved #E9]"
	if got.Text != want {
		t.Fatalf("Text=%q, want %q", got.Text, want)
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"#E9"}) {
		t.Fatalf("Unresolved=%v, want [#E9]", got.Unresolved)
	}
}

func TestResolve_Pure(t *testing.T) {
	t.Parallel()

	ev := map[string]string{"#E2": "two"}
	a := Resolve("#E1 #E2 #E3", ev)
	b := Resolve("#E1 #E2 #E3", ev)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Resolve not deterministic: %#v vs %#v", a, b)
	}
	if len(ev) != 1 || ev["#E2"] != "two" {
		t.Fatalf("evidence mutated: %v", ev)
	}
}

func TestResolve_NoReferences(t *testing.T) {
	t.Parallel()

	got := Resolve("plain # text with #E and #e1", nil)
	if got.Text != "plain # text with #E and #e1" || got.Unresolved != nil {
		t.Fatalf("got=%#v", got)
	}
}
