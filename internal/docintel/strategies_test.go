package docintel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultStrategies(t *testing.T) {
	t.Parallel()

	s := DefaultStrategies()
	if s.Default != "general" {
		t.Fatalf("Default=%q", s.Default)
	}
	if got := s.Lookup(" Invoice ").Type; got != "invoice" {
		t.Fatalf("Lookup(Invoice)=%q", got)
	}
	if got := s.Lookup("recipe").Type; got != "general" {
		t.Fatalf("unknown type should fall back to general, got %q", got)
	}
}

func TestLoadStrategies_FromFile(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "strategies.yaml")
	body := `default: memo
types:
  - type: memo
    description: Internal memos.
    instructions: Capture the decision.
    fields: [decision, owner]
`
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := LoadStrategies(p)
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	st := s.Lookup("anything")
	if st.Type != "memo" || strings.Join(st.Fields, ",") != "decision,owner" {
		t.Fatalf("strategy=%+v", st)
	}
}

func TestParseStrategies_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":        `types: []`,
		"bad default":  "default: nope\ntypes:\n  - type: a\n    instructions: x\n",
		"duplicate":    "types:\n  - type: a\n    instructions: x\n  - type: A\n    instructions: y\n",
		"no instruct":  "types:\n  - type: a\n",
		"invalid yaml": "types: [",
	}
	for name, body := range cases {
		if _, err := ParseStrategies([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
