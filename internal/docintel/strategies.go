package docintel

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var defaultStrategiesYAML []byte

// Strategy describes how to extract one document type.
type Strategy struct {
	Type         string   `yaml:"type" json:"type"`
	Description  string   `yaml:"description" json:"description"`
	Instructions string   `yaml:"instructions" json:"instructions"`
	Fields       []string `yaml:"fields" json:"fields"`
}

type Strategies struct {
	Default string     `yaml:"default"`
	Types   []Strategy `yaml:"types"`

	byType map[string]Strategy
}

// DefaultStrategies returns the built-in strategy set.
func DefaultStrategies() *Strategies {
	s, err := ParseStrategies(defaultStrategiesYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in strategies: %v", err))
	}
	return s
}

// LoadStrategies reads a YAML strategy file. An empty path returns the
// built-in set.
func LoadStrategies(path string) (*Strategies, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultStrategies(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseStrategies(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseStrategies(b []byte) (*Strategies, error) {
	var s Strategies
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	if len(s.Types) == 0 {
		return nil, errors.New("no strategy types")
	}
	s.byType = make(map[string]Strategy, len(s.Types))
	for i := range s.Types {
		st := &s.Types[i]
		st.Type = normalizeType(st.Type)
		st.Description = strings.TrimSpace(st.Description)
		st.Instructions = strings.TrimSpace(st.Instructions)
		if st.Type == "" {
			return nil, fmt.Errorf("types[%d]: missing type", i)
		}
		if _, ok := s.byType[st.Type]; ok {
			return nil, fmt.Errorf("types[%d]: duplicate type %q", i, st.Type)
		}
		if st.Instructions == "" {
			return nil, fmt.Errorf("types[%d]: missing instructions", i)
		}
		s.byType[st.Type] = *st
	}
	s.Default = normalizeType(s.Default)
	if s.Default == "" {
		s.Default = s.Types[len(s.Types)-1].Type
	}
	if _, ok := s.byType[s.Default]; !ok {
		return nil, fmt.Errorf("default type %q is not defined", s.Default)
	}
	return &s, nil
}

// Digest identifies the strategy set by content. Reordering, renaming or
// rewording any strategy changes it.
func (s *Strategies) Digest() string {
	b, err := json.Marshal(struct {
		Default string     `json:"default"`
		Types   []Strategy `json:"types"`
	}{s.Default, s.Types})
	if err != nil {
		panic(fmt.Sprintf("marshal strategies: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CacheVersion is the tag pipeline entries are stored under: the configured
// cache version plus a short digest of the strategy set, so editing the
// strategies invalidates earlier classifications and extractions.
func CacheVersion(base string, s *Strategies) string {
	if s == nil {
		s = DefaultStrategies()
	}
	return strings.TrimSpace(base) + "+strategies." + s.Digest()[:12]
}

// Lookup returns the strategy for typ, falling back to the default type.
func (s *Strategies) Lookup(typ string) Strategy {
	if st, ok := s.byType[normalizeType(typ)]; ok {
		return st
	}
	return s.byType[s.Default]
}

func (s *Strategies) Has(typ string) bool {
	_, ok := s.byType[normalizeType(typ)]
	return ok
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
