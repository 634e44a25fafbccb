package docintel

import (
	"encoding/json"
	"errors"
	"strings"
)

// Classification is the cached payload of the classification stage.
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Extraction is the cached payload of the extraction stage.
type Extraction struct {
	Type      string            `json:"type"`
	Fields    map[string]string `json:"fields"`
	Summary   string            `json:"summary"`
	KeyPoints []string          `json:"key_points"`
}

// Analysis is the cached payload of the cross-document pass.
type Analysis struct {
	Summary   string   `json:"summary"`
	Gaps      []string `json:"gaps"`
	Conflicts []string `json:"conflicts"`
}

// DocumentRecord is one input document after classification and extraction.
// The raw payloads are the exact bytes stored in (or read from) the cache.
type DocumentRecord struct {
	Name           string          `json:"name"`
	ContentHash    string          `json:"content_hash"`
	Classification Classification  `json:"classification"`
	Extraction     Extraction      `json:"extraction"`
	Cached         CacheHits       `json:"cached"`
	RawClass       json.RawMessage `json:"-"`
	RawExtract     json.RawMessage `json:"-"`
}

type CacheHits struct {
	Classification bool `json:"classification"`
	Extraction     bool `json:"extraction"`
}

var errNoJSONObject = errors.New("no JSON object in model output")

// decodeModelJSON decodes the outermost JSON object in model output, which
// may be wrapped in prose or a fenced code block.
func decodeModelJSON(raw string, v any) error {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return errNoJSONObject
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
