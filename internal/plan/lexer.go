package plan

import "strings"

// TokenKind classifies one lexed fragment of plan text.
type TokenKind int

const (
	TokenDescription TokenKind = iota + 1
	TokenBinding
	TokenText
	TokenInvalid
)

func (k TokenKind) String() string {
	switch k {
	case TokenDescription:
		return "description"
	case TokenBinding:
		return "binding"
	case TokenText:
		return "text"
	case TokenInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Token is a single lexed fragment. Bindings carry their three parts; invalid
// tokens carry the reason in Detail.
type Token struct {
	Kind TokenKind
	Line int
	Text string

	EvidenceID string
	ToolName   string
	Argument   string

	Detail string
}

const descriptionMarker = "Plan:"

// Lex splits plan text into tokens. A "Plan:" line yields a description token,
// followed by a binding token when the binding shares the line.
func Lex(text string) []Token {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]Token, 0, len(lines))
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, descriptionMarker); ok {
			desc, tail := rest, ""
			if at := indexBindingStart(rest); at >= 0 {
				desc, tail = rest[:at], rest[at:]
			}
			out = append(out, Token{Kind: TokenDescription, Line: lineNo, Text: strings.TrimSpace(desc)})
			if tail != "" {
				out = append(out, lexBinding(tail, lineNo))
			}
			continue
		}
		if isBindingStart(line) {
			out = append(out, lexBinding(line, lineNo))
			continue
		}
		out = append(out, Token{Kind: TokenText, Line: lineNo, Text: line})
	}
	return out
}

func lexBinding(s string, line int) Token {
	invalid := func(detail string) Token {
		return Token{Kind: TokenInvalid, Line: line, Text: s, Detail: detail}
	}

	end, ok := scanEvidenceID(s, 0)
	if !ok {
		return invalid("missing evidence id")
	}
	id := s[:end]
	j := skipSpaces(s, end)
	if j >= len(s) || s[j] != '=' {
		return invalid("expected '=' after " + id)
	}
	j = skipSpaces(s, j+1)
	k := j
	for k < len(s) && isIdentByte(s[k]) {
		k++
	}
	name := s[j:k]
	if name == "" {
		return invalid("missing tool name")
	}
	k = skipSpaces(s, k)
	if k >= len(s) || s[k] != '[' {
		return invalid("expected '[' after tool name " + name)
	}
	closeAt := strings.LastIndexByte(s, ']')
	if closeAt <= k {
		return invalid("missing closing ']'")
	}
	arg := strings.TrimSpace(s[k+1 : closeAt])
	if arg == "" {
		return invalid("empty tool argument")
	}
	return Token{
		Kind:       TokenBinding,
		Line:       line,
		Text:       s,
		EvidenceID: id,
		ToolName:   name,
		Argument:   arg,
	}
}

// isBindingStart reports whether s begins with "#E<digits>" followed by '='.
func isBindingStart(s string) bool {
	end, ok := scanEvidenceID(s, 0)
	if !ok {
		return false
	}
	j := skipSpaces(s, end)
	return j < len(s) && s[j] == '='
}

// indexBindingStart finds an inline binding inside a description. Only a
// complete "#E<n> = Tool[arg]" counts; "#E1 = the baseline" stays prose.
func indexBindingStart(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && isBindingStart(s[i:]) && lexBinding(s[i:], 0).Kind == TokenBinding {
			return i
		}
	}
	return -1
}

// scanEvidenceID matches "#E" plus the longest run of ASCII digits at s[i:].
func scanEvidenceID(s string, i int) (int, bool) {
	if i+2 >= len(s) || s[i] != '#' || s[i+1] != 'E' {
		return 0, false
	}
	j := i + 2
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i+2 {
		return 0, false
	}
	return j, true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Reference is one "#E<n>" occurrence inside a text, as a byte range.
type Reference struct {
	ID    string
	Start int
	End   int
}

// FindReferences returns every evidence id occurrence in s, left to right.
func FindReferences(s string) []Reference {
	var out []Reference
	for i := 0; i < len(s); i++ {
		if s[i] != '#' {
			continue
		}
		end, ok := scanEvidenceID(s, i)
		if !ok {
			continue
		}
		out = append(out, Reference{ID: s[i:end], Start: i, End: end})
		i = end - 1
	}
	return out
}

// ReferencedIDs returns the distinct evidence ids in s in order of first appearance.
func ReferencedIDs(s string) []string {
	refs := FindReferences(s)
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r.ID)
	}
	return out
}

// IsEvidenceID reports whether id is exactly "#E<digits>".
func IsEvidenceID(id string) bool {
	end, ok := scanEvidenceID(id, 0)
	return ok && end == len(id)
}
