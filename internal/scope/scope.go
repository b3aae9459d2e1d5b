// Package scope locates service bodies, port blocks and embed statements
// in source text without parsing it.
package scope

import (
	"strings"

	"archsync/internal/textrange"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Locator finds syntactic regions of a source file. BraceLocator is the
// lexical implementation; a parser-backed one can replace it without
// touching callers.
type Locator interface {
	FindKeywordPosition(text, name, keywordPrefix string) (protocol.Position, bool)
	FindBraceScope(text string, start protocol.Position) (protocol.Position, bool)
	ServiceBody(text, service string) (Body, bool)
	ScopeInService(text, service, header string) (protocol.Range, bool)
	TokenInService(text, service, token, prefix string) (protocol.Position, bool)
	ServiceNames(text string) []string
	Declares(text, keyword, name string) bool
	IsImported(text, modulePath, name string) bool
}

// Body is the text of a service from just after its name through the
// matching closing brace.
type Body struct {
	Start protocol.Position
	Text  string
}

// BraceLocator counts braces. It does not know about string literals or
// comments, so a brace inside either corrupts the scan.
type BraceLocator struct{}

var _ Locator = BraceLocator{}

// FindKeywordPosition searches for "<keywordPrefix> <name>" and returns the
// position just after the match. Callers pass a truncated keyword such as
// "ervice" so that a leading annotation comment does not hide the match.
func (BraceLocator) FindKeywordPosition(text, name, keywordPrefix string) (protocol.Position, bool) {
	needle := name
	if keywordPrefix != "" {
		needle = keywordPrefix + " " + name
	}
	idx := strings.Index(text, needle)
	if idx < 0 {
		return protocol.Position{}, false
	}
	return textrange.PositionAt(text, idx+len(needle)), true
}

// FindBraceScope returns the position just past the brace that closes the
// first brace opened at or after start.
func (BraceLocator) FindBraceScope(text string, start protocol.Position) (protocol.Position, bool) {
	end, ok := braceScopeEnd(text, textrange.OffsetAt(text, start))
	if !ok {
		return protocol.Position{}, false
	}
	return textrange.PositionAt(text, end), true
}

func braceScopeEnd(text string, from int) (int, bool) {
	depth := 0
	opened := false
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
			opened = true
		case '}':
			depth--
			if depth < 0 {
				return 0, false
			}
			if depth == 0 && opened {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func (l BraceLocator) ServiceBody(text, service string) (Body, bool) {
	start, ok := l.FindKeywordPosition(text, service, "ervice")
	if !ok {
		return Body{}, false
	}
	from := textrange.OffsetAt(text, start)
	end, ok := braceScopeEnd(text, from)
	if !ok {
		return Body{}, false
	}
	return Body{Start: start, Text: text[from:end]}, true
}

// ScopeInService finds header (e.g. "inputPort IP1") inside a service body
// and returns the range from the header through its closing brace.
func (l BraceLocator) ScopeInService(text, service, header string) (protocol.Range, bool) {
	body, ok := l.ServiceBody(text, service)
	if !ok {
		return protocol.Range{}, false
	}
	idx := indexWord(body.Text, header)
	if idx < 0 {
		return protocol.Range{}, false
	}
	start := textrange.OffsetAt(text, body.Start) + idx
	end, ok := braceScopeEnd(text, start)
	if !ok {
		return protocol.Range{}, false
	}
	return protocol.Range{
		Start: textrange.PositionAt(text, start),
		End:   textrange.PositionAt(text, end),
	}, true
}

// TokenInService returns the position of token where it follows prefix
// inside the named service.
func (l BraceLocator) TokenInService(text, service, token, prefix string) (protocol.Position, bool) {
	body, ok := l.ServiceBody(text, service)
	if !ok {
		return protocol.Position{}, false
	}
	idx := indexWord(body.Text, prefix+" "+token)
	if idx < 0 {
		return protocol.Position{}, false
	}
	offset := textrange.OffsetAt(text, body.Start) + idx + len(prefix) + 1
	return textrange.PositionAt(text, offset), true
}

// ServiceNames lists declared service names in order of appearance.
func (BraceLocator) ServiceNames(text string) []string {
	return declaredNames(text, "service")
}

// Declared lists the names declared with keyword, in order of appearance.
func (BraceLocator) Declared(text, keyword string) []string {
	return declaredNames(text, keyword)
}

// Declares reports whether text declares name with keyword, for example
// "interface Logger".
func (BraceLocator) Declares(text, keyword, name string) bool {
	for _, n := range declaredNames(text, keyword) {
		if n == name {
			return true
		}
	}
	return false
}

func declaredNames(text, keyword string) []string {
	var names []string
	for i := 0; ; {
		idx := strings.Index(text[i:], keyword)
		if idx < 0 {
			return names
		}
		at := i + idx
		i = at + len(keyword)
		if at > 0 && isIdent(text[at-1]) || inComment(text, at) {
			continue
		}
		j := i
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j == i {
			continue
		}
		k := j
		for k < len(text) && isIdent(text[k]) {
			k++
		}
		if k > j {
			names = append(names, text[j:k])
		}
	}
}

// Keywords that end the reach of an import statement.
var importBoundaries = []string{"from", "interface", "service", "type"}

// IsImported reports whether name is already imported from modulePath. It
// looks for the name or a "*" after "from <modulePath>" and before the next
// boundary keyword. This is substring matching: a name that also occurs
// inside a longer identifier before the boundary gives a false positive,
// and a boundary keyword embedded in an imported name (e.g. "Prototype")
// can cut the reach short and give a false negative.
func (BraceLocator) IsImported(text, modulePath, name string) bool {
	stmt := strings.Index(text, "from "+modulePath)
	if stmt < 0 {
		return false
	}
	rest := text[stmt+len("from "+modulePath):]

	first := -1
	for _, tok := range []string{"*", name} {
		if idx := strings.Index(rest, tok); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	if first < 0 {
		return false
	}

	boundary := len(rest)
	for _, kw := range importBoundaries {
		if idx := strings.Index(rest, kw); idx >= 0 && idx < boundary {
			boundary = idx
		}
	}
	return first < boundary
}

// indexWord is strings.Index restricted to matches that neither start nor
// end inside a longer identifier.
func indexWord(s, word string) int {
	for i := 0; i <= len(s)-len(word); {
		idx := strings.Index(s[i:], word)
		if idx < 0 {
			return -1
		}
		at := i + idx
		end := at + len(word)
		if (at == 0 || !isIdent(s[at-1])) && (end == len(s) || !isIdent(s[end])) {
			return at
		}
		i = at + 1
	}
	return -1
}

// inComment reports whether offset at lies in a line or block comment.
// String literals are not tracked.
func inComment(text string, at int) bool {
	lineStart := strings.LastIndexByte(text[:at], '\n') + 1
	if strings.Contains(text[lineStart:at], "//") {
		return true
	}
	return strings.LastIndex(text[:at], "/*") > strings.LastIndex(text[:at], "*/")
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
