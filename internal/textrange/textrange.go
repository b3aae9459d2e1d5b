// Package textrange converts between the UI's line/char ranges, LSP positions
// and byte offsets, and stretches ranges up to adjacent tokens.
package textrange

import (
	"strings"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Point is a UI-supplied coordinate. Char may be negative, meaning
// "counted back from the end of the previous line".
type Point struct {
	Line int `json:"line"`
	Char int `json:"char"`
}

// SimpleRange is the range shape the UI sends.
type SimpleRange struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Resolve converts r into a concrete range against text. Negative chars are
// resolved against the line length at call time, so a range survives edits
// that changed earlier lines of the same document. A point referring to a
// line that does not exist is returned unresolved; callers validate.
func Resolve(text string, r SimpleRange) protocol.Range {
	lines := strings.Split(text, "\n")
	return protocol.Range{
		Start: resolvePoint(lines, r.Start),
		End:   resolvePoint(lines, r.End),
	}
}

func resolvePoint(lines []string, p Point) protocol.Position {
	line, char := p.Line, p.Char
	if char < 0 {
		line--
		if line >= 0 && line < len(lines) {
			char = UTF16Len(lines[line]) + char + 1
		}
	}
	return protocol.Position{Line: clamp(line), Character: clamp(char)}
}

func clamp(v int) protocol.UInteger {
	if v < 0 {
		return 0
	}
	return protocol.UInteger(v)
}

// ExtendWithSuffixToken stretches r from its resolved start up to and
// including the first character of the next occurrence of token.
func ExtendWithSuffixToken(text string, r SimpleRange, token string) (protocol.Range, bool) {
	resolved := Resolve(text, r)
	start := OffsetAt(text, resolved.Start)
	idx := strings.Index(text[start:], token)
	if idx < 0 {
		return protocol.Range{}, false
	}
	return protocol.Range{
		Start: resolved.Start,
		End:   PositionAt(text, start+idx+1),
	}, true
}

// ExtendWithPrefixToken stretches r backwards to the last occurrence of
// token before its resolved start. It reports false when there is none.
func ExtendWithPrefixToken(text string, r SimpleRange, token string) (protocol.Range, bool) {
	resolved := Resolve(text, r)
	start := OffsetAt(text, resolved.Start)
	idx := strings.LastIndex(text[:start], token)
	if idx < 0 {
		return protocol.Range{}, false
	}
	return protocol.Range{
		Start: PositionAt(text, idx),
		End:   resolved.End,
	}, true
}

// OffsetAt returns the byte offset of an LSP position. Lines past the end
// clamp to the last line, characters past the end of a line clamp to its end.
func OffsetAt(text string, pos protocol.Position) int {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		pos.Line = protocol.UInteger(len(lines) - 1)
		pos.Character = protocol.UInteger(UTF16Len(lines[pos.Line]))
	}
	offset := 0
	for i := protocol.UInteger(0); i < pos.Line; i++ {
		offset += len(lines[i]) + 1
	}
	// Traverse runes in target line to match UTF-16 character count
	var charCount, byteCount int
	for _, r := range lines[pos.Line] {
		unitCount := 1
		if r > 0xFFFF {
			unitCount = 2
		}
		if protocol.UInteger(charCount+unitCount) > pos.Character {
			break
		}
		charCount += unitCount
		byteCount += utf8.RuneLen(r)
	}
	return offset + byteCount
}

// PositionAt is the inverse of OffsetAt.
func PositionAt(text string, offset int) protocol.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	prefix := text[:offset]
	line := strings.Count(prefix, "\n")
	lineStart := strings.LastIndex(prefix, "\n") + 1
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(UTF16Len(prefix[lineStart:])),
	}
}

// End returns the position just past the last character of text.
func End(text string) protocol.Position {
	return PositionAt(text, len(text))
}

// UTF16Len counts the UTF-16 code units of s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Slice returns the text covered by r.
func Slice(text string, r protocol.Range) string {
	start, end := OffsetAt(text, r.Start), OffsetAt(text, r.End)
	if end < start {
		return ""
	}
	return text[start:end]
}

// Splice replaces the text covered by r with newText.
func Splice(text string, r protocol.Range, newText string) string {
	start, end := OffsetAt(text, r.Start), OffsetAt(text, r.End)
	if end < start {
		end = start
	}
	return text[:start] + newText + text[end:]
}

// ApplyChange applies an incremental LSP content change. A change without
// a range replaces the whole document.
func ApplyChange(text string, change protocol.TextDocumentContentChangeEvent) string {
	if change.Range == nil {
		return change.Text
	}
	return Splice(text, *change.Range, change.Text)
}

// Less orders positions.
func Less(a, b protocol.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}
