package textrange_test

import (
	"strings"
	"testing"

	"archsync/internal/textrange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const sample = "service Foo {\n\tinputPort IP {\n\t\tLocation: \"local\"\n\t}\n}\n"

func TestResolveNegativeMatchesPositive(t *testing.T) {
	lines := strings.Split(sample, "\n")
	for line := 0; line < len(lines)-1; line++ {
		length := len(lines[line])
		for char := 0; char <= length; char++ {
			positive := textrange.SimpleRange{
				Start: textrange.Point{Line: line, Char: char},
				End:   textrange.Point{Line: line, Char: char},
			}
			negative := textrange.SimpleRange{
				Start: textrange.Point{Line: line + 1, Char: char - length - 1},
				End:   textrange.Point{Line: line + 1, Char: char - length - 1},
			}
			p := textrange.Resolve(sample, positive)
			n := textrange.Resolve(sample, negative)
			assert.Equal(t, p, n, "line %d char %d", line, char)
			assert.Equal(t,
				textrange.OffsetAt(sample, p.Start),
				textrange.OffsetAt(sample, n.Start))
		}
	}
}

func TestResolveMinusOneIsEndOfLine(t *testing.T) {
	r := textrange.Resolve(sample, textrange.SimpleRange{
		Start: textrange.Point{Line: 1, Char: -1},
		End:   textrange.Point{Line: 1, Char: -1},
	})
	assert.Equal(t, protocol.Position{Line: 0, Character: 13}, r.Start)
}

func TestOffsetRoundTrip(t *testing.T) {
	text := "a😀b\nxyz\n"
	pos := textrange.PositionAt(text, strings.Index(text, "b"))
	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, pos)
	assert.Equal(t, strings.Index(text, "b"), textrange.OffsetAt(text, pos))

	pos = textrange.PositionAt(text, strings.Index(text, "z"))
	assert.Equal(t, protocol.Position{Line: 1, Character: 2}, pos)
}

func TestOffsetAtClampsPastEnd(t *testing.T) {
	assert.Equal(t, len(sample), textrange.OffsetAt(sample, protocol.Position{Line: 99, Character: 0}))
	assert.Equal(t, 13, textrange.OffsetAt(sample, protocol.Position{Line: 0, Character: 99}))
}

func TestExtendWithSuffixToken(t *testing.T) {
	r, ok := textrange.ExtendWithSuffixToken(sample, textrange.SimpleRange{
		Start: textrange.Point{Line: 0, Char: 0},
		End:   textrange.Point{Line: 0, Char: 3},
	}, "{")
	require.True(t, ok)
	assert.Equal(t, "service Foo {", textrange.Slice(sample, r))

	_, ok = textrange.ExtendWithSuffixToken(sample, textrange.SimpleRange{
		Start: textrange.Point{Line: 0, Char: 0},
	}, "#")
	assert.False(t, ok)
}

func TestExtendWithPrefixToken(t *testing.T) {
	r, ok := textrange.ExtendWithPrefixToken(sample, textrange.SimpleRange{
		Start: textrange.Point{Line: 1, Char: 11},
		End:   textrange.Point{Line: 1, Char: 13},
	}, "inputPort")
	require.True(t, ok)
	assert.Equal(t, "inputPort IP", textrange.Slice(sample, r))

	_, ok = textrange.ExtendWithPrefixToken(sample, textrange.SimpleRange{
		Start: textrange.Point{Line: 0, Char: 4},
	}, "inputPort")
	assert.False(t, ok)
}

func TestSplice(t *testing.T) {
	got := textrange.Splice("hello world", protocol.Range{
		Start: protocol.Position{Line: 0, Character: 6},
		End:   protocol.Position{Line: 0, Character: 11},
	}, "there")
	assert.Equal(t, "hello there", got)
}

func TestApplyChangeWithoutRange(t *testing.T) {
	got := textrange.ApplyChange("old", protocol.TextDocumentContentChangeEvent{Text: "new"})
	assert.Equal(t, "new", got)
}
