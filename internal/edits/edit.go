// Package edits builds textual patches for structural changes requested by
// the diagram UI and applies them in batches.
//
// Builders never touch a document. They read it, locate an anchor and
// return an Edit, or false when a precondition is not met. The Stack
// applies queued edits last-offset-first and saves every touched document
// once.
package edits

import (
	"archsync/internal/document"
	"archsync/internal/textrange"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

type Kind int

const (
	Insert Kind = iota
	Delete
	Replace
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Edit is one patch against one document. Offset is the byte offset of the
// patch start in the document snapshot it was built from; it is only used
// to order the flush.
type Edit struct {
	Kind     Kind
	Document *document.Document
	TextEdit protocol.TextEdit
	Offset   int
}

func newInsert(doc *document.Document, at protocol.Position, text string) Edit {
	return Edit{
		Kind:     Insert,
		Document: doc,
		TextEdit: protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: text},
		Offset:   doc.OffsetAt(at),
	}
}

func newDelete(doc *document.Document, r protocol.Range) Edit {
	return Edit{
		Kind:     Delete,
		Document: doc,
		TextEdit: protocol.TextEdit{Range: r},
		Offset:   doc.OffsetAt(r.Start),
	}
}

func newReplace(doc *document.Document, r protocol.Range, text string) Edit {
	return Edit{
		Kind:     Replace,
		Document: doc,
		TextEdit: protocol.TextEdit{Range: r, NewText: text},
		Offset:   doc.OffsetAt(r.Start),
	}
}

// key identifies edits that would make the same change.
type key struct {
	uri     protocol.DocumentUri
	rng     protocol.Range
	newText string
}

func (e Edit) key() key {
	return key{uri: e.Document.URI, rng: e.TextEdit.Range, newText: e.TextEdit.NewText}
}

// Apply returns text with the edit applied. It is what the host does on
// flush and is used to preview a batch.
func (e Edit) Apply(text string) string {
	return textrange.Splice(text, e.TextEdit.Range, e.TextEdit.NewText)
}

// resolveAnchor resolves r against doc and checks that both endpoints
// refer to existing lines.
func resolveAnchor(doc *document.Document, r textrange.SimpleRange) (protocol.Range, bool) {
	resolved := textrange.Resolve(doc.Text, r)
	lines := protocol.UInteger(doc.LineCount())
	if resolved.Start.Line >= lines || resolved.End.Line >= lines {
		return protocol.Range{}, false
	}
	return resolved, true
}
