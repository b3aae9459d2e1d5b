// Package rename provides the rename providers the edit builders delegate
// identifier renames to.
package rename

import (
	"context"
	"fmt"
	"strings"

	"archsync/internal/document"
	"archsync/internal/textrange"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("archsync.rename")

// TextRenamer renames whole-word occurrences of an identifier across every
// project source file. It has no notion of scoping, so two unrelated
// symbols sharing a name are renamed together.
type TextRenamer struct {
	host    document.Host
	project document.Project
}

var _ document.Renamer = (*TextRenamer)(nil)

func NewTextRenamer(host document.Host, project document.Project) *TextRenamer {
	return &TextRenamer{host: host, project: project}
}

func (r *TextRenamer) Rename(ctx context.Context, doc *document.Document, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	if !isIdentifier(newName) {
		return nil, fmt.Errorf("invalid identifier %q", newName)
	}
	oldName := identifierAt(doc.Text, doc.OffsetAt(pos))
	if oldName == "" {
		return nil, nil
	}

	files, err := r.project.SourceFiles(ctx)
	if err != nil {
		return nil, err
	}

	changes := map[protocol.DocumentUri][]protocol.TextEdit{}
	if edits := wordEdits(doc.Text, oldName, newName); len(edits) > 0 {
		changes[doc.URI] = edits
	}
	for _, f := range files {
		other, err := r.host.Open(ctx, f)
		if err != nil {
			log.Warning("skipping file during rename", "file", f, "error", err)
			continue
		}
		if other.URI == doc.URI {
			continue
		}
		if edits := wordEdits(other.Text, oldName, newName); len(edits) > 0 {
			changes[other.URI] = edits
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return &protocol.WorkspaceEdit{Changes: changes}, nil
}

func identifierAt(text string, offset int) string {
	start, end := offset, offset
	for start > 0 && isIdentByte(text[start-1]) {
		start--
	}
	for end < len(text) && isIdentByte(text[end]) {
		end++
	}
	return text[start:end]
}

func wordEdits(text, oldName, newName string) []protocol.TextEdit {
	var edits []protocol.TextEdit
	for i := 0; ; {
		idx := strings.Index(text[i:], oldName)
		if idx < 0 {
			return edits
		}
		start := i + idx
		end := start + len(oldName)
		i = end
		if start > 0 && isIdentByte(text[start-1]) || end < len(text) && isIdentByte(text[end]) {
			continue
		}
		edits = append(edits, protocol.TextEdit{
			Range: protocol.Range{
				Start: textrange.PositionAt(text, start),
				End:   textrange.PositionAt(text, end),
			},
			NewText: newName,
		})
	}
}

func isIdentifier(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
