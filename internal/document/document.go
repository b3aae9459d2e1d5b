// Package document defines the text-document model the synchronization core
// works against and the host capabilities it consumes.
package document

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"archsync/internal/textrange"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var (
	ErrNotOpen     = errors.New("document not open")
	ErrApplyFailed = errors.New("failed to apply edits")
	ErrSaveFailed  = errors.New("failed to save document")
)

// Document is an immutable snapshot of a text document.
type Document struct {
	URI     protocol.DocumentUri
	Path    string
	Text    string
	Version int32
}

func (d *Document) LineCount() int {
	return strings.Count(d.Text, "\n") + 1
}

// LineLength returns the length of line in UTF-16 code units, or -1 if the
// line does not exist.
func (d *Document) LineLength(line int) int {
	lines := strings.Split(d.Text, "\n")
	if line < 0 || line >= len(lines) {
		return -1
	}
	return textrange.UTF16Len(lines[line])
}

func (d *Document) OffsetAt(pos protocol.Position) int {
	return textrange.OffsetAt(d.Text, pos)
}

func (d *Document) PositionAt(offset int) protocol.Position {
	return textrange.PositionAt(d.Text, offset)
}

func (d *Document) Slice(r protocol.Range) string {
	return textrange.Slice(d.Text, r)
}

// End is the position after the last character.
func (d *Document) End() protocol.Position {
	return textrange.End(d.Text)
}

// Host opens, edits and saves documents. Relative paths are resolved
// against the directory holding the architecture file.
type Host interface {
	Open(ctx context.Context, path string) (*Document, error)
	Apply(ctx context.Context, uri protocol.DocumentUri, edits []protocol.TextEdit) error
	Save(ctx context.Context, uri protocol.DocumentUri) error
}

// Project lists the source files of the workspace, relative to the same
// base a Host resolves against.
type Project interface {
	SourceFiles(ctx context.Context) ([]string, error)
}

// Renamer renames the identifier at pos everywhere it is referenced. A nil
// edit with a nil error means there was nothing to rename.
type Renamer interface {
	Rename(ctx context.Context, doc *Document, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error)
}

// SaveState is whatever a BeforeSave hook wants handed back to its
// AfterSave counterpart for the same save.
type SaveState any

// SaveHooks run around every save a Host performs, in registration order.
type SaveHooks interface {
	BeforeSave(ctx context.Context, doc *Document) SaveState
	AfterSave(ctx context.Context, doc *Document, state SaveState)
}

// PathToURI builds a file:// URI.
func PathToURI(path string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath extracts the filesystem path of a file:// URI.
func URIToPath(uri protocol.DocumentUri) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("failed to parse uri: %w", err)
	}
	if u.Scheme != "" && u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}
