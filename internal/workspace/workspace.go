// Package workspace is a disk-backed document host. It buffers documents
// that are being edited, saves them back to disk, and runs the registered
// save hooks around every save.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"archsync/internal/document"
	"archsync/internal/textrange"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("archsync.workspace")

type buffer struct {
	doc document.Document
	// editor buffers are owned by the LSP client and survive saves.
	editor bool
	// editorText is the text as the editor last reported it. Edits this
	// workspace applies run ahead of it until the editor echoes them.
	editorText string
}

// EditorSink receives the edits applied to editor-owned buffers so the
// editor can apply them too.
type EditorSink interface {
	ForwardEdits(ctx context.Context, uri protocol.DocumentUri, edits []protocol.TextEdit) error
}

// Options tune which files belong to the project.
type Options struct {
	Extension  string
	IgnoreDirs []string
}

// Workspace implements document.Host and document.Project.
type Workspace struct {
	root string
	base string
	opts Options

	mu       sync.Mutex
	buffers  map[protocol.DocumentUri]*buffer
	versions map[protocol.DocumentUri]int32
	written  map[string]string
	hooks    []document.SaveHooks
	sink     EditorSink
}

var (
	_ document.Host    = (*Workspace)(nil)
	_ document.Project = (*Workspace)(nil)
)

// New creates a workspace scanning root. Relative document paths resolve
// against base.
func New(root, base string, opts Options) *Workspace {
	if opts.Extension == "" {
		opts.Extension = ".ol"
	}
	return &Workspace{
		root:     filepath.Clean(root),
		base:     filepath.Clean(base),
		opts:     opts,
		buffers:  make(map[protocol.DocumentUri]*buffer),
		versions: make(map[protocol.DocumentUri]int32),
		written:  make(map[string]string),
	}
}

func (w *Workspace) Root() string { return w.root }
func (w *Workspace) Base() string { return w.base }

// AddHooks registers save hooks. They run in registration order.
func (w *Workspace) AddHooks(hooks ...document.SaveHooks) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, hooks...)
}

// SetEditor installs the sink for edits to editor-owned buffers.
func (w *Workspace) SetEditor(sink EditorSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Resolve maps a name as sent by the UI to an absolute path. Names are
// relative to the base directory, with or without a leading slash.
func (w *Workspace) Resolve(name string) string {
	if filepath.IsAbs(name) && strings.HasPrefix(filepath.Clean(name), w.base+string(filepath.Separator)) {
		return filepath.Clean(name)
	}
	return filepath.Join(w.base, strings.TrimPrefix(filepath.ToSlash(name), "/"))
}

// Rel is the inverse of Resolve.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Workspace) Open(ctx context.Context, name string) (*document.Document, error) {
	path := w.Resolve(name)
	uri := document.PathToURI(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[uri]; ok {
		doc := b.doc
		return &doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &document.Document{URI: uri, Path: path, Text: string(data), Version: w.versions[uri]}, nil
}

// OpenURI is Open for a document URI, as the editor names documents.
func (w *Workspace) OpenURI(ctx context.Context, uri protocol.DocumentUri) (*document.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[uri]; ok {
		doc := b.doc
		return &doc, nil
	}
	path, err := document.URIToPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &document.Document{URI: uri, Path: path, Text: string(data), Version: w.versions[uri]}, nil
}

// Apply splices edits into the buffered document, loading it from disk if
// needed. Edits are applied from the last position to the first. Edits to
// an editor-owned buffer are forwarded to the editor sink as well.
func (w *Workspace) Apply(ctx context.Context, uri protocol.DocumentUri, edits []protocol.TextEdit) error {
	w.mu.Lock()
	b, err := w.load(uri)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: %v", document.ErrApplyFailed, err)
	}

	ordered := append([]protocol.TextEdit(nil), edits...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return textrange.Less(ordered[j].Range.Start, ordered[i].Range.Start)
	})
	text := b.doc.Text
	for _, e := range ordered {
		if int(e.Range.Start.Line) >= strings.Count(text, "\n")+1 {
			w.mu.Unlock()
			return fmt.Errorf("%w: line %d out of range in %s", document.ErrApplyFailed, e.Range.Start.Line, b.doc.Path)
		}
		text = textrange.Splice(text, e.Range, e.NewText)
	}
	b.doc.Text = text
	b.doc.Version++
	if !b.editor {
		w.versions[uri] = b.doc.Version
	}
	sink := w.sink
	forward := b.editor && sink != nil
	w.mu.Unlock()

	if forward {
		if err := sink.ForwardEdits(ctx, uri, edits); err != nil {
			log.Warning("editor did not take the edits", "uri", uri, "error", err)
		}
	}
	return nil
}

func (w *Workspace) load(uri protocol.DocumentUri) (*buffer, error) {
	if b, ok := w.buffers[uri]; ok {
		return b, nil
	}
	path, err := document.URIToPath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b := &buffer{doc: document.Document{URI: uri, Path: path, Text: string(data), Version: w.versions[uri]}}
	w.buffers[uri] = b
	return b, nil
}

// Save writes the buffered document to disk. Hooks run outside the lock so
// they may open and edit other documents.
func (w *Workspace) Save(ctx context.Context, uri protocol.DocumentUri) error {
	w.mu.Lock()
	b, ok := w.buffers[uri]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", document.ErrNotOpen, uri)
	}
	doc := b.doc
	hooks := append([]document.SaveHooks(nil), w.hooks...)
	w.mu.Unlock()

	states := make([]document.SaveState, len(hooks))
	for i, h := range hooks {
		states[i] = h.BeforeSave(ctx, &doc)
	}

	if err := os.WriteFile(doc.Path, []byte(doc.Text), 0644); err != nil {
		return fmt.Errorf("%w: %s: %v", document.ErrSaveFailed, doc.Path, err)
	}

	w.mu.Lock()
	w.written[doc.Path] = digest(doc.Text)
	if b, ok := w.buffers[uri]; ok && !b.editor && b.doc.Version == doc.Version {
		delete(w.buffers, uri)
	}
	w.mu.Unlock()
	log.Debug("saved document", "path", doc.Path, "version", doc.Version)

	for i, h := range hooks {
		h.AfterSave(ctx, &doc, states[i])
	}
	return nil
}

// IsEcho reports whether the file on disk still holds exactly what this
// workspace last wrote to it.
func (w *Workspace) IsEcho(path string) bool {
	w.mu.Lock()
	want, ok := w.written[path]
	w.mu.Unlock()
	if !ok {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return digest(string(data)) == want
}

// Reload returns a fresh snapshot of a file changed outside this process.
// Editor-owned buffers win over the disk content.
func (w *Workspace) Reload(ctx context.Context, path string) (*document.Document, error) {
	uri := document.PathToURI(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.buffers[uri]; ok && b.editor {
		doc := b.doc
		return &doc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload %s: %w", path, err)
	}
	delete(w.buffers, uri)
	w.versions[uri]++
	return &document.Document{URI: uri, Path: path, Text: string(data), Version: w.versions[uri]}, nil
}

// UpdateFromEditor replaces a buffer with the editor's content. From now on
// the editor owns the buffer until Release.
func (w *Workspace) UpdateFromEditor(uri protocol.DocumentUri, text string, version int32) error {
	path, err := document.URIToPath(uri)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffers[uri] = &buffer{
		doc:        document.Document{URI: uri, Path: path, Text: text, Version: version},
		editor:     true,
		editorText: text,
	}
	return nil
}

// ApplyEditorChanges applies incremental changes reported by the editor.
// They are relative to what the editor last reported, and the result
// replaces the buffer: the editor wins over edits it has not echoed yet.
func (w *Workspace) ApplyEditorChanges(uri protocol.DocumentUri, version int32, changes []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.buffers[uri]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotOpen, uri)
	}
	for _, raw := range changes {
		switch change := raw.(type) {
		case protocol.TextDocumentContentChangeEvent:
			b.editorText = textrange.ApplyChange(b.editorText, change)
		case protocol.TextDocumentContentChangeEventWhole:
			b.editorText = change.Text
		default:
			return fmt.Errorf("unexpected change event type %T", raw)
		}
	}
	b.doc.Text = b.editorText
	b.doc.Version = version
	return nil
}

// EditorOwned reports whether the editor holds uri open.
func (w *Workspace) EditorOwned(uri protocol.DocumentUri) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.buffers[uri]
	return ok && b.editor
}

// Release drops the buffer for uri.
func (w *Workspace) Release(uri protocol.DocumentUri) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.buffers, uri)
}

// SourceFiles lists project source files relative to the base directory,
// sorted.
func (w *Workspace) SourceFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := walk(w.root, w.opts.IgnoreDirs, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if filepath.Ext(path) == w.opts.Extension {
			files = append(files, w.Rel(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list source files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
