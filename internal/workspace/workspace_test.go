package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"archsync/internal/document"
	"archsync/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) BeforeSave(ctx context.Context, doc *document.Document) document.SaveState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "before:"+filepath.Base(doc.Path))
	return doc.Text
}

func (h *recordingHooks) AfterSave(ctx context.Context, doc *document.Document, state document.SaveState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "after:"+filepath.Base(doc.Path)+":"+state.(string))
}

func TestApplyAndSave(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.ol"), "service A {}\n")
	ws := workspace.New(dir, dir, workspace.Options{})
	hooks := &recordingHooks{}
	ws.AddHooks(hooks)
	ctx := context.Background()

	doc, err := ws.Open(ctx, "/a.ol")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.ol"), doc.Path)

	err = ws.Apply(ctx, doc.URI, []protocol.TextEdit{
		{Range: protocol.Range{Start: protocol.Position{Character: 11}, End: protocol.Position{Character: 11}}, NewText: " x "},
		{Range: protocol.Range{Start: protocol.Position{Character: 8}, End: protocol.Position{Character: 9}}, NewText: "Alpha"},
	})
	require.NoError(t, err)

	buffered, err := ws.Open(ctx, "a.ol")
	require.NoError(t, err)
	assert.Equal(t, "service Alpha { x }\n", buffered.Text)
	assert.Equal(t, int32(1), buffered.Version)

	require.NoError(t, ws.Save(ctx, doc.URI))
	data, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "service Alpha { x }\n", string(data))
	assert.Equal(t, []string{"before:a.ol", "after:a.ol:service Alpha { x }\n"}, hooks.events)
	assert.True(t, ws.IsEcho(doc.Path))

	writeFile(t, doc.Path, "service Beta {}\n")
	assert.False(t, ws.IsEcho(doc.Path))
}

func TestSaveWithoutBufferFails(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir, dir, workspace.Options{})
	err := ws.Save(context.Background(), document.PathToURI(filepath.Join(dir, "x.ol")))
	assert.ErrorIs(t, err, document.ErrNotOpen)
}

func TestApplyMissingFile(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir, dir, workspace.Options{})
	err := ws.Apply(context.Background(), document.PathToURI(filepath.Join(dir, "x.ol")), nil)
	assert.ErrorIs(t, err, document.ErrApplyFailed)
}

func TestEditorBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ol")
	writeFile(t, path, "on disk")
	ws := workspace.New(dir, dir, workspace.Options{})
	uri := document.PathToURI(path)

	require.NoError(t, ws.UpdateFromEditor(uri, "service A {}", 4))
	require.NoError(t, ws.ApplyEditorChanges(uri, 5, []any{
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{
				Start: protocol.Position{Character: 8},
				End:   protocol.Position{Character: 9},
			},
			Text: "B",
		},
	}))

	doc, err := ws.Open(context.Background(), "a.ol")
	require.NoError(t, err)
	assert.Equal(t, "service B {}", doc.Text)
	assert.Equal(t, int32(5), doc.Version)

	reloaded, err := ws.Reload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "service B {}", reloaded.Text, "editor buffer wins")

	ws.Release(uri)
	doc, err = ws.Open(context.Background(), "a.ol")
	require.NoError(t, err)
	assert.Equal(t, "on disk", doc.Text)
}

type recordingSink struct {
	uris  []protocol.DocumentUri
	edits []protocol.TextEdit
}

func (r *recordingSink) ForwardEdits(ctx context.Context, uri protocol.DocumentUri, edits []protocol.TextEdit) error {
	r.uris = append(r.uris, uri)
	r.edits = append(r.edits, edits...)
	return nil
}

func TestEditorEditsAreForwarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ol")
	writeFile(t, path, "service A {}")
	ws := workspace.New(dir, dir, workspace.Options{})
	sink := &recordingSink{}
	ws.SetEditor(sink)
	uri := document.PathToURI(path)
	ctx := context.Background()

	require.NoError(t, ws.UpdateFromEditor(uri, "service A {}", 1))
	assert.True(t, ws.EditorOwned(uri))
	insert := protocol.TextEdit{
		Range:   protocol.Range{Start: protocol.Position{Character: 11}, End: protocol.Position{Character: 11}},
		NewText: " x ",
	}
	require.NoError(t, ws.Apply(ctx, uri, []protocol.TextEdit{insert}))
	assert.Equal(t, []protocol.DocumentUri{uri}, sink.uris)
	assert.Equal(t, []protocol.TextEdit{insert}, sink.edits)

	doc, err := ws.Open(ctx, "a.ol")
	require.NoError(t, err)
	assert.Equal(t, "service A { x }", doc.Text)
	byURI, err := ws.OpenURI(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, byURI.Text)

	// the editor echoes the edit; it is not applied twice
	require.NoError(t, ws.ApplyEditorChanges(uri, 2, []any{
		protocol.TextDocumentContentChangeEvent{Range: &insert.Range, Text: insert.NewText},
	}))
	doc, err = ws.Open(ctx, "a.ol")
	require.NoError(t, err)
	assert.Equal(t, "service A { x }", doc.Text)

	// edits to files the editor does not hold stay local
	other := filepath.Join(dir, "b.ol")
	writeFile(t, other, "b")
	require.NoError(t, ws.Apply(ctx, document.PathToURI(other), []protocol.TextEdit{insert0("c")}))
	assert.Len(t, sink.uris, 1)
	assert.False(t, ws.EditorOwned(document.PathToURI(other)))
}

func insert0(text string) protocol.TextEdit {
	return protocol.TextEdit{NewText: text}
}

func TestReloadBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ol")
	writeFile(t, path, "one")
	ws := workspace.New(dir, dir, workspace.Options{})

	first, err := ws.Reload(context.Background(), path)
	require.NoError(t, err)
	writeFile(t, path, "two")
	second, err := ws.Reload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "two", second.Text)
	assert.Greater(t, second.Version, first.Version)
}

func TestSourceFilesAndScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.ol"), "service Main {}")
	writeFile(t, filepath.Join(dir, "lib", "logger.ol"), "interface Logger {}")
	writeFile(t, filepath.Join(dir, ".git", "x.ol"), "")
	writeFile(t, filepath.Join(dir, "node_modules", "y.ol"), "")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")

	ws := workspace.New(dir, dir, workspace.Options{IgnoreDirs: []string{"node_modules"}})
	files, err := ws.SourceFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/logger.ol", "main.ol"}, files)

	var mu sync.Mutex
	seen := map[string]string{}
	require.NoError(t, ws.Scan(func(path string, content []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen[ws.Rel(path)] = string(content)
	}))
	assert.Equal(t, map[string]string{
		"lib/logger.ol": "interface Logger {}",
		"main.ol":       "service Main {}",
	}, seen)
}

func TestResolve(t *testing.T) {
	ws := workspace.New("/proj", "/proj/arch", workspace.Options{})
	assert.Equal(t, "/proj/arch/a.ol", ws.Resolve("a.ol"))
	assert.Equal(t, "/proj/arch/a.ol", ws.Resolve("/a.ol"))
	assert.Equal(t, "/proj/arch/sub/a.ol", ws.Resolve("/proj/arch/sub/a.ol"))
	assert.Equal(t, "../b.ol", ws.Rel("/proj/b.ol"))
}
