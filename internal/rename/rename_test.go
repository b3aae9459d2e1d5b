package rename_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"archsync/internal/document"
	"archsync/internal/rename"
	"archsync/internal/workspace"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestTextRenamer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ol"), []byte("service Foo {\n\tembed FooBar as P\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ol"), []byte("from .a import Foo\nservice B { embed Foo }\n"), 0644))
	ws := workspace.New(dir, dir, workspace.Options{})
	r := rename.NewTextRenamer(ws, ws)
	ctx := context.Background()

	doc, err := ws.Open(ctx, "a.ol")
	require.NoError(t, err)

	edit, err := r.Rename(ctx, doc, protocol.Position{Line: 0, Character: 9}, "Bar")
	require.NoError(t, err)
	require.NotNil(t, edit)
	require.Len(t, edit.Changes, 2)

	own := edit.Changes[doc.URI]
	require.Len(t, own, 1, "FooBar must not be renamed")
	assert.Equal(t, protocol.Position{Line: 0, Character: 8}, own[0].Range.Start)

	other := edit.Changes[document.PathToURI(filepath.Join(dir, "b.ol"))]
	assert.Len(t, other, 2)
	for _, e := range other {
		assert.Equal(t, "Bar", e.NewText)
	}
}

func TestTextRenamerNothingAtPosition(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.New(dir, dir, workspace.Options{})
	r := rename.NewTextRenamer(ws, ws)
	doc := &document.Document{URI: "file:///x.ol", Text: "a  b"}

	edit, err := r.Rename(context.Background(), doc, protocol.Position{Character: 2}, "c")
	require.NoError(t, err)
	assert.Nil(t, edit)

	_, err = r.Rename(context.Background(), doc, protocol.Position{Character: 0}, "not valid")
	assert.Error(t, err)
}

// TestHelperProcess is a minimal language server used by TestLSPRenamer.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ARCHSYNC_RENAME_HELPER") != "1" {
		return
	}
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		switch req.Method {
		case "initialize":
			return map[string]any{"capabilities": map[string]any{"renameProvider": true}}, nil
		case "textDocument/rename":
			var params protocol.RenameParams
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, err
			}
			return protocol.WorkspaceEdit{
				Changes: map[protocol.DocumentUri][]protocol.TextEdit{
					params.TextDocument.URI: {{
						Range:   protocol.Range{Start: params.Position, End: params.Position},
						NewText: params.NewName,
					}},
				},
			}, nil
		case "exit":
			os.Exit(0)
		}
		return nil, nil
	})
	stream := jsonrpc2.NewBufferedStream(stdio{}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, handler)
	<-conn.DisconnectNotify()
	os.Exit(0)
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

func TestLSPRenamer(t *testing.T) {
	t.Setenv("ARCHSYNC_RENAME_HELPER", "1")
	r := rename.NewLSPRenamer([]string{os.Args[0], "-test.run=TestHelperProcess"}, t.TempDir())
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc := &document.Document{URI: "file:///proj/a.ol", Text: "service Foo {}", Version: 1}
	edit, err := r.Rename(ctx, doc, protocol.Position{Character: 8}, "Bar")
	require.NoError(t, err)
	require.NotNil(t, edit)
	edits := edit.Changes[doc.URI]
	require.Len(t, edits, 1)
	assert.Equal(t, "Bar", edits[0].NewText)

	doc.Version = 2
	_, err = r.Rename(ctx, doc, protocol.Position{Character: 8}, "Baz")
	require.NoError(t, err)
}

func TestLSPRenamerWithoutCommand(t *testing.T) {
	r := rename.NewLSPRenamer(nil, t.TempDir())
	_, err := r.Rename(context.Background(), &document.Document{}, protocol.Position{}, "X")
	assert.Error(t, err)
}
