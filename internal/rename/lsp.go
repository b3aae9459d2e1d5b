package rename

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"archsync/internal/document"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LSPRenamer delegates renames to an external language server for the
// source language, started on first use and spoken to over stdio.
type LSPRenamer struct {
	command []string
	rootURI protocol.DocumentUri

	mu     sync.Mutex
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	opened map[protocol.DocumentUri]int32
}

var _ document.Renamer = (*LSPRenamer)(nil)

func NewLSPRenamer(command []string, root string) *LSPRenamer {
	return &LSPRenamer{
		command: command,
		rootURI: document.PathToURI(root),
		opened:  make(map[protocol.DocumentUri]int32),
	}
}

type stdio struct {
	io.ReadCloser
	io.WriteCloser
}

func (s stdio) Close() error {
	return errors.Join(s.WriteCloser.Close(), s.ReadCloser.Close())
}

func (r *LSPRenamer) start(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	if len(r.command) == 0 {
		return errors.New("no rename server command configured")
	}

	cmd := exec.Command(r.command[0], r.command[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start rename server: %w", err)
	}

	stream := jsonrpc2.NewBufferedStream(stdio{stdout, stdin}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(serverRequest)))

	pid := protocol.Integer(os.Getpid())
	rootURI := r.rootURI
	params := protocol.InitializeParams{
		ProcessID:    &pid,
		RootURI:      &rootURI,
		Capabilities: protocol.ClientCapabilities{},
	}
	var result json.RawMessage
	if err := conn.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		conn.Close()
		cmd.Process.Kill()
		return fmt.Errorf("failed to initialize rename server: %w", err)
	}
	if err := conn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		conn.Close()
		cmd.Process.Kill()
		return fmt.Errorf("failed to notify rename server: %w", err)
	}

	r.cmd = cmd
	r.conn = conn
	go func() {
		<-conn.DisconnectNotify()
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.conn == conn {
			log.Warning("rename server disconnected")
			r.conn = nil
			r.opened = make(map[protocol.DocumentUri]int32)
		}
	}()
	log.Info("started rename server", "command", r.command)
	return nil
}

// serverRequest answers requests the language server sends to us.
func serverRequest(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if !req.Notif {
		log.Debug("ignoring server request", "method", req.Method)
	}
	return nil, nil
}

// syncDocument makes sure the server sees the same text we are about to rename in.
func (r *LSPRenamer) syncDocument(ctx context.Context, doc *document.Document) error {
	version, ok := r.opened[doc.URI]
	switch {
	case !ok:
		err := r.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        doc.URI,
				LanguageID: "jolie",
				Version:    doc.Version,
				Text:       doc.Text,
			},
		})
		if err != nil {
			return err
		}
	case version != doc.Version:
		err := r.conn.Notify(ctx, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: doc.URI},
				Version:                doc.Version,
			},
			ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: doc.Text}},
		})
		if err != nil {
			return err
		}
	}
	r.opened[doc.URI] = doc.Version
	return nil
}

func (r *LSPRenamer) Rename(ctx context.Context, doc *document.Document, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.start(ctx); err != nil {
		return nil, err
	}
	if err := r.syncDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to sync %s: %w", doc.URI, err)
	}

	params := protocol.RenameParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc.URI},
			Position:     pos,
		},
		NewName: newName,
	}
	var edit *protocol.WorkspaceEdit
	if err := r.conn.Call(ctx, protocol.MethodTextDocumentRename, params, &edit); err != nil {
		return nil, fmt.Errorf("rename request failed: %w", err)
	}
	return edit, nil
}

// Close shuts the language server down.
func (r *LSPRenamer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	ctx := context.Background()
	_ = r.conn.Call(ctx, protocol.MethodShutdown, nil, nil)
	_ = r.conn.Notify(ctx, protocol.MethodExit, nil)
	err := r.conn.Close()
	r.conn = nil
	if r.cmd != nil {
		r.cmd.Wait()
	}
	return err
}
