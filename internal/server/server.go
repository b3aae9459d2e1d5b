// Package server is the editor integration: a language server that keeps
// the editor's buffers in the workspace, forwards save notifications to the
// coordinator and exposes the UI through workspace commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"archsync/internal/config"
	"archsync/internal/document"
	"archsync/internal/syncer"
	"archsync/internal/workspace"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
)

var log = commonlog.GetLogger("archsync.server")

const (
	CommandOpen    = "archsync.open"
	CommandInit    = "archsync.init"
	CommandMessage = "archsync.message"
	CommandRefresh = "archsync.refresh"
)

// Server handles one editor connection. Handlers run on the connection's
// reader, so anything that may call back into the editor runs on the
// scheduler instead of inside the handler.
type Server struct {
	handler protocol.Handler
	base    config.Config

	mu      sync.Mutex
	runtime *Runtime
	notify  glsp.NotifyFunc
	call    glsp.CallFunc
	// save state captured on willSave, consumed on didSave
	pending map[protocol.DocumentUri]document.SaveState
}

var (
	_ syncer.Editor        = (*Server)(nil)
	_ workspace.EditorSink = (*Server)(nil)
)

// NewServer returns a language server. base is the configuration the
// project file and the initialization options are applied to.
func NewServer(base config.Config, debug bool) *server.Server {
	ls := &Server{
		base:    base,
		pending: make(map[protocol.DocumentUri]document.SaveState),
	}
	ls.handler = protocol.Handler{
		Initialize:              ls.initialize,
		Initialized:             ls.initialized,
		Shutdown:                ls.shutdown,
		SetTrace:                ls.setTrace,
		TextDocumentDidOpen:     ls.textDocumentDidOpen,
		TextDocumentDidChange:   ls.textDocumentDidChange,
		TextDocumentWillSave:    ls.textDocumentWillSave,
		TextDocumentDidSave:     ls.textDocumentDidSave,
		TextDocumentDidClose:    ls.textDocumentDidClose,
		WorkspaceExecuteCommand: ls.workspaceExecuteCommand,
	}

	return server.NewServer(&ls.handler, "archsync", debug)
}

var errNotInitialized = errors.New("server not initialized")

func (s *Server) current() (*Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime == nil {
		return nil, errNotInitialized
	}
	return s.runtime, nil
}

func (s *Server) client() (glsp.NotifyFunc, glsp.CallFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify, s.call
}

// ShowDocument asks the editor to reveal path.
func (s *Server) ShowDocument(ctx context.Context, path string) error {
	return s.show(document.PathToURI(path), false)
}

func (s *Server) show(uri protocol.URI, external bool) error {
	_, call := s.client()
	if call == nil {
		return errNotInitialized
	}
	var result protocol.ShowDocumentResult
	call(string(protocol.ServerWindowShowDocument), protocol.ShowDocumentParams{
		URI:      uri,
		External: &external,
	}, &result)
	if !result.Success {
		return fmt.Errorf("editor did not show %s", uri)
	}
	return nil
}

// ShowError shows message as an error in the editor.
func (s *Server) ShowError(ctx context.Context, message string) {
	notify, _ := s.client()
	if notify == nil {
		return
	}
	notify(string(protocol.ServerWindowShowMessage), protocol.ShowMessageParams{
		Type:    protocol.MessageTypeError,
		Message: message,
	})
}

// ForwardEdits applies edits to a buffer the editor holds open.
func (s *Server) ForwardEdits(ctx context.Context, uri protocol.DocumentUri, edits []protocol.TextEdit) error {
	_, call := s.client()
	if call == nil {
		return errNotInitialized
	}
	label := "archsync"
	var result protocol.ApplyWorkspaceEditResponse
	call(string(protocol.ServerWorkspaceApplyEdit), protocol.ApplyWorkspaceEditParams{
		Label: &label,
		Edit: protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{uri: edits},
		},
	}, &result)
	if !result.Applied {
		reason := "no reason given"
		if result.FailureReason != nil {
			reason = *result.FailureReason
		}
		return fmt.Errorf("editor rejected edits to %s: %s", uri, reason)
	}
	return nil
}
