package server

import (
	"context"
	"errors"

	"archsync/internal/document"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	rt, err := s.current()
	if err != nil {
		return err
	}
	item := params.TextDocument
	return rt.Workspace.UpdateFromEditor(item.URI, item.Text, item.Version)
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	rt, err := s.current()
	if err != nil {
		return err
	}
	return rt.Workspace.ApplyEditorChanges(params.TextDocument.URI, params.TextDocument.Version, params.ContentChanges)
}

// textDocumentWillSave captures the save state right away: by the time
// didSave arrives the file on disk has already changed.
func (s *Server) textDocumentWillSave(
	context *glsp.Context,
	params *protocol.WillSaveTextDocumentParams,
) error {
	rt, err := s.current()
	if err != nil {
		return err
	}
	doc, err := s.editorDocument(rt, params.TextDocument.URI)
	if err != nil {
		return err
	}
	state := rt.Coordinator.BeforeSave(contextFor(), doc)

	s.mu.Lock()
	s.pending[doc.URI] = state
	s.mu.Unlock()
	return nil
}

func (s *Server) textDocumentDidSave(
	context *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	rt, err := s.current()
	if err != nil {
		return err
	}
	uri := params.TextDocument.URI
	if params.Text != nil {
		doc, err := s.editorDocument(rt, uri)
		if err == nil && doc.Text != *params.Text {
			if err := rt.Workspace.UpdateFromEditor(uri, *params.Text, doc.Version); err != nil {
				return err
			}
		}
	}
	doc, err := s.editorDocument(rt, uri)
	if err != nil {
		return err
	}

	s.mu.Lock()
	state := s.pending[uri]
	delete(s.pending, uri)
	s.mu.Unlock()

	return rt.Coordinator.QueueSave(contextFor(), doc, state)
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	rt, err := s.current()
	if err != nil {
		return err
	}
	uri := params.TextDocument.URI
	rt.Workspace.Release(uri)
	s.mu.Lock()
	delete(s.pending, uri)
	s.mu.Unlock()
	return nil
}

// editorDocument returns the workspace's snapshot of uri.
func (s *Server) editorDocument(rt *Runtime, uri protocol.DocumentUri) (*document.Document, error) {
	doc, err := rt.Workspace.OpenURI(contextFor(), uri)
	if err != nil {
		return nil, errors.Join(document.ErrNotOpen, err)
	}
	return doc, nil
}

// contextFor is the context of work started by a notification. glsp
// handlers carry none.
func contextFor() context.Context {
	return context.Background()
}
