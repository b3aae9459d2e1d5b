package server

import (
	"fmt"

	"archsync/internal/config"
	"archsync/internal/document"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) initialize(
	context *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	// Root
	var root string
	switch {
	case params.RootURI != nil && *params.RootURI != "":
		path, err := document.URIToPath(*params.RootURI)
		if err != nil {
			return nil, err
		}
		root = path
	case params.RootPath != nil:
		root = *params.RootPath
	}
	if root == "" {
		return nil, config.ErrNoWorkspace
	}

	// Config: defaults, then the project file, then the client's options.
	cfg, err := config.LoadProject(s.base, root)
	if err != nil {
		return nil, err
	}
	cfg, err = config.Overlay(cfg, params.InitializationOptions)
	if err != nil {
		return nil, err
	}
	log.Info("configuration", "root", root, "architecture", cfg.ArchitectureFile, "extension", cfg.SourceExtension)

	runtime, err := NewRuntime(root, cfg, s)
	if err != nil {
		return nil, fmt.Errorf("failed to set up workspace: %w", err)
	}
	runtime.Workspace.SetEditor(s)

	s.mu.Lock()
	if s.runtime != nil {
		s.runtime.Close()
	}
	s.runtime = runtime
	s.notify = context.Notify
	s.call = context.Call
	s.mu.Unlock()

	syncKind := protocol.TextDocumentSyncKindIncremental

	capabilities := s.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		WillSave:  &protocol.True,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.False},
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandOpen, CommandInit, CommandMessage, CommandRefresh},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo:   &protocol.InitializeResultServerInfo{Name: "archsync"},
	}, nil
}

func (s *Server) initialized(
	context *glsp.Context,
	params *protocol.InitializedParams,
) error {
	log.Info("client initialized")
	return nil
}

func (s *Server) shutdown(context *glsp.Context) error {
	s.mu.Lock()
	runtime := s.runtime
	s.runtime = nil
	s.mu.Unlock()
	protocol.SetTraceValue(protocol.TraceValueOff)
	if runtime == nil {
		return nil
	}
	return runtime.Close()
}

func (s *Server) setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}
