package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"archsync/internal/architecture"
	"archsync/internal/panel"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) workspaceExecuteCommand(
	context *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	rt, err := s.current()
	if err != nil {
		return nil, err
	}
	log.Info("execute command", "command", params.Command)

	switch params.Command {
	case CommandOpen:
		go s.open(rt)
		return nil, nil

	case CommandRefresh:
		go func() {
			if err := rt.Coordinator.Open(contextFor()); err != nil {
				log.Error("refresh failed", "error", err)
			}
		}()
		return nil, nil

	case CommandInit:
		if err := architecture.Init(rt.Architecture); err != nil {
			message := "Couldn't create architecture file"
			if errors.Is(err, architecture.ErrExists) {
				message = "Architecture file already exists: " + rt.Architecture
			}
			s.ShowError(contextFor(), message)
			return nil, err
		}
		return rt.Architecture, nil

	case CommandMessage:
		msg, err := inboundArgument(params.Arguments)
		if err != nil {
			return nil, err
		}
		go rt.Coordinator.HandleMessage(contextFor(), msg)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown command %q", params.Command)
}

// open starts the UI and asks the editor to show it.
func (s *Server) open(rt *Runtime) {
	ctx := contextFor()
	url, err := rt.OpenPanel(ctx)
	if url == "" {
		s.ShowError(ctx, err.Error())
		return
	}
	if err != nil {
		// the panel still runs, showing whatever the UI can load
		log.Warning("panel opened without data", "error", err)
	}
	if err := s.show(protocol.URI(url), true); err != nil {
		log.Warning("editor did not open the panel", "url", url, "error", err)
	}
}

// inboundArgument decodes the first command argument as a UI message.
func inboundArgument(args []any) (panel.Inbound, error) {
	var msg panel.Inbound
	if len(args) == 0 {
		return msg, errors.New("missing message argument")
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode message: %w", err)
	}
	if msg.Command == "" {
		return msg, errors.New("message has no command")
	}
	return msg, nil
}
