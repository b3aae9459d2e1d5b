package edits

import protocol "github.com/tliron/glsp/protocol_3_16"

func (s *Stack) Queued() []Edit { return s.queued() }

func (s *Stack) Preview() map[protocol.DocumentUri]string { return s.preview() }
