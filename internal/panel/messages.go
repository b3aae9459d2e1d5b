package panel

import "encoding/json"

// Inbound commands sent by the UI.
const (
	GetData         = "get.data"
	SetData         = "set.data"
	GetRanges       = "get.ranges"
	RenamePort      = "rename.port"
	RemoveEmbed     = "remove.embed"
	CreateEmbed     = "create.embed"
	RemovePorts     = "remove.ports"
	RenameService   = "rename.service"
	CreatePort      = "create.port"
	CreateAggregate = "create.pattern.aggregator"
	OpenFile        = "open.file"
)

// Outbound commands pushed to the UI.
const (
	InitData  = "init.data"
	SetRanges = "set.ranges"
	Undo      = "undo"
)

// Inbound is one message from the UI.
type Inbound struct {
	Command   string          `json:"command"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Save      bool            `json:"save,omitempty"`
	FromPopup bool            `json:"fromPopup,omitempty"`
}

// Outbound is one message to the UI. Data is sent as is when it already
// holds JSON.
type Outbound struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewOutbound wraps a summary string, which is JSON produced by the
// structural summary command.
func NewOutbound(command, data string) Outbound {
	out := Outbound{Command: command}
	if data != "" {
		if json.Valid([]byte(data)) {
			out.Data = json.RawMessage(data)
		} else {
			quoted, _ := json.Marshal(data)
			out.Data = quoted
		}
	}
	return out
}
