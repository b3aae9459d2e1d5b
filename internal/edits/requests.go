package edits

import (
	"encoding/json"
	"fmt"
	"strings"

	"archsync/internal/textrange"
)

// Interface names an interface a port exposes. File, when set, is where it
// is declared; an import is added for it if needed.
type Interface struct {
	Name string `json:"name" validate:"required"`
	File string `json:"file,omitempty"`
}

// UnmarshalJSON accepts either a bare name or an object.
func (i *Interface) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*i = Interface{Name: strings.TrimSpace(name)}
		return nil
	}
	type plain Interface
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to decode interface: %w", err)
	}
	*i = Interface(p)
	return nil
}

// Interfaces decodes from a list or from a single comma separated string,
// which is what older UI builds send.
type Interfaces []Interface

func (is *Interfaces) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*is = nil
		for _, name := range strings.Split(joined, ",") {
			if name = strings.TrimSpace(name); name != "" {
				*is = append(*is, Interface{Name: name})
			}
		}
		return nil
	}
	var list []Interface
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode interfaces: %w", err)
	}
	*is = list
	return nil
}

func (is Interfaces) Names() []string {
	names := make([]string, 0, len(is))
	for _, i := range is {
		if i.Name != "" {
			names = append(names, i.Name)
		}
	}
	return names
}

// Port describes a port declaration.
type Port struct {
	Name       string     `json:"name" validate:"required"`
	Location   string     `json:"location"`
	Protocol   string     `json:"protocol"`
	Interfaces Interfaces `json:"interfaces"`
	Annotation string     `json:"annotation,omitempty"`
	Aggregates []string   `json:"aggregates,omitempty"`
}

type CreatePortRequest struct {
	File        string                `json:"file" validate:"required"`
	ServiceName string                `json:"serviceName"`
	PortType    string                `json:"portType" validate:"oneof=inputPort outputPort"`
	IsFirst     bool                  `json:"isFirst"`
	Range       textrange.SimpleRange `json:"range"`
	Port        Port                  `json:"port"`
}

type CreateEmbedRequest struct {
	Filename    string                `json:"filename" validate:"required"`
	ServiceName string                `json:"serviceName"`
	EmbedName   string                `json:"embedName" validate:"required"`
	EmbedPort   string                `json:"embedPort"`
	EmbedAs     *bool                 `json:"embedAs,omitempty"`
	IsFirst     bool                  `json:"isFirst"`
	Range       textrange.SimpleRange `json:"range"`
}

// Embedding is an embed line of a service being created.
type Embedding struct {
	Name string `json:"name" validate:"required"`
	File string `json:"file,omitempty"`
	Port string `json:"port,omitempty"`
	As   *bool  `json:"embedAs,omitempty"`
}

type CreateServiceRequest struct {
	File        string                 `json:"file" validate:"required"`
	Name        string                 `json:"name" validate:"required"`
	Execution   string                 `json:"execution,omitempty"`
	InputPorts  []Port                 `json:"inputPorts" validate:"dive"`
	OutputPorts []Port                 `json:"outputPorts" validate:"dive"`
	Embeddings  []Embedding            `json:"embeddings" validate:"dive"`
	Range       *textrange.SimpleRange `json:"range,omitempty"`
}

type RemovePortRequest struct {
	Filename    string                 `json:"filename" validate:"required"`
	ServiceName string                 `json:"serviceName" validate:"required"`
	PortName    string                 `json:"portName"`
	PortType    string                 `json:"portType" validate:"oneof=inputPort outputPort"`
	Range       *textrange.SimpleRange `json:"range,omitempty"`
}

type RemoveEmbedRequest struct {
	Filename    string                 `json:"filename" validate:"required"`
	ServiceName string                 `json:"serviceName" validate:"required"`
	EmbedName   string                 `json:"embedName"`
	EmbedPort   string                 `json:"embedPort"`
	Range       *textrange.SimpleRange `json:"range,omitempty"`
}

type RenameServiceRequest struct {
	Filename       string `json:"filename" validate:"required"`
	OldServiceName string `json:"oldServiceName" validate:"required"`
	NewServiceName string `json:"newServiceName" validate:"required"`
}

const (
	EditPortName = "port_name"
	EditLocation = "location"
	EditProtocol = "protocol"
)

type RenamePortRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ServiceName string `json:"serviceName" validate:"required"`
	OldLine     string `json:"oldLine" validate:"required"`
	NewLine     string `json:"newLine" validate:"required"`
	PortName    string `json:"portName" validate:"required_unless=EditType port_name"`
	PortType    string `json:"portType" validate:"oneof=inputPort outputPort"`
	EditType    string `json:"editType" validate:"oneof=port_name location protocol"`
}

// NewInputPort is one port of the aggregator pattern, added to an
// aggregated service.
type NewInputPort struct {
	Port
	File    string                `json:"file" validate:"required"`
	IsFirst bool                  `json:"isFirst"`
	Range   textrange.SimpleRange `json:"range"`
}

type AggregatorService struct {
	File        string `json:"file" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Execution   string `json:"execution,omitempty"`
	InputPorts  []Port `json:"inputPorts" validate:"dive"`
	OutputPorts []Port `json:"outputPorts" validate:"dive"`
}

type AggregatorRequest struct {
	NewIps     []NewInputPort    `json:"newIps" validate:"dive"`
	Service    AggregatorService `json:"service"`
	Embeddings []Embedding       `json:"embeddings" validate:"dive"`
}
