package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpFile(t *testing.T) {
	text := "service A {\n\tinputPort IP {\n\t\tLocation: \"local\"\n\t}\n\tembed B as BP\n}\n\nservice B {\n}\n"

	f := dumpFile("a.ol", text)
	assert.Equal(t, "a.ol", f.File)
	require.Len(t, f.Services, 2)

	a := f.Services[0]
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, []string{"B"}, a.Embeds)
	require.Len(t, a.Ports, 1)
	assert.Equal(t, "inputPort", a.Ports[0].Kind)
	assert.Equal(t, "IP", a.Ports[0].Name)
	assert.Equal(t, uint32(1), a.Ports[0].Range.Start.Line)
	assert.Equal(t, uint32(3), a.Ports[0].Range.End.Line)

	assert.Equal(t, "B", f.Services[1].Name)
	assert.Empty(t, f.Services[1].Ports)
}

func TestDumpFileWithoutServices(t *testing.T) {
	f := dumpFile("types.ol", "type T { x: int }\n")
	assert.NotNil(t, f.Services)
	assert.Empty(t, f.Services)
}
