package summary_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"archsync/internal/summary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the summary tool. It echoes its
// arguments after "--" back as a JSON string.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ARCHSYNC_SUMMARY_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 1 && strings.HasSuffix(args[1], "broken.json") {
		fmt.Fprintln(os.Stderr, "cannot read file")
		os.Exit(2)
	}
	fmt.Printf("%q\n", strings.Join(args, " "))
	os.Exit(0)
}

func helper(t *testing.T) *summary.Command {
	t.Setenv("ARCHSYNC_SUMMARY_HELPER", "1")
	return summary.NewCommand([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, t.TempDir())
}

func TestGetData(t *testing.T) {
	c := helper(t)
	ctx := context.Background()

	out, err := c.GetData(ctx, "arch.json", false)
	require.NoError(t, err)
	assert.Equal(t, `"data arch.json"`, out)

	out, err = c.GetData(ctx, "arch.json", true)
	require.NoError(t, err)
	assert.Equal(t, `"data arch.json --verbose"`, out)
}

func TestGetBuildData(t *testing.T) {
	out, err := helper(t).GetBuildData(context.Background(), "arch.json", "", "build/")
	require.NoError(t, err)
	assert.Equal(t, `"build arch.json docker-compose /build"`, out)
}

func TestCommandFailure(t *testing.T) {
	_, err := helper(t).GetData(context.Background(), "broken.json", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read file")

	_, err = summary.NewCommand(nil, "").GetData(context.Background(), "a.json", false)
	assert.Error(t, err)
}

func TestIsParseError(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{`{"error": "syntax error at a.ol:3"}`, true},
		{`{"error": null}`, true},
		{`[{"name": "Foo"}]`, false},
		{`{"services": []}`, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, summary.IsParseError(tt.data), tt.data)
	}
}

func TestFormatBuildFolder(t *testing.T) {
	for in, want := range map[string]string{
		"build":  "/build",
		"/build": "/build",
		"build/": "/build",
		"/a/b//": "/a/b",
	} {
		assert.Equal(t, want, summary.FormatBuildFolder(in), in)
	}
}
