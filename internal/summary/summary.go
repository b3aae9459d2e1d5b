// Package summary talks to the structural-summary tool, which parses the
// services an architecture file references and describes them as JSON.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.summary")

// Summarizer produces the data the diagram is drawn from.
type Summarizer interface {
	// GetData describes the service graph of the architecture file.
	GetData(ctx context.Context, architectureFile string, verbose bool) (string, error)
	// GetBuildData describes the deployable folder layout.
	GetBuildData(ctx context.Context, architectureFile, deployMethod, buildFolder string) (string, error)
}

// Command runs an external summary tool:
//
//	<args...> data <architecture file> [--verbose]
//	<args...> build <architecture file> <deploy method> <build folder>
type Command struct {
	Args []string
	Dir  string
}

var _ Summarizer = (*Command)(nil)

func NewCommand(args []string, dir string) *Command {
	return &Command{Args: args, Dir: dir}
}

func (c *Command) GetData(ctx context.Context, architectureFile string, verbose bool) (string, error) {
	args := []string{"data", architectureFile}
	if verbose {
		args = append(args, "--verbose")
	}
	return c.run(ctx, args...)
}

func (c *Command) GetBuildData(ctx context.Context, architectureFile, deployMethod, buildFolder string) (string, error) {
	if deployMethod == "" {
		deployMethod = "docker-compose"
	}
	return c.run(ctx, "build", architectureFile, deployMethod, FormatBuildFolder(buildFolder))
}

func (c *Command) run(ctx context.Context, args ...string) (string, error) {
	if len(c.Args) == 0 {
		return "", errors.New("no summary command configured")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], append(append([]string{}, c.Args[1:]...), args...)...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("running summary command", "args", cmd.Args)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("summary command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsParseError reports whether data is the {"error": ...} shape the tool
// returns when a source file does not parse.
func IsParseError(data string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return false
	}
	_, ok := obj["error"]
	return ok
}

// FormatBuildFolder normalizes a build folder to a leading slash and no
// trailing one.
func FormatBuildFolder(folder string) string {
	folder = strings.TrimRight(folder, "/")
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	return folder
}
