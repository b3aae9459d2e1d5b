package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ProjectFile is read from the workspace root.
const ProjectFile = ".archsync.yaml"

var ErrNoWorkspace = errors.New("no workspace root")

// Duration reads "300ms" style strings from JSON and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	ArchitectureFile string   `json:"architecture_file" yaml:"architecture_file" validate:"required"`
	SourceExtension  string   `json:"source_extension"  yaml:"source_extension"  validate:"required,startswith=."`
	IgnoreDirs       []string `json:"ignore_dirs"       yaml:"ignore_dirs"`
	SummaryCommand   []string `json:"summary_command"   yaml:"summary_command"   validate:"required,min=1,dive,required"`
	RenameCommand    []string `json:"rename_command"    yaml:"rename_command"    validate:"dive,required"`
	UIAddr           string   `json:"ui_addr"           yaml:"ui_addr"           validate:"required"`
	StateDir         string   `json:"state_dir"         yaml:"state_dir"`
	BuildFolder      string   `json:"build_folder"      yaml:"build_folder"`
	BuildMethod      string   `json:"build_method"      yaml:"build_method"`
	Debounce         Duration `json:"debounce"          yaml:"debounce"          validate:"gte=0"`
	FileVersions     int      `json:"file_versions"     yaml:"file_versions"     validate:"min=1"`
	HistoryKeep      int      `json:"history_keep"      yaml:"history_keep"      validate:"min=1"`
}

var defaultConfig = Config{
	ArchitectureFile: "architecture.jolie.json",
	SourceExtension:  ".ol",
	IgnoreDirs:       []string{".git", "node_modules"},
	SummaryCommand:   []string{"jolievisualize"},
	UIAddr:           "127.0.0.1:0",
	BuildFolder:      "/build",
	BuildMethod:      "docker-compose",
	Debounce:         Duration(300 * time.Millisecond),
	FileVersions:     6,
	HistoryKeep:      500,
}

func Default() Config {
	return defaultConfig.clone()
}

// clone copies the slices, which decoding would otherwise write through.
func (c Config) clone() Config {
	c.IgnoreDirs = append([]string(nil), c.IgnoreDirs...)
	c.SummaryCommand = append([]string(nil), c.SummaryCommand...)
	c.RenameCommand = append([]string(nil), c.RenameCommand...)
	return c
}

// Load overlays v, typically LSP initialization options, on the defaults.
func Load(v any) (Config, error) {
	return Overlay(Default(), v)
}

// Overlay overlays v on base. Only fields present in v overwrite.
func Overlay(base Config, v any) (Config, error) {
	if v == nil {
		return base, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}

	cfg := base.clone()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}
	return cfg, nil
}

// LoadFromJSON reads JSON from r into a Config.
func LoadFromJSON(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadProject overlays the project file under root on base. A missing
// project file is not an error.
func LoadProject(base Config, root string) (Config, error) {
	if root == "" {
		return Config{}, ErrNoWorkspace
	}
	data, err := os.ReadFile(filepath.Join(root, ProjectFile))
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", ProjectFile, err)
	}
	cfg := base.clone()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", ProjectFile, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ArchitecturePath is the absolute path of the architecture file.
func (c Config) ArchitecturePath(root string) string {
	if filepath.IsAbs(c.ArchitectureFile) {
		return filepath.Clean(c.ArchitectureFile)
	}
	return filepath.Join(root, c.ArchitectureFile)
}

// StatePath returns the directory holding the state of the workspace at
// root, creating it if needed.
func (c Config) StatePath(root string) (string, error) {
	base := c.StateDir
	if base == "" {
		var err error
		if base, err = getXDGStateHome("archsync"); err != nil {
			return "", err
		}
	}
	dir := filepath.Join(base, url.PathEscape(filepath.ToSlash(root)))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

func getXDGStateHome(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	// Final path for your app
	appStateDir := filepath.Join(xdgStateHome, appName)

	// Create it if it doesn't exist
	if err := os.MkdirAll(appStateDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return appStateDir, nil
}
