package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input, output, and working directory configuration.
type Paths struct {
	InputDir     string `toml:"input_dir"`
	OutputDir    string `toml:"output_dir"`
	ArchivePath  string `toml:"archive_path"`
	ManifestPath string `toml:"manifest_path"`
	TempDir      string `toml:"temp_dir"`
	LogDir       string `toml:"log_dir"`
}

// Scenes controls which resources under the input directory are tiled.
type Scenes struct {
	Pattern string `toml:"pattern"`
	Layer   string `toml:"layer"`
}

// Tiling contains the tile-geometry parameters shared by every scene.
type Tiling struct {
	TileSize          int     `toml:"tile_size"`
	BasePixelsPerUnit float64 `toml:"base_pixels_per_unit"`
	MinPixelsPerUnit  float64 `toml:"min_pixels_per_unit"`
	Border            float64 `toml:"border"`
	// AutoZoom selects zoom levels from scene extent and resolution. When
	// false both MinZoom and MaxZoom must be set.
	AutoZoom bool `toml:"auto_zoom"`
	MinZoom  *int `toml:"min_zoom"`
	MaxZoom  *int `toml:"max_zoom"`
}

// Encoding selects the final tile image format.
type Encoding struct {
	Format  string `toml:"format"`
	Quality int    `toml:"quality"`
}

// Optimizer configures the optional external re-compression pass.
type Optimizer struct {
	Enabled            bool   `toml:"enabled"`
	Command            string `toml:"command"`
	IntermediateFormat string `toml:"intermediate_format"`
}

// Render contains software renderer appearance settings.
type Render struct {
	Background string `toml:"background"`
	Color      string `toml:"color"`
}

// Stage holds scheduling limits for one pipeline stage.
type Stage struct {
	Parallelism int `toml:"parallelism"`
	Capacity    int `toml:"capacity"`
}

// Pipeline contains scheduling, fault, and runtime tuning settings.
type Pipeline struct {
	// Renderers is the renderer pool size. The loader and render stages run
	// with this parallelism.
	Renderers     int    `toml:"renderers"`
	Encoder       Stage  `toml:"encoder"`
	Optimizer     Stage  `toml:"optimizer"`
	Output        Stage  `toml:"output"`
	FailurePolicy string `toml:"failure_policy"`
	MaxProcs      int    `toml:"max_procs"`
	GCPercent     int    `toml:"gc_percent"`
	// ProgressInterval is the progress log sampling period in seconds.
	ProgressInterval int `toml:"progress_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tessera.
//
// Configuration sections by subsystem:
//   - Paths: scene input, sink destinations, temp and log directories
//   - Scenes: discovery pattern and output layer name
//   - Tiling: tile size, resolution, border, zoom selection
//   - Encoding: final image format and quality
//   - Optimizer: external re-compression command
//   - Render: software renderer colours
//   - Pipeline: per-stage parallelism/capacity, failure policy, runtime tuning
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Scenes    Scenes    `toml:"scenes"`
	Tiling    Tiling    `toml:"tiling"`
	Encoding  Encoding  `toml:"encoding"`
	Optimizer Optimizer `toml:"optimizer"`
	Render    Render    `toml:"render"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/tessera/config.toml")
}

// Load locates, parses, normalizes and validates the configuration. It
// returns the config, the path it was resolved from, and whether a file
// existed there; a missing file means defaults were used.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// decodeFile reads TOML strictly: unknown keys are errors that name the key.
func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := toml.NewDecoder(file).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveConfigPath picks the first of: the --config value, $TESSERA_CONFIG,
// ./tessera.toml, ~/.config/tessera/config.toml. An explicit path (flag or
// environment) is returned even when the file is absent; otherwise the
// per-user default is.
func resolveConfigPath(explicit string) (string, bool, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(configEnv))
	}
	if explicit != "" {
		path, err := ExpandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(path)
		return path, exists, err
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{projectPath, userPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

const (
	configEnv         = "TESSERA_CONFIG"
	projectConfigName = "tessera.toml"
)

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.LogDir, c.Paths.TempDir}
	if c.Paths.ManifestPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.ManifestPath))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OptimizerBinary returns the program named by the optimizer command, or an
// empty string when the optimizer is disabled.
func (c *Config) OptimizerBinary() string {
	if !c.Optimizer.Enabled {
		return ""
	}
	fields, err := shlex.Split(c.Optimizer.Command)
	if err != nil || len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ExpandPath resolves a leading "~" against the home directory and makes the
// result absolute. Empty input stays empty.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value[1:], "/"))
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

func defaultLogDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "tessera", "logs")
	}
	return "~/.local/state/tessera/logs"
}

// CreateSample writes the sample configuration to path, creating parent
// directories. Unless overwrite is set an existing file is left alone and the
// returned error wraps fs.ErrExist.
func CreateSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

// Encode writes the configuration as TOML, in the same layout Load reads.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}
