package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tessera/internal/config"
	"tessera/internal/faults"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("TESSERA_CONFIG", "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.InputDir != filepath.Join(tempHome, "scenes") {
		t.Fatalf("unexpected input dir: %q", cfg.Paths.InputDir)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "tiles") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	wantLogs := filepath.Join(tempHome, ".local", "state", "tessera", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Paths.ArchivePath != "" {
		t.Fatalf("expected archive sink disabled, got %q", cfg.Paths.ArchivePath)
	}
	if !cfg.Tiling.AutoZoom {
		t.Fatal("expected auto zoom enabled by default")
	}
	if cfg.Pipeline.Encoder.Parallelism != runtime.NumCPU() {
		t.Fatalf("unexpected encoder parallelism: %d", cfg.Pipeline.Encoder.Parallelism)
	}
	if cfg.Pipeline.FailurePolicy != config.FailurePolicyAbort {
		t.Fatalf("unexpected failure policy: %q", cfg.Pipeline.FailurePolicy)
	}
	if cfg.OptimizerBinary() != "" {
		t.Fatalf("expected no optimizer binary when disabled, got %q", cfg.OptimizerBinary())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "tessera.toml")

	type payload struct {
		Paths struct {
			InputDir  string `toml:"input_dir"`
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Tiling struct {
			TileSize int  `toml:"tile_size"`
			AutoZoom bool `toml:"auto_zoom"`
			MinZoom  int  `toml:"min_zoom"`
			MaxZoom  int  `toml:"max_zoom"`
		} `toml:"tiling"`
		Encoding struct {
			Format string `toml:"format"`
		} `toml:"encoding"`
	}
	custom := payload{}
	custom.Paths.InputDir = filepath.Join(tempDir, "in")
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Tiling.TileSize = 512
	custom.Tiling.AutoZoom = false
	custom.Tiling.MinZoom = 1
	custom.Tiling.MaxZoom = 4
	custom.Encoding.Format = "JPEG"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Tiling.TileSize != 512 {
		t.Fatalf("unexpected tile size: %d", cfg.Tiling.TileSize)
	}
	if cfg.Tiling.MinZoom == nil || *cfg.Tiling.MinZoom != 1 {
		t.Fatalf("unexpected min zoom: %v", cfg.Tiling.MinZoom)
	}
	if cfg.Tiling.MaxZoom == nil || *cfg.Tiling.MaxZoom != 4 {
		t.Fatalf("unexpected max zoom: %v", cfg.Tiling.MaxZoom)
	}
	if cfg.Encoding.Format != "jpeg" {
		t.Fatalf("expected lower-cased format, got %q", cfg.Encoding.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tessera.toml")
	if err := os.WriteFile(configPath, []byte("[tiling]\ntile_sise = 256\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "tile_sise") {
		t.Fatalf("expected unknown key in error, got %v", err)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "sample.toml")
	if err := config.CreateSample(path, false); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if err := config.CreateSample(path, false); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("second CreateSample should refuse to overwrite, got %v", err)
	}
	if err := config.CreateSample(path, true); err != nil {
		t.Fatalf("CreateSample overwrite: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Optimizer.Enabled {
		t.Fatal("sample config should leave the optimizer disabled")
	}
}

func TestOptimizerEnvFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TESSERA_OPTIMIZER_COMMAND", "pngcrush {input} {output}")
	configPath := filepath.Join(t.TempDir(), "tessera.toml")
	if err := os.WriteFile(configPath, []byte("[optimizer]\nenabled = true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Optimizer.Command != "pngcrush {input} {output}" {
		t.Fatalf("unexpected optimizer command: %q", cfg.Optimizer.Command)
	}
	if got := cfg.OptimizerBinary(); got != "pngcrush" {
		t.Fatalf("unexpected optimizer binary: %q", got)
	}
}

func intPtr(v int) *int { return &v }

func TestValidateRejectsContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name: "both sinks",
			mutate: func(c *config.Config) {
				c.Paths.ArchivePath = "/tmp/tiles.zip"
			},
			want: "mutually exclusive",
		},
		{
			name: "no sink",
			mutate: func(c *config.Config) {
				c.Paths.OutputDir = ""
			},
			want: "must be set",
		},
		{
			name: "manual zoom without bounds",
			mutate: func(c *config.Config) {
				c.Tiling.AutoZoom = false
				c.Tiling.MinZoom = intPtr(1)
			},
			want: "required when tiling.auto_zoom is false",
		},
		{
			name: "inverted zoom overrides",
			mutate: func(c *config.Config) {
				c.Tiling.MinZoom = intPtr(5)
				c.Tiling.MaxZoom = intPtr(2)
			},
			want: "must not exceed",
		},
		{
			name: "zoom override too deep",
			mutate: func(c *config.Config) {
				c.Tiling.MaxZoom = intPtr(40)
			},
			want: "tiling.max_zoom must be between 0 and 30",
		},
		{
			name: "optimizer without placeholders",
			mutate: func(c *config.Config) {
				c.Optimizer.Enabled = true
				c.Optimizer.Command = "oxipng input.png"
			},
			want: "{input} and {output}",
		},
		{
			name: "unknown format",
			mutate: func(c *config.Config) {
				c.Encoding.Format = "webp"
			},
			want: "encoding.format",
		},
		{
			name: "zero renderers",
			mutate: func(c *config.Config) {
				c.Pipeline.Renderers = 0
			},
			want: "pipeline.renderers must be positive",
		},
		{
			name: "unknown failure policy",
			mutate: func(c *config.Config) {
				c.Pipeline.FailurePolicy = "retry"
			},
			want: "pipeline.failure_policy",
		},
		{
			name: "bad colour",
			mutate: func(c *config.Config) {
				c.Render.Color = "green"
			},
			want: "render.color",
		},
		{
			name: "layer with separator",
			mutate: func(c *config.Config) {
				c.Scenes.Layer = "base-1"
			},
			want: "scenes.layer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, faults.ErrConfiguration) {
				t.Fatalf("expected configuration marker, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidateAcceptsArchiveOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = ""
	cfg.Paths.ArchivePath = "/tmp/tiles.zip"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("archive-only config should validate: %v", err)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b uint8
		a       uint8
		wantErr bool
	}{
		{in: "#fff", r: 255, g: 255, b: 255, a: 255},
		{in: "#102030", r: 0x10, g: 0x20, b: 0x30, a: 255},
		{in: "#10203040", r: 0x10, g: 0x20, b: 0x30, a: 0x40},
		{in: "#00000000"},
		{in: "#12345", wantErr: true},
		{in: "#zzzzzz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := config.ParseHexColor(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHexColor(%q): %v", tt.in, err)
			}
			if got.R != tt.r || got.G != tt.g || got.B != tt.b || got.A != tt.a {
				t.Fatalf("ParseHexColor(%q) = %+v", tt.in, got)
			}
		})
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.Paths.InputDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Pipeline.FailurePolicy = config.FailurePolicySkipScene

	var buf strings.Builder
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "roundtrip.toml")
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load encoded config: %v\n%s", err, buf.String())
	}
	if loaded.Paths.InputDir != cfg.Paths.InputDir || loaded.Pipeline.FailurePolicy != config.FailurePolicySkipScene {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}

func TestLoadResolutionOrder(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TESSERA_CONFIG", "")
	t.Chdir(work)

	write := func(path, layer string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("[scenes]\nlayer = \""+layer+"\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	userPath := filepath.Join(home, ".config", "tessera", "config.toml")
	projectPath := filepath.Join(work, "tessera.toml")
	envPath := filepath.Join(t.TempDir(), "env.toml")
	write(userPath, "user")

	load := func(flag string) (string, string) {
		t.Helper()
		cfg, resolved, exists, err := config.Load(flag)
		if err != nil {
			t.Fatalf("Load(%q): %v", flag, err)
		}
		if !exists {
			t.Fatalf("Load(%q) resolved %s but reported no file", flag, resolved)
		}
		return cfg.Scenes.Layer, resolved
	}

	if layer, _ := load(""); layer != "user" {
		t.Fatalf("expected user config, got layer %q", layer)
	}
	write(projectPath, "project")
	if layer, _ := load(""); layer != "project" {
		t.Fatalf("project file should win over user config, got %q", layer)
	}
	write(envPath, "env")
	t.Setenv("TESSERA_CONFIG", envPath)
	if layer, resolved := load(""); layer != "env" || resolved != envPath {
		t.Fatalf("TESSERA_CONFIG should win, got %q from %s", layer, resolved)
	}
	if layer, _ := load(userPath); layer != "user" {
		t.Fatalf("explicit flag should win, got %q", layer)
	}
}
