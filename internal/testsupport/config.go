package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tessera/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Scene input, tile output, temp, and log directories live under one base
// directory; the scene directory is created so tests can write into it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "scenes")
	cfgVal.Paths.OutputDir = filepath.Join(base, "tiles")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Pipeline.Encoder.Parallelism = 2
	cfgVal.Pipeline.ProgressInterval = 1
	if err := os.MkdirAll(cfgVal.Paths.InputDir, 0o755); err != nil {
		t.Fatalf("mkdir scenes: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTileSize overrides the tile edge length and base resolution.
func WithTileSize(size int, basePPU, minPPU float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tiling.TileSize = size
		b.cfg.Tiling.BasePixelsPerUnit = basePPU
		b.cfg.Tiling.MinPixelsPerUnit = minPPU
	}
}

// WithManifest enables the SQLite manifest under the base directory.
func WithManifest() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.ManifestPath = filepath.Join(b.baseDir, "manifest.db")
	}
}

// WithOptimizerScript writes body as an executable shell script, puts its
// directory first on PATH for the rest of the test, and enables the optimizer
// with "<name> {input} {output}".
func WithOptimizerScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		WriteExecutable(b.t, filepath.Join(binDir, name), body)
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
		b.cfg.Optimizer.Enabled = true
		b.cfg.Optimizer.Command = name + " {input} {output}"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.InputDir)
}
