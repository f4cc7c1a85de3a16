package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScenes()
	c.normalizeEncoding()
	c.normalizeOptimizer()
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir()
	}
	fields := []struct {
		key string
		ptr *string
	}{
		{"paths.input_dir", &c.Paths.InputDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.archive_path", &c.Paths.ArchivePath},
		{"paths.manifest_path", &c.Paths.ManifestPath},
		{"paths.temp_dir", &c.Paths.TempDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, f := range fields {
		expanded, err := ExpandPath(strings.TrimSpace(*f.ptr))
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.ptr = expanded
	}
	return nil
}

func (c *Config) normalizeScenes() {
	c.Scenes.Pattern = strings.TrimSpace(c.Scenes.Pattern)
	if c.Scenes.Pattern == "" {
		c.Scenes.Pattern = defaultScenePattern
	}
	c.Scenes.Layer = strings.TrimSpace(c.Scenes.Layer)
	if c.Scenes.Layer == "" {
		c.Scenes.Layer = defaultLayer
	}
}

func (c *Config) normalizeEncoding() {
	c.Encoding.Format = strings.ToLower(strings.TrimSpace(c.Encoding.Format))
	if c.Encoding.Format == "" {
		c.Encoding.Format = defaultEncodingFormat
	}
	if c.Encoding.Quality == 0 {
		c.Encoding.Quality = defaultEncodingQuality
	}
}

func (c *Config) normalizeOptimizer() {
	c.Optimizer.Command = strings.TrimSpace(c.Optimizer.Command)
	if c.Optimizer.Command == "" {
		if value, ok := os.LookupEnv("TESSERA_OPTIMIZER_COMMAND"); ok {
			c.Optimizer.Command = strings.TrimSpace(value)
		}
	}
	c.Optimizer.IntermediateFormat = strings.ToLower(strings.TrimSpace(c.Optimizer.IntermediateFormat))
	if c.Optimizer.IntermediateFormat == "" {
		c.Optimizer.IntermediateFormat = defaultIntermediateFormat
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Encoder.Parallelism == 0 {
		c.Pipeline.Encoder.Parallelism = runtime.NumCPU()
	}
	for _, stage := range []*Stage{&c.Pipeline.Encoder, &c.Pipeline.Optimizer, &c.Pipeline.Output} {
		if stage.Capacity == 0 {
			stage.Capacity = defaultStageCapacity
		}
	}
	c.Pipeline.FailurePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.FailurePolicy))
	if c.Pipeline.FailurePolicy == "" {
		c.Pipeline.FailurePolicy = defaultFailurePolicy
	}
	if c.Pipeline.ProgressInterval <= 0 {
		c.Pipeline.ProgressInterval = defaultProgressInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
