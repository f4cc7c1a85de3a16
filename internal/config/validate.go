package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"tessera/internal/codec"
	"tessera/internal/faults"
	"tessera/internal/tilegeom"
)

// Validate ensures the configuration is usable. Every returned error matches
// faults.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.validateSinks(); err != nil {
		return err
	}
	if err := c.validateScenes(); err != nil {
		return err
	}
	if err := c.validateTiling(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateOptimizer(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validateSinks() error {
	hasDir := strings.TrimSpace(c.Paths.OutputDir) != ""
	hasArchive := strings.TrimSpace(c.Paths.ArchivePath) != ""
	switch {
	case hasDir && hasArchive:
		return invalid("paths.output_dir and paths.archive_path are mutually exclusive; set exactly one")
	case !hasDir && !hasArchive:
		return invalid("one of paths.output_dir or paths.archive_path must be set")
	}
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		return invalid("paths.input_dir must be set")
	}
	return nil
}

func (c *Config) validateScenes() error {
	if strings.ContainsAny(c.Scenes.Layer, `/\`) {
		return invalid("scenes.layer must not contain path separators")
	}
	if strings.Contains(c.Scenes.Layer, "-") {
		return invalid("scenes.layer must not contain '-' (used as the tile name separator)")
	}
	return nil
}

func (c *Config) validateTiling() error {
	t := c.Tiling
	if t.TileSize <= 0 {
		return invalid("tiling.tile_size must be positive")
	}
	if t.BasePixelsPerUnit <= 0 {
		return invalid("tiling.base_pixels_per_unit must be positive")
	}
	if t.MinPixelsPerUnit <= 0 {
		return invalid("tiling.min_pixels_per_unit must be positive")
	}
	if t.Border < 0 {
		return invalid("tiling.border must be >= 0")
	}
	if t.MinZoom != nil && (*t.MinZoom < 0 || *t.MinZoom > tilegeom.MaxZoomLevel) {
		return invalid(fmt.Sprintf("tiling.min_zoom must be between 0 and %d", tilegeom.MaxZoomLevel))
	}
	if t.MaxZoom != nil && (*t.MaxZoom < 0 || *t.MaxZoom > tilegeom.MaxZoomLevel) {
		return invalid(fmt.Sprintf("tiling.max_zoom must be between 0 and %d", tilegeom.MaxZoomLevel))
	}
	if t.MinZoom != nil && t.MaxZoom != nil && *t.MinZoom > *t.MaxZoom {
		return invalid("tiling.min_zoom must not exceed tiling.max_zoom")
	}
	if !t.AutoZoom && (t.MinZoom == nil || t.MaxZoom == nil) {
		return invalid("tiling.min_zoom and tiling.max_zoom are required when tiling.auto_zoom is false")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if _, err := codec.ParseFormat(c.Encoding.Format); err != nil {
		return invalid(fmt.Sprintf("encoding.format: %v", err))
	}
	if c.Encoding.Quality < 1 || c.Encoding.Quality > 100 {
		return invalid("encoding.quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateOptimizer() error {
	if !c.Optimizer.Enabled {
		return nil
	}
	if c.Optimizer.Command == "" {
		return invalid("optimizer.command must be set when optimizer.enabled is true (or set TESSERA_OPTIMIZER_COMMAND)")
	}
	if !strings.Contains(c.Optimizer.Command, "{input}") || !strings.Contains(c.Optimizer.Command, "{output}") {
		return invalid("optimizer.command must reference both {input} and {output}")
	}
	if _, err := codec.ParseFormat(c.Optimizer.IntermediateFormat); err != nil {
		return invalid(fmt.Sprintf("optimizer.intermediate_format: %v", err))
	}
	return nil
}

func (c *Config) validateRender() error {
	if _, err := ParseHexColor(c.Render.Background); err != nil {
		return invalid(fmt.Sprintf("render.background: %v", err))
	}
	if _, err := ParseHexColor(c.Render.Color); err != nil {
		return invalid(fmt.Sprintf("render.color: %v", err))
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if err := ensurePositiveMap(map[string]int{
		"pipeline.renderers":             p.Renderers,
		"pipeline.encoder.parallelism":   p.Encoder.Parallelism,
		"pipeline.encoder.capacity":      p.Encoder.Capacity,
		"pipeline.optimizer.parallelism": p.Optimizer.Parallelism,
		"pipeline.optimizer.capacity":    p.Optimizer.Capacity,
		"pipeline.output.parallelism":    p.Output.Parallelism,
		"pipeline.output.capacity":       p.Output.Capacity,
	}); err != nil {
		return err
	}
	switch p.FailurePolicy {
	case FailurePolicyAbort, FailurePolicySkipScene:
	default:
		return invalid(fmt.Sprintf("pipeline.failure_policy must be %q or %q", FailurePolicyAbort, FailurePolicySkipScene))
	}
	if p.MaxProcs < 0 {
		return invalid("pipeline.max_procs must be >= 0")
	}
	if p.GCPercent < -1 {
		return invalid("pipeline.gc_percent must be >= -1")
	}
	return nil
}

// ParseHexColor parses #rgb, #rrggbb, or #rrggbbaa notation.
func ParseHexColor(value string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", value)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return invalid(key + " must be positive")
		}
	}
	return nil
}

func invalid(message string) error {
	return faults.Wrap(faults.ErrConfiguration, "config", "validate", message, nil)
}
