package tilegeom

import (
	"fmt"
	"iter"
	"math"

	"tessera/internal/faults"
)

// Vec3 is a point in world space.
type Vec3 struct {
	X, Y, Z float64
}

// AABB is an axis-aligned world-space bounding box.
type AABB struct {
	Min, Max Vec3
}

// Empty reports whether the box has never been extended.
func (b AABB) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

func (b AABB) finite() bool {
	for _, v := range [...]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Extend grows the box to include p.
func (b AABB) Extend(p Vec3) AABB {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
	return b
}

// EmptyAABB returns a box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// Rect is a world-space rectangle on the X/Z plane.
type Rect struct {
	MinX, MinZ, MaxX, MaxZ float64
}

// Coordinate identifies one tile.
type Coordinate struct {
	Zoom int
	X    int
	Z    int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d/%d.%d", c.Zoom, c.X, c.Z)
}

// Range is an inclusive tile index range at one zoom level.
type Range struct {
	Zoom       int
	MinX, MaxX int
	MinZ, MaxZ int
}

// Count returns the number of tiles in the range.
func (r Range) Count() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxZ - r.MinZ + 1)
}

// MaxZoomLevel is the deepest zoom level a geometry may produce.
const MaxZoomLevel = 30

// MaxTiles caps the tiles planned for a single scene.
const MaxTiles int64 = 1 << 32

// maxIndex keeps tile indices exactly representable as float64.
const maxIndex = 1 << 53

// Params holds the tiling inputs shared across scenes.
type Params struct {
	TileSize          int
	BasePixelsPerUnit float64
	MinPixelsPerUnit  float64
	Border            float64
	AutoZoom          bool
	MinZoom           *int
	MaxZoom           *int
}

// Geometry is the tiling plan for a single scene.
type Geometry struct {
	bounds  AABB
	params  Params
	minZoom int
	maxZoom int
}

// New validates params and computes the zoom range for bounds. Violations are
// reported with faults.ErrConfiguration before any work is scheduled.
func New(bounds AABB, params Params) (*Geometry, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if bounds.Empty() {
		return nil, faults.Wrap(faults.ErrResource, "geometry", "bounds", "scene has no vertices", nil)
	}
	if !bounds.finite() {
		return nil, faults.Wrap(faults.ErrResource, "geometry", "bounds", "scene bounds are not finite", nil)
	}
	g := &Geometry{bounds: bounds, params: params}
	g.maxZoom = g.computeMaxZoom()
	if params.MaxZoom != nil {
		g.maxZoom = *params.MaxZoom
	}
	if params.MinZoom != nil {
		g.minZoom = *params.MinZoom
		if params.MaxZoom == nil && g.minZoom > g.maxZoom {
			g.maxZoom = g.minZoom
		}
	} else {
		g.minZoom = min(g.computeMinZoom(), g.maxZoom)
	}
	if g.minZoom > g.maxZoom {
		return nil, configError(fmt.Sprintf("min zoom %d exceeds max zoom %d", g.minZoom, g.maxZoom))
	}
	if g.maxZoom > MaxZoomLevel {
		return nil, configError(fmt.Sprintf("max zoom %d exceeds limit %d", g.maxZoom, MaxZoomLevel))
	}
	if err := g.checkCapacity(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks params without a scene so misconfiguration surfaces before
// any scene is loaded.
func (p Params) Validate() error {
	switch {
	case p.TileSize <= 0:
		return configError("tile size must be positive")
	case p.BasePixelsPerUnit <= 0:
		return configError("base pixels per unit must be positive")
	case p.MinPixelsPerUnit <= 0 && p.AutoZoom:
		return configError("min pixels per unit must be positive")
	case p.Border < 0:
		return configError("border must be >= 0")
	case !p.AutoZoom && (p.MinZoom == nil || p.MaxZoom == nil):
		return configError("explicit min and max zoom are required when auto zoom is disabled")
	case p.MinZoom != nil && *p.MinZoom < 0, p.MaxZoom != nil && *p.MaxZoom < 0:
		return configError("zoom overrides must be >= 0")
	case p.MinZoom != nil && *p.MinZoom > MaxZoomLevel, p.MaxZoom != nil && *p.MaxZoom > MaxZoomLevel:
		return configError(fmt.Sprintf("zoom overrides must be <= %d", MaxZoomLevel))
	case p.MinZoom != nil && p.MaxZoom != nil && *p.MinZoom > *p.MaxZoom:
		return configError(fmt.Sprintf("min zoom %d exceeds max zoom %d", *p.MinZoom, *p.MaxZoom))
	}
	return nil
}

func configError(message string) error {
	return faults.Wrap(faults.ErrConfiguration, "geometry", "", message, nil)
}

// TileWorldSize returns the world-space edge length of one tile at zoom z.
func (g *Geometry) TileWorldSize(z int) float64 {
	return float64(g.params.TileSize) / (g.params.BasePixelsPerUnit * math.Exp2(float64(z)))
}

// PixelsPerUnit returns the rendering resolution at zoom z.
func (g *Geometry) PixelsPerUnit(z int) float64 {
	return g.params.BasePixelsPerUnit * math.Exp2(float64(z))
}

// MinZoom is the coarsest level produced.
func (g *Geometry) MinZoom() int { return g.minZoom }

// MaxZoom is the finest level produced.
func (g *Geometry) MaxZoom() int { return g.maxZoom }

// Levels returns the number of zoom levels produced.
func (g *Geometry) Levels() int { return g.maxZoom - g.minZoom + 1 }

// computeMinZoom finds the smallest level above zero at which the scene spans
// more than one tile on either horizontal axis.
func (g *Geometry) computeMinZoom() int {
	extent := math.Max(g.bounds.Max.X-g.bounds.Min.X, g.bounds.Max.Z-g.bounds.Min.Z)
	for z := 1; z < g.maxZoom; z++ {
		if extent > g.TileWorldSize(z) {
			return z
		}
	}
	return g.maxZoom
}

// computeMaxZoom returns ceil(log2(minPPU/basePPU)) + 1, never below 1.
func (g *Geometry) computeMaxZoom() int {
	if !g.params.AutoZoom || g.params.MinPixelsPerUnit <= 0 {
		return 1
	}
	ratio := g.params.MinPixelsPerUnit / g.params.BasePixelsPerUnit
	z := math.Ceil(math.Log2(ratio)) + 1
	if z > MaxZoomLevel {
		// Reported by New as exceeding the limit.
		return MaxZoomLevel + 1
	}
	return max(int(z), 1)
}

// TileRange returns the inclusive tile index range covering the scene bounds,
// padded by the border, at zoom z.
func (g *Geometry) TileRange(z int) Range {
	minX, maxX, minZ, maxZ := g.indices(z)
	return Range{Zoom: z, MinX: int(minX), MaxX: int(maxX), MinZ: int(minZ), MaxZ: int(maxZ)}
}

func (g *Geometry) indices(z int) (minX, maxX, minZ, maxZ float64) {
	size := g.TileWorldSize(z)
	border := g.params.Border
	return math.Floor((g.bounds.Min.X - border) / size),
		math.Floor((g.bounds.Max.X + border) / size),
		math.Floor((g.bounds.Min.Z - border) / size),
		math.Floor((g.bounds.Max.Z + border) / size)
}

// checkCapacity rejects plans whose tile sizes or indices cannot be
// represented, or whose tile count exceeds MaxTiles.
func (g *Geometry) checkCapacity() error {
	total := 0.0
	for z := g.minZoom; z <= g.maxZoom; z++ {
		if size := g.TileWorldSize(z); !(size > 0) || math.IsInf(size, 0) {
			return configError(fmt.Sprintf("tile world size %v at zoom %d is not usable", size, z))
		}
		minX, maxX, minZ, maxZ := g.indices(z)
		for _, v := range [...]float64{minX, maxX, minZ, maxZ} {
			if math.Abs(v) > maxIndex {
				return configError(fmt.Sprintf("tile index %v at zoom %d is out of range", v, z))
			}
		}
		total += (maxX - minX + 1) * (maxZ - minZ + 1)
	}
	if total > float64(MaxTiles) {
		return configError(fmt.Sprintf("scene needs %.0f tiles, limit is %d", total, MaxTiles))
	}
	return nil
}

// TileBounds returns the world rectangle covered by one tile.
func (g *Geometry) TileBounds(c Coordinate) Rect {
	size := g.TileWorldSize(c.Zoom)
	return Rect{
		MinX: float64(c.X) * size,
		MinZ: float64(c.Z) * size,
		MaxX: float64(c.X+1) * size,
		MaxZ: float64(c.Z+1) * size,
	}
}

// PaddedBounds returns TileBounds grown by the configured border.
func (g *Geometry) PaddedBounds(c Coordinate) Rect {
	r := g.TileBounds(c)
	b := g.params.Border
	return Rect{MinX: r.MinX - b, MinZ: r.MinZ - b, MaxX: r.MaxX + b, MaxZ: r.MaxZ + b}
}

// Count returns the total number of tiles across all levels.
func (g *Geometry) Count() int {
	total := 0
	for z := g.minZoom; z <= g.maxZoom; z++ {
		total += g.TileRange(z).Count()
	}
	return total
}

// Tiles yields every tile coordinate, coarse levels first.
func (g *Geometry) Tiles() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		for z := g.minZoom; z <= g.maxZoom; z++ {
			r := g.TileRange(z)
			for x := r.MinX; x <= r.MaxX; x++ {
				for tz := r.MinZ; tz <= r.MaxZ; tz++ {
					if !yield(Coordinate{Zoom: z, X: x, Z: tz}) {
						return
					}
				}
			}
		}
	}
}
