package render

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"slices"

	"github.com/gogpu/gg"

	"tessera/internal/faults"
	"tessera/internal/scene"
	"tessera/internal/tilegeom"
)

// SoftwareOptions configures the CPU rasteriser.
type SoftwareOptions struct {
	TileSize   int
	Background color.NRGBA
	Color      color.NRGBA
}

type triangle struct {
	a, b, c                tilegeom.Vec3
	minX, minZ, maxX, maxZ float64
	shade                  float64
}

// Software draws a top-down orthographic view of the bound mesh: world X maps
// to image columns, world Z to image rows, and faces are painted from lowest
// to highest so elevated geometry stays visible.
type Software struct {
	opts  SoftwareOptions
	dc    *gg.Context
	tris  []triangle
	bound bool
}

// NewSoftware returns a renderer producing TileSize×TileSize images.
func NewSoftware(opts SoftwareOptions) (*Software, error) {
	if opts.TileSize <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "render", "init", "tile size must be positive", nil)
	}
	return &Software{opts: opts, dc: gg.NewContext(opts.TileSize, opts.TileSize)}, nil
}

// NewSoftwarePool builds a pool of n software renderers.
func NewSoftwarePool(n int, opts SoftwareOptions) (*Pool, error) {
	if n <= 0 {
		return nil, faults.Wrap(faults.ErrConfiguration, "render", "init", "renderer count must be positive", nil)
	}
	renderers := make([]Renderer, 0, n)
	for range n {
		r, err := NewSoftware(opts)
		if err != nil {
			for _, made := range renderers {
				_ = made.Close()
			}
			return nil, err
		}
		renderers = append(renderers, r)
	}
	return NewPool(renderers), nil
}

func (s *Software) Bind(model *scene.Model) error {
	if model == nil {
		return errors.New("bind: nil model")
	}
	tris := make([]triangle, 0, len(model.Triangles))
	for i := range model.Triangles {
		a, b, c := model.Triangle(i)
		shade, ok := faceShade(a, b, c)
		if !ok {
			continue
		}
		tris = append(tris, triangle{
			a: a, b: b, c: c,
			minX:  min(a.X, b.X, c.X),
			minZ:  min(a.Z, b.Z, c.Z),
			maxX:  max(a.X, b.X, c.X),
			maxZ:  max(a.Z, b.Z, c.Z),
			shade: shade,
		})
	}
	slices.SortStableFunc(tris, func(p, q triangle) int {
		return cmp.Compare(p.a.Y+p.b.Y+p.c.Y, q.a.Y+q.b.Y+q.c.Y)
	})
	s.tris = tris
	s.bound = true
	return nil
}

// faceShade returns a brightness factor for a face from how directly it faces
// up. Faces seen edge-on from above are dropped.
func faceShade(a, b, c tilegeom.Vec3) (float64, bool) {
	ux, uy, uz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	vx, vy, vz := c.X-a.X, c.Y-a.Y, c.Z-a.Z
	nx := uy*vz - uz*vy
	ny := uz*vx - ux*vz
	nz := ux*vy - uy*vx
	length := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if length == 0 {
		return 0, false
	}
	up := math.Abs(ny) / length
	if up < 1e-6 {
		return 0, false
	}
	return 0.35 + 0.65*up, true
}

func (s *Software) RenderTile(ctx context.Context, coord tilegeom.Coordinate, bounds tilegeom.Rect) (*image.NRGBA, int, error) {
	if !s.bound {
		return nil, 0, faults.Wrap(faults.ErrRender, "render", "tile", "no scene bound", nil)
	}
	width := bounds.MaxX - bounds.MinX
	if width <= 0 || bounds.MaxZ-bounds.MinZ <= 0 {
		return nil, 0, faults.Wrap(faults.ErrRender, "render", "tile", fmt.Sprintf("degenerate bounds for %s", coord), nil)
	}
	size := float64(s.opts.TileSize)
	scale := size / width

	s.dc.ClearWithColor(gg.Transparent)
	base := s.opts.Color
	for i := range s.tris {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		t := &s.tris[i]
		if t.maxX < bounds.MinX || t.minX > bounds.MaxX || t.maxZ < bounds.MinZ || t.minZ > bounds.MaxZ {
			continue
		}
		s.dc.SetRGBA(
			float64(base.R)/255*t.shade,
			float64(base.G)/255*t.shade,
			float64(base.B)/255*t.shade,
			float64(base.A)/255,
		)
		s.dc.MoveTo((t.a.X-bounds.MinX)*scale, (t.a.Z-bounds.MinZ)*scale)
		s.dc.LineTo((t.b.X-bounds.MinX)*scale, (t.b.Z-bounds.MinZ)*scale)
		s.dc.LineTo((t.c.X-bounds.MinX)*scale, (t.c.Z-bounds.MinZ)*scale)
		s.dc.ClosePath()
		if err := s.dc.Fill(); err != nil {
			return nil, 0, faults.Wrap(faults.ErrRender, "render", "fill", coord.String(), err)
		}
	}

	layer := s.dc.Image()
	covered := coveredPixels(layer)

	out := image.NewNRGBA(image.Rect(0, 0, s.opts.TileSize, s.opts.TileSize))
	if s.opts.Background.A > 0 {
		draw.Draw(out, out.Bounds(), image.NewUniform(s.opts.Background), image.Point{}, draw.Src)
	}
	draw.Draw(out, out.Bounds(), layer, layer.Bounds().Min, draw.Over)
	return out, covered, nil
}

func coveredPixels(img image.Image) int {
	if rgba, ok := img.(*image.RGBA); ok {
		n := 0
		for i := 3; i < len(rgba.Pix); i += 4 {
			if rgba.Pix[i] != 0 {
				n++
			}
		}
		return n
	}
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				n++
			}
		}
	}
	return n
}

func (s *Software) Close() error {
	s.tris = nil
	s.bound = false
	return s.dc.Close()
}
