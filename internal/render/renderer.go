package render

import (
	"context"
	"image"

	"tessera/internal/scene"
	"tessera/internal/tilegeom"
)

// Renderer draws tiles for the scene currently bound to it.
type Renderer interface {
	// Bind prepares the renderer for a new scene, replacing any previous one.
	Bind(model *scene.Model) error
	// RenderTile draws the world rectangle bounds into a fresh image and
	// reports how many pixels the scene covered.
	RenderTile(ctx context.Context, coord tilegeom.Coordinate, bounds tilegeom.Rect) (*image.NRGBA, int, error)
	// Close releases the renderer's resources.
	Close() error
}
