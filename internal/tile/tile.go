// Package tile defines the values that flow between the render, encode, and
// output stages.
package tile

import (
	"fmt"
	"image"

	"tessera/internal/codec"
	"tessera/internal/tilegeom"
)

// Key identifies a tile across scenes and layers.
type Key struct {
	Scene string
	Layer string
	Coord tilegeom.Coordinate
}

// Name returns the file stem used by directory-style sinks:
// <layer>-<zoom>-<x>.<z>.
func (k Key) Name() string {
	return fmt.Sprintf("%s-%d-%d.%d", k.Layer, k.Coord.Zoom, k.Coord.X, k.Coord.Z)
}

func (k Key) String() string {
	return k.Scene + "/" + k.Name()
}

// Raw is a rendered, not yet encoded tile. Pixels is owned by the holder and
// must not be used after the tile is handed downstream.
type Raw struct {
	Key
	Pixels  *image.NRGBA
	Covered int
}

// Encoded is a compressed tile ready for a sink.
type Encoded struct {
	Key
	Format codec.Format
	Data   []byte
}

// Filename returns the tile's file name including its format extension.
func (e Encoded) Filename() string {
	return e.Name() + e.Format.Extension()
}
