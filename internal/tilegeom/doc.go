// Package tilegeom decides which tiles and zoom levels exist for a scene.
//
// A scene is tiled on its horizontal plane (world X and Z; Y is up). At zoom
// z one tile spans TileSize / (BasePixelsPerUnit * 2^z) world units, so each
// finer level halves the tile edge. The package is pure arithmetic and safe
// for concurrent use.
package tilegeom
