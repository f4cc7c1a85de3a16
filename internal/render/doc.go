// Package render turns loaded scenes into tile images.
//
// Renderer instances are expensive and not safe for concurrent use, so the
// pipeline borrows them from a fixed-size Pool. A lease pins one renderer to
// one scene for the scene's entire tile set.
package render
