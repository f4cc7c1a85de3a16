// Package scene discovers scene files, parses them into triangle meshes, and
// pairs each mesh with its tiling plan.
//
// Resources are addressed through an io/fs.FS so the pipeline can read from a
// directory tree (os.DirFS) or from an in-memory tree in tests. Discovery is
// breadth-first: every entry of a directory is considered before any of its
// subdirectories is entered.
package scene
