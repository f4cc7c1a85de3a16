// Package manifest records every persisted tile in a SQLite ledger.
//
// Each run gets a row in runs keyed by its run id; each tile position
// (scene, layer, zoom, x, z) keeps the most recent write with its format,
// byte size, and SHA-256. The Store implements the sink interface so the
// pipeline can fan tiles into it alongside the primary output.
//
// Schema changes bump schemaVersion in schema.go; an existing database with
// another version is refused and must be deleted.
package manifest
