// Package sink persists encoded tiles.
//
// A run writes through exactly one primary sink: a directory tree
// (<root>/<scene>/<layer>-<zoom>-<x>.<z><ext>) or an archive. The archive is
// an extension point without an implementation; selecting it fails before any
// work is scheduled. Multi fans one tile stream out to several sinks, such as
// the primary sink plus the manifest ledger.
package sink

import (
	"context"
	"errors"
	"strings"

	"tessera/internal/config"
	"tessera/internal/faults"
	"tessera/internal/tile"
)

// Sink accepts encoded tiles. Persist may be called from several goroutines.
type Sink interface {
	Persist(ctx context.Context, t tile.Encoded) error
	Close() error
}

var (
	// ErrDeclined is returned by a sink that chose not to store a tile. Multi
	// treats it as consumed.
	ErrDeclined = errors.New("tile declined")
	// ErrArchiveUnsupported is returned when the archive sink is selected.
	ErrArchiveUnsupported = errors.New("archive output is not supported")
)

// Open builds the primary sink selected by cfg. Exactly one of
// paths.output_dir and paths.archive_path must be set.
func Open(cfg *config.Config) (Sink, error) {
	dir := strings.TrimSpace(cfg.Paths.OutputDir)
	archive := strings.TrimSpace(cfg.Paths.ArchivePath)
	switch {
	case dir != "" && archive != "":
		return nil, faults.Wrap(faults.ErrConfiguration, "sink", "open", "both output_dir and archive_path are set", nil)
	case dir == "" && archive == "":
		return nil, faults.Wrap(faults.ErrConfiguration, "sink", "open", "no output sink configured", nil)
	case archive != "":
		return OpenArchive(archive)
	default:
		return OpenDirectory(dir)
	}
}
