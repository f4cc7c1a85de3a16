package sink

import (
	"context"

	"tessera/internal/faults"
	"tessera/internal/tile"
)

// Archive would pack every tile into one file at Path. Only the extension
// point exists: OpenArchive always fails, so no run starts against it.
type Archive struct {
	Path string
}

// OpenArchive reports ErrArchiveUnsupported as a configuration error.
func OpenArchive(path string) (*Archive, error) {
	return nil, faults.Wrap(faults.ErrConfiguration, "sink", "open archive", path, ErrArchiveUnsupported)
}

func (a *Archive) Persist(context.Context, tile.Encoded) error {
	return faults.Wrap(faults.ErrOutput, "sink", "archive", a.Path, ErrArchiveUnsupported)
}

func (a *Archive) Close() error { return nil }
