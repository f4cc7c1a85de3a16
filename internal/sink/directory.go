package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"tessera/internal/faults"
	"tessera/internal/fileutil"
	"tessera/internal/tile"
)

// LockName is the lock file a directory sink holds in its root for the
// lifetime of a run.
const LockName = ".tessera.lock"

// Directory writes each tile to <root>/<scene>/<file>.
type Directory struct {
	root string
	lock *flock.Flock
}

// OpenDirectory creates root if needed and takes an exclusive lock on it so
// two runs never write the same tree.
func OpenDirectory(root string) (*Directory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "sink", "create root", root, err)
	}
	lock := flock.New(filepath.Join(root, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "sink", "lock", root, err)
	}
	if !ok {
		return nil, faults.Wrap(faults.ErrOutput, "sink", "lock", fmt.Sprintf("%s is in use by another run", root), nil)
	}
	return &Directory{root: root, lock: lock}, nil
}

// Path returns where t is stored.
func (d *Directory) Path(t tile.Encoded) (string, error) {
	rel := filepath.Join(filepath.FromSlash(t.Scene), t.Filename())
	if !filepath.IsLocal(rel) {
		return "", faults.Wrap(faults.ErrOutput, "sink", "path", fmt.Sprintf("tile %s escapes the output root", t), nil)
	}
	return filepath.Join(d.root, rel), nil
}

func (d *Directory) Persist(ctx context.Context, t tile.Encoded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := d.Path(t)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(target, t.Data, 0o644); err != nil {
		return faults.Wrap(faults.ErrOutput, "sink", "write", target, err)
	}
	return nil
}

// Close releases the directory lock.
func (d *Directory) Close() error {
	if err := d.lock.Unlock(); err != nil {
		return faults.Wrap(faults.ErrOutput, "sink", "unlock", d.root, err)
	}
	return nil
}
