package scene

import (
	"context"
	"io/fs"
	"iter"
	"path"
	"strings"

	"tessera/internal/faults"
)

// Resource is a handle to one discovered scene file.
type Resource struct {
	// Path is the slash-separated location inside the namespace.
	Path string
	// Name is Path without its extension; it becomes the scene's output
	// directory.
	Name string
}

func newResource(p string) Resource {
	return Resource{Path: p, Name: strings.TrimSuffix(p, path.Ext(p))}
}

// Select walks fsys breadth-first from its root and yields every file whose
// base name matches pattern (case-insensitive path.Match syntax). Hidden
// entries are skipped. A directory that cannot be read stops the walk with a
// resource error.
func Select(ctx context.Context, fsys fs.FS, pattern string) iter.Seq2[Resource, error] {
	pattern = strings.ToLower(pattern)
	return func(yield func(Resource, error) bool) {
		if _, err := path.Match(pattern, ""); err != nil {
			yield(Resource{}, faults.Wrap(faults.ErrConfiguration, "select", "pattern", pattern, err))
			return
		}
		queue := []string{"."}
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(Resource{}, err)
				return
			}
			dir := queue[0]
			queue = queue[1:]

			entries, err := fs.ReadDir(fsys, dir)
			if err != nil {
				yield(Resource{}, faults.Wrap(faults.ErrResource, "select", "read dir", dir, err))
				return
			}
			for _, entry := range entries {
				name := entry.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				full := path.Join(dir, name)
				if entry.IsDir() {
					queue = append(queue, full)
					continue
				}
				if !entry.Type().IsRegular() {
					continue
				}
				if ok, _ := path.Match(pattern, strings.ToLower(name)); !ok {
					continue
				}
				if !yield(newResource(full), nil) {
					return
				}
			}
		}
	}
}
