package scene

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"tessera/internal/faults"
	"tessera/internal/tilegeom"
)

// Loaded is a parsed scene together with its tiling plan and display name.
type Loaded struct {
	Resource
	Model    *Model
	Geometry *tilegeom.Geometry
}

// Loader reads resources from a namespace and prepares them for rendering.
type Loader struct {
	FS     fs.FS
	Parser Parser
	Params tilegeom.Params
}

// Load parses res and computes its tile geometry.
func (l *Loader) Load(ctx context.Context, res Resource) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := l.FS.Open(res.Path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrResource, "load", "open", res.Path, err)
	}
	defer file.Close()

	parser := l.Parser
	if parser == nil {
		parser = OBJParser{}
	}
	model, err := parser.Parse(file)
	if err != nil {
		if errors.Is(err, faults.ErrResource) {
			return nil, fmt.Errorf("%s: %w", res.Path, err)
		}
		return nil, faults.Wrap(faults.ErrResource, "load", "parse", res.Path, err)
	}
	geom, err := tilegeom.New(model.Bounds, l.Params)
	if err != nil {
		return nil, err
	}
	return &Loaded{Resource: res, Model: model, Geometry: geom}, nil
}
