package scene

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"tessera/internal/faults"
	"tessera/internal/tilegeom"
)

// Parser turns a scene file into a mesh.
type Parser interface {
	Parse(r io.Reader) (*Model, error)
}

// OBJParser reads the geometric subset of Wavefront OBJ: "v" vertices and
// "f" faces. Polygons are fan-triangulated; texture and normal indices are
// ignored, and negative indices count back from the latest vertex.
type OBJParser struct{}

func (OBJParser) Parse(r io.Reader) (*Model, error) {
	m := &Model{Bounds: tilegeom.EmptyAABB()}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "v":
			v, err := parseVertex(fields[1:])
			if err != nil {
				return nil, malformed(line, err)
			}
			m.Vertices = append(m.Vertices, v)
			m.Bounds = m.Bounds.Extend(v)
		case "f":
			if len(fields) < 4 {
				return nil, malformed(line, fmt.Errorf("face needs at least 3 vertices, got %d", len(fields)-1))
			}
			idx := make([]int, 0, len(fields)-1)
			for _, f := range fields[1:] {
				i, err := parseIndex(f, len(m.Vertices))
				if err != nil {
					return nil, malformed(line, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				m.Triangles = append(m.Triangles, [3]int{idx[0], idx[k], idx[k+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrResource, "load", "read", "", err)
	}
	if len(m.Vertices) == 0 {
		return nil, faults.Wrap(faults.ErrResource, "load", "parse", "no vertices", nil)
	}
	return m, nil
}

func parseVertex(fields []string) (tilegeom.Vec3, error) {
	if len(fields) < 3 {
		return tilegeom.Vec3{}, fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields))
	}
	var xyz [3]float64
	for i := range xyz {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return tilegeom.Vec3{}, fmt.Errorf("vertex coordinate %q: %w", fields[i], err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return tilegeom.Vec3{}, fmt.Errorf("vertex coordinate %q is not finite", fields[i])
		}
		xyz[i] = f
	}
	return tilegeom.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func parseIndex(field string, count int) (int, error) {
	head, _, _ := strings.Cut(field, "/")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("face index %q: %w", field, err)
	}
	switch {
	case n > 0 && n <= count:
		return n - 1, nil
	case n < 0 && -n <= count:
		return count + n, nil
	default:
		return 0, fmt.Errorf("face index %d out of range (have %d vertices)", n, count)
	}
}

func malformed(line int, err error) error {
	return faults.Wrap(faults.ErrResource, "load", "parse", fmt.Sprintf("line %d", line), err)
}
