package scene

import (
	"tessera/internal/tilegeom"
)

// Model is a triangle mesh in world space with Y up.
type Model struct {
	Vertices  []tilegeom.Vec3
	Triangles [][3]int
	Bounds    tilegeom.AABB
}

// Triangle returns the three corners of triangle i.
func (m *Model) Triangle(i int) (a, b, c tilegeom.Vec3) {
	t := m.Triangles[i]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}
