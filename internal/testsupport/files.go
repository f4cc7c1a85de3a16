package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteExecutable writes a #!/bin/sh script with the given body.
func WriteExecutable(t testing.TB, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScene writes an OBJ document to dir/rel, creating parents.
func WriteScene(t testing.TB, dir, rel, obj string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(obj), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// CubeOBJ returns an axis-aligned cube of the given edge length with one
// corner at the origin, as an OBJ document with quad faces.
func CubeOBJ(size float64) string {
	var b strings.Builder
	for _, v := range [][3]float64{
		{0, 0, 0}, {size, 0, 0}, {size, 0, size}, {0, 0, size},
		{0, size, 0}, {size, size, 0}, {size, size, size}, {0, size, size},
	} {
		fmt.Fprintf(&b, "v %g %g %g\n", v[0], v[1], v[2])
	}
	for _, f := range []string{
		"1 2 3 4", "5 8 7 6", "1 5 6 2", "2 6 7 3", "3 7 8 4", "4 8 5 1",
	} {
		b.WriteString("f " + f + "\n")
	}
	return b.String()
}
