package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkspaceFindFile(t *testing.T) {
	root := filepath.FromSlash("/work/mod")
	dir := filepath.Join(root, "internal", "calc")
	pkg := &Package{
		Path:      dir,
		Dir:       dir,
		Name:      "calc",
		Files:     map[string]*File{"calc.go": {Path: filepath.Join(dir, "calc.go")}},
		TestFiles: map[string]*File{"calc_test.go": {Path: filepath.Join(dir, "calc_test.go")}},
	}
	ws := &Workspace{
		RootPath: root,
		Module:   &Module{Path: "example.com/mod", GoVersion: "1.25"},
		Packages: map[string]*Package{dir: pkg},
	}

	f, p, ok := ws.FindFile("internal/calc/calc.go")
	assert.True(t, ok)
	assert.Same(t, pkg, p)
	assert.Equal(t, filepath.Join(dir, "calc.go"), f.Path)

	_, _, ok = ws.FindFile(filepath.Join(dir, "calc_test.go"))
	assert.True(t, ok)

	_, _, ok = ws.FindFile("internal/calc/missing.go")
	assert.False(t, ok)

	assert.Equal(t, "1.25", ws.GoVersion())
	assert.Equal(t, "", (&Workspace{}).GoVersion())
}
