package refactor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaar/goextract/pkg/types"
)

func TestApplyChanges(t *testing.T) {
	content := []byte("one two three")
	out, err := applyChanges(content, []types.Change{
		{Start: 8, End: 13, OldText: "three", NewText: "3"},
		{Start: 0, End: 3, OldText: "one", NewText: "1"},
		{Start: 4, End: 4, NewText: "and "},
	})
	require.NoError(t, err)
	assert.Equal(t, "1 and two 3", string(out))
}

func TestApplyChanges_Rejects(t *testing.T) {
	content := []byte("one two three")
	tests := map[string][]types.Change{
		"out of bounds": {{Start: 10, End: 20}},
		"reversed":      {{Start: 5, End: 2}},
		"overlap":       {{Start: 0, End: 5}, {Start: 4, End: 7}},
		"stale text":    {{Start: 0, End: 3, OldText: "two"}},
	}
	for name, changes := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := applyChanges(content, changes)
			assert.Error(t, err)
		})
	}
}

func TestSerializer_RenderFormatsGoFiles(t *testing.T) {
	s := NewSerializer(discardLogger())
	s.SetModuleInfo("example.com/demo", nil)
	src := "package demo\n\nimport \"example.com/demo/util\"\nimport \"fmt\"\n\nfunc f() {fmt.Println(util.X)}\n"

	out, err := s.Render("demo.go", []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, "package demo\n\nimport (\n\t\"fmt\"\n\n\t\"example.com/demo/util\"\n)\n\nfunc f() { fmt.Println(util.X) }\n", string(out))

	out, err = s.Render("notes.txt", []byte(src), nil)
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestSerializer_ApplyChangesWritesFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a\n\nvar x = 1\n")

	s := NewSerializer(discardLogger())
	written, err := s.ApplyChanges(nil, []types.Change{{File: path, Start: 19, End: 20, OldText: "1", NewText: "2"}})
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar x = 2\n", string(written[path]))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar x = 2\n", string(got))
}

func TestSerializer_ApplyChangesIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.go")
	bad := filepath.Join(dir, "b.go")
	writeFile(t, good, "package a\n\nvar x = 1\n")
	writeFile(t, bad, "package a\n\nvar y = 1\n")

	s := NewSerializer(discardLogger())
	_, err := s.ApplyChanges(nil, []types.Change{
		{File: good, Start: 19, End: 20, OldText: "1", NewText: "2"},
		{File: bad, Start: 19, End: 20, OldText: "9", NewText: "2"},
	})
	require.Error(t, err)

	got, err := os.ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nvar x = 1\n", string(got))
}

func TestGenerateDiff(t *testing.T) {
	diff, err := GenerateDiff("/src/a.go", []byte("a\nb\nc\n"), []byte("a\nB\nc\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diff, "--- a/src/a.go\n+++ b/src/a.go\n@@ -1,"), diff)
	assert.Contains(t, diff, " a\n-b\n+B\n c\n")

	same, err := GenerateDiff("a.go", []byte("a\n"), []byte("a\n"))
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestMinimalChange(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		want          types.Change
	}{
		{
			name:   "replaced line",
			before: "a\nb\nc\n",
			after:  "a\nB\nc\n",
			want:   types.Change{File: "f.go", Start: 2, End: 4, OldText: "b\n", NewText: "B\n"},
		},
		{
			name:   "inserted line",
			before: "a\nc\n",
			after:  "a\nb\nc\n",
			want:   types.Change{File: "f.go", Start: 2, End: 2, NewText: "b\n"},
		},
		{
			name:   "change inside a line",
			before: "x := 1\n",
			after:  "x := 2\n",
			want:   types.Change{File: "f.go", Start: 0, End: 7, OldText: "x := 1\n", NewText: "x := 2\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, minimalChange("f.go", []byte(tt.before), []byte(tt.after), ""))
		})
	}
}
