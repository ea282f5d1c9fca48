package refactor

import (
	"cmp"
	"go/ast"
	"go/parser"
	"go/token"
	"slices"
	"strconv"
	"strings"
)

// importGroup orders the sections of a rewritten import block.
type importGroup int

const (
	groupCgo importGroup = iota
	groupStd
	groupExternal
	groupWorkspace // another module of the go.work
	groupModule
)

type importLine struct {
	group   importGroup
	name    string
	path    string
	comment string
}

// organizeImports merges the import declarations of src into one block with
// a section per group, sorted by path. Sources that do not parse, or that
// carry doc comments on import declarations, are returned unchanged.
func organizeImports(src []byte, modulePath string, workspaceModules []string) []byte {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.ParseComments|parser.ImportsOnly)
	if err != nil {
		return src
	}

	var (
		lines      []importLine
		trailing   []*ast.CommentGroup
		start, end = -1, -1
	)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		if gen.Doc != nil {
			return src
		}
		if start < 0 {
			start = fset.Position(gen.Pos()).Offset
		}
		end = fset.Position(gen.End()).Offset
		for _, spec := range gen.Specs {
			is := spec.(*ast.ImportSpec)
			if is.Doc != nil {
				return src
			}
			path, err := strconv.Unquote(is.Path.Value)
			if err != nil {
				return src
			}
			line := importLine{path: path, group: classifyImport(path, modulePath, workspaceModules)}
			if is.Name != nil {
				line.name = is.Name.Name
			}
			if is.Comment != nil {
				trailing = append(trailing, is.Comment)
				line.comment = is.Comment.List[len(is.Comment.List)-1].Text
			}
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return src
	}
	// Free-standing comments inside the import declarations would be lost.
	for _, cg := range f.Comments {
		off := fset.Position(cg.Pos()).Offset
		if off >= start && off < end && !slices.Contains(trailing, cg) {
			return src
		}
	}

	slices.SortStableFunc(lines, func(a, b importLine) int {
		return cmp.Or(cmp.Compare(a.group, b.group), cmp.Compare(a.path, b.path))
	})
	lines = slices.CompactFunc(lines, func(a, b importLine) bool { return a == b })

	var out []byte
	out = append(out, src[:start]...)
	out = append(out, renderImports(lines)...)
	out = append(out, src[end:]...)
	return out
}

func classifyImport(path, modulePath string, workspaceModules []string) importGroup {
	within := func(mod string) bool {
		return mod != "" && (path == mod || strings.HasPrefix(path, mod+"/"))
	}
	switch {
	case path == "C":
		return groupCgo
	case within(modulePath):
		return groupModule
	case slices.ContainsFunc(workspaceModules, within):
		return groupWorkspace
	}
	first, _, _ := strings.Cut(path, "/")
	if !strings.Contains(first, ".") {
		return groupStd
	}
	return groupExternal
}

func renderImports(lines []importLine) string {
	var b strings.Builder
	b.WriteString("import (\n")
	for i, l := range lines {
		if i > 0 && l.group != lines[i-1].group {
			b.WriteByte('\n')
		}
		b.WriteByte('\t')
		if l.name != "" {
			b.WriteString(l.name + " ")
		}
		b.WriteString(strconv.Quote(l.path))
		if l.comment != "" {
			b.WriteString(" " + l.comment)
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String()
}
