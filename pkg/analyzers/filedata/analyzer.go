// Package filedata provides a pass-through analyzer that makes raw file
// content available to downstream analyzers via pass.ResultOf.
//
// The runner pre-populates the result with a *Data value containing
// per-file byte slices sourced from the workspace.
package filedata

import (
	"reflect"

	"golang.org/x/tools/go/analysis"
)

// Data holds raw file content indexed by the filename registered in
// token.FileSet. Extraction rewrites text, so it needs the bytes the AST
// was parsed from.
type Data struct {
	// Content maps token.Position.Filename → raw bytes.
	Content map[string][]byte
}

// Analyzer is a placeholder required by downstream analyzers so the runner
// can inject file content via pass.ResultOf[filedata.Analyzer].
var Analyzer = &analysis.Analyzer{
	Name:       "filedata",
	Doc:        "provides raw file content to downstream analyzers",
	Run:        run,
	ResultType: reflect.TypeOf((*Data)(nil)),
}

func run(pass *analysis.Pass) (any, error) {
	// Outside the workspace runner, read the files back from disk.
	data := &Data{Content: make(map[string][]byte)}
	for _, f := range pass.Files {
		name := pass.Fset.Position(f.Pos()).Filename
		if content, err := pass.ReadFile(name); err == nil {
			data.Content[name] = content
		}
	}
	return data, nil
}
