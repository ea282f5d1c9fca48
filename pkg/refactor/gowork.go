package refactor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// discoverWorkspaceModules walks up from rootPath to the nearest go.work and
// returns the module paths of its use directives. It returns nil when there
// is no go.work.
func discoverWorkspaceModules(rootPath string) ([]string, error) {
	workPath, err := findGoWork(rootPath)
	if err != nil || workPath == "" {
		return nil, err
	}
	content, err := os.ReadFile(workPath)
	if err != nil {
		return nil, err
	}
	work, err := modfile.ParseWork(workPath, content, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", workPath, err)
	}

	workRoot := filepath.Dir(workPath)
	var modules []string
	for _, use := range work.Use {
		dir := use.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workRoot, dir)
		}
		gomod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err != nil {
			continue
		}
		if path := modfile.ModulePath(gomod); path != "" {
			modules = append(modules, path)
		}
	}
	return modules, nil
}

func findGoWork(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, "go.work")
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
