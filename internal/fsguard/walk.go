package fsguard

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnorePatterns mirrors the teacher's directory-tree ignore
// list, narrowed to what matters for a scan target: dependency and
// build directories a security scanner should never walk into.
var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	".git/",
	"__pycache__/",
	".terraform/",
	"dist/",
	"build/",
	".remediation/",
}

// WalkTarget visits every regular file under root that isn't excluded
// by .gitignore or the default ignore list, calling fn with each
// relative path. Used by scanners that need a file list rather than a
// shell-exec'd external tool.
func WalkTarget(root string, fn func(relPath string) error) error {
	patterns := append([]string{}, defaultIgnorePatterns...)
	if content, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, strings.Split(string(content), "\n")...)
	}
	matcher := ignore.CompileIgnoreLines(patterns...)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.MatchesPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		return fn(rel)
	})
}
