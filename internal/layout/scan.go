package layout

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ScanConfig controls layout-file discovery.
type ScanConfig struct {
	RootDir string
	Include []string // glob patterns; empty means "**/*.layout.json"
	Exclude []string // glob patterns; matching files are skipped
}

// Scan walks the layout directory and returns the paths of all layout
// files that pass the include/exclude patterns, sorted by path.
func Scan(cfg ScanConfig) ([]string, error) {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("layout scan: resolve root: %w", err)
	}

	include := cfg.Include
	if len(include) == 0 {
		include = []string{"**/*.layout.json"}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Skip entries we cannot read instead of aborting.
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !matchAny(include, rel) {
			return nil
		}
		if matchAny(cfg.Exclude, rel) {
			return nil
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("layout scan: %w", err)
	}

	return paths, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
