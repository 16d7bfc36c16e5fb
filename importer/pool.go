package importer

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// PoolKinds maps each kind of pool file to its name pattern.
var PoolKinds = map[string]string{
	"app":       "app_*.csv",
	"jobs":      "jobs_*.csv",
	"stages":    "stages_*.csv",
	"tasks":     "tasks_*.csv",
	"lua":       "*.lua",
	"ConfigApp": "ConfigApp_*.txt",
}

// ListPool returns the sorted base names of the pool files, by kind. Every
// kind is present, possibly with an empty list.
func ListPool(pool string) (map[string][]string, error) {
	files := map[string][]string{}
	for kind, pattern := range PoolKinds {
		matches, err := filepath.Glob(filepath.Join(pool, pattern))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		names := []string{}
		for _, m := range matches {
			if isRegular(m) {
				names = append(names, filepath.Base(m))
			}
		}
		sort.Strings(names)
		files[kind] = names
	}
	return files, nil
}
