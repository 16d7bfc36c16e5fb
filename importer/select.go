package importer

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ScriptPattern locates the lua scripts of a benchmark tree relative to its
// root: <cores>/<query>/logs/<run>/<script>.lua.
const ScriptPattern = "**/logs/*/*.lua"

// queryOf is the directory three levels above a script.
func queryOf(script string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(script))))
}

// coreFolderOf is the directory four levels above a script.
func coreFolderOf(script string) string {
	return filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(script))))
}

// coreCount parses the integer before the first underscore of a core
// folder name, as in "30_cores".
func coreCount(folder string) (int, error) {
	return strconv.Atoi(strings.SplitN(filepath.Base(folder), "_", 2)[0])
}

func discover(root string) ([]string, error) {
	scripts, err := zglob.Glob(filepath.Join(root, ScriptPattern))
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return []string{}, nil
		}
		return nil, errors.WithStack(err)
	}
	sort.Strings(scripts)
	return scripts, nil
}

// medianCoreFolder sorts the distinct core folders numerically and returns
// the one at index len/2. Folders without a numeric prefix are skipped.
func medianCoreFolder(scripts []string) (string, bool) {
	type folder struct {
		path  string
		cores int
	}
	seen := map[string]bool{}
	folders := []folder{}
	for _, s := range scripts {
		path := coreFolderOf(s)
		if seen[path] {
			continue
		}
		seen[path] = true
		n, err := coreCount(path)
		if err != nil {
			log.WithField("folder", path).Warn("core folder has no numeric prefix, skipped")
			continue
		}
		folders = append(folders, folder{path: path, cores: n})
	}
	if len(folders) == 0 {
		return "", false
	}
	sort.Slice(folders, func(i, j int) bool {
		if folders[i].cores != folders[j].cores {
			return folders[i].cores < folders[j].cores
		}
		return folders[i].path < folders[j].path
	})
	return folders[len(folders)/2].path, true
}

func queries(scripts []string) []string {
	seen := map[string]bool{}
	qs := []string{}
	for _, s := range scripts {
		q := queryOf(s)
		if !seen[q] {
			seen[q] = true
			qs = append(qs, q)
		}
	}
	sort.Strings(qs)
	return qs
}

// chooseScript returns the lexicographically first script of query inside
// the chosen core folder.
func chooseScript(folder string, query string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(folder, query, "logs", "*", "*.lua"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// firstMatch returns the lexicographically first file of dir matching
// pattern.
func firstMatch(dir string, pattern string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", false
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isRegular(m) {
			return m, true
		}
	}
	return "", false
}
