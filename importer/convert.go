package importer

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/lcpu-club/optdeadline/replacer"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConvertFolder prepares a flat folder of scripts for relocation. Each
// src/<name>.lua is written to dest with its fileToArray paths replaced by
// @@DIRPATH@@/<name>/<file>, the referenced files are copied to
// dest/<name>/, and the .txt and .csv files of src are copied to dest.
func ConvertFolder(src string, dest string) error {
	if err := os.MkdirAll(dest, os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	scripts, err := filepath.Glob(filepath.Join(src, "*.lua"))
	if err != nil {
		return errors.WithStack(err)
	}
	sort.Strings(scripts)

	var result *multierror.Error
	for _, script := range scripts {
		if err := convertScript(src, script, dest); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "script %s", filepath.Base(script)))
		}
	}
	for _, pattern := range []string{"*.txt", "*.csv"} {
		files, err := filepath.Glob(filepath.Join(src, pattern))
		if err != nil {
			return errors.WithStack(err)
		}
		for _, f := range files {
			if !isRegular(f) {
				continue
			}
			if err := copyFile(f, filepath.Join(dest, filepath.Base(f))); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

func convertScript(src string, script string, dest string) error {
	content, err := os.ReadFile(script)
	if err != nil {
		return errors.WithStack(err)
	}
	name := strings.TrimSuffix(filepath.Base(script), ".lua")
	for _, path := range replacer.DataPaths(string(content)) {
		from := path
		if !filepath.IsAbs(from) {
			from = filepath.Join(src, from)
		}
		if err := copyFile(from, filepath.Join(dest, name, filepath.Base(path))); err != nil {
			return err
		}
	}
	converted := replacer.RewriteDataPaths(string(content), func(path string) string {
		return replacer.DirPath(name, path)
	})
	if err := os.WriteFile(filepath.Join(dest, filepath.Base(script)), []byte(converted), os.FileMode(0644)); err != nil {
		return errors.WithStack(err)
	}
	log.WithField("script", name).Debug("converted")
	return nil
}
