package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/lcpu-club/optdeadline/replacer"
	"github.com/pkg/errors"
	"github.com/satori/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrNoScripts = fmt.Errorf("no lua scripts found")
var ErrMissingDataFile = fmt.Errorf("missing data file")

// requiredKinds are the data files every imported query must provide.
var requiredKinds = []string{"app", "jobs", "stages", "tasks"}

// Bundle describes one query installed into the pool.
type Bundle struct {
	Query     string   `json:"query"`
	Source    string   `json:"source"`
	Script    string   `json:"script"`
	Files     []string `json:"files"`
	ConfigApp bool     `json:"config-app"`
}

// Pipeline installs benchmark trees into the application file pool.
type Pipeline struct {
	pool string
}

func NewPipeline(pool string) *Pipeline {
	return &Pipeline{pool: pool}
}

func (p *Pipeline) Pool() string {
	return p.pool
}

// ImportArchive stores the archive read from r in a fresh import_<uuid>
// directory under tmp, extracts it there and imports the result. The
// directory is kept for inspection.
func (p *Pipeline) ImportArchive(r io.Reader, tmp string) ([]Bundle, error) {
	dir := filepath.Join(tmp, consts.ImportPrefix+uuid.NewV4().String())
	if err := os.MkdirAll(dir, os.FileMode(0755)); err != nil {
		return nil, errors.WithStack(err)
	}
	archive := filepath.Join(dir, "archive")
	if err := writeFile(archive, r, os.FileMode(0644)); err != nil {
		return nil, err
	}
	if err := Extract(archive, dir); err != nil {
		return nil, err
	}
	log.WithField("dir", dir).Info("archive extracted")
	return p.Import(dir)
}

// Import selects one script per query from the median core folder of the
// tree at root and installs it with its data files. Bundles of the queries
// that succeeded are returned alongside the aggregated failures.
func (p *Pipeline) Import(root string) ([]Bundle, error) {
	scripts, err := discover(root)
	if err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, errors.Wrap(ErrNoScripts, root)
	}
	folder, ok := medianCoreFolder(scripts)
	if !ok {
		return nil, errors.Wrapf(ErrNoScripts, "%s has no numeric core folder", root)
	}
	log.WithField("folder", folder).Info("selected core folder")

	pool, err := filepath.Abs(p.pool)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.MkdirAll(pool, os.FileMode(0755)); err != nil {
		return nil, errors.WithStack(err)
	}

	var result *multierror.Error
	bundles := []Bundle{}
	for _, q := range queries(scripts) {
		script, ok := chooseScript(folder, q)
		if !ok {
			log.WithField("query", q).Warnf("query not found in %s", folder)
			continue
		}
		b, err := installQuery(pool, q, script)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "query %s", q))
			continue
		}
		bundles = append(bundles, *b)
	}
	return bundles, result.ErrorOrNil()
}

func installQuery(pool string, query string, script string) (*Bundle, error) {
	dir := filepath.Dir(script)
	sources := map[string]string{}
	for _, kind := range requiredKinds {
		src, ok := firstMatch(dir, kind+"_*")
		if !ok {
			return nil, errors.Wrapf(ErrMissingDataFile, "%s_* in %s", kind, dir)
		}
		sources[kind] = src
	}

	b := &Bundle{Query: query, Source: script, Files: []string{}}
	for _, kind := range requiredKinds {
		dst := filepath.Join(pool, kind+"_"+query+".csv")
		if err := copyFile(sources[kind], dst); err != nil {
			return nil, err
		}
		b.Files = append(b.Files, dst)
	}
	if src, ok := firstMatch(dir, "ConfigApp_*"); ok {
		dst := filepath.Join(pool, "ConfigApp_"+query+".txt")
		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
		b.Files = append(b.Files, dst)
		b.ConfigApp = true
	} else {
		log.WithField("query", query).Warn("no ConfigApp file")
	}

	content, err := os.ReadFile(script)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rewritten := replacer.RewriteDataPaths(string(content), func(path string) string {
		return replacer.PoolPath(pool, query, path)
	})
	rewritten = replacer.PlaceholdNodes(rewritten)
	b.Script = filepath.Join(pool, "test_"+query+".lua")
	if err := os.WriteFile(b.Script, []byte(rewritten), os.FileMode(0644)); err != nil {
		return nil, errors.WithStack(err)
	}

	aux := filepath.Join(pool, "test_"+query)
	if err := os.MkdirAll(aux, os.FileMode(0755)); err != nil {
		return nil, errors.WithStack(err)
	}
	samples, err := filepath.Glob(filepath.Join(dir, "S*.txt"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, s := range samples {
		dst := filepath.Join(aux, filepath.Base(s))
		if err := copyFile(s, dst); err != nil {
			return nil, err
		}
		b.Files = append(b.Files, dst)
	}
	log.WithField("query", query).Infof("imported %v files", len(b.Files)+1)
	return b, nil
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
