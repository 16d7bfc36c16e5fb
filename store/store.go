package store

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/pkg/errors"
)

// Store keeps configurations as flat text files under a root directory.
//
// File format: a "# <name>" header followed by one space-separated row per
// application. When a file holds several headers the last one names the
// configuration, so concatenated or hand-edited files stay loadable.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the default location of the named configuration.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name+consts.ConfigurationExtension)
}

// Save writes c to path, or to the default location when path is empty.
// The file is replaced atomically.
func (s *Store) Save(c *Configuration, path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if path == "" {
		path = s.Path(c.Name)
	}
	return WriteFile(c, path)
}

// WriteFile serialises c to path through a temporary file and a rename.
func WriteFile(c *Configuration, path string) error {
	buf := &bytes.Buffer{}
	buf.WriteString("# " + c.Name + "\n")
	for _, app := range c.Applications {
		buf.WriteString(strings.Join(app, " ") + "\n")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(buf.Bytes())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.WithStack(err)
	}
	if err := os.Chmod(tmpName, os.FileMode(0644)); err != nil {
		os.Remove(tmpName)
		return errors.WithStack(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WithStack(err)
	}
	return nil
}

func (s *Store) Load(name string) (*Configuration, error) {
	if err := ValidateName(name); err != nil {
		return nil, errors.Wrapf(err, "%q", name)
	}
	return LoadFromPath(s.Path(name))
}

func LoadFromPath(path string) (*Configuration, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, path)
		}
		return nil, errors.WithStack(err)
	}
	return Parse(f)
}

// Parse decodes the store text format.
func Parse(content []byte) (*Configuration, error) {
	c := &Configuration{Applications: []Application{}}
	hasName := false
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			c.Name = strings.TrimSpace(line[1:])
			hasName = true
			continue
		}
		c.Applications = append(c.Applications, Application(strings.Fields(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if !hasName {
		return nil, errors.Wrap(ErrMalformedRecord, "no header line")
	}
	return c, nil
}

// List returns the names of the stored configurations, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.WithStack(err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), consts.ConfigurationExtension))
	}
	sort.Strings(names)
	return names, nil
}
