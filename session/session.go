package session

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/pkg/errors"
)

const (
	FlagAlgorithm1 = "-1"
	FlagAlgorithm2 = "-2"
)

type Algorithms struct {
	Algorithm1 bool `json:"algorithm1"`
	Algorithm2 bool `json:"algorithm2"`
}

// Flags lists the solver flags to run, variant 1 always before variant 2.
func (a Algorithms) Flags() []string {
	flags := []string{}
	if a.Algorithm1 {
		flags = append(flags, FlagAlgorithm1)
	}
	if a.Algorithm2 {
		flags = append(flags, FlagAlgorithm2)
	}
	return flags
}

func (a Algorithms) Any() bool {
	return a.Algorithm1 || a.Algorithm2
}

// Session is one execution request.
type Session struct {
	ID            string
	Configuration *store.Configuration
	Deadline      string
	Algorithms    Algorithms
	Started       time.Time
}

// Create lays out the session directory and writes every input record. It
// runs synchronously so a caller can observe RUNNING as soon as it returns.
func Create(l Layout, s *Session, paths *configure.PathsConfigure) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(l.Root(), os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Mkdir(l.Dir(s.ID), os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Mkdir(l.Tmp(s.ID), os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Mkdir(l.Output(s.ID), os.FileMode(0755)); err != nil {
		return errors.WithStack(err)
	}
	if s.Started.IsZero() {
		s.Started = time.Now()
	}
	if err := WriteTimestamp(l.Started(s.ID), s.Started); err != nil {
		return err
	}
	if err := writeFile(l.Deadline(s.ID), s.Deadline); err != nil {
		return err
	}
	if err := writeFile(l.Algorithms(s.ID), strings.Join(s.Algorithms.Flags(), "\n")); err != nil {
		return err
	}
	if err := store.WriteFile(s.Configuration, l.Process(s.ID)); err != nil {
		return err
	}
	cfg, err := configRecord(l, s.ID, paths)
	if err != nil {
		return err
	}
	return writeFile(l.Config(s.ID), cfg)
}

// configRecord is the five-line file the solver reads: file pool,
// simulator root, file pool again, opt_ic binary and the session scratch
// directory, all absolute.
func configRecord(l Layout, id string, paths *configure.PathsConfigure) (string, error) {
	lines := []string{paths.AppFiles, paths.Dagsim, paths.AppFiles, paths.OptICBinary, l.Tmp(id)}
	for i, p := range lines {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", errors.WithStack(err)
		}
		lines[i] = abs
	}
	return strings.Join(lines, "\n"), nil
}

func writeFile(path string, content string) error {
	return errors.WithStack(os.WriteFile(path, []byte(content), os.FileMode(0644)))
}

// WriteTimestamp stores t as fractional unix seconds.
func WriteTimestamp(path string, t time.Time) error {
	secs := float64(t.UnixNano()) / float64(time.Second)
	return writeFile(path, strconv.FormatFloat(secs, 'f', 6, 64))
}

func ReadTimestamp(path string) (time.Time, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, errors.WithStack(err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "malformed timestamp in %s", path)
	}
	return time.Unix(0, int64(secs*float64(time.Second))), nil
}

// IsCompleted reports whether the completion marker exists.
func IsCompleted(l Layout, id string) bool {
	_, err := os.Stat(l.Completed(id))
	return err == nil
}

func MarkCompleted(l Layout, id string, t time.Time) error {
	return WriteTimestamp(l.Completed(id), t)
}

// ReadAlgorithms recovers the requested variants of a session.
func ReadAlgorithms(l Layout, id string) (Algorithms, error) {
	a := Algorithms{}
	b, err := os.ReadFile(l.Algorithms(id))
	if err != nil {
		return a, errors.WithStack(err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case FlagAlgorithm1:
			a.Algorithm1 = true
		case FlagAlgorithm2:
			a.Algorithm2 = true
		}
	}
	return a, nil
}

// List returns the ids of every session directory under the layout root,
// sorted by name.
func List(l Layout) ([]string, error) {
	entries, err := os.ReadDir(l.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.WithStack(err)
	}
	ids := []string{}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), consts.SessionPrefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
