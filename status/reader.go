package status

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Reader computes snapshots from session directories. It holds no state
// and never writes, so it can run concurrently with the engine.
type Reader struct {
	layout   session.Layout
	appFiles string
}

func NewReader(l session.Layout, appFiles string) *Reader {
	return &Reader{layout: l, appFiles: appFiles}
}

// Read never fails. Whatever cannot be read degrades to a placeholder and
// is noted in Snapshot.Errors.
func (r *Reader) Read(id string) *Snapshot {
	s := &Snapshot{
		ID:                 id,
		Name:               session.Name(id),
		Status:             StateRunning,
		InitialDeadline:    Placeholder,
		ComputedDeadline:   Placeholder,
		Started:            Placeholder,
		StartedFormatted:   Placeholder,
		Completed:          Placeholder,
		CompletedFormatted: Placeholder,
		OutputFiles:        []string{},
	}
	if err := session.ValidateID(id); err != nil {
		s.Status = StateError
		s.Configuration = store.Empty()
		s.degrade(err)
		r.fill(s, nil)
		return s
	}

	s.OutputFiles = r.outputFiles(id)
	s.Started, s.StartedFormatted, s.startedAt = r.timestamp(s, r.layout.Started(id))
	s.InitialDeadline = readText(r.layout.Deadline(id))

	c, err := store.LoadFromPath(r.layout.Process(id))
	if err != nil {
		s.Status = StateError
		s.Configuration = store.Empty()
		s.degrade(errors.Wrap(err, "configuration cannot be reconstructed"))
		r.fill(s, nil)
		return s
	}
	s.Configuration = c

	if !session.IsCompleted(r.layout, id) {
		r.fill(s, nil)
		return s
	}
	s.Status = StateCompleted
	s.Completed, s.CompletedFormatted, _ = r.timestamp(s, r.layout.Completed(id))
	s.ComputedDeadline = readText(r.layout.Result(id))

	allocations, err := r.allocations(id, len(c.Applications))
	if err != nil {
		s.degrade(err)
		allocations = nil
	}
	r.fill(s, allocations)
	return s
}

func (r *Reader) allocations(id string, n int) ([]Allocation, error) {
	matches, err := filepath.Glob(r.layout.ResultPattern(id))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no result file in %s", r.layout.Output(id))
	}
	sort.Strings(matches)
	a, err := NewDumpParser(n).ParseFile(matches[0])
	return a, errors.Wrapf(err, "failed to parse %s", filepath.Base(matches[0]))
}

// fill computes the per-application lists and the totals. A nil
// allocation list means no usable result: cores are 0 and deadlines "-".
func (r *Reader) fill(s *Snapshot, allocations []Allocation) {
	apps := s.Configuration.Applications
	n := len(apps)
	s.Cores = make([]int, n)
	s.Deadlines = make([]string, n)
	s.Capacities = make([]int, n)
	s.VMs = make([]int, n)
	s.Queries = make([]string, n)
	s.TotalCost, s.TotalCores, s.TotalVMs = 0, 0, 0

	for i, app := range apps {
		s.Deadlines[i] = Placeholder
		if allocations != nil {
			s.Cores[i] = allocations[i].Cores
			s.Deadlines[i] = strconv.FormatFloat(allocations[i].Deadline, 'f', -1, 64)
			w, err := app.Weight()
			if err != nil {
				s.degrade(errors.Wrapf(err, "application %v weight", i))
			} else {
				s.TotalCost += float64(s.Cores[i]) * w
			}
		}

		capacity, query, err := r.readConfigApp(app)
		if err == nil && capacity <= 0 {
			err = fmt.Errorf("capacity %v is not positive", capacity)
		}
		if err != nil {
			if s.Status != StateError {
				s.degrade(errors.Wrapf(err, "application %v", i))
			}
			s.Capacities[i] = 1
			s.VMs[i] = s.Cores[i]
			s.Queries[i] = Placeholder
		} else {
			s.Capacities[i] = capacity
			s.VMs[i] = (s.Cores[i] + capacity - 1) / capacity
			s.Queries[i] = query
		}
		s.TotalCores += s.Cores[i]
		s.TotalVMs += s.VMs[i]
	}
}

// readConfigApp returns the per-VM core capacity (second-to-last token) and
// the query name (first token) of the last data line of the ConfigApp file.
func (r *Reader) readConfigApp(app store.Application) (int, string, error) {
	name, err := app.ConfigApp()
	if err != nil {
		return 0, "", err
	}
	path, err := filepath.Abs(filepath.Join(r.appFiles, name))
	if err != nil {
		return 0, "", errors.WithStack(err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, "", errors.WithStack(err)
	}
	defer f.Close()

	last := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		last = line
	}
	if err := scanner.Err(); err != nil {
		return 0, "", errors.WithStack(err)
	}
	tokens := strings.Fields(last)
	if len(tokens) < 2 {
		return 0, "", fmt.Errorf("%s: no data line", name)
	}
	capacity, err := strconv.Atoi(tokens[len(tokens)-2])
	if err != nil {
		return 0, "", errors.Wrapf(err, "%s: capacity", name)
	}
	return capacity, tokens[0], nil
}

func (r *Reader) outputFiles(id string) []string {
	matches, err := filepath.Glob(r.layout.OutputTextPattern(id))
	if err != nil {
		return []string{}
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Base(m))
	}
	sort.Strings(files)
	return files
}

func (r *Reader) timestamp(s *Snapshot, path string) (string, string, time.Time) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Placeholder, Placeholder, time.Time{}
	}
	raw := strings.TrimSpace(string(b))
	t, err := session.ReadTimestamp(path)
	if err != nil {
		s.degrade(err)
		return raw, Placeholder, time.Time{}
	}
	return raw, t.Format(TimestampFormat), t
}

// readText returns the content of path, "-" when it is empty and
// "File not found" when it cannot be read.
func readText(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileNotFound
	}
	if len(b) == 0 {
		return Placeholder
	}
	return string(b)
}

// ReadAll returns a snapshot of every session, most recently started first.
func (r *Reader) ReadAll() []*Snapshot {
	ids, err := session.List(r.layout)
	if err != nil {
		log.WithError(err).Warn("failed to list sessions")
		return []*Snapshot{}
	}
	snapshots := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		snapshots = append(snapshots, r.Read(id))
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].startedAt.After(snapshots[j].startedAt)
	})
	return snapshots
}

// Watch calls fn with a fresh snapshot every interval until the session is
// done, fn fails or ctx is cancelled. The final snapshot is always passed
// to fn.
func (r *Reader) Watch(ctx context.Context, id string, interval time.Duration, fn func(*Snapshot) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s := r.Read(id)
		if err := fn(s); err != nil {
			return err
		}
		if s.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
