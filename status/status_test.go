package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dump = "iteration 1\n----DUMP PROCESS----\nNo. Cores: 2;\nDeadline: 100\n" +
	"----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 90.5\n"

func TestDumpParserLastRegion(t *testing.T) {
	a, err := NewDumpParser(1).Parse(dump)
	require.NoError(t, err)
	assert.Equal(t, []Allocation{{Cores: 4, Deadline: 90.5}}, a)
}

func TestDumpParserExponent(t *testing.T) {
	a, err := NewDumpParser(-1).Parse("----DUMP PROCESS----\nNo. Cores: 12;\nDeadline: 1.5e+06\nNo. Cores: 3;\nDeadline: 7\n")
	require.NoError(t, err)
	assert.Equal(t, []Allocation{{12, 1.5e6}, {3, 7}}, a)
}

func TestDumpParserMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"no marker":       "No. Cores: 4;\nDeadline: 90.5\n",
		"count mismatch":  "----DUMP PROCESS----\nNo. Cores: 4;\nNo. Cores: 5;\nDeadline: 90.5\n",
		"too many apps":   "----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 1\nNo. Cores: 5;\nDeadline: 2\n",
		"bad float":       "----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 1e+\n",
		"empty dump area": "----DUMP PROCESS----\n",
	} {
		_, err := NewDumpParser(1).Parse(content)
		assert.ErrorIs(t, err, ErrMalformedRecord, name)
	}
}

type fixture struct {
	layout   session.Layout
	appFiles string
	reader   *Reader
}

func newFixture(t *testing.T) *fixture {
	root := t.TempDir()
	f := &fixture{
		layout:   session.NewLayout(filepath.Join(root, "tmp")),
		appFiles: filepath.Join(root, "app_files"),
	}
	require.NoError(t, os.MkdirAll(f.appFiles, 0755))
	f.reader = NewReader(f.layout, f.appFiles)
	return f
}

func conf1() *store.Configuration {
	return store.NewConfiguration("conf1", []store.Application{
		{"app_A.csv", "jobs_A.csv", "stages_A.csv", "tasks_A.csv", "test_A.lua", "ConfigApp_A.txt", "2"},
	})
}

func (f *fixture) create(t *testing.T, id string, c *store.Configuration, started time.Time) {
	paths := configure.Default().Paths
	paths.AppFiles = f.appFiles
	require.NoError(t, session.Create(f.layout, &session.Session{
		ID:            id,
		Configuration: c,
		Deadline:      "100",
		Algorithms:    session.Algorithms{Algorithm2: true},
		Started:       started,
	}, paths))
}

func (f *fixture) complete(t *testing.T, id string, result string) {
	require.NoError(t, os.WriteFile(filepath.Join(f.layout.Output(id), "output_result_Algorithm2__abc123.txt"), []byte(result), 0644))
	require.NoError(t, session.MarkCompleted(f.layout, id, time.Now()))
}

func (f *fixture) writeConfigApp(t *testing.T, name string, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(f.appFiles, name), []byte(content), 0644))
}

func TestReadRunning(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())

	s := f.reader.Read(id)
	assert.Equal(t, StateRunning, s.Status)
	assert.Equal(t, "conf1", s.Name)
	assert.Equal(t, []int{0}, s.Cores)
	assert.Equal(t, []string{"-"}, s.Deadlines)
	assert.Equal(t, "100", s.InitialDeadline)
	assert.Equal(t, "-", s.Completed)
	assert.Equal(t, "-", s.ComputedDeadline)
	assert.NotEqual(t, "-", s.StartedFormatted)
	assert.False(t, s.Done())
}

func TestReadCompletedEndToEnd(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	f.writeConfigApp(t, "ConfigApp_A.txt", "# query cores capacity x\nQ26 4 3 1\n\n")
	f.complete(t, id, "----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 90.5\n")

	s := f.reader.Read(id)
	assert.Equal(t, StateCompleted, s.Status)
	assert.Equal(t, []int{4}, s.Cores)
	assert.Equal(t, []string{"90.5"}, s.Deadlines)
	assert.Equal(t, 8.0, s.TotalCost)
	assert.Equal(t, []int{3}, s.Capacities)
	assert.Equal(t, []int{2}, s.VMs)
	assert.Equal(t, []string{"Q26"}, s.Queries)
	assert.Equal(t, 4, s.TotalCores)
	assert.Equal(t, 2, s.TotalVMs)
	assert.Equal(t, FileNotFound, s.ComputedDeadline)
	assert.Contains(t, s.OutputFiles, "output_result_Algorithm2__abc123.txt")
	assert.Empty(t, s.Errors)
	assert.True(t, s.Done())
}

func TestReadDegradesMissingConfigApp(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	f.complete(t, id, "----DUMP PROCESS----\nNo. Cores: 5;\nDeadline: 42\n")

	s := f.reader.Read(id)
	assert.Equal(t, StateCompleted, s.Status)
	assert.Equal(t, []int{5}, s.Cores)
	assert.Equal(t, []int{1}, s.Capacities)
	assert.Equal(t, []int{5}, s.VMs)
	assert.Equal(t, []string{"-"}, s.Queries)
	assert.Equal(t, 10.0, s.TotalCost)
	assert.NotEmpty(t, s.Errors)
}

func TestReadDegradesMalformedResult(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	f.writeConfigApp(t, "ConfigApp_A.txt", "Q26 4 3 1\n")
	f.complete(t, id, "solver crashed\n")
	require.NoError(t, os.WriteFile(f.layout.Result(id), nil, 0644))

	s := f.reader.Read(id)
	assert.Equal(t, StateCompleted, s.Status)
	assert.Equal(t, []int{0}, s.Cores)
	assert.Equal(t, []string{"-"}, s.Deadlines)
	assert.Equal(t, 0.0, s.TotalCost)
	assert.Equal(t, "-", s.ComputedDeadline)
	assert.NotEmpty(t, s.Errors)
}

func TestReadCompletedWithoutResultFile(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	require.NoError(t, session.MarkCompleted(f.layout, id, time.Now()))

	s := f.reader.Read(id)
	assert.Equal(t, StateCompleted, s.Status)
	assert.Equal(t, []int{0}, s.Cores)
	assert.NotEmpty(t, s.Errors)
}

func TestCompletedIsMonotonic(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	f.complete(t, id, "----DUMP PROCESS----\nNo. Cores: 4;\nDeadline: 90.5\n")
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateCompleted, f.reader.Read(id).Status)
	}
}

func TestReadErrorWithoutConfiguration(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	require.NoError(t, os.Remove(f.layout.Process(id)))

	s := f.reader.Read(id)
	assert.Equal(t, StateError, s.Status)
	assert.Equal(t, store.Empty(), s.Configuration)
	assert.Equal(t, []int{0}, s.Cores)
	assert.True(t, s.Done())
}

func TestReadInvalidID(t *testing.T) {
	s := newFixture(t).reader.Read("../etc")
	assert.Equal(t, StateError, s.Status)
}

func TestReadEmptyConfiguration(t *testing.T) {
	f := newFixture(t)
	id := "run_empty_abc"
	f.create(t, id, store.NewConfiguration("empty", []store.Application{}), time.Now())
	require.NoError(t, session.MarkCompleted(f.layout, id, time.Now()))

	s := f.reader.Read(id)
	assert.Equal(t, StateCompleted, s.Status)
	assert.Empty(t, s.Cores)
	assert.Equal(t, 0, s.TotalVMs)
}

func TestReadAllNewestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Unix(1700000000, 0)
	f.create(t, "run_a_1", conf1(), base)
	f.create(t, "run_b_2", conf1(), base.Add(2*time.Hour))
	f.create(t, "run_c_3", conf1(), base.Add(time.Hour))

	all := f.reader.ReadAll()
	ids := []string{}
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"run_b_2", "run_c_3", "run_a_1"}, ids)
}

func TestWatchStopsWhenCompleted(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())

	calls := 0
	err := f.reader.Watch(context.Background(), id, time.Millisecond, func(s *Snapshot) error {
		calls++
		if calls == 3 {
			require.NoError(t, session.MarkCompleted(f.layout, id, time.Now()))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestWatchCancelled(t *testing.T) {
	f := newFixture(t)
	id := "run_conf1_abc"
	f.create(t, id, conf1(), time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.reader.Watch(ctx, id, time.Hour, func(*Snapshot) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
