package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfiguration() *Configuration {
	return NewConfiguration("conf1", []Application{
		{"app_A.csv", "jobs_A.csv", "stages_A.csv", "tasks_A.csv", "test_A.lua", "ConfigApp_A.txt", "2"},
		{"app_B.csv", "jobs_B.csv", "stages_B.csv", "tasks_B.csv", "test_B.lua", "ConfigApp_B.txt", "0.5"},
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	c := testConfiguration()
	require.NoError(t, s.Save(c, ""))

	loaded, err := s.Load("conf1")
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestSaveLoadRoundTripUnusualFields(t *testing.T) {
	s := NewStore(t.TempDir())
	c := NewConfiguration("my conf", []Application{
		{"app#1.csv", "b", "2"},
		{"a", "b", "3"},
	})
	require.NoError(t, s.Save(c, ""))

	loaded, err := s.Load("my conf")
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestSaveExplicitPath(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "unused"))
	path := filepath.Join(dir, "process.txt")
	require.NoError(t, s.Save(testConfiguration(), path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"# conf1\n"+
			"app_A.csv jobs_A.csv stages_A.csv tasks_A.csv test_A.lua ConfigApp_A.txt 2\n"+
			"app_B.csv jobs_B.csv stages_B.csv tasks_B.csv test_B.lua ConfigApp_B.txt 0.5\n",
		string(content))
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())
	c := testConfiguration()
	require.NoError(t, s.Save(c, ""))
	c.Applications = c.Applications[:1]
	require.NoError(t, s.Save(c, ""))

	loaded, err := s.Load("conf1")
	require.NoError(t, err)
	assert.Len(t, loaded.Applications, 1)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestLoadLastHeaderWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merged.txt")
	content := "# first\n" +
		"a b c\n" +
		"\n" +
		"# second\n" +
		"d e f\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "second", c.Name)
	assert.Equal(t, []Application{{"a", "b", "c"}, {"d", "e", "f"}}, c.Applications)
}

func TestLoadNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadInvalidName(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"", "..", "../etc/passwd", " conf"} {
		_, err := s.Load(name)
		assert.True(t, errors.Is(err, ErrInvalidName), name)
	}
}

func TestLoadWithoutHeader(t *testing.T) {
	_, err := Parse([]byte("a b c\n"))
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestSaveRejectsInvalidConfigurations(t *testing.T) {
	s := NewStore(t.TempDir())
	tests := map[string]*Configuration{
		"empty name":     NewConfiguration(" ", []Application{{"a"}}),
		"path separator": NewConfiguration("a/b", []Application{{"a"}}),
		"uneven arity":   NewConfiguration("x", []Application{{"a", "b"}, {"a"}}),
		"empty row":      NewConfiguration("x", []Application{{}}),
		"spaced field":   NewConfiguration("x", []Application{{"a b"}}),
		"header field":   NewConfiguration("x", []Application{{"#app.csv", "b", "2"}, {"a", "b", "3"}}),
		"padded name":    NewConfiguration(" conf ", []Application{{"a"}}),
		"vertical tab":   NewConfiguration("x", []Application{{"a\vb"}}),
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Save(c, ""))
		})
	}
}

func TestList(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"zeta", "alpha", "conf 1"} {
		c := testConfiguration()
		c.Name = name
		require.NoError(t, s.Save(c, ""))
	}
	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "conf 1", "zeta"}, names)
}

func TestListMissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"))
	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestApplicationAccessors(t *testing.T) {
	app := testConfiguration().Applications[1]
	w, err := app.Weight()
	require.NoError(t, err)
	assert.Equal(t, 0.5, w)
	ca, err := app.ConfigApp()
	require.NoError(t, err)
	assert.Equal(t, "ConfigApp_B.txt", ca)

	_, err = Application{}.Weight()
	assert.Error(t, err)
	_, err = Application{"x"}.ConfigApp()
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	c := NewConfiguration("  conf  ", []Application{{" a ", "b\t"}})
	c.Normalize()
	assert.Equal(t, "conf", c.Name)
	assert.Equal(t, Application{"a", "b"}, c.Applications[0])
}
