package client

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lcpu-club/optdeadline/common"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/engine"
	"github.com/lcpu-club/optdeadline/server"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/solver"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instantRunner struct{}

func (instantRunner) Run(inv *solver.Invocation) (int, error) {
	return 0, nil
}

func newTestClient(t *testing.T) (*Client, *engine.Engine) {
	root := t.TempDir()
	conf := configure.Default()
	conf.Paths.Tmp = filepath.Join(root, "tmp")
	conf.Paths.AppFiles = filepath.Join(root, "app_files")
	conf.Paths.Configurations = filepath.Join(root, "configurations")
	conf.Status.WatchInterval = 10 * time.Millisecond
	require.NoError(t, os.MkdirAll(conf.Paths.Configurations, 0755))

	e := engine.NewEngine(conf, instantRunner{})
	srv, err := server.NewServer(conf, "", e)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		e.Close()
	})
	// The first address refuses connections, requests fall through to ts.
	return NewClient([]string{"http://127.0.0.1:1", ts.URL}, 5*time.Second), e
}

func TestClientRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	conf := store.NewConfiguration("conf1", []store.Application{
		{"app_Q26.csv", "jobs_Q26.csv", "stages_Q26.csv", "tasks_Q26.csv", "test_Q26.lua", "ConfigApp_Q26.txt", "2"},
	})
	require.NoError(t, c.SaveConfiguration(conf))

	names, err := c.ListConfigurations()
	require.NoError(t, err)
	assert.Equal(t, []string{"conf1"}, names)

	got, err := c.GetConfiguration("conf1")
	require.NoError(t, err)
	assert.Equal(t, conf, got)

	_, err = c.GetConfiguration("missing")
	assert.True(t, common.IsResponseError(err))

	id, err := c.Run("conf1", session.Algorithms{Algorithm2: true}, "100")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var last *status.Snapshot
	require.NoError(t, c.Watch(ctx, id, func(s *status.Snapshot) error {
		last = s
		return nil
	}))
	require.NotNil(t, last)
	assert.Equal(t, status.StateCompleted, last.Status)

	s, err := c.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, status.StateCompleted, s.Status)

	sessions, err := c.ListSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestClientRunError(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Run("missing", session.Algorithms{Algorithm1: true}, "100")
	require.Error(t, err)
	assert.True(t, common.IsResponseError(err))
	assert.Equal(t, "configuration not found", err.Error())
}

func TestClientImportAndSettings(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Import([]byte("garbage"))
	assert.True(t, common.IsResponseError(err))

	files, err := c.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files["lua"])

	settings, err := c.Settings()
	require.NoError(t, err)
	dagsim := settings[configure.KeyDagsimPath]
	assert.Equal(t, configure.DefaultDagsimPath, dagsim)

	settings, err = c.UpdateSettings(map[string]string{configure.KeyDagsimPath: "/usr/local/dagSim"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/dagSim", settings[configure.KeyDagsimPath])
}
