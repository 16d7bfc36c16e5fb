package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lcpu-club/optdeadline/api"
	"github.com/lcpu-club/optdeadline/common"
	"github.com/lcpu-club/optdeadline/importer"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	"nhooyr.io/websocket"
)

// Client talks to a running opt-deadline server.
type Client struct {
	cc      common.CommonClient
	address []string
}

func NewClient(address []string, timeout time.Duration) *Client {
	cc := common.NewCommonMultiAddressClient(address, timeout)
	return &Client{
		cc:      cc,
		address: cc.Addresses(),
	}
}

func (c *Client) ListConfigurations() ([]string, error) {
	resp := new(api.ListConfigurationsResponse)
	err := c.cc.DoGetRequest("configurations", resp)
	if err != nil {
		return nil, err
	}
	return resp.Configurations, resp.GetError()
}

func (c *Client) GetConfiguration(name string) (*store.Configuration, error) {
	resp := new(api.GetConfigurationResponse)
	err := c.cc.DoGetRequest("configurations/"+url.PathEscape(name), resp)
	if err != nil {
		return nil, err
	}
	return resp.Configuration, resp.GetError()
}

func (c *Client) SaveConfiguration(conf *store.Configuration) error {
	req := &api.SaveConfigurationRequest{Configuration: *conf}
	resp := new(api.SaveConfigurationResponse)
	return c.cc.DoPostRequest("configurations", req, resp)
}

func (c *Client) Run(name string, algorithms session.Algorithms, deadline string) (string, error) {
	req := &api.RunRequest{
		ConfigurationName: name,
		Algorithms:        algorithms,
		Deadline:          json.Number(strings.TrimSpace(deadline)),
	}
	resp := new(api.RunResponse)
	err := c.cc.DoPostRequest("run", req, resp)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) ListSessions() ([]*status.Snapshot, error) {
	resp := new(api.ListSessionsResponse)
	err := c.cc.DoGetRequest("sessions", resp)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, resp.GetError()
}

func (c *Client) GetSession(id string) (*status.Snapshot, error) {
	resp := new(api.GetSessionResponse)
	err := c.cc.DoGetRequest("sessions/"+url.PathEscape(id), resp)
	if err != nil {
		return nil, err
	}
	return resp.Session, resp.GetError()
}

func (c *Client) ListFiles() (map[string][]string, error) {
	resp := new(api.ListFilesResponse)
	err := c.cc.DoGetRequest("files", resp)
	if err != nil {
		return nil, err
	}
	return resp.Files, resp.GetError()
}

// Import uploads an archive. The bundles that were installed are returned
// even when some queries failed.
func (c *Client) Import(archive []byte) ([]importer.Bundle, error) {
	resp := new(api.ImportResponse)
	err := c.cc.DoRawPostRequest("import", "application/octet-stream", archive, resp)
	return resp.Bundles, err
}

func (c *Client) Settings() (map[string]string, error) {
	resp := new(api.SettingsResponse)
	err := c.cc.DoGetRequest("settings", resp)
	if err != nil {
		return nil, err
	}
	return resp.Settings, resp.GetError()
}

func (c *Client) UpdateSettings(settings map[string]string) (map[string]string, error) {
	req := &api.UpdateSettingsRequest{Settings: settings}
	resp := new(api.UpdateSettingsResponse)
	err := c.cc.DoPostRequest("settings", req, resp)
	return resp.Settings, err
}

var ErrWatchInterrupted = fmt.Errorf("watch closed before the session was done")

// Watch streams snapshots of a session to fn until the server closes the
// stream, which it does once the session is done.
func (c *Client) Watch(ctx context.Context, id string, fn func(*status.Snapshot) error) error {
	var (
		conn *websocket.Conn
		err  error
	)
	for _, a := range c.address {
		conn, _, err = websocket.Dial(ctx, a+"/sessions/"+url.PathEscape(id)+"/watch", nil)
		if err == nil {
			break
		}
	}
	if conn == nil {
		if err == nil {
			err = common.ErrNoAddress
		}
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "disconnect")
	done := false
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && done {
				return nil
			}
			if websocket.CloseStatus(err) != -1 {
				return ErrWatchInterrupted
			}
			return err
		}
		s := &status.Snapshot{}
		if err := json.Unmarshal(msg, s); err != nil {
			return err
		}
		done = s.Done()
		if err := fn(s); err != nil {
			return err
		}
	}
}
