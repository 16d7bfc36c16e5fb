package configure

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultAppFilesFolder      = "/opt/OPT_DEADLINE_WS/app_files"
	DefaultTmpFolder           = "/opt/OPT_DEADLINE_WS/tmp"
	DefaultDagsimPath          = "/opt/dagSim"
	DefaultOptICBinaryPath     = "/opt/OPT_IC/src/opt_ic"
	DefaultConfigurationFolder = "/opt/OPT_DEADLINE_WS/configurations"
	DefaultOptDeadlinePath     = "/opt/OPT_DEADLINE"
)

// Override keys accepted by WithOverrides. They match the keys of the
// settings form.
const (
	KeyAppFilesFolder      = "APP_FILES_FOLDER"
	KeyTmpFolder           = "TMP_FOLDER"
	KeyDagsimPath          = "DAGSIM_PATH"
	KeyOptICBinaryPath     = "OPT_IC_BINARY_PATH"
	KeyConfigurationFolder = "CONFIGURATION_FOLDER"
	KeyOptDeadlinePath     = "OPT_DEADLINE_PATH"
)

var ErrUnknownOverride = fmt.Errorf("unknown setting")
var ErrEmptyOverride = fmt.Errorf("setting must not be empty")

func Default() *Configure {
	c := &Configure{}
	c.fillDefaults()
	return c
}

func (c *Configure) fillDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Log == nil {
		c.Log = &LogConfigure{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Paths == nil {
		c.Paths = &PathsConfigure{}
	}
	setDefault(&c.Paths.AppFiles, DefaultAppFilesFolder)
	setDefault(&c.Paths.Tmp, DefaultTmpFolder)
	setDefault(&c.Paths.Dagsim, DefaultDagsimPath)
	setDefault(&c.Paths.OptICBinary, DefaultOptICBinaryPath)
	setDefault(&c.Paths.Configurations, DefaultConfigurationFolder)
	setDefault(&c.Paths.OptDeadline, DefaultOptDeadlinePath)
	if c.Solver == nil {
		c.Solver = &SolverConfigure{}
	}
	if c.Status == nil {
		c.Status = &StatusConfigure{}
	}
	if c.Status.WatchInterval <= 0 {
		c.Status.WatchInterval = 2 * time.Second
	}
	if c.Nsq == nil {
		c.Nsq = &NsqConfigure{}
	}
	if c.Nsq.Nsqd == nil {
		c.Nsq.Nsqd = &NsqdConfigure{}
	}
	setDefault(&c.Nsq.Nsqd.Address, "127.0.0.1:4150")
	if c.Nsq.NsqLookupd == nil {
		c.Nsq.NsqLookupd = &NsqLookupdConfigure{}
	}
	if c.Nsq.Topics == nil {
		c.Nsq.Topics = &NsqTopicsConfigure{}
	}
	setDefault(&c.Nsq.Topics.Run, "opt-deadline-run")
	setDefault(&c.Nsq.Topics.Report, "opt-deadline-report")
	setDefault(&c.Nsq.Channel, "opt-deadline")
	if c.Nsq.MaxAttempts <= 0 {
		c.Nsq.MaxAttempts = 5
	}
	if c.Redis != nil {
		setDefault(&c.Redis.Prefix, "opt-deadline:")
		if c.Redis.Expire <= 0 {
			c.Redis.Expire = 24 * time.Hour
		}
	}
	if c.Remote == nil {
		c.Remote = &RemoteConfigure{}
	}
	if len(c.Remote.Address) == 0 {
		c.Remote.Address = []string{"http://127.0.0.1:8080"}
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = 10 * time.Second
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfigure reads a yaml (or .toml) configure file. A missing file
// yields the defaults.
func LoadConfigure(path string) (*Configure, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.WithStack(err)
	}
	c := new(Configure)
	if isTOML(path) {
		err = toml.Unmarshal(f, c)
	} else {
		err = yaml.Unmarshal(f, c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse configure file %s", path)
	}
	c.fillDefaults()
	return c, nil
}

// Save writes the configure to path, in toml when the extension says so.
func (c *Configure) Save(path string) error {
	var (
		b   []byte
		err error
	)
	if isTOML(path) {
		b, err = toml.Marshal(c)
	} else {
		b, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, b, os.FileMode(0644)))
}

// WithOverrides returns a copy of c with the given path settings replaced.
// Blank values are rejected. c itself is never modified.
func (c *Configure) WithOverrides(overrides map[string]string) (*Configure, error) {
	n := c.Clone()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(overrides[k])
		if v == "" {
			return nil, errors.Wrap(ErrEmptyOverride, k)
		}
		switch k {
		case KeyAppFilesFolder:
			n.Paths.AppFiles = v
		case KeyTmpFolder:
			n.Paths.Tmp = v
		case KeyDagsimPath:
			n.Paths.Dagsim = v
		case KeyOptICBinaryPath:
			n.Paths.OptICBinary = v
		case KeyConfigurationFolder:
			n.Paths.Configurations = v
		case KeyOptDeadlinePath:
			n.Paths.OptDeadline = v
		default:
			return nil, errors.Wrap(ErrUnknownOverride, k)
		}
	}
	return n, nil
}

// Settings returns the path settings keyed the same way WithOverrides
// expects them.
func (c *Configure) Settings() map[string]string {
	return map[string]string{
		KeyAppFilesFolder:      c.Paths.AppFiles,
		KeyTmpFolder:           c.Paths.Tmp,
		KeyDagsimPath:          c.Paths.Dagsim,
		KeyOptICBinaryPath:     c.Paths.OptICBinary,
		KeyConfigurationFolder: c.Paths.Configurations,
		KeyOptDeadlinePath:     c.Paths.OptDeadline,
	}
}

func (c *Configure) Clone() *Configure {
	n := *c
	if c.Log != nil {
		l := *c.Log
		n.Log = &l
	}
	if c.Paths != nil {
		p := *c.Paths
		n.Paths = &p
	}
	if c.Solver != nil {
		s := *c.Solver
		if c.Solver.ResourceControl != nil {
			rc := *c.Solver.ResourceControl
			s.ResourceControl = &rc
		}
		n.Solver = &s
	}
	if c.Status != nil {
		s := *c.Status
		n.Status = &s
	}
	if c.Nsq != nil {
		q := *c.Nsq
		if c.Nsq.Nsqd != nil {
			d := *c.Nsq.Nsqd
			q.Nsqd = &d
		}
		if c.Nsq.NsqLookupd != nil {
			l := *c.Nsq.NsqLookupd
			l.Address = append([]string(nil), c.Nsq.NsqLookupd.Address...)
			q.NsqLookupd = &l
		}
		if c.Nsq.Topics != nil {
			t := *c.Nsq.Topics
			q.Topics = &t
		}
		n.Nsq = &q
	}
	if c.Redis != nil {
		r := *c.Redis
		n.Redis = &r
	}
	if c.MinIO != nil {
		m := *c.MinIO
		if c.MinIO.Credentials != nil {
			cr := *c.MinIO.Credentials
			m.Credentials = &cr
		}
		n.MinIO = &m
	}
	if c.Remote != nil {
		r := *c.Remote
		r.Address = append([]string(nil), c.Remote.Address...)
		n.Remote = &r
	}
	return &n
}
