package solver

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lcpu-club/optdeadline/common/consts"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Invocation is one run of the solver binary for one algorithm variant:
// opt_deadline PROCESS CONFIG DEADLINE FLAG, run inside the output area.
type Invocation struct {
	SessionID   string
	Binary      string
	ProcessPath string
	ConfigPath  string
	Deadline    string
	Flag        string
	WorkDir     string
	StdoutPath  string
	StderrPath  string
}

func NewInvocation(l session.Layout, id string, solverDir string, deadline string, flag string) *Invocation {
	return &Invocation{
		SessionID:   id,
		Binary:      filepath.Join(solverDir, consts.SolverBinaryName),
		ProcessPath: l.Process(id),
		ConfigPath:  l.Config(id),
		Deadline:    deadline,
		Flag:        flag,
		WorkDir:     l.Output(id),
		StdoutPath:  l.Stdout(id, flag),
		StderrPath:  l.Stderr(id, flag),
	}
}

func (inv *Invocation) Args() []string {
	return []string{inv.ProcessPath, inv.ConfigPath, inv.Deadline, inv.Flag}
}

func (inv *Invocation) String() string {
	return inv.Binary + " " + strings.Join(inv.Args(), " ")
}

// Runner executes one invocation to completion. The exit code is returned
// for logging only.
type Runner interface {
	Run(inv *Invocation) (int, error)
}

type ProcessRunner struct {
	user    string
	spawner *Spawner
}

type ProcessRunnerOption func(*ProcessRunner)

// WithUser runs the solver as the given system user.
func WithUser(user string) ProcessRunnerOption {
	return func(pr *ProcessRunner) {
		pr.user = user
	}
}

// WithSpawner confines every solver process to a cgroup.
func WithSpawner(s *Spawner) ProcessRunnerOption {
	return func(pr *ProcessRunner) {
		pr.spawner = s
	}
}

func NewProcessRunner(opts ...ProcessRunnerOption) *ProcessRunner {
	pr := &ProcessRunner{}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

func (pr *ProcessRunner) Run(inv *Invocation) (int, error) {
	stdout, err := os.Create(inv.StdoutPath)
	if err != nil {
		return -1, errors.WithStack(err)
	}
	defer stdout.Close()
	stderr, err := os.Create(inv.StderrPath)
	if err != nil {
		return -1, errors.WithStack(err)
	}
	defer stderr.Close()

	cmd := exec.Command(inv.Binary, inv.Args()...)
	cmd.Dir = inv.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if pr.user != "" {
		cmd.Env = os.Environ()
		if err := RunAs(cmd, pr.user); err != nil {
			return -1, errors.Wrapf(err, "failed to run solver as %s", pr.user)
		}
	}
	log.WithField("session", inv.SessionID).Infof("calling: %s", inv)
	if pr.spawner != nil {
		cg, err := pr.spawner.Spawn(cmd, inv.SessionID+inv.Flag)
		if err != nil {
			return -1, errors.WithStack(err)
		}
		defer cg.Delete()
	} else {
		err = cmd.Start()
		if err != nil {
			return -1, errors.WithStack(err)
		}
	}
	err = cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	if _, ok := err.(*exec.ExitError); ok {
		err = nil
	}
	return code, errors.WithStack(err)
}
