package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/session"
	"github.com/lcpu-club/optdeadline/solver"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = fmt.Errorf("engine closed")
var ErrEmptyDeadline = fmt.Errorf("empty deadline")
var ErrNilConfiguration = fmt.Errorf("nil configuration")

// CompletionHook is called once per session after its completion marker has
// been written (or failed to be written). Errors are only logged.
type CompletionHook interface {
	SessionCompleted(l session.Layout, id string) error
}

type job struct {
	id         string
	deadline   string
	algorithms session.Algorithms
	layout     session.Layout
	solverDir  string
}

// Engine runs the solver for submitted sessions, one process at a time.
//
// Submissions are appended to a FIFO list drained by a single worker
// goroutine, so Start never waits for a running solver. The wake channel has
// capacity one: a pending signal is enough for the worker to re-check the
// list.
type Engine struct {
	layout session.Layout
	paths  *configure.PathsConfigure
	runner solver.Runner
	hooks  []CompletionHook

	mu      sync.Mutex
	pending []*job
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	running int32
	now     func() time.Time
}

func NewEngine(conf *configure.Configure, runner solver.Runner) *Engine {
	e := &Engine{
		layout:  session.NewLayout(conf.Paths.Tmp),
		paths:   conf.Paths,
		runner:  runner,
		pending: []*job{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go e.loop()
	return e
}

// AddHook registers h. Hooks must be added before the first Start.
func (e *Engine) AddHook(h CompletionHook) {
	e.hooks = append(e.hooks, h)
}

func (e *Engine) Layout() session.Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// SetPaths changes the directories used by sessions started afterwards.
// Queued and running sessions keep the paths they were started with.
func (e *Engine) SetPaths(paths *configure.PathsConfigure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths = paths
	e.layout = session.NewLayout(paths.Tmp)
}

// Start creates the session directory synchronously and queues the solver
// runs. Setup errors are returned; solver errors never are.
func (e *Engine) Start(c *store.Configuration, algorithms session.Algorithms, deadline string) (string, error) {
	return e.StartFunc(c, algorithms, deadline, nil)
}

// StartFunc is Start with a callback. queued, when not nil, receives the
// session layout and id after the directory is created and before the
// session can run, so nothing the completion hooks see precedes it. It is
// called with the engine locked and must not call back into the engine.
func (e *Engine) StartFunc(c *store.Configuration, algorithms session.Algorithms, deadline string, queued func(l session.Layout, id string)) (string, error) {
	if c == nil {
		return "", ErrNilConfiguration
	}
	deadline = strings.TrimSpace(deadline)
	if deadline == "" {
		return "", ErrEmptyDeadline
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	s := &session.Session{
		ID:            session.NewID(c.Name),
		Configuration: c,
		Deadline:      deadline,
		Algorithms:    algorithms,
		Started:       e.now(),
	}
	if err := session.Create(e.layout, s, e.paths); err != nil {
		return "", errors.Wrapf(err, "failed to create session %s", s.ID)
	}
	if queued != nil {
		queued(e.layout, s.ID)
	}
	e.pending = append(e.pending, &job{
		id:         s.ID,
		deadline:   deadline,
		algorithms: algorithms,
		layout:     e.layout,
		solverDir:  e.paths.OptDeadline,
	})
	e.signal()
	log.WithField("session", s.ID).Infof("Session queued (%v pending)", len(e.pending))
	return s.ID, nil
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued sessions, not counting the running one.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Running is the number of solver processes currently executing, 0 or 1.
func (e *Engine) Running() int {
	return int(atomic.LoadInt32(&e.running))
}

// Close stops accepting sessions and waits until the queue is drained.
// Running solvers are not interrupted.
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.signal()
	}
	e.mu.Unlock()
	<-e.done
}

func (e *Engine) next() (*job, bool) {
	for {
		e.mu.Lock()
		if len(e.pending) > 0 {
			j := e.pending[0]
			e.pending = e.pending[1:]
			e.mu.Unlock()
			return j, true
		}
		if e.closed {
			e.mu.Unlock()
			return nil, false
		}
		e.mu.Unlock()
		<-e.wake
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		j, ok := e.next()
		if !ok {
			return
		}
		e.execute(j)
	}
}

func (e *Engine) execute(j *job) {
	logger := log.WithField("session", j.id)
	defer e.complete(j)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("solver run panicked: %v", r)
		}
	}()
	for _, flag := range j.algorithms.Flags() {
		inv := solver.NewInvocation(j.layout, j.id, j.solverDir, j.deadline, flag)
		code, err := e.invoke(inv)
		if err != nil {
			logger.WithError(err).Errorf("algorithm %s failed to run", flag)
			continue
		}
		logger.Infof("algorithm %s exited with status %v", flag, code)
	}
}

func (e *Engine) invoke(inv *solver.Invocation) (int, error) {
	if n := atomic.AddInt32(&e.running, 1); n != 1 {
		log.Errorf("%v solver processes running at once", n)
	}
	defer atomic.AddInt32(&e.running, -1)
	return e.runner.Run(inv)
}

// complete writes the completion marker and notifies the hooks. It runs
// exactly once per session whatever the solvers did.
func (e *Engine) complete(j *job) {
	id := j.id
	logger := log.WithField("session", id)
	err := retry.Do(
		func() error {
			return session.MarkCompleted(j.layout, id, e.now())
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logger.WithError(err).Error("Could not create completed output file")
	} else {
		logger.Info("Session completed")
	}
	for _, h := range e.hooks {
		if err := h.SessionCompleted(j.layout, id); err != nil {
			logger.WithError(err).Warn("completion hook failed")
		}
	}
}
