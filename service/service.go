package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/engine"
	"github.com/lcpu-club/optdeadline/queue"
	"github.com/lcpu-club/optdeadline/server"
	"github.com/lcpu-club/optdeadline/solver"
	"github.com/lcpu-club/optdeadline/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Service assembles the engine, the HTTP server and the optional MinIO and
// NSQ integrations of one opt-deadline process.
type Service struct {
	configure     *configure.Configure
	configurePath string
	runner        solver.Runner
	engine        *engine.Engine
	server        *server.Server
	queue         *queue.Queue
	deduper       *queue.RedisDeduper
}

var ErrNilConfigure = fmt.Errorf("nil configure")

func NewService(conf *configure.Configure, configurePath string) (*Service, error) {
	svc := &Service{configurePath: configurePath}
	return svc, svc.Init(conf)
}

func (s *Service) Init(conf *configure.Configure) error {
	if conf != nil {
		s.configure = conf
	}
	if s.configure == nil {
		return ErrNilConfigure
	}
	if s.runner == nil {
		r, err := NewRunner(s.configure.Solver)
		if err != nil {
			return err
		}
		s.runner = r
	}
	return nil
}

// SetRunner replaces the solver runner. It must be called before Run.
func (s *Service) SetRunner(r solver.Runner) {
	s.runner = r
}

// NewRunner builds the process runner for the solver section, confining
// the solver to cgroups when a base path is configured.
func NewRunner(conf *configure.SolverConfigure) (*solver.ProcessRunner, error) {
	opts := []solver.ProcessRunnerOption{}
	if conf == nil {
		return solver.NewProcessRunner(), nil
	}
	if conf.User != "" {
		opts = append(opts, solver.WithUser(conf.User))
	}
	if conf.CgroupsBasePath != "" {
		sp := solver.NewSpawner(conf.CgroupsBasePath, solver.ResourceControlFromConfigure(conf.ResourceControl))
		if err := sp.Init(); err != nil {
			return nil, errors.Wrap(err, "failed to initialize cgroups")
		}
		opts = append(opts, solver.WithSpawner(sp))
	}
	return solver.NewProcessRunner(opts...), nil
}

func (s *Service) Engine() *engine.Engine {
	return s.engine
}

func (s *Service) Server() *server.Server {
	return s.server
}

// Connect starts the engine and connects the enabled integrations. It does
// not block.
func (s *Service) Connect() error {
	s.engine = engine.NewEngine(s.configure, s.runner)
	err := s.connectMinIO()
	if err != nil {
		log.WithError(err).Error("Connect to MinIO failed")
		return err
	}
	err = s.connectRedis()
	if err != nil {
		log.WithError(err).Error("Connect to Redis failed")
		return err
	}
	s.server, err = server.NewServer(s.configure, s.configurePath, s.engine)
	if err != nil {
		return err
	}
	err = s.connectNSQ()
	if err != nil {
		log.WithError(err).Error("Connect to NSQ failed")
		return err
	}
	return nil
}

func (s *Service) connectMinIO() error {
	if s.configure.MinIO == nil || !s.configure.MinIO.Enabled {
		return nil
	}
	p, err := storage.ConnectMinIO(s.configure)
	if err != nil {
		return err
	}
	s.engine.AddHook(p)
	return nil
}

func (s *Service) connectRedis() error {
	if s.configure.Nsq == nil || !s.configure.Nsq.Enabled || s.configure.Redis == nil || s.configure.Redis.Address == "" {
		return nil
	}
	d, err := queue.DialRedis(s.configure.Redis)
	if err != nil {
		return err
	}
	s.deduper = d
	return nil
}

func (s *Service) connectNSQ() error {
	if s.configure.Nsq == nil || !s.configure.Nsq.Enabled {
		return nil
	}
	var dedupe queue.Deduper
	if s.deduper != nil {
		dedupe = s.deduper
	}
	s.queue = queue.NewQueue(s.configure.Nsq, s.engine, s.server, s.server.AppFiles, dedupe)
	s.engine.AddHook(s.queue)
	return s.queue.Connect()
}

// Serve blocks serving HTTP until Shutdown is called. Connect must have
// succeeded before.
func (s *Service) Serve() error {
	return s.server.Start()
}

// Shutdown stops accepting work, then waits for the queued sessions to
// finish unless ctx expires first.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.GetCommonServer().Shutdown(ctx)
	}
	if s.queue != nil {
		s.queue.Stop()
	}
	if s.engine != nil {
		drained := make(chan struct{})
		go func() {
			s.engine.Close()
			close(drained)
		}()
		start := time.Now()
		select {
		case <-drained:
			log.Infof("engine drained in %v", time.Since(start))
		case <-ctx.Done():
			log.Warnf("%v sessions still pending at shutdown", s.engine.Pending())
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	if s.deduper != nil {
		if cerr := s.deduper.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close redis connection")
		}
	}
	return err
}
