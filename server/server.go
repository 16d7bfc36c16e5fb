package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/lcpu-club/optdeadline/api"
	"github.com/lcpu-club/optdeadline/common"
	"github.com/lcpu-club/optdeadline/configure"
	"github.com/lcpu-club/optdeadline/engine"
	"github.com/lcpu-club/optdeadline/importer"
	"github.com/lcpu-club/optdeadline/status"
	"github.com/lcpu-club/optdeadline/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

type Server struct {
	mu            sync.RWMutex
	configure     *configure.Configure
	configurePath string
	engine        *engine.Engine
	store         *store.Store
	pipeline      *importer.Pipeline
	cs            *common.CommonServer
}

var ErrNilConfigure = fmt.Errorf("nil configure")
var ErrNilEngine = fmt.Errorf("nil engine")

// NewServer builds the HTTP front end. configurePath is where POST
// /settings persists the configure; an empty path keeps changes in memory.
func NewServer(conf *configure.Configure, configurePath string, e *engine.Engine) (*Server, error) {
	srv := &Server{configurePath: configurePath}
	return srv, srv.Init(conf, e)
}

func (s *Server) Init(conf *configure.Configure, e *engine.Engine) error {
	if conf != nil {
		s.configure = conf
	}
	if conf == nil && s.configure == nil {
		return ErrNilConfigure
	}
	if e != nil {
		s.engine = e
	}
	if s.engine == nil {
		return ErrNilEngine
	}
	s.apply(s.configure)
	s.cs = common.NewCommonServer(s.configure.Listen)
	s.registerRoutes(s.cs.GetRouter())
	return nil
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/configurations", s.HandleListConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/configurations", s.HandleSaveConfiguration).Methods(http.MethodPost)
	r.HandleFunc("/configurations/{name}", s.HandleGetConfiguration).Methods(http.MethodGet)
	r.HandleFunc("/run", s.HandleRun).Methods(http.MethodPost)
	r.HandleFunc("/sessions", s.HandleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.HandleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/watch", s.HandleWatchSession).Methods(http.MethodGet)
	r.HandleFunc("/files", s.HandleListFiles).Methods(http.MethodGet)
	r.HandleFunc("/import", s.HandleImport).Methods(http.MethodPost)
	r.HandleFunc("/settings", s.HandleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", s.HandleUpdateSettings).Methods(http.MethodPost)
}

// apply points the store, the import pipeline and the engine at the paths
// of conf.
func (s *Server) apply(conf *configure.Configure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configure = conf
	s.store = store.NewStore(conf.Paths.Configurations)
	s.pipeline = importer.NewPipeline(conf.Paths.AppFiles)
	s.engine.SetPaths(conf.Paths)
}

func (s *Server) current() (*configure.Configure, *store.Store, *importer.Pipeline) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configure, s.store, s.pipeline
}

func (s *Server) reader() *status.Reader {
	return status.NewReader(s.engine.Layout(), s.AppFiles())
}

// AppFiles is the application file pool of the current settings.
func (s *Server) AppFiles() string {
	conf, _, _ := s.current()
	return conf.Paths.AppFiles
}

// Load reads a configuration from the current configuration folder.
func (s *Server) Load(name string) (*store.Configuration, error) {
	_, st, _ := s.current()
	return st.Load(name)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.cs.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	return s.cs.Start()
}

func (s *Server) GetCommonServer() *common.CommonServer {
	return s.cs
}

func (s *Server) HandleListConfigurations(w http.ResponseWriter, r *http.Request) {
	_, st, _ := s.current()
	resp := &api.ListConfigurationsResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	names, err := st.List()
	if err != nil {
		log.WithError(err).Error("failed to list configurations")
		resp.SetError(api.ErrFailedToListConfigurations)
	}
	resp.Configurations = names
	s.cs.Respond(w, resp)
}

func (s *Server) HandleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	_, st, _ := s.current()
	resp := &api.GetConfigurationResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	c, err := st.Load(mux.Vars(r)["name"])
	if err != nil {
		resp.SetError(configurationError(err))
	}
	resp.Configuration = c
	s.cs.Respond(w, resp)
}

func configurationError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return api.ErrConfigurationNotFound
	case errors.Is(err, store.ErrInvalidName), errors.Is(err, store.ErrMalformedRecord):
		return errors.Wrap(api.ErrInvalidConfiguration, errors.Cause(err).Error())
	}
	log.WithError(err).Error("failed to load configuration")
	return err
}

func (s *Server) HandleSaveConfiguration(w http.ResponseWriter, r *http.Request) {
	req := new(api.SaveConfigurationRequest)
	if !s.cs.ParseRequest(w, r, req) {
		return
	}
	_, st, _ := s.current()
	resp := &api.SaveConfigurationResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	c := &req.Configuration
	c.Normalize()
	if err := st.Save(c, ""); err != nil {
		if errors.Is(err, store.ErrInvalidName) || errors.Is(err, store.ErrMalformedRecord) {
			resp.SetError(errors.Wrap(api.ErrInvalidConfiguration, err.Error()))
		} else {
			log.WithError(err).WithField("configuration", c.Name).Error("failed to save configuration")
			resp.SetError(api.ErrFailedToSaveConfiguration)
		}
	}
	s.cs.Respond(w, resp)
}

func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	req := new(api.RunRequest)
	if !s.cs.ParseRequest(w, r, req) {
		return
	}
	_, st, _ := s.current()
	resp := &api.RunResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	c, err := st.Load(strings.TrimSpace(req.ConfigurationName))
	if err != nil {
		resp.SetError(configurationError(err))
		s.cs.Respond(w, resp)
		return
	}
	id, err := s.engine.Start(c, req.Algorithms, req.Deadline.String())
	if err != nil {
		if errors.Is(err, engine.ErrEmptyDeadline) || errors.Is(err, engine.ErrClosed) {
			resp.SetError(err)
		} else {
			log.WithError(err).WithField("configuration", c.Name).Error("failed to start session")
			resp.SetError(api.ErrFailedToStartSession)
		}
		s.cs.Respond(w, resp)
		return
	}
	resp.SessionID = id
	s.cs.Respond(w, resp)
}

func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	resp := &api.ListSessionsResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
		Sessions: s.reader().ReadAll(),
	}
	s.cs.Respond(w, resp)
}

func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	resp := &api.GetSessionResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
		Session: s.reader().Read(mux.Vars(r)["id"]),
	}
	s.cs.Respond(w, resp)
}

// HandleWatchSession pushes a snapshot every watch interval until the
// session is done, then closes the websocket normally.
func (s *Server) HandleWatchSession(w http.ResponseWriter, r *http.Request) {
	conf, _, _ := s.current()
	id := mux.Vars(r)["id"]
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusAbnormalClosure, "handler exited unexpectedly")
	ctx := conn.CloseRead(r.Context())
	err = s.reader().Watch(ctx, id, conf.Status.WatchInterval, func(snapshot *status.Snapshot) error {
		j, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, j)
	})
	if err != nil {
		log.WithError(err).WithField("session", id).Debug("watch ended")
		conn.Close(websocket.StatusInternalError, "watch failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session done")
}

func (s *Server) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	_, _, p := s.current()
	resp := &api.ListFilesResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	files, err := importer.ListPool(p.Pool())
	if err != nil {
		log.WithError(err).Error("failed to list pool")
		resp.SetError(api.ErrFailedToListFiles)
	}
	resp.Files = files
	s.cs.Respond(w, resp)
}

// HandleImport takes the archive as the raw request body.
func (s *Server) HandleImport(w http.ResponseWriter, r *http.Request) {
	conf, _, p := s.current()
	resp := &api.ImportResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
	}
	bundles, err := p.ImportArchive(r.Body, conf.Paths.Tmp)
	if err != nil {
		log.WithError(err).Warn("import failed")
		resp.SetError(errors.Wrap(api.ErrFailedToImport, err.Error()))
	}
	if bundles == nil {
		bundles = []importer.Bundle{}
	}
	resp.Bundles = bundles
	s.cs.Respond(w, resp)
}

func (s *Server) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	conf, _, _ := s.current()
	resp := &api.SettingsResponse{
		ResponseBase: common.ResponseBase{
			Success: true,
		},
		Settings: conf.Settings(),
	}
	s.cs.Respond(w, resp)
}

func (s *Server) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	req := new(api.UpdateSettingsRequest)
	if !s.cs.ParseRequest(w, r, req) {
		return
	}
	conf, _, _ := s.current()
	resp := &api.UpdateSettingsResponse{
		SettingsResponse: api.SettingsResponse{
			ResponseBase: common.ResponseBase{
				Success: true,
			},
		},
	}
	n, err := conf.WithOverrides(req.Settings)
	if err != nil {
		resp.SetError(err)
		resp.Settings = conf.Settings()
		s.cs.Respond(w, resp)
		return
	}
	if s.configurePath != "" {
		if err := n.Save(s.configurePath); err != nil {
			log.WithError(err).WithField("path", s.configurePath).Error("failed to save settings")
			resp.SetError(api.ErrFailedToSaveSettings)
			resp.Settings = conf.Settings()
			s.cs.Respond(w, resp)
			return
		}
	}
	s.apply(n)
	log.WithField("settings", n.Settings()).Info("settings updated")
	resp.Settings = n.Settings()
	s.cs.Respond(w, resp)
}
