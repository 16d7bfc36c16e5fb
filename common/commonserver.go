package common

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type CommonServer struct {
	listen string
	router *mux.Router
	srv    *http.Server
}

func NewCommonServer(listen string) *CommonServer {
	cs := &CommonServer{
		listen: listen,
		router: mux.NewRouter(),
	}
	cs.srv = &http.Server{
		Addr:              listen,
		Handler:           cs,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return cs
}

func (cs *CommonServer) GetRouter() *mux.Router {
	return cs.router
}

func (cs *CommonServer) RespondError(w http.ResponseWriter, statusCode int, message string) {
	if message == "" {
		message = strconv.Itoa(statusCode) + " " + http.StatusText(statusCode)
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(statusCode)
	w.Write([]byte(message))
}

func (cs *CommonServer) ParseRequest(w http.ResponseWriter, r *http.Request, req Request) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		cs.RespondError(w, http.StatusBadRequest, "")
		return false
	}
	err = json.Unmarshal(body, req)
	if err != nil {
		cs.RespondError(w, http.StatusBadRequest, "")
		return false
	}
	return true
}

// Respond writes resp as JSON. A response carrying an error is still sent
// with status 200; callers inspect the success field.
func (cs *CommonServer) Respond(w http.ResponseWriter, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	j, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Error("failed to marshal response")
		return
	}
	_, err = w.Write(j)
	if err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

func (cs *CommonServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cs.router.ServeHTTP(w, r)
}

func (cs *CommonServer) Start() error {
	log.Infof("Listening on %s", cs.listen)
	err := cs.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (cs *CommonServer) Shutdown(ctx context.Context) error {
	return cs.srv.Shutdown(ctx)
}
