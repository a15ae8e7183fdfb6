package stitch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stitchkit/stitch/internal/gml"
	"github.com/stitchkit/stitch/internal/resource"
	"github.com/stitchkit/stitch/internal/storage"
)

// Server exposes a project read-only over HTTP. Every handler holds the lock
// while it touches the project, so reloads never race with requests.
type Server struct {
	open    func() (*Project, error)
	project *Project
	logger  *log.Logger
	port    int
	senders map[int]chan any
	nextID  int
	lock    sync.Mutex
}

// NewServer opens the project through open and keeps the function around to
// re-open it on Reload.
func NewServer(open func() (*Project, error), port int) (*Server, error) {
	project, err := open()
	if err != nil {
		return nil, err
	}
	return &Server{
		open:    open,
		project: project,
		logger:  project.Logger(),
		port:    port,
		senders: map[int]chan any{},
	}, nil
}

type resourceSummary struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Folder string `json:"folder"`
}

type resourceDetail struct {
	resourceSummary
	Descriptor json.RawMessage `json:"descriptor"`
}

type folderSummary struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

type reloadEvent struct {
	Type    string `json:"type"`
	Project string `json:"project"`
}

type reloadErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type pingEvent struct {
	Type string `json:"type"`
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/events", s.events)
	r.Get("/resources", s.listResources)
	r.Get("/resources/{kind}/{name}", s.getResource)
	r.Get("/folders", s.listFolders)
	r.Get("/functions", s.listFunctions)
	r.Get("/functions/{name}/references", s.listReferences)
	return r
}

// Serve blocks serving on the configured port and pings event listeners
// periodically so proxies keep the streams open.
func (s *Server) Serve() error {
	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(done, pingInterval)
	s.logger.Info("serving project", "name", s.Project().Name(), "port", s.port)
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), s.Handler())
}

const pingInterval = 10 * time.Second

// keepAlive pings listeners every interval until done is closed.
func (s *Server) keepAlive(done <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.broadcast(pingEvent{Type: "ping"})
		}
	}
}

// Project returns the project currently being served.
func (s *Server) Project() *Project {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.project
}

// Reload re-opens the project and notifies every event listener. When the
// project no longer loads the previous one keeps being served and listeners
// receive the error.
func (s *Server) Reload() error {
	s.lock.Lock()
	project, err := s.open()
	if err == nil {
		s.project = project
	}
	s.lock.Unlock()

	if err != nil {
		s.logger.Error("reload failed", "err", err)
		s.broadcast(reloadErrorEvent{Type: "reloadError", Error: err.Error()})
		return err
	}
	s.logger.Info("reloaded project", "name", project.Name())
	s.broadcast(reloadEvent{Type: "reload", Project: project.Name()})
	return nil
}

func (s *Server) broadcast(event any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for id, sender := range s.senders {
		select {
		case sender <- event:
		default:
			s.logger.Warn("dropping event for slow listener", "listener", id)
		}
	}
}

func (s *Server) listeners() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.senders)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	s.lock.Lock()
	id := s.nextID
	s.nextID++
	c := make(chan any, 8)
	s.senders[id] = c
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.senders, id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-c:
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := encoder.Encode(event); err != nil {
				s.logger.Warn("could not send event", "err", err)
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	q := r.URL.Query()
	items := s.project.Resources().All()
	if folder := q.Get("folder"); folder != "" {
		recursive, _ := strconv.ParseBool(q.Get("recursive"))
		items = s.project.Resources().FilterByFolder(folder, recursive)
	}
	var kind resource.Kind
	if k := q.Get("kind"); k != "" {
		var ok bool
		if kind, ok = resource.ParseKind(k); !ok {
			writeError(w, &resource.PipelineError{Kind: resource.UnknownResourceKind, Resource: k, Msg: "unknown kind"})
			return
		}
	}
	out := []resourceSummary{}
	for _, res := range items {
		if kind != resource.KindUnknown && res.Kind() != kind {
			continue
		}
		out = append(out, summarize(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	kind, ok := resource.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	res, ok := s.project.Resources().Get(kind, chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	descriptor := res.Field("@this").Raw
	writeJSON(w, http.StatusOK, resourceDetail{resourceSummary: summarize(res), Descriptor: json.RawMessage(descriptor)})
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	folders := s.project.Folders().All()
	if module := r.URL.Query().Get("module"); module != "" {
		folders = s.project.Folders().FindModuleFolders(module)
	}
	out := []folderSummary{}
	for _, f := range folders {
		out = append(out, folderSummary{Path: f.Path(), Name: f.Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listFunctions(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	funcs, err := s.project.GlobalFunctions()
	if err != nil {
		writeError(w, err)
		return
	}
	if funcs == nil {
		funcs = []gml.FunctionDeclaration{}
	}
	writeJSON(w, http.StatusOK, funcs)
}

func (s *Server) listReferences(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	name := chi.URLParam(r, "name")
	if _, ok, err := s.project.FindGlobalFunction(name); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	includeSelf, _ := strconv.ParseBool(q.Get("self"))
	refs, err := s.project.FindFunctionReferences(name, resource.ReferenceOptions{Suffix: q.Get("suffix"), IncludeSelf: includeSelf})
	if err != nil {
		writeError(w, err)
		return
	}
	if refs == nil {
		refs = []gml.Reference{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start))
	})
}

func summarize(res resource.Resource) resourceSummary {
	return resourceSummary{
		Name:   res.Name(),
		Kind:   res.KindTag(),
		ID:     res.ID().String(),
		Folder: res.FolderPath(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("could not write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var pipelineErr *resource.PipelineError
	var scanErr *gml.ScanError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &pipelineErr), errors.As(err, &scanErr):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
