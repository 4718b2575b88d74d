// Package detatest provides an in-memory Deta Base and Drive server for
// tests.
//
//	srv := detatest.NewServer()
//	defer srv.Close()
//
//	files, _ := drive.New(drive.Options{Name: "files", ProjectKey: detatest.ProjectKey, Endpoint: srv.URL})
package detatest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/bitrise-io/go-deta/projectkey"
	"github.com/bitrise-io/go-deta/transport"
	"github.com/gorilla/mux"
)

// ProjectKey is accepted by every server. Any other well-formed key is
// accepted as long as its id matches the project in the request path.
const ProjectKey = "a0abcyxz_aSecretValue"

// Request is a recorded API call.
type Request struct {
	Method string
	// Path is relative to the drive or base, like "uploads" or "items/key".
	Path  string
	Query url.Values
}

type failure struct {
	method     string
	pathSuffix string
	status     int
}

// Server ...
type Server struct {
	URL string

	httpServer *httptest.Server

	mu       sync.Mutex
	requests []Request
	failures []failure
	drives   map[string]*driveStore
	bases    map[string]*baseStore
}

// NewServer starts a server. Close it when done.
func NewServer() *Server {
	s := &Server{
		drives: map[string]*driveStore{},
		bases:  map[string]*baseStore{},
	}

	router := mux.NewRouter().UseEncodedPath()
	router.Use(s.authenticate, s.record, s.injectFailures)

	api := router.PathPrefix("/v1/{project}/{name}").Subrouter()

	api.HandleFunc("/uploads", s.initUpload).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}/parts", s.uploadPart).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}", s.completeUpload).Methods(http.MethodPatch)
	api.HandleFunc("/uploads/{id}", s.abortUpload).Methods(http.MethodDelete)
	api.HandleFunc("/files", s.listFiles).Methods(http.MethodGet)
	api.HandleFunc("/files", s.deleteFiles).Methods(http.MethodDelete)
	api.HandleFunc("/files/download", s.downloadFile).Methods(http.MethodGet)

	api.HandleFunc("/items", s.putItems).Methods(http.MethodPut)
	api.HandleFunc("/items", s.insertItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{key}", s.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{key}", s.deleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{key}", s.updateItem).Methods(http.MethodPatch)
	api.HandleFunc("/query", s.queryItems).Methods(http.MethodPost)

	s.httpServer = httptest.NewServer(router)
	s.URL = s.httpServer.URL

	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// Requests returns the calls served so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// FailNext makes the next request with method whose path ends with
// pathSuffix fail with status.
func (s *Server) FailNext(method, pathSuffix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, failure{method: method, pathSuffix: pathSuffix, status: status})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := projectkey.ProjectID(r.Header.Get(transport.APIKeyHeader))
		if err != nil || id != mux.Vars(r)["project"] {
			writeErrors(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   relativePath(r),
			Query:  r.URL.Query(),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := s.takeFailure(r.Method, relativePath(r)); status != 0 {
			writeErrors(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) takeFailure(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.failures {
		if f.method == method && strings.HasSuffix(path, f.pathSuffix) {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return f.status
		}
	}
	return 0
}

// relativePath strips the /v1/{project}/{name}/ prefix.
func relativePath(r *http.Request) string {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.EscapedPath(), "/"), "/", 4)
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

func storeKey(r *http.Request) string {
	vars := mux.Vars(r)
	return vars["project"] + "/" + pathVar(r, "name")
}

func pathVar(r *http.Request, name string) string {
	value := mux.Vars(r)[name]
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, errs ...string) {
	writeJSON(w, status, map[string][]string{"errors": errs})
}
