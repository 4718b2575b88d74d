package detatest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
)

const defaultListLimit = 1000

type storedFile struct {
	data        []byte
	contentType string
	modified    time.Time
}

type uploadSession struct {
	name        string
	contentType string
	parts       [][]byte
}

type driveStore struct {
	files   *cache.Cache
	uploads map[string]*uploadSession
}

func (s *Server) drive(r *http.Request) *driveStore {
	key := storeKey(r)
	d, ok := s.drives[key]
	if !ok {
		d = &driveStore{
			files:   cache.New(cache.NoExpiration, 0),
			uploads: map[string]*uploadSession{},
		}
		s.drives[key] = d
	}
	return d
}

// Files returns a copy of the files stored in the named drive.
func (s *Server) Files(driveName string) map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := map[string][]byte{}
	for key, d := range s.drives {
		if !strings.HasSuffix(key, "/"+driveName) {
			continue
		}
		for name, item := range d.files.Items() {
			files[name] = append([]byte(nil), item.Object.(storedFile).data...)
		}
	}
	return files
}

// OpenUploads returns the number of upload sessions of the named drive
// that were neither completed nor aborted.
func (s *Server) OpenUploads(driveName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, d := range s.drives {
		if strings.HasSuffix(key, "/"+driveName) {
			n += len(d.uploads)
		}
	}
	return n
}

func (s *Server) initUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErrors(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.drive(r).uploads[id] = &uploadSession{
		name:        name,
		contentType: r.Header.Get("Content-Type"),
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"name":       name,
		"upload_id":  id,
		"project_id": mux.Vars(r)["project"],
		"drive_name": pathVar(r, "name"),
	})
}

func (s *Server) uploadPart(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	part, err := strconv.Atoi(r.URL.Query().Get("part"))
	if err != nil || part != len(session.parts)+1 {
		writeErrors(w, http.StatusBadRequest, "unexpected part number")
		return
	}
	session.parts = append(session.parts, data)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      session.name,
		"upload_id": pathVar(r, "id"),
		"part":      part,
	})
}

func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	d := s.drive(r)
	d.files.Set(session.name, storedFile{
		data:        bytes.Join(session.parts, nil),
		contentType: session.contentType,
		modified:    time.Now(),
	}, cache.NoExpiration)
	delete(d.uploads, pathVar(r, "id"))

	writeJSON(w, http.StatusOK, map[string]string{"name": session.name, "upload_id": pathVar(r, "id")})
}

func (s *Server) abortUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.session(w, r)
	if !ok {
		return
	}
	delete(s.drive(r).uploads, pathVar(r, "id"))

	writeJSON(w, http.StatusOK, map[string]string{"name": session.name, "upload_id": pathVar(r, "id")})
}

// session looks up the upload of the request; the caller holds s.mu.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*uploadSession, bool) {
	session, ok := s.drive(r).uploads[pathVar(r, "id")]
	if !ok {
		writeErrors(w, http.StatusNotFound, "upload not found")
		return nil, false
	}
	if name := r.URL.Query().Get("name"); name != session.name {
		writeErrors(w, http.StatusBadRequest, "name does not match upload")
		return nil, false
	}
	return session, true
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultListLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErrors(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	s.mu.Lock()
	var names []string
	for name := range s.drive(r).files.Items() {
		if strings.HasPrefix(name, query.Get("prefix")) && name > query.Get("last") {
			names = append(names, name)
		}
	}
	s.mu.Unlock()
	sort.Strings(names)

	more := len(names) > limit
	if more {
		names = names[:limit]
	}
	if names == nil {
		names = []string{}
	}

	resp := map[string]interface{}{"names": names}
	if query.Has("limit") {
		paging := map[string]interface{}{"size": len(names)}
		if more {
			paging["last"] = names[len(names)-1]
		}
		resp["paging"] = paging
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteFiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.Names) == 0 || len(req.Names) > 1000 {
		writeErrors(w, http.StatusBadRequest, "invalid number of names")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.drive(r).files
	for _, name := range req.Names {
		files.Delete(name)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": req.Names,
		"failed":  map[string]string{},
	})
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	s.mu.Lock()
	item, ok := s.drive(r).files.Get(name)
	s.mu.Unlock()
	if !ok {
		writeErrors(w, http.StatusNotFound, "file not found")
		return
	}

	file := item.(storedFile)
	if file.contentType != "" {
		w.Header().Set("Content-Type", file.contentType)
	}
	http.ServeContent(w, r, name, file.modified, bytes.NewReader(file.data))
}
