package detatest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	keyField     = "key"
	expiresField = "__expires"
	maxPutItems  = 25
)

type item = map[string]interface{}

type baseStore struct {
	items *cache.Cache
}

func (s *Server) base(r *http.Request) *baseStore {
	key := storeKey(r)
	b, ok := s.bases[key]
	if !ok {
		b = &baseStore{items: cache.New(cache.NoExpiration, time.Minute)}
		s.bases[key] = b
	}
	return b
}

func (b *baseStore) put(it item) error {
	key, err := itemKey(it)
	if err != nil {
		return err
	}
	expiration, err := itemExpiration(it)
	if err != nil {
		return err
	}
	if expiration < 0 {
		b.items.Delete(key)
		return nil
	}
	b.items.Set(key, it, expiration)
	return nil
}

func (b *baseStore) get(key string) (item, bool) {
	v, ok := b.items.Get(key)
	if !ok {
		return nil, false
	}
	return v.(item), true
}

// Items returns a copy of the items stored in the named base.
func (s *Server) Items(baseName string) map[string]map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := map[string]map[string]interface{}{}
	for key, b := range s.bases {
		if !strings.HasSuffix(key, "/"+baseName) {
			continue
		}
		for k, v := range b.items.Items() {
			items[k] = copyItem(v.Object.(item))
		}
	}
	return items
}

func itemKey(it item) (string, error) {
	v, ok := it[keyField]
	if !ok || v == nil {
		key := uuid.New().String()
		it[keyField] = key
		return key, nil
	}
	key, ok := v.(string)
	if !ok || key == "" {
		return "", fmt.Errorf("key must be a non-empty string")
	}
	return key, nil
}

// itemExpiration maps __expires to a go-cache expiration; a negative
// value means the item is already expired.
func itemExpiration(it item) (time.Duration, error) {
	v, ok := it[expiresField]
	if !ok || v == nil {
		return cache.NoExpiration, nil
	}
	seconds, ok := v.(float64)
	if !ok || seconds != math.Trunc(seconds) {
		return 0, fmt.Errorf("%s must be a UNIX timestamp in seconds", expiresField)
	}
	until := time.Until(time.Unix(int64(seconds), 0))
	if until <= 0 {
		return -1, nil
	}
	return until, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}

func (s *Server) putItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []item `json:"items"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 || len(req.Items) > maxPutItems {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("between 1 and %d items are required", maxPutItems))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.base(r)
	processed := []item{}
	failed := []item{}
	for _, it := range req.Items {
		if err := b.put(it); err != nil {
			failed = append(failed, it)
			continue
		}
		processed = append(processed, it)
	}

	writeJSON(w, http.StatusMultiStatus, map[string]interface{}{
		"processed": map[string]interface{}{"items": processed},
		"failed":    map[string]interface{}{"items": failed},
	})
}

func (s *Server) insertItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item item `json:"item"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Item == nil {
		writeErrors(w, http.StatusBadRequest, "item is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.base(r)
	if key, ok := req.Item[keyField].(string); ok {
		if _, exists := b.get(key); exists {
			writeErrors(w, http.StatusConflict, fmt.Sprintf("Key '%s' already exists", key))
			return
		}
	}
	if err := b.put(req.Item); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, req.Item)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	key := pathVar(r, "key")

	s.mu.Lock()
	it, ok := s.base(r).get(key)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{keyField: key})
		return
	}

	writeJSON(w, http.StatusOK, it)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	key := pathVar(r, "key")

	s.mu.Lock()
	s.base(r).items.Delete(key)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{keyField: key})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var updates struct {
		Set       map[string]interface{}   `json:"set"`
		Increment map[string]float64       `json:"increment"`
		Append    map[string][]interface{} `json:"append"`
		Prepend   map[string][]interface{} `json:"prepend"`
		Delete    []string                 `json:"delete"`
	}
	if !decodeBody(w, r, &updates) {
		return
	}
	key := pathVar(r, "key")

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.base(r)
	current, ok := b.get(key)
	if !ok {
		writeErrors(w, http.StatusNotFound, fmt.Sprintf("Key '%s' not found", key))
		return
	}

	updated := copyItem(current)
	for field, value := range updates.Set {
		if field == keyField {
			writeErrors(w, http.StatusBadRequest, "key cannot be updated")
			return
		}
		setPath(updated, field, value)
	}
	for field, delta := range updates.Increment {
		old, _ := lookupPath(updated, field)
		n, isNumber := old.(float64)
		if old != nil && !isNumber {
			writeErrors(w, http.StatusBadRequest, fmt.Sprintf("cannot increment non-number field %s", field))
			return
		}
		setPath(updated, field, n+delta)
	}
	for field, values := range updates.Append {
		list, err := listField(updated, field)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		setPath(updated, field, append(list, values...))
	}
	for field, values := range updates.Prepend {
		list, err := listField(updated, field)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		setPath(updated, field, append(append([]interface{}{}, values...), list...))
	}
	for _, field := range updates.Delete {
		deletePath(updated, field)
	}

	if err := b.put(updated); err != nil {
		writeErrors(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{keyField: key})
}

func (s *Server) queryItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query []map[string]interface{} `json:"query"`
		Last  string                   `json:"last"`
		Limit int                      `json:"limit"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.Lock()
	var keys []string
	all := map[string]item{}
	for key, v := range s.base(r).items.Items() {
		if key > req.Last {
			keys = append(keys, key)
			all[key] = v.Object.(item)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	items := []item{}
	last := ""
	for _, key := range keys {
		ok, err := matchQuery(all[key], req.Query)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		if !ok {
			continue
		}
		if len(items) == limit {
			last = items[len(items)-1][keyField].(string)
			break
		}
		items = append(items, all[key])
	}

	paging := map[string]interface{}{"size": len(items)}
	if last != "" {
		paging["last"] = last
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paging": paging,
		"items":  items,
	})
}

func listField(it item, field string) ([]interface{}, error) {
	v, ok := lookupPath(it, field)
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %s is not a list", field)
	}
	return append([]interface{}{}, list...), nil
}

func copyItem(it item) item {
	data, _ := json.Marshal(it)
	var c item
	_ = json.Unmarshal(data, &c)
	return c
}
