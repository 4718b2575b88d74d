package base

import (
	"time"
)

const (
	keyField     = "key"
	expiresField = "__expires"
)

// Item is a single Base record. Values are JSON primitives, lists, objects
// or nil; the "key" field identifies the item.
type Item map[string]interface{}

// Key returns the key of the item or an empty string if it has none.
func (i Item) Key() string {
	key, _ := i[keyField].(string)
	return key
}

// SetExpiresAt makes the service delete the item at t.
func (i Item) SetExpiresAt(t time.Time) {
	i[expiresField] = t.Unix()
}

// ExpiresAt returns the expiration time of the item, if there is one.
func (i Item) ExpiresAt() (time.Time, bool) {
	switch v := i[expiresField].(type) {
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case float64:
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}

// Updates is the document of an Update call. Field names may address
// nested fields with dots, like "profile.age".
type Updates struct {
	Set       map[string]interface{}   `json:"set,omitempty"`
	Increment map[string]float64       `json:"increment,omitempty"`
	Append    map[string][]interface{} `json:"append,omitempty"`
	Prepend   map[string][]interface{} `json:"prepend,omitempty"`
	Delete    []string                 `json:"delete,omitempty"`
}

// Query is an AND-combined set of conditions. Keys are field paths with an
// optional operator suffix, like "age?gte" or "name?pfx". A list of
// queries matches an item if any of them does.
type Query map[string]interface{}

// QueryOptions pages Query. Zero values are not sent.
type QueryOptions struct {
	Last  string
	Limit int
}

// Paging is the continuation cursor of a query. Last is empty on the
// final page.
type Paging struct {
	Size int    `json:"size"`
	Last string `json:"last,omitempty"`
}

// QueryResponse ...
type QueryResponse struct {
	Items  []Item `json:"items"`
	Paging Paging `json:"paging"`
}

type itemList struct {
	Items []Item `json:"items"`
}

// PutResponse lists the stored items, with their keys, and the rejected ones.
type PutResponse struct {
	Processed itemList `json:"processed"`
	Failed    itemList `json:"failed"`
}
