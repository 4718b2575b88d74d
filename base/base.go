// Package base is a client for the Deta Base key-value store API.
package base

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-deta/projectkey"
	"github.com/bitrise-io/go-deta/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultEndpoint is the Base API host.
const DefaultEndpoint = "https://database.deta.sh"

// MaxPutItems is the largest batch accepted by Put.
const MaxPutItems = 25

// Options ...
type Options struct {
	// Name of the base.
	Name       string
	ProjectKey string

	// EncodeKey escapes item keys in request paths. Defaults to
	// EncodeURIComponent.
	EncodeKey func(string) string

	// Endpoint overrides DefaultEndpoint.
	Endpoint string
	Logger   log.Logger
}

// Base is safe for concurrent use.
type Base struct {
	client    *transport.Client
	logger    log.Logger
	name      string
	encodeKey func(string) string
}

// New validates the project key and returns a client of the named base.
func New(opts Options) (*Base, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("base name is empty")
	}

	projectID, err := projectkey.ProjectID(opts.ProjectKey)
	if err != nil {
		return nil, err
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	encodeKey := opts.EncodeKey
	if encodeKey == nil {
		encodeKey = EncodeURIComponent
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	baseURL := fmt.Sprintf("%s/v1/%s/%s", endpoint, projectID, transport.EncodeURIComponent(opts.Name))

	return &Base{
		client:    transport.New(baseURL, opts.ProjectKey, logger),
		logger:    logger,
		name:      opts.Name,
		encodeKey: encodeKey,
	}, nil
}

// Name ...
func (b *Base) Name() string {
	return b.name
}

// Put stores the items, replacing existing ones with the same key. Items
// without a key get one generated by the service.
func (b *Base) Put(ctx context.Context, items ...Item) (*PutResponse, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if len(items) > MaxPutItems {
		return nil, ErrTooManyItems
	}

	b.logger.Debugf("Putting %d item(s) to %s", len(items), b.name)

	var resp PutResponse
	if err := b.client.JSON(ctx, transport.Request{
		Method:   http.MethodPut,
		Path:     "items",
		JSONBody: itemList{Items: items},
	}, &resp); err != nil {
		return nil, fmt.Errorf("put items: %w", err)
	}

	if len(resp.Failed.Items) > 0 {
		b.logger.Warnf("%d item(s) were not stored", len(resp.Failed.Items))
	}

	return &resp, nil
}

// Get returns the item stored under key.
func (b *Base) Get(ctx context.Context, key string) (Item, error) {
	var it Item
	if err := b.client.JSON(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   b.itemPath(key),
	}, &it); err != nil {
		if transport.IsNotFound(err) {
			return nil, &keyError{sentinel: ErrNotFound, key: key, err: err}
		}
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}

	return it, nil
}

// Delete removes the item stored under key. Deleting a missing key is not
// an error.
func (b *Base) Delete(ctx context.Context, key string) error {
	if err := b.client.JSON(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   b.itemPath(key),
	}, nil); err != nil {
		return fmt.Errorf("delete item %s: %w", key, err)
	}

	return nil
}

// Insert stores the item only if its key is not taken yet and returns the
// stored item.
func (b *Base) Insert(ctx context.Context, it Item) (Item, error) {
	var inserted Item
	if err := b.client.JSON(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     "items",
		JSONBody: insertRequest{Item: it},
	}, &inserted); err != nil {
		if transport.StatusCode(err) == http.StatusConflict {
			return nil, &keyError{sentinel: ErrConflict, key: it.Key(), err: err}
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}

	return inserted, nil
}

// Update applies updates to the item stored under key.
func (b *Base) Update(ctx context.Context, key string, updates Updates) error {
	if err := b.client.JSON(ctx, transport.Request{
		Method:   http.MethodPatch,
		Path:     b.itemPath(key),
		JSONBody: updates,
	}, nil); err != nil {
		if transport.IsNotFound(err) {
			return &keyError{sentinel: ErrNotFound, key: key, err: err}
		}
		return fmt.Errorf("update item %s: %w", key, err)
	}

	return nil
}

// Query returns one page of the items matching any of the queries. No
// queries match every item.
func (b *Base) Query(ctx context.Context, queries []Query, opts QueryOptions) (*QueryResponse, error) {
	var resp QueryResponse
	if err := b.client.JSON(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "query",
		JSONBody: queryRequest{
			Query: queries,
			Last:  opts.Last,
			Limit: opts.Limit,
		},
	}, &resp); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	return &resp, nil
}

// FetchAll follows the paging of Query until the last page and returns
// every matching item. limit is the page size, zero leaves it to the service.
func (b *Base) FetchAll(ctx context.Context, queries []Query, limit int) ([]Item, error) {
	var items []Item
	opts := QueryOptions{Limit: limit}
	for page := 1; ; page++ {
		resp, err := b.Query(ctx, queries, opts)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)

		b.logger.Debugf("Fetched page %d of %s (%d item(s))", page, b.name, len(resp.Items))

		if resp.Paging.Last == "" {
			return items, nil
		}
		opts.Last = resp.Paging.Last
	}
}

func (b *Base) itemPath(key string) string {
	return "items/" + b.encodeKey(key)
}

type insertRequest struct {
	Item Item `json:"item"`
}

type queryRequest struct {
	Query []Query `json:"query,omitempty"`
	Last  string  `json:"last,omitempty"`
	Limit int     `json:"limit,omitempty"`
}
