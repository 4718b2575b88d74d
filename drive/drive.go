// Package drive is a client for the Deta Drive file storage API.
//
// Files larger than MaxChunkSize are transferred as a sequence of parts
// through an upload session, see Uploader.
package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-deta/projectkey"
	"github.com/bitrise-io/go-deta/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultEndpoint is the Drive API host.
const DefaultEndpoint = "https://drive.deta.sh"

// MaxDeleteNames is the largest batch accepted by Delete.
const MaxDeleteNames = 1000

// Options ...
type Options struct {
	// Name of the drive.
	Name       string
	ProjectKey string

	// Endpoint overrides DefaultEndpoint.
	Endpoint string
	Logger   log.Logger
}

// PutOptions ...
type PutOptions struct {
	ContentType string
}

// ListOptions filters and pages List. Zero values are not sent.
type ListOptions struct {
	Prefix string
	Last   string
	Limit  int
}

// Paging is the continuation cursor of a limited listing.
type Paging struct {
	Size int    `json:"size"`
	Last string `json:"last"`
}

// ListResponse ...
type ListResponse struct {
	Names []string `json:"names"`

	// Paging is only set when ListOptions.Limit was given.
	Paging *Paging `json:"paging,omitempty"`
}

// DeleteResponse lists the deleted names and the reason for each failed one.
type DeleteResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

// Drive is safe for concurrent use.
type Drive struct {
	client *transport.Client
	logger log.Logger
	name   string
}

// New validates the project key and returns a client of the named drive.
func New(opts Options) (*Drive, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("drive name is empty")
	}

	projectID, err := projectkey.ProjectID(opts.ProjectKey)
	if err != nil {
		return nil, err
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	baseURL := fmt.Sprintf("%s/v1/%s/%s", endpoint, projectID, transport.EncodeURIComponent(opts.Name))

	return &Drive{
		client: transport.New(baseURL, opts.ProjectKey, logger),
		logger: logger,
		name:   opts.Name,
	}, nil
}

// Name ...
func (d *Drive) Name() string {
	return d.name
}

// Get returns the contents of the named file.
func (d *Drive) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := d.client.Bytes(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   downloadPath,
		Query:  url.Values{"name": []string{name}},
	})
	if err != nil {
		if transport.IsNotFound(err) {
			return nil, &notFoundError{name: name, err: err}
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}

	return data, nil
}

// Put stores data under name, replacing any existing file.
func (d *Drive) Put(ctx context.Context, name string, data []byte, opts PutOptions) error {
	uploader := NewUploader(d.client, name, data, opts.ContentType, d.logger)
	return uploader.Upload(ctx)
}

// List returns the file names of the drive.
func (d *Drive) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	query := url.Values{}
	if opts.Prefix != "" {
		query.Set("prefix", opts.Prefix)
	}
	if opts.Last != "" {
		query.Set("last", opts.Last)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp ListResponse
	if err := d.client.JSON(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "files",
		Query:  query,
	}, &resp); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	if opts.Limit <= 0 {
		resp.Paging = nil
	}

	return &resp, nil
}

// Delete removes the named files. At least one and at most MaxDeleteNames
// names are required; the count is checked before any request is sent.
func (d *Drive) Delete(ctx context.Context, names ...string) (*DeleteResponse, error) {
	if len(names) == 0 {
		return nil, ErrNoFileNames
	}
	if len(names) > MaxDeleteNames {
		return nil, ErrTooManyFileNames
	}

	var resp DeleteResponse
	if err := d.client.JSON(ctx, transport.Request{
		Method:   http.MethodDelete,
		Path:     "files",
		JSONBody: deleteRequest{Names: names},
	}, &resp); err != nil {
		return nil, fmt.Errorf("delete files: %w", err)
	}

	return &resp, nil
}

const downloadPath = "files/download"

type deleteRequest struct {
	Names []string `json:"names"`
}
