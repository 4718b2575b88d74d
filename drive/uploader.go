package drive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-deta/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// MaxChunkSize is the size of every upload part except the last one.
const MaxChunkSize = 10 * 1024 * 1024

// DefaultContentType is used when PutOptions.ContentType is empty.
const DefaultContentType = "application/octet-stream"

type state int

const (
	stateUninitialized state = iota
	stateInitialized
	stateCompleted
	stateAborted
	// stateFailed is terminal after an init failure; there is no session to abort.
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type initResponse struct {
	Name      string `json:"name"`
	UploadID  string `json:"upload_id"`
	ProjectID string `json:"project_id"`
	DriveName string `json:"drive_name"`
}

// Uploader transfers one payload through a multi-part upload session.
// It is single use: Upload may be called once.
type Uploader struct {
	client      *transport.Client
	logger      log.Logger
	name        string
	contentType string
	data        []byte
	chunkSize   int

	state      state
	uploadID   string
	chunkStart int
	part       int
}

// NewUploader returns an uploader for data stored under name. An empty
// contentType defaults to DefaultContentType.
func NewUploader(client *transport.Client, name string, data []byte, contentType string, logger log.Logger) *Uploader {
	if contentType == "" {
		contentType = DefaultContentType
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		client:      client,
		logger:      logger,
		name:        name,
		contentType: contentType,
		data:        data,
		chunkSize:   MaxChunkSize,
		state:       stateUninitialized,
		part:        1,
	}
}

// Upload opens the upload session, sends every chunk in order and
// completes the session. When a step after the session is opened fails,
// the session is aborted before the failure is returned. If the abort
// fails too, the returned error is an *AbortError.
func (u *Uploader) Upload(ctx context.Context) error {
	if u.state != stateUninitialized {
		return &stateError{op: "upload", state: u.state}
	}

	if err := u.init(ctx); err != nil {
		u.state = stateFailed
		return fmt.Errorf("init upload of %s: %w", u.name, err)
	}

	if err := u.transfer(ctx); err != nil {
		return u.abortAfter(ctx, err)
	}

	u.logger.Infof("Uploaded %s (%s, %d part(s))", u.name, units.HumanSize(float64(len(u.data))), u.part-1)

	return nil
}

func (u *Uploader) transfer(ctx context.Context) error {
	for u.chunkStart < len(u.data) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload part %d of %s: %w", u.part, u.name, err)
		}
		if err := u.chunk(ctx); err != nil {
			return err
		}
	}

	if err := u.complete(ctx); err != nil {
		return fmt.Errorf("complete upload of %s: %w", u.name, err)
	}

	return nil
}

func (u *Uploader) abortAfter(ctx context.Context, cause error) error {
	u.logger.Warnf("Upload of %s failed, aborting upload %s: %s", u.name, u.uploadID, cause)

	// The session has to be released even if the caller gave up.
	if err := u.abort(context.WithoutCancel(ctx)); err != nil {
		u.logger.Errorf("Failed to abort upload %s of %s, the session may be left open: %s", u.uploadID, u.name, err)
		return &AbortError{UploadID: u.uploadID, Err: cause, AbortErr: err}
	}

	return cause
}

func (u *Uploader) init(ctx context.Context) error {
	if u.state != stateUninitialized {
		return &stateError{op: "init", state: u.state}
	}

	u.logger.Debugf("Initializing upload of %s (%s, %s)", u.name, u.contentType, units.HumanSize(float64(len(u.data))))

	var resp initResponse
	err := u.client.JSON(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "uploads",
		Query:       url.Values{"name": []string{u.name}},
		ContentType: u.contentType,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.UploadID == "" {
		return fmt.Errorf("no upload_id in response")
	}

	u.uploadID = resp.UploadID
	u.state = stateInitialized
	u.logger.Debugf("Upload ID: %s", u.uploadID)

	return nil
}

func (u *Uploader) chunk(ctx context.Context) error {
	if u.state != stateInitialized {
		return &stateError{op: "chunk", state: u.state}
	}

	chunkEnd := u.chunkStart + u.chunkSize
	if chunkEnd > len(u.data) {
		chunkEnd = len(u.data)
	}
	part := u.part

	u.logger.Debugf("Uploading part %d of %s (%s)", part, u.name, units.HumanSize(float64(chunkEnd-u.chunkStart)))

	err := u.client.JSON(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   u.sessionPath() + "/parts",
		Query: url.Values{
			"name": []string{u.name},
			"part": []string{strconv.Itoa(part)},
		},
		ContentType: u.contentType,
		Body:        u.data[u.chunkStart:chunkEnd],
	}, nil)
	if err != nil {
		return fmt.Errorf("upload part %d of %s: %w", part, u.name, err)
	}

	// chunkStart may pass len(data) after a short last chunk.
	u.chunkStart += u.chunkSize
	u.part++

	return nil
}

func (u *Uploader) complete(ctx context.Context) error {
	if u.state != stateInitialized {
		return &stateError{op: "complete", state: u.state}
	}

	err := u.client.JSON(ctx, transport.Request{
		Method: http.MethodPatch,
		Path:   u.sessionPath(),
		Query:  url.Values{"name": []string{u.name}},
	}, nil)
	if err != nil {
		return err
	}

	u.state = stateCompleted

	return nil
}

func (u *Uploader) abort(ctx context.Context) error {
	if u.state != stateInitialized {
		return &stateError{op: "abort", state: u.state}
	}

	err := u.client.JSON(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   u.sessionPath(),
		Query:  url.Values{"name": []string{u.name}},
	}, nil)
	if err != nil {
		return err
	}

	u.state = stateAborted
	u.logger.Debugf("Upload %s aborted", u.uploadID)

	return nil
}

func (u *Uploader) sessionPath() string {
	return "uploads/" + url.PathEscape(u.uploadID)
}
