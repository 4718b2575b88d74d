package detatest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bitrise-io/go-deta/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, method, url, apiKey string, body []byte) *http.Response {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set(transport.APIKeyHeader, apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestServer_Authentication(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	tests := []struct {
		name       string
		url        string
		apiKey     string
		wantStatus int
	}{
		{name: "no key", url: srv.URL + "/v1/a0abcyxz/files/files", wantStatus: http.StatusUnauthorized},
		{name: "malformed key", url: srv.URL + "/v1/a0abcyxz/files/files", apiKey: "secret", wantStatus: http.StatusUnauthorized},
		{name: "other project", url: srv.URL + "/v1/other/files/files", apiKey: ProjectKey, wantStatus: http.StatusUnauthorized},
		{name: "valid key", url: srv.URL + "/v1/a0abcyxz/files/files", apiKey: ProjectKey, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, tt.url, tt.apiKey, nil)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	assert.Len(t, srv.Requests(), 1)
}

func TestServer_FailNext(t *testing.T) {
	srv := NewServer()
	defer srv.Close()
	url := srv.URL + "/v1/a0abcyxz/files/files"

	srv.FailNext(http.MethodGet, "files", http.StatusServiceUnavailable)

	resp := do(t, http.MethodGet, url, ProjectKey, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"injected failure"}, body.Errors)

	resp = do(t, http.MethodGet, url, ProjectKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, srv.Requests(), 2)
}

func TestServer_UploadPartOrder(t *testing.T) {
	srv := NewServer()
	defer srv.Close()
	drive := srv.URL + "/v1/a0abcyxz/files"

	resp := do(t, http.MethodPost, drive+"/uploads?name=a.bin", ProjectKey, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var session struct {
		UploadID string `json:"upload_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.NotEmpty(t, session.UploadID)

	parts := drive + "/uploads/" + session.UploadID + "/parts?name=a.bin&part="
	resp = do(t, http.MethodPost, parts+"2", ProjectKey, []byte("b"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, parts+"1", ProjectKey, []byte("a"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, srv.OpenUploads("files"))

	resp = do(t, http.MethodPatch, drive+"/uploads/"+session.UploadID+"?name=a.bin", ProjectKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, srv.OpenUploads("files"))
	assert.Equal(t, []byte("a"), srv.Files("files")["a.bin"])
}

func TestServer_ItemsReturnsCopies(t *testing.T) {
	srv := NewServer()
	defer srv.Close()

	resp := do(t, http.MethodPut, srv.URL+"/v1/a0abcyxz/users/items", ProjectKey,
		[]byte(`{"items": [{"key": "u1", "profile": {"age": 36}}]}`))
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	items := srv.Items("users")
	items["u1"]["name"] = "changed"
	items["u1"]["profile"].(map[string]interface{})["age"] = 1.0

	assert.Equal(t, map[string]map[string]interface{}{
		"u1": {"key": "u1", "profile": map[string]interface{}{"age": 36.0}},
	}, srv.Items("users"))
}
