package base

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bitrise-io/go-deta/detatest"
	"github.com/bitrise-io/go-deta/projectkey"
	"github.com/bitrise-io/go-deta/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase(t *testing.T, opts Options) (*Base, *detatest.Server) {
	srv := detatest.NewServer()
	t.Cleanup(srv.Close)

	opts.Name = "users"
	opts.ProjectKey = detatest.ProjectKey
	opts.Endpoint = srv.URL
	opts.Logger = log.NewLogger()

	b, err := New(opts)
	require.NoError(t, err)

	return b, srv
}

func TestNew(t *testing.T) {
	b, err := New(Options{Name: "users", ProjectKey: "a0abcyxz_aSecretValue"})
	require.NoError(t, err)
	assert.Equal(t, "https://database.deta.sh/v1/a0abcyxz/users", b.client.BaseURL())

	b, err = New(Options{Name: "team$&+,;=:@ users", ProjectKey: "a0abcyxz_aSecretValue"})
	require.NoError(t, err)
	assert.Equal(t, "https://database.deta.sh/v1/a0abcyxz/team%24%26%2B%2C%3B%3D%3A%40%20users", b.client.BaseURL())

	_, err = New(Options{Name: "users", ProjectKey: "a0abcyxz"})
	assert.ErrorIs(t, err, projectkey.ErrInvalid)

	_, err = New(Options{ProjectKey: "a0abcyxz_aSecretValue"})
	assert.Error(t, err)
}

func TestBase_PutGet(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	ctx := context.Background()

	resp, err := b.Put(ctx,
		Item{"key": "user-1", "name": "Ada", "age": 36},
		Item{"name": "Grace"},
	)
	require.NoError(t, err)
	require.Len(t, resp.Processed.Items, 2)
	assert.Empty(t, resp.Failed.Items)
	assert.Equal(t, "user-1", resp.Processed.Items[0].Key())
	generated := resp.Processed.Items[1].Key()
	assert.NotEmpty(t, generated)

	it, err := b.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Item{"key": "user-1", "name": "Ada", "age": float64(36)}, it)

	it, err = b.Get(ctx, generated)
	require.NoError(t, err)
	assert.Equal(t, "Grace", it["name"])
}

func TestBase_Put_ItemCount(t *testing.T) {
	b, srv := newTestBase(t, Options{})

	_, err := b.Put(context.Background())
	assert.ErrorIs(t, err, ErrNoItems)

	items := make([]Item, MaxPutItems+1)
	for i := range items {
		items[i] = Item{"key": fmt.Sprintf("k%d", i)}
	}
	_, err = b.Put(context.Background(), items...)
	assert.ErrorIs(t, err, ErrTooManyItems)

	assert.Empty(t, srv.Requests())
}

func TestBase_Get_NotFound(t *testing.T) {
	b, _ := newTestBase(t, Options{})

	_, err := b.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
}

func TestBase_KeyEncoding(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantPath string
	}{
		{
			name:     "default encoding",
			wantPath: "items/team%2Fa%20b",
		},
		{
			name:     "custom encoding",
			opts:     Options{EncodeKey: func(key string) string { return "prefix-" + EncodeURIComponent(key) }},
			wantPath: "items/prefix-team%2Fa%20b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, srv := newTestBase(t, tt.opts)

			_, err := b.Get(context.Background(), "team/a b")
			require.ErrorIs(t, err, ErrNotFound)

			requests := srv.Requests()
			require.Len(t, requests, 1)
			assert.Equal(t, tt.wantPath, requests[0].Path)
		})
	}
}

func TestBase_KeyWithSlash(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	ctx := context.Background()

	_, err := b.Put(ctx, Item{"key": "team/a b", "value": "x"})
	require.NoError(t, err)

	it, err := b.Get(ctx, "team/a b")
	require.NoError(t, err)
	assert.Equal(t, "x", it["value"])

	require.NoError(t, b.Delete(ctx, "team/a b"))
	_, err = b.Get(ctx, "team/a b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBase_NameWithReservedCharacters(t *testing.T) {
	srv := detatest.NewServer()
	t.Cleanup(srv.Close)
	b, err := New(Options{Name: "a+b@c", ProjectKey: detatest.ProjectKey, Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = b.Put(context.Background(), Item{"key": "k"})
	require.NoError(t, err)

	assert.Contains(t, srv.Items("a+b@c"), "k")
}

func TestBase_Delete_Missing(t *testing.T) {
	b, _ := newTestBase(t, Options{})

	assert.NoError(t, b.Delete(context.Background(), "missing"))
}

func TestBase_Insert(t *testing.T) {
	b, srv := newTestBase(t, Options{})
	ctx := context.Background()

	inserted, err := b.Insert(ctx, Item{"key": "user-1", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", inserted.Key())

	_, err = b.Insert(ctx, Item{"key": "user-1", "name": "Grace"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusConflict, transport.StatusCode(err))

	assert.Equal(t, "Ada", srv.Items("users")["user-1"]["name"])
}

func TestBase_Update(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	ctx := context.Background()

	_, err := b.Put(ctx, Item{
		"key":     "user-1",
		"name":    "Ada",
		"visits":  1,
		"tags":    []interface{}{"b"},
		"profile": map[string]interface{}{"age": 36, "city": "London"},
	})
	require.NoError(t, err)

	require.NoError(t, b.Update(ctx, "user-1", Updates{
		Set:       map[string]interface{}{"profile.age": 37, "active": true},
		Increment: map[string]float64{"visits": 2},
		Append:    map[string][]interface{}{"tags": {"c"}},
		Prepend:   map[string][]interface{}{"tags": {"a"}},
		Delete:    []string{"profile.city"},
	}))

	it, err := b.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Item{
		"key":     "user-1",
		"name":    "Ada",
		"visits":  float64(3),
		"active":  true,
		"tags":    []interface{}{"a", "b", "c"},
		"profile": map[string]interface{}{"age": float64(37)},
	}, it)
}

func TestBase_Update_NotFound(t *testing.T) {
	b, _ := newTestBase(t, Options{})

	err := b.Update(context.Background(), "missing", Updates{Set: map[string]interface{}{"a": 1}})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBase_Expiration(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	ctx := context.Background()

	expired := Item{"key": "old"}
	expired.SetExpiresAt(time.Now().Add(-time.Hour))
	valid := Item{"key": "new"}
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	valid.SetExpiresAt(expiresAt)

	_, err := b.Put(ctx, expired, valid)
	require.NoError(t, err)

	_, err = b.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	it, err := b.Get(ctx, "new")
	require.NoError(t, err)
	got, ok := it.ExpiresAt()
	require.True(t, ok)
	assert.True(t, expiresAt.Equal(got))
}

func seedUsers(t *testing.T, b *Base) {
	_, err := b.Put(context.Background(),
		Item{"key": "u1", "name": "Ada", "age": 36},
		Item{"key": "u2", "name": "Alan", "age": 41},
		Item{"key": "u3", "name": "Grace", "age": 85},
		Item{"key": "u4", "name": "Edsger", "age": 72},
		Item{"key": "u5", "name": "Barbara", "age": 29},
	)
	require.NoError(t, err)
}

func keys(items []Item) []string {
	var k []string
	for _, it := range items {
		k = append(k, it.Key())
	}
	return k
}

func TestBase_Query(t *testing.T) {
	tests := []struct {
		name     string
		queries  []Query
		wantKeys []string
	}{
		{name: "no queries", wantKeys: []string{"u1", "u2", "u3", "u4", "u5"}},
		{name: "equality", queries: []Query{{"name": "Grace"}}, wantKeys: []string{"u3"}},
		{name: "and", queries: []Query{{"name?pfx": "A", "age?gt": 40}}, wantKeys: []string{"u2"}},
		{name: "or", queries: []Query{{"age?lt": 30}, {"age?gte": 85}}, wantKeys: []string{"u3", "u5"}},
		{name: "range", queries: []Query{{"age?r": []interface{}{36, 72}}}, wantKeys: []string{"u1", "u2", "u4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBase(t, Options{})
			seedUsers(t, b)

			resp, err := b.Query(context.Background(), tt.queries, QueryOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, keys(resp.Items))
			assert.Equal(t, len(tt.wantKeys), resp.Paging.Size)
			assert.Empty(t, resp.Paging.Last)
		})
	}
}

func TestBase_Query_Paging(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	seedUsers(t, b)
	ctx := context.Background()

	first, err := b.Query(ctx, nil, QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, keys(first.Items))
	assert.Equal(t, "u2", first.Paging.Last)

	second, err := b.Query(ctx, nil, QueryOptions{Limit: 2, Last: first.Paging.Last})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u4"}, keys(second.Items))
}

func TestBase_Query_InvalidOperator(t *testing.T) {
	b, _ := newTestBase(t, Options{})
	seedUsers(t, b)

	_, err := b.Query(context.Background(), []Query{{"age?between": 1}}, QueryOptions{})

	assert.Equal(t, http.StatusBadRequest, transport.StatusCode(err))
}

func TestBase_FetchAll(t *testing.T) {
	b, srv := newTestBase(t, Options{})
	seedUsers(t, b)

	items, err := b.FetchAll(context.Background(), []Query{{"age?gt": 30}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, keys(items))

	var queries int
	for _, r := range srv.Requests() {
		if r.Path == "query" {
			queries++
		}
	}
	assert.Equal(t, 2, queries)
}
