package metabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return NewClient(server.URL, zap.NewNop()), server
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestWaitUntilReady(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	client, _ := newTestServer(t, mux)

	err := client.WaitUntilReady(context.Background(), 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWaitUntilReady_GivesUp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
	})
	client, _ := newTestServer(t, mux)

	err := client.WaitUntilReady(context.Background(), 2, time.Millisecond)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestLoginSetsSessionHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["username"] != "admin@example.com" || body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"errors": "bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "token-123"})
	})
	mux.HandleFunc("/api/collection", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SessionHeader) != "token-123" {
			writeJSON(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "root", "name": "Our analytics"},
			{"id": 2, "name": "Strong App"},
		})
	})
	client, _ := newTestServer(t, mux)
	ctx := context.Background()

	err := client.Login(ctx, "admin@example.com", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	require.NoError(t, client.Login(ctx, "admin@example.com", "secret"))

	collections, err := client.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 2)

	_, ok := collections[0].IntID()
	assert.False(t, ok)
	id, ok := collections[1].IntID()
	assert.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestListDatabases_BothShapes(t *testing.T) {
	wrapped := true
	mux := http.NewServeMux()
	mux.HandleFunc("/api/database", func(w http.ResponseWriter, r *http.Request) {
		dbs := []map[string]any{{"id": 2, "name": "health", "engine": "postgres"}}
		if wrapped {
			writeJSON(w, http.StatusOK, map[string]any{"data": dbs, "total": 1})
			return
		}
		writeJSON(w, http.StatusOK, dbs)
	})
	client, _ := newTestServer(t, mux)

	dbs, err := client.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "health", dbs[0].Name)

	wrapped = false
	dbs, err = client.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dbs[0].ID)
}

func TestTableMetadataAndCreateCard(t *testing.T) {
	var received Card
	mux := http.NewServeMux()
	mux.HandleFunc("/api/table/48/query_metadata", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, TableMetadata{
			ID:   48,
			Name: "strong_app_raw",
			Fields: []Field{
				{ID: 501, Name: "created_at", DisplayName: "Created At", BaseType: "type/DateTimeWithLocalTZ"},
			},
		})
	})
	mux.HandleFunc("/api/card", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		received.ID = 77
		writeJSON(w, http.StatusOK, received)
	})
	client, _ := newTestServer(t, mux)
	ctx := context.Background()

	meta, err := client.TableMetadata(ctx, 48)
	require.NoError(t, err)
	assert.Equal(t, "Created At", meta.Fields[0].DisplayName)

	collectionID := 2
	created, err := client.CreateCard(ctx, &Card{
		Name:         "Sets Over Time",
		Display:      "line",
		CollectionID: &collectionID,
		DatasetQuery: DatasetQuery{
			Database: 2,
			Type:     "native",
			Native: NativeQuery{
				Query: "select 1",
				TemplateTags: map[string]TemplateTag{
					"created_at": {ID: "x", Name: "created_at", Type: "dimension", Dimension: []any{"field", 501, nil}},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 77, created.ID)
	assert.Equal(t, "native", received.DatasetQuery.Type)
	assert.Equal(t, "dimension", received.DatasetQuery.Native.TemplateTags["created_at"].Type)
}

func TestCreateCard_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/card", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]string{"name": "required"}})
	})
	client, _ := newTestServer(t, mux)

	_, err := client.CreateCard(context.Background(), &Card{Name: ""})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "required")
}

func TestCreateCard_NotRetriedOnTransportError(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/card", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		conn.Close()
	})
	client, _ := newTestServer(t, mux)

	_, err := client.CreateCard(context.Background(), &Card{Name: "Sets Over Time"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryableRead(t *testing.T) {
	transportErr := errors.New("connection reset")
	get := &resty.Response{Request: &resty.Request{Method: http.MethodGet}}
	post := &resty.Response{Request: &resty.Request{Method: http.MethodPost}}

	assert.True(t, retryableRead(get, transportErr))
	assert.False(t, retryableRead(post, transportErr))
	assert.False(t, retryableRead(get, nil))
	assert.False(t, retryableRead(nil, transportErr))
}
