package gridstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotly/falcon/internal/domain"
	"github.com/plotly/falcon/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func aliceResolver() *testutil.MockCredentialResolver {
	return &testutil.MockCredentialResolver{
		Creds: &domain.Credentials{Username: "alice", APIKey: "secret-key"},
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, aliceResolver(), 5*time.Second, discardLogger())
}

// metaBody renders grid metadata with the given uids in order.
func metaBody(fid string, uids ...string) map[string]any {
	cols := map[string]any{}
	for i, uid := range uids {
		cols["col"+uid] = map[string]any{"uid": uid, "order": i}
	}
	return map[string]any{"fid": fid, "filename": "test grid", "cols": cols}
}

func result(names []string, rows [][]any) *domain.QueryResult {
	return &domain.QueryResult{Columnnames: names, Rows: rows}
}

func TestUpdateGrid_SameWidthOverwrites(t *testing.T) {
	t.Parallel()

	var putUIDs string
	var putBody map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/grids/alice:1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(metaBody("alice:1", "u1", "u2"))
	})
	mux.HandleFunc("PUT /v2/grids/alice:1/col", func(w http.ResponseWriter, r *http.Request) {
		putUIDs = r.URL.Query().Get("uid")
		_ = json.NewDecoder(r.Body).Decode(&putBody)
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	uids, err := c.UpdateGrid(context.Background(),
		result([]string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}}), "alice:1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, uids)
	assert.Equal(t, "u1,u2", putUIDs)

	// The cols field is a JSON string of column-major data.
	var cols []map[string][]any
	require.NoError(t, json.Unmarshal([]byte(putBody["cols"]), &cols))
	require.Len(t, cols, 2)
	assert.Equal(t, []any{float64(1), float64(2)}, cols[0]["data"])
	assert.Equal(t, []any{"x", "y"}, cols[1]["data"])
}

func TestUpdateGrid_MoreColumnsCreatesThenOverwrites(t *testing.T) {
	t.Parallel()

	var createdBody map[string]string
	var putUIDs string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/grids/alice:2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(metaBody("alice:2", "u1", "u2", "u3"))
	})
	mux.HandleFunc("POST /v2/grids/alice:2/col", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&createdBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cols": []map[string]any{{"uid": "u4", "order": 3}, {"uid": "u5", "order": 4}},
		})
	})
	mux.HandleFunc("PUT /v2/grids/alice:2/col", func(w http.ResponseWriter, r *http.Request) {
		putUIDs = r.URL.Query().Get("uid")
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	uids, err := c.UpdateGrid(context.Background(),
		result([]string{"a", "b", "c", "d", "e"}, [][]any{{1, 2, 3, 4, 5}}), "alice:2", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5"}, uids)
	assert.Equal(t, "u1,u2,u3,u4,u5", putUIDs)

	// Only the two new columns are created, at the tail orders.
	var newCols []map[string]any
	require.NoError(t, json.Unmarshal([]byte(createdBody["cols"]), &newCols))
	require.Len(t, newCols, 2)
	assert.Equal(t, "d", newCols[0]["name"])
	assert.Equal(t, float64(3), newCols[0]["order"])
	assert.Equal(t, "e", newCols[1]["name"])
	assert.Equal(t, float64(4), newCols[1]["order"])
}

func TestUpdateGrid_FewerColumnsDeletesThenOverwrites(t *testing.T) {
	t.Parallel()

	var deletedUIDs, putUIDs string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/grids/alice:3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(metaBody("alice:3", "u1", "u2", "u3", "u4", "u5"))
	})
	mux.HandleFunc("DELETE /v2/grids/alice:3/col", func(w http.ResponseWriter, r *http.Request) {
		deletedUIDs = r.URL.Query().Get("uid")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /v2/grids/alice:3/col", func(w http.ResponseWriter, r *http.Request) {
		putUIDs = r.URL.Query().Get("uid")
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	uids, err := c.UpdateGrid(context.Background(),
		result([]string{"a", "b", "c"}, [][]any{{1, 2, 3}}), "alice:3", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, uids)
	assert.Equal(t, "u4,u5", deletedUIDs, "trailing columns are deleted")
	assert.Equal(t, "u1,u2,u3", putUIDs)
}

func TestUpdateGrid_DeletedGrid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "404 on metadata",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "deleted flag set",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"fid": "alice:4", "deleted": true})
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tt.handler)
			_, err := c.UpdateGrid(context.Background(),
				result([]string{"a"}, [][]any{{1}}), "alice:4", "alice")
			assert.ErrorIs(t, err, domain.ErrGridDeleted)
		})
	}
}

func TestUpdateGrid_RejectsIrregularRows(t *testing.T) {
	t.Parallel()

	// The server must never be reached.
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an irregular result")
	}))
	_, err := c.UpdateGrid(context.Background(),
		result([]string{"a", "b"}, [][]any{{1, 2}, {3}}), "alice:5", "alice")
	require.Error(t, err)
	var metaErr *domain.MetadataError
	assert.ErrorAs(t, err, &metaErr)
}

func TestNewGrid(t *testing.T) {
	t.Parallel()

	var posted map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/grids", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&posted)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"file": metaBody("alice:77", "u1", "u2")})
	})

	c := newTestClient(t, mux)
	fid, uids, err := c.NewGrid(context.Background(), "fresh grid",
		result([]string{"a", "b"}, [][]any{{1, "x"}}), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice:77", fid)
	assert.Equal(t, []string{"u1", "u2"}, uids)
	assert.Equal(t, "fresh grid", posted["filename"])
	assert.Equal(t, true, posted["world_readable"])
}

func TestDo_AuthHeaders(t *testing.T) {
	t.Parallel()

	var gotUser, gotKey, gotPlatform, gotBearer string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotKey, _ = r.BasicAuth()
		gotPlatform = r.Header.Get("Plotly-Client-Platform")
		gotBearer = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(metaBody("alice:6", "u1"))
	})

	c := newTestClient(t, handler)
	_, err := c.GetGridMeta(context.Background(), "alice:6", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "db-connect", gotPlatform)

	// Token-only credentials switch to bearer auth.
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokenClient := NewClient(srv.URL, &testutil.MockCredentialResolver{
		Creds: &domain.Credentials{Username: "bob", AccessToken: "tok-123"},
	}, 5*time.Second, discardLogger())
	_, err = tokenClient.GetGridMeta(context.Background(), "alice:6", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotBearer)
}

func TestCheckWritePermissions(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := metaBody("alice:7", "u1")
		body["collaborators"] = map[string]any{
			"results": []map[string]any{{"username": "carol"}},
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	t.Run("owner allowed", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, handler)
		assert.NoError(t, c.CheckWritePermissions(context.Background(), "alice:7", "alice"))
	})

	t.Run("collaborator allowed", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c := NewClient(srv.URL, &testutil.MockCredentialResolver{
			Creds: &domain.Credentials{Username: "carol", APIKey: "k"},
		}, 5*time.Second, discardLogger())
		assert.NoError(t, c.CheckWritePermissions(context.Background(), "alice:7", "carol"))
	})

	t.Run("stranger denied", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c := NewClient(srv.URL, &testutil.MockCredentialResolver{
			Creds: &domain.Credentials{Username: "mallory", APIKey: "k"},
		}, 5*time.Second, discardLogger())
		err := c.CheckWritePermissions(context.Background(), "alice:7", "mallory")
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c := NewClient(srv.URL, &testutil.MockCredentialResolver{}, 5*time.Second, discardLogger())
		err := c.CheckWritePermissions(context.Background(), "alice:7", "ghost")
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "Unauthenticated: "),
			"error %q must carry the Unauthenticated prefix", err)
	})
}

func TestApiErrorCarriesBodyExcerpt(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(metaBody("alice:8", "u1"))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream exploded")
	})

	c := newTestClient(t, handler)
	_, err := c.UpdateGrid(context.Background(), result([]string{"a"}, [][]any{{1}}), "alice:8", "alice")
	require.Error(t, err)
	var apiErr *domain.PlotlyAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestDeleteGrid(t *testing.T) {
	t.Parallel()

	var trashed bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/grids/alice:7/trash", func(w http.ResponseWriter, r *http.Request) {
		trashed = true
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.DeleteGrid(context.Background(), "alice:7", "alice"))
	assert.True(t, trashed)

	// Already gone upstream: still a success.
	require.NoError(t, c.DeleteGrid(context.Background(), "alice:404", "alice"))
}
