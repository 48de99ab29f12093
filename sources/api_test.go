package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPISource_ListExperiments_PlainList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/results-directories", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"directory": "old", "path": "outputs/old", "timestamp": 100},
			{"directory": "new", "path": "outputs/new", "title": "Newest", "timestamp": "2024-05-29T16:26:40Z"}
		]`))
	}))
	defer server.Close()

	exps, err := NewAPISource(server.URL, 10, 0, zerolog.Nop()).ListExperiments(context.Background())
	require.NoError(t, err)
	require.Len(t, exps, 2)
	assert.Equal(t, "new", exps[0].ID)
	assert.Equal(t, "Newest", exps[0].Title)
	assert.Equal(t, "old", exps[1].Title)
	assert.Equal(t, OriginFilesystem, exps[1].Source)
}

func TestAPISource_ListExperiments_MongoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"directory": "a"}], "mongo_status": "error"}`))
	}))
	defer server.Close()

	exps, err := NewAPISource(server.URL, 10, 0, zerolog.Nop()).ListExperiments(context.Background())
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Len(t, exps, 1)
}

func TestAPISource_LoadRecords_BatchFallback(t *testing.T) {
	var batches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/files":
			assert.Equal(t, "outputs/exp", r.URL.Query().Get("path"))
			_, _ = w.Write([]byte(`{"files": ["a.json", {"name": "b.json"}, "c.json", "metadata.json", "readme.md"]}`))
		case "/api/batch-files":
			n := batches.Add(1)
			files := r.URL.Query().Get("files")
			if n == 1 {
				assert.Equal(t, "a.json,b.json", files)
				// b.json is left out and fetched on its own
				_, _ = w.Write([]byte(`{"files": {"a.json": {"query_id": "qa"}}}`))
				return
			}
			assert.Equal(t, "c.json", files)
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/outputs/exp/b.json":
			_, _ = w.Write([]byte(`{"query_id": "qb"}`))
		case "/outputs/exp/c.json":
			http.NotFound(w, r)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer server.Close()

	src := NewAPISource(server.URL, 2, 100, zerolog.Nop())
	records, err := src.LoadRecords(context.Background(), Experiment{ID: "exp", Path: "outputs/exp"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "qa", records[0].LogicalID())
	assert.Equal(t, "qb", records[1].LogicalID())
	assert.Equal(t, "b.json", records[1].SourceFile)
	assert.EqualValues(t, 2, batches.Load())
}

func TestAPISource_LoadRecords_BatchList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/files":
			_, _ = w.Write([]byte(`["x.json"]`))
		case "/api/batch-files":
			_, _ = w.Write([]byte(`[{"filename": "x.json", "content": {"query_id": "qx"}}]`))
		}
	}))
	defer server.Close()

	records, err := NewAPISource(server.URL, 10, 0, zerolog.Nop()).
		LoadRecords(context.Background(), Experiment{ID: "exp", Directory: "exp"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "qx", records[0].LogicalID())
}

func TestAPISource_LoadRecords_Mongo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mongodb/experiment/run-7" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"query_id": "q1", "_id": {"$oid": "abc"}}, "bad", {"query_id": "q2"}]}`))
	}))
	defer server.Close()

	src := NewAPISource(server.URL, 10, 0, zerolog.Nop())
	records, err := src.LoadRecords(context.Background(), Experiment{ID: "run-7", Source: OriginMongoDB})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = src.LoadRecords(context.Background(), Experiment{ID: "missing", Source: OriginMongoDB})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAPISource_AllRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/api/mongodb/analytics"))
		_, _ = w.Write([]byte(`[{"query_id": "q1"}, {"query_id": "q2"}]`))
	}))
	defer server.Close()

	records, err := NewAPISource(server.URL, 10, 0, zerolog.Nop()).AllRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
