package pinecone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

type fakeControl struct {
	describeCalls atomic.Int32
	createCalls   atomic.Int32
	failDescribe  atomic.Bool
	exists        atomic.Bool

	upsertSizes []int
	queries     []QueryRequest
	deletedIDs  [][]string
	queryPages  [][]models.VectorMatch
	queryIdx    int
}

func newIndexTestServer(t *testing.T, fc *fakeControl) (*httptest.Server, *Index) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/test-index":
			fc.describeCalls.Add(1)
			if fc.failDescribe.Load() {
				http.Error(w, "internal", http.StatusInternalServerError)
				return
			}
			if !fc.exists.Load() {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			host := r.Host
			fmt.Fprintf(w, `{"name":"test-index","host":%q,"dimension":8,"metric":"cosine","status":{"ready":true,"state":"Ready"}}`, host)
		case r.Method == http.MethodPost && r.URL.Path == "/indexes":
			fc.createCalls.Add(1)
			var req CreateIndexRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "cosine", req.Metric)
			require.Equal(t, 8, req.Dimension)
			fc.exists.Store(true)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && r.URL.Path == "/vectors/upsert":
			var req UpsertRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			fc.upsertSizes = append(fc.upsertSizes, len(req.Vectors))
			fmt.Fprintf(w, `{"upsertedCount":%d}`, len(req.Vectors))
		case r.Method == http.MethodPost && r.URL.Path == "/query":
			var req QueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			fc.queries = append(fc.queries, req)
			var page []models.VectorMatch
			if fc.queryIdx < len(fc.queryPages) {
				page = fc.queryPages[fc.queryIdx]
				fc.queryIdx++
			}
			_ = json.NewEncoder(w).Encode(QueryResponse{Matches: page})
		case r.Method == http.MethodPost && r.URL.Path == "/vectors/delete":
			var req struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			fc.deletedIDs = append(fc.deletedIDs, req.IDs)
			fmt.Fprint(w, `{}`)
		default:
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
		}
	}))
	c := &client{
		cfg:  Config{APIKey: "key", APIVersion: "2025-01", BaseURL: srv.URL},
		http: srv.Client(),
	}
	ix, err := NewIndex(c, "test-index", 8, "", nil)
	require.NoError(t, err)
	return srv, ix
}

func TestNewIndexRejectsBadDimension(t *testing.T) {
	_, err := NewIndex(nil, "test-index", 0, "", nil)
	require.Error(t, err)

	_, err = NewIndex(nil, "test-index", -3, "", nil)
	require.Error(t, err)
}

func makeRecords(n int) []models.VectorRecord {
	out := make([]models.VectorRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.VectorRecord{
			ID:     fmt.Sprintf("doc-chunk-%d", i),
			Values: []float32{1, 0, 0, 0, 0, 0, 0, 0},
		})
	}
	return out
}

func TestIndexCreatesOnFirstUse(t *testing.T) {
	fc := &fakeControl{}
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	n, err := ix.Upsert(context.Background(), makeRecords(3))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, int32(1), fc.createCalls.Load())

	// Host is cached, no further control-plane traffic.
	before := fc.describeCalls.Load()
	_, err = ix.Upsert(context.Background(), makeRecords(1))
	require.NoError(t, err)
	require.Equal(t, before, fc.describeCalls.Load())
}

func TestIndexUpsertBatches(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	n, err := ix.Upsert(context.Background(), makeRecords(250))
	require.NoError(t, err)
	require.Equal(t, 250, n)
	require.Equal(t, []int{100, 100, 50}, fc.upsertSizes)
}

func TestIndexUpsertEmptyIsNoop(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	n, err := ix.Upsert(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, fc.upsertSizes)
}

func TestIndexInitFailureIsRetried(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	fc.failDescribe.Store(true)
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	_, err := ix.Upsert(context.Background(), makeRecords(1))
	require.Error(t, err)

	fc.failDescribe.Store(false)
	n, err := ix.Upsert(context.Background(), makeRecords(1))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestIndexQueryBuildsEqFilter(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	fc.queryPages = [][]models.VectorMatch{{
		{ID: "m1", Score: 0.92, Metadata: models.RecordMetadata{DocumentID: "d1", Content: "text"}},
	}}
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	matches, err := ix.Query(context.Background(), []float32{1, 0, 0, 0, 0, 0, 0, 0}, 5, map[string]string{"documentName": "report.pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "d1", matches[0].Metadata.DocumentID)

	require.Len(t, fc.queries, 1)
	q := fc.queries[0]
	require.Equal(t, 5, q.TopK)
	require.True(t, q.IncludeMetadata)
	filter, ok := q.Filter["documentName"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "report.pdf", filter["$eq"])
}

func TestIndexDeleteByDocumentPagesThroughMatches(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	fc.queryPages = [][]models.VectorMatch{
		{{ID: "v1"}, {ID: "v2"}},
	}
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	require.NoError(t, ix.DeleteByDocumentName(context.Background(), "report.pdf"))
	require.Equal(t, [][]string{{"v1", "v2"}}, fc.deletedIDs)
}

func TestIndexDeleteUnknownDocumentIsNoop(t *testing.T) {
	fc := &fakeControl{}
	fc.exists.Store(true)
	srv, ix := newIndexTestServer(t, fc)
	defer srv.Close()

	require.NoError(t, ix.DeleteByDocumentID(context.Background(), "missing"))
	require.Empty(t, fc.deletedIDs)
}
