package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ismaiel54/event-sink/internal/query"
	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubQuerier struct {
	records []store.Record
	err     error
	limit   int
}

func (q *stubQuerier) ListRecent(ctx context.Context, limit int) ([]store.Record, error) {
	q.limit = limit
	return q.records, q.err
}

func okHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, q Querier, target string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(NewHandlers(q, zap.NewNop()), okHealth(), zap.NewNop())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListMessages_NewestFirstFromStore(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []string{"A", "B", "C"} {
		_, _, err := s.InsertOrGetExisting(context.Background(), store.Record{
			Value:     v,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Source:    store.SourceOffset{Topic: "test-topic", Offset: int64(i)},
		})
		require.NoError(t, err)
	}

	rec := serve(t, query.NewService(s, zap.NewNop()), "/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "C", got[0].Value)
	assert.Equal(t, "B", got[1].Value)
	assert.Equal(t, "A", got[2].Value)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(2*time.Second)))
}

func TestListMessages_Shape(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := &stubQuerier{records: []store.Record{{ID: "id-1", Value: "hello", CreatedAt: at}}}

	rec := serve(t, q, "/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"value":"hello","createdAt":"2024-05-01T12:00:00Z"}]`, rec.Body.String())
}

func TestListMessages_EmptyIsArray(t *testing.T) {
	rec := serve(t, &stubQuerier{}, "/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListMessages_Limit(t *testing.T) {
	q := &stubQuerier{}

	serve(t, q, "/messages?limit=25")
	assert.Equal(t, 25, q.limit)

	serve(t, q, "/messages")
	assert.Equal(t, 0, q.limit, "default applied by the query service")

	for _, bad := range []string{"abc", "-1", "1.5"} {
		rec := serve(t, q, fmt.Sprintf("/messages?limit=%s", bad))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestListMessages_QueryError(t *testing.T) {
	q := &stubQuerier{err: fmt.Errorf("%w: %w", query.ErrQuery, errors.New("database is locked"))}

	rec := serve(t, q, "/messages")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"query failed"}`, rec.Body.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(t, &stubQuerier{}, "/healthz").Code)

	rec := serve(t, &stubQuerier{}, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
