package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func healthz(h *HealthChecker) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	return rec
}

func TestHealthChecker_NotReadyUntilConsumerSubscribed(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())

	rec := healthz(h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetConsumerReady(true)
	rec = healthz(h)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHealthChecker_FailingCheck(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	h.SetConsumerReady(true)
	h.AddCheck("store", func(ctx context.Context) error { return errors.New("database is locked") })

	rec := healthz(h)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY: store", rec.Body.String())
}

func TestHealthChecker_Shutdown(t *testing.T) {
	h := NewHealthChecker(zap.NewNop())
	h.SetConsumerReady(true)
	h.AddCheck("store", func(ctx context.Context) error { return nil })

	assert.Equal(t, http.StatusOK, healthz(h).Code)
	assert.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, http.StatusServiceUnavailable, healthz(h).Code)
}
