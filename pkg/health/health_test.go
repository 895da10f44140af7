package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doReadiness(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest("GET", "/health/ready", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	h := NewHandler()
	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest("GET", "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessAllUp(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error { return nil })
	h.RegisterNonCritical("kafka", func(ctx context.Context) error { return nil })

	code, resp := doReadiness(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Equal(t, StatusUp, resp.Checks["postgres"].Status)
}

func TestReadinessCriticalDown(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error { return errors.New("no route to host") })

	code, resp := doReadiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, "no route to host", resp.Checks["postgres"].Error)
}

func TestReadinessNonCriticalDownIsDegraded(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error { return nil })
	h.RegisterNonCritical("kafka", func(ctx context.Context) error { return errors.New("brokers unreachable") })

	code, resp := doReadiness(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
}
