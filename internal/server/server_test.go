package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/hostprobe/internal/config"
	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
)

type stubService struct {
	err        error
	handlesPID uint32
	calls      int
}

func (s *stubService) Processes(ctx context.Context) ([]model.ProcessRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []model.ProcessRecord{{PID: 4, Name: "System"}}, nil
}

func (s *stubService) SystemSummary(ctx context.Context) (model.SystemSummary, error) {
	s.calls++
	if s.err != nil {
		return model.SystemSummary{}, s.err
	}
	return model.SystemSummary{Hostname: "probe-host", Uptime: "3h 25m"}, nil
}

func (s *stubService) Disks(ctx context.Context) ([]model.DiskRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []model.DiskRecord{{Name: "C:", IsSystem: true}}, nil
}

func (s *stubService) ProcessHandles(ctx context.Context, pid uint32) ([]model.HandleRecord, error) {
	s.calls++
	s.handlesPID = pid
	if s.err != nil {
		return nil, s.err
	}
	return []model.HandleRecord{{Handle: 0x1C, Description: "File: Handle=0x1C"}}, nil
}

func (s *stubService) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.Snapshot{ID: "snap"}, nil
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		RateBurst:       10,
	}
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRoutes(t *testing.T) {
	svc := &stubService{}
	h := New(testConfig(), svc, nil).Router()

	tests := []struct {
		path string
		want string
	}{
		{"/api/snapshot", `"id":"snap"`},
		{"/api/system", `"hostname":"probe-host"`},
		{"/api/disks", `"name":"C:"`},
		{"/api/filesystem/partitions", `"name":"C:"`},
		{"/api/processes", `"name":"System"`},
		{"/api/processes/", `"name":"System"`},
		{"/api/processes/1234/handles", `"description":"File: Handle=0x1C"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, h, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
	assert.Equal(t, uint32(1234), svc.handlesPID)
}

func TestOperationErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"unauthorized", apperrors.New(apperrors.ErrCodeUnauthorized, "elevation required"),
			http.StatusForbidden, "UNAUTHORIZED", false},
		{"overflow", apperrors.New(apperrors.ErrCodeQueryOverflow, "handle table too large"),
			http.StatusServiceUnavailable, "QUERY_OVERFLOW", true},
		{"partial", apperrors.New(apperrors.ErrCodePartialUnavailable, "no handle table"),
			http.StatusServiceUnavailable, "PARTIAL_UNAVAILABLE", true},
		{"fatal", apperrors.New(apperrors.ErrCodeFatal, "no process list"),
			http.StatusInternalServerError, "FATAL", false},
		{"plain", errors.New("boom"),
			http.StatusInternalServerError, ErrCodeInternalError, true},
		{"deadline", context.DeadlineExceeded,
			http.StatusGatewayTimeout, ErrCodeInternalError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(testConfig(), &stubService{err: tt.err}, nil).Router()
			rec := do(t, h, "/api/processes")
			require.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.retryable, body.Retryable)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestErrorDetailsCarryContext(t *testing.T) {
	err := apperrors.NewWithContext(apperrors.ErrCodePartialUnavailable, "handle table unavailable",
		map[string]any{"pid": 42})
	h := New(testConfig(), &stubService{err: err}, nil).Router()

	rec := do(t, h, "/api/processes/42/handles")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeError(t, rec)
	assert.EqualValues(t, 42, body.Details["pid"])
}

func TestProcessHandlesRejectsBadPID(t *testing.T) {
	for _, pid := range []string{"abc", "-1", "4294967296"} {
		t.Run(pid, func(t *testing.T) {
			svc := &stubService{}
			h := New(testConfig(), svc, nil).Router()

			rec := do(t, h, "/api/processes/"+pid+"/handles")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
			assert.Zero(t, svc.calls)
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := New(cfg, &stubService{}, nil).Router()

	require.Equal(t, http.StatusOK, do(t, h, "/api/system").Code)

	rec := do(t, h, "/api/system")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, ErrCodeRateLimitExceeded, body.Code)
	assert.True(t, body.Retryable)

	// system endpoints are not limited
	assert.Equal(t, http.StatusOK, do(t, h, "/health").Code)
}

func TestHealthAndReady(t *testing.T) {
	s := New(testConfig(), &stubService{}, nil)
	h := s.Router()

	assert.Equal(t, http.StatusOK, do(t, h, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, "/ready").Code)

	s.SetReady(true)
	rec := do(t, h, "/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := New(testConfig(), &stubService{}, nil).Router()

	rec := do(t, h, "/api/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/system", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, ErrCodeMethodNotAllowed, decodeError(t, rec).Code)
}

func TestRequestID(t *testing.T) {
	h := New(testConfig(), &stubService{}, nil).Router()

	rec := do(t, h, "/health")
	_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
	assert.NoError(t, err)

	id := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", id)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get("X-Request-Id"))
}

func TestPanicRecovery(t *testing.T) {
	s := New(testConfig(), &stubService{}, nil)
	h := s.requestIDMiddleware(s.panicRecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})))

	rec := do(t, h, "/anything")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
}
