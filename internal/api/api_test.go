package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourlog/internal/attendance"
	"hourlog/internal/auth"
	"hourlog/internal/report"
	"hourlog/internal/store"
)

// flakyBackend fails every load once broken is set.
type flakyBackend struct {
	*store.Memory
	broken atomic.Bool
}

func (b *flakyBackend) LoadAll(ctx context.Context, t store.Table) ([]store.Row, error) {
	if b.broken.Load() {
		return nil, errors.New("disk gone")
	}
	return b.Memory.LoadAll(ctx, t)
}

type testServer struct {
	router  *gin.Engine
	token   string
	now     time.Time
	backend *flakyBackend
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// createTestServer wires the whole API over an in-memory ledger and logs in.
func createTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	ts := &testServer{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	ts.backend = &flakyBackend{Memory: store.NewMemory()}
	rs := store.New(ts.backend)
	require.NoError(t, rs.Init(ctx))

	logger, _ := test.NewNullLogger()
	clock := func() time.Time { return ts.now }
	repo := attendance.NewRepository(rs)
	svc := attendance.NewService(repo, attendance.WithClock(clock), attendance.WithLocation(time.UTC), attendance.WithLogger(logger))
	engine := report.NewEngine(repo, report.WithEngineLogger(logger), report.WithEngineClock(clock, time.UTC))

	ops := auth.NewOperators(rs)
	_, err := ops.EnsureDefault(ctx, "admin", "s3cret")
	require.NoError(t, err)

	ts.router = Router(Deps{
		Service:   svc,
		Engine:    engine,
		Operators: ops,
		Signer:    auth.NewSigner("hourlog-test", "key", time.Hour, 24*time.Hour),
		Log:       logger,
		Health:    map[string]HealthCheck{"store": func(context.Context) bool { return !ts.backend.broken.Load() }},
	})

	w := ts.do(t, http.MethodPost, "/v1/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ts.token = decode(t, w)["access_token"].(string)
	return ts
}

func (s *testServer) registerSubject(t *testing.T, account string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/subjects", map[string]string{
		"name": "Ana " + account, "program": "Biologia", "term": "3",
		"account_number": account, "occupation": "Estudiante", "contact": "ana@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestLogin(t *testing.T) {
	s := createTestServer(t)
	s.token = ""

	w := s.do(t, http.MethodPost, "/v1/login", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/subjects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	refresh := decode(t, w)["refresh_token"].(string)

	w = s.do(t, http.MethodPost, "/v1/refresh", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/v1/refresh", map[string]string{"refresh_token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClockFlow(t *testing.T) {
	s := createTestServer(t)
	id := s.registerSubject(t, "1001")

	w := s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{"subject_id": id})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{"subject_id": id})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_daily_entry", decode(t, w)["reason"])

	s.now = s.now.Add(8*time.Hour + 15*time.Minute)
	w = s.do(t, http.MethodPost, "/v1/clock-out", map[string]string{"subject_id": id, "notes": "done"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "8.25", decode(t, w)["duration_hours"])

	w = s.do(t, http.MethodPost, "/v1/clock-out", map[string]string{"subject_id": id})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_closed", decode(t, w)["reason"])

	w = s.do(t, http.MethodGet, "/v1/subjects/"+id+"/hours", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8.25, decode(t, w)["total_hours"])

	w = s.do(t, http.MethodGet, "/v1/subjects/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["records"], 1)

	w = s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualRecordEndpoint(t *testing.T) {
	s := createTestServer(t)
	id := s.registerSubject(t, "1001")

	entry := map[string]string{"subject_id": id, "date": "2026-10-10", "clock_in": "08:00", "clock_out": "12:30"}
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/v1/records/manual", entry)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "4.50", decode(t, w)["duration_hours"])
	}

	w := s.do(t, http.MethodPost, "/v1/records/manual", map[string]string{"subject_id": id, "date": "2026-10-10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "incomplete_manual_entry", decode(t, w)["reason"])

	entry["clock_in"] = "8h"
	w = s.do(t, http.MethodPost, "/v1/records/manual", entry)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_time_format", decode(t, w)["reason"])

	entry["clock_in"] = "08:00"
	entry["subject_id"] = "missing"
	w = s.do(t, http.MethodPost, "/v1/records/manual", entry)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubjectEndpoints(t *testing.T) {
	s := createTestServer(t)
	id := s.registerSubject(t, "1001")
	other := s.registerSubject(t, "1002")

	w := s.do(t, http.MethodPost, "/v1/subjects", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["reason"])

	edit := map[string]any{
		"name": "Ana Maria", "program": "Biologia", "term": "4",
		"account_number": "1002", "occupation": "Estudiante", "contact": "ana@example.com",
	}
	w = s.do(t, http.MethodPut, "/v1/subjects/"+id, edit)
	assert.Equal(t, http.StatusConflict, w.Code)

	edit["account_number"] = "1001"
	w = s.do(t, http.MethodPut, "/v1/subjects/"+id, edit)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", decode(t, w)["term"])

	w = s.do(t, http.MethodPost, "/v1/subjects/"+other+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["active"])

	w = s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{"subject_id": other})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "subject_inactive", decode(t, w)["reason"])

	w = s.do(t, http.MethodGet, "/v1/subjects?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["subjects"], 1)

	w = s.do(t, http.MethodGet, "/v1/subjects", nil)
	assert.Len(t, decode(t, w)["subjects"], 2)

	w = s.do(t, http.MethodGet, "/v1/subjects/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/v1/subjects/nope/hours", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportsAndExports(t *testing.T) {
	s := createTestServer(t)
	id := s.registerSubject(t, "1001")
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{"subject_id": id}).Code)

	w := s.do(t, http.MethodGet, "/v1/presence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode(t, w)
	assert.Equal(t, "2026-10-17", p["date"])
	assert.Equal(t, float64(1), p["open_sessions"])

	w = s.do(t, http.MethodGet, "/v1/presence?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/reports/hours?group=term", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["groups"], "3")

	w = s.do(t, http.MethodGet, "/v1/reports/hours?group=color", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/exports/records.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Fecha,Alumno,Carrera"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registros.csv")

	w = s.do(t, http.MethodGet, "/v1/exports/summary.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ana 1001,Biologia,3,1001")

	w = s.do(t, http.MethodGet, "/v1/exports/summary.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestStorageFailureIs503(t *testing.T) {
	s := createTestServer(t)
	id := s.registerSubject(t, "1001")

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.backend.broken.Store(true)
	w = s.do(t, http.MethodPost, "/v1/clock-in", map[string]string{"subject_id": id})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "storage_io", body["reason"])
	assert.NotContains(t, body["error"], "disk gone")

	w = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{attendance.ErrSubjectNotFound, http.StatusNotFound},
		{attendance.ErrNoOpenEntry, http.StatusConflict},
		{attendance.ErrInvalidTimeFormat, http.StatusBadRequest},
		{&attendance.ValidationError{Field: "date", Reason: "bad"}, http.StatusBadRequest},
		{attendance.ErrStorageIO, http.StatusServiceUnavailable},
		{auth.ErrBadCredentials, http.StatusUnauthorized},
		{errors.New("something else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
