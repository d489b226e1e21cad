package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/palma21/referral-drip-bot/internal/auth"
	"github.com/palma21/referral-drip-bot/internal/drip"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/presets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Start(cfg models.RunConfig) (string, error) {
	args := m.Called(cfg)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) Stop() {
	m.Called()
}

func (m *MockRunner) Status() models.Status {
	args := m.Called()
	return args.Get(0).(models.Status)
}

// MockAuthenticator is a mock implementation of Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) BeginAuth() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) CompleteAuth(ctx context.Context, code, state string) error {
	args := m.Called(code, state)
	return args.Error(0)
}

func (m *MockAuthenticator) Logout() {
	m.Called()
}

// MockArchive is a mock implementation of Archive
type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) ListRuns() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockArchive) FetchRun(name string) ([]byte, error) {
	args := m.Called(name)
	return args.Get(0).([]byte), args.Error(1)
}

func newTestServer() (*Server, *MockRunner, *MockAuthenticator) {
	runner := new(MockRunner)
	authenticator := new(MockAuthenticator)
	return NewServer(runner, authenticator, presets.Builtin(), "/"), runner, authenticator
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer()

	rec := serve(s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestServer_Presets(t *testing.T) {
	s, _, _ := newTestServer()

	rec := serve(s, http.MethodGet, "/presets.json", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]models.Preset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 7)
	assert.Equal(t, "gopuff", body["gopuff"].Brand)
}

func TestServer_Start(t *testing.T) {
	s, runner, _ := newTestServer()
	runner.On("Start", mock.MatchedBy(func(cfg models.RunConfig) bool {
		return cfg.Message == "hello" && cfg.DryRun && len(cfg.Allowlist) == 2
	})).Return("run-1", nil)

	rec := serve(s, http.MethodPost, "/start", `{"message":"hello","dry_run":true,"allowlist":"a, b","unknown":1}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "run-1", body["run_id"])
	runner.AssertExpectations(t)
}

func TestServer_StartEmptyBody(t *testing.T) {
	s, runner, _ := newTestServer()
	runner.On("Start", models.RunConfig{}).Return("run-2", nil)

	rec := serve(s, http.MethodPost, "/start", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	runner.AssertExpectations(t)
}

func TestServer_StartRejections(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "already running", err: drip.ErrAlreadyRunning, expected: http.StatusConflict},
		{name: "not logged in", err: drip.ErrNotAuthenticated, expected: http.StatusUnauthorized},
		{name: "invalid config", err: fmt.Errorf("%w: tone", models.ErrInvalidConfig), expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, runner, _ := newTestServer()
			runner.On("Start", mock.Anything).Return("", tt.err)

			rec := serve(s, http.MethodPost, "/start", `{"message":"hello"}`)

			assert.Equal(t, tt.expected, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		s, runner, _ := newTestServer()

		rec := serve(s, http.MethodPost, "/start", `{"message":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		runner.AssertNotCalled(t, "Start", mock.Anything)
	})
}

func TestServer_Stop(t *testing.T) {
	s, runner, _ := newTestServer()
	runner.On("Stop").Return()

	rec := serve(s, http.MethodPost, "/stop", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	runner.AssertExpectations(t)
}

func TestServer_Progress(t *testing.T) {
	s, runner, _ := newTestServer()
	runner.On("Status").Return(models.Status{
		Running:  true,
		LoggedIn: true,
		User:     "drip_user",
		Logs:     []models.LogEntry{{Level: models.LevelInfo, Event: models.EventAuthOK, User: "drip_user"}},
		Summary:  map[string]int{"ReferralCodes": 1},
	})

	rec := serve(s, http.MethodGet, "/progress", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, true, body["logged_in"])
	assert.Equal(t, "drip_user", body["user"])
	assert.Len(t, body["logs"], 1)
	assert.Equal(t, map[string]any{"ReferralCodes": float64(1)}, body["summary"])
}

func TestServer_Export(t *testing.T) {
	s, runner, _ := newTestServer()
	runner.On("Status").Return(models.Status{
		Logs: []models.LogEntry{
			{Level: models.LevelInfo, Event: models.EventSleep, Seconds: models.IntPtr(120)},
		},
	})

	rec := serve(s, http.MethodGet, "/export.csv", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "progress_logs.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ts,level,event,sub,title,url,comment_id,error,seconds,user,count", lines[0])
	assert.Contains(t, lines[1], "info,sleep,,,,,,120,,")
}

func TestServer_Login(t *testing.T) {
	t.Run("redirects to authorize URL", func(t *testing.T) {
		s, _, authenticator := newTestServer()
		authenticator.On("BeginAuth").Return("https://www.reddit.com/api/v1/authorize?state=abc", nil)

		rec := serve(s, http.MethodGet, "/oauth/login", "")

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://www.reddit.com/api/v1/authorize?state=abc", rec.Header().Get("Location"))
	})

	t.Run("not configured", func(t *testing.T) {
		s, _, authenticator := newTestServer()
		authenticator.On("BeginAuth").Return("", auth.ErrNotConfigured)

		rec := serve(s, http.MethodGet, "/oauth/login", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "OAuth env vars missing")
	})
}

func TestServer_Callback(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, _, authenticator := newTestServer()
		authenticator.On("CompleteAuth", "the-code", "abc").Return(nil)

		rec := serve(s, http.MethodGet, "/oauth/callback?code=the-code&state=abc", "")

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		authenticator.AssertExpectations(t)
	})

	t.Run("provider error", func(t *testing.T) {
		s, _, authenticator := newTestServer()

		rec := serve(s, http.MethodGet, "/oauth/callback?error=access_denied", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "OAuth Error: access_denied")
		authenticator.AssertNotCalled(t, "CompleteAuth", mock.Anything, mock.Anything)
	})

	t.Run("invalid state", func(t *testing.T) {
		s, _, authenticator := newTestServer()
		authenticator.On("CompleteAuth", "the-code", "forged").Return(auth.ErrInvalidState)

		rec := serve(s, http.MethodGet, "/oauth/callback?code=the-code&state=forged", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Logout(t *testing.T) {
	s, _, authenticator := newTestServer()
	authenticator.On("Logout").Return()

	rec := serve(s, http.MethodPost, "/logout", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	authenticator.AssertExpectations(t)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer()

	rec := serve(s, http.MethodGet, "/start", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Runs(t *testing.T) {
	t.Run("not registered without archive", func(t *testing.T) {
		s, _, _ := newTestServer()

		rec := serve(s, http.MethodGet, "/runs", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		s, _, _ := newTestServer()
		archive := new(MockArchive)
		archive.On("ListRuns").Return([]string{"20260304T050607-abc"}, nil)
		s.WithArchive(archive)

		rec := serve(s, http.MethodGet, "/runs", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{"20260304T050607-abc"}, decodeBody(t, rec)["runs"])
	})

	t.Run("fetch", func(t *testing.T) {
		s, _, _ := newTestServer()
		archive := new(MockArchive)
		archive.On("FetchRun", "20260304T050607-abc").Return([]byte("ts,level\n"), nil)
		archive.On("FetchRun", "missing").Return([]byte(nil), errors.New("not found"))
		s.WithArchive(archive)

		rec := serve(s, http.MethodGet, "/runs/20260304T050607-abc.csv", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ts,level\n", rec.Body.String())

		rec = serve(s, http.MethodGet, "/runs/missing.csv", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
