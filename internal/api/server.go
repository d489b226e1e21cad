package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/palma21/referral-drip-bot/internal/auth"
	"github.com/palma21/referral-drip-bot/internal/drip"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/sirupsen/logrus"
)

// Runner starts, stops and reports on drip runs
type Runner interface {
	Start(cfg models.RunConfig) (string, error)
	Stop()
	Status() models.Status
}

// Authenticator runs the OAuth session operations
type Authenticator interface {
	BeginAuth() (string, error)
	CompleteAuth(ctx context.Context, code, state string) error
	Logout()
}

// Archive lists and serves the logs of finished runs
type Archive interface {
	ListRuns() ([]string, error)
	FetchRun(name string) ([]byte, error)
}

// Server exposes the control surface over HTTP
type Server struct {
	runner  Runner
	auth    Authenticator
	archive Archive
	presets map[string]models.Preset
	home    string
	now     func() time.Time
}

// NewServer creates a control surface backed by runner and authenticator.
// Browser flows (login callback) land on home afterwards.
func NewServer(runner Runner, authenticator Authenticator, presets map[string]models.Preset, home string) *Server {
	if home == "" {
		home = "/"
	}
	return &Server{
		runner:  runner,
		auth:    authenticator,
		presets: presets,
		home:    home,
		now:     time.Now,
	}
}

// Router returns the mux router with every control route registered
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	router.HandleFunc("/presets.json", s.presetsHandler).Methods("GET")

	router.HandleFunc("/oauth/login", s.loginHandler).Methods("GET")
	router.HandleFunc("/oauth/callback", s.callbackHandler).Methods("GET")
	router.HandleFunc("/logout", s.logoutHandler).Methods("POST")

	router.HandleFunc("/start", s.startHandler).Methods("POST")
	router.HandleFunc("/stop", s.stopHandler).Methods("POST")
	router.HandleFunc("/progress", s.progressHandler).Methods("GET")
	router.HandleFunc("/export.csv", s.exportHandler).Methods("GET")

	if s.archive != nil {
		router.HandleFunc("/runs", s.listRunsHandler).Methods("GET")
		router.HandleFunc("/runs/{name}.csv", s.fetchRunHandler).Methods("GET")
	}

	return router
}

// WithArchive exposes archived runs under /runs
func (s *Server) WithArchive(archive Archive) *Server {
	s.archive = archive
	return s
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) presetsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.presets)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.auth.BeginAuth()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) callbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if oauthErr := q.Get("error"); oauthErr != "" {
		http.Error(w, fmt.Sprintf("OAuth Error: %s", oauthErr), http.StatusBadRequest)
		return
	}

	if err := s.auth.CompleteAuth(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		logrus.Warnf("OAuth callback rejected: %v", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, s.home, http.StatusFound)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	var cfg models.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	runID, err := s.runner.Start(cfg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run_id": runID})
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	status := s.runner.Status()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=progress_logs.csv")
	w.WriteHeader(http.StatusOK)
	if err := state.WriteCSV(w, status.Logs); err != nil {
		logrus.Errorf("Failed to write CSV export: %v", err)
	}
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := s.archive.ListRuns()
	if err != nil {
		logrus.Errorf("Failed to list archived runs: %v", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) fetchRunHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := s.archive.FetchRun(name)
	if err != nil {
		logrus.Warnf("Failed to fetch archived run %s: %v", name, err)
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// statusFor maps the synchronous rejections to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, drip.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, drip.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotConfigured),
		errors.Is(err, auth.ErrInvalidState),
		errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
