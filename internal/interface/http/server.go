// Package http serves the worker's health and job status endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alem-hub/student-insights/internal/infrastructure/scheduler"
	"github.com/alem-hub/student-insights/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/student-insights/internal/interface/http/handlers"
	"github.com/alem-hub/student-insights/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// JobLister reports the scheduled jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// BatchReporter reports the last batch analysis.
type BatchReporter interface {
	LastStats() *jobs.BatchStats
}

// Dependencies are the sources the endpoints read from. Jobs and Batch may be nil.
type Dependencies struct {
	Health *handlers.HealthChecker
	Jobs   JobLister
	Batch  BatchReporter
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the worker's HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	router chi.Router
	srv    *http.Server
}

// NewServer creates the server and its routes.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Health == nil {
		deps.Health = handlers.NewHealthChecker("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{config: config, deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", s.handleLive)
	r.Get("/readyz", s.handleReady)
	r.Get("/jobs", s.handleJobs)

	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns http.ErrServerClosed after a
// graceful stop.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.deps.Logger.Info("health server listening", "addr", s.config.Addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.deps.Health.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Ready {
		logger.FromContext(r.Context()).Warn("readiness check failed", "message", status.Message)
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type jobView struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastError   string     `json:"last_error,omitempty"`
}

type batchView struct {
	StartedAt     time.Time      `json:"started_at"`
	Duration      string         `json:"duration"`
	TotalStudents int            `json:"total_students"`
	Completed     int            `json:"completed"`
	Failed        int            `json:"failed"`
	ByStatus      map[string]int `json:"by_status"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Jobs      []jobView  `json:"jobs"`
		LastBatch *batchView `json:"last_batch,omitempty"`
	}{Jobs: []jobView{}}

	if s.deps.Jobs != nil {
		for _, j := range s.deps.Jobs.ListJobs() {
			v := jobView{
				Name:        j.Name,
				Description: j.Description,
				Schedule:    j.Schedule,
				Running:     j.Running,
				NextRun:     j.NextRun,
				RunCount:    j.RunCount,
				FailCount:   j.FailCount,
			}
			if !j.LastRun.IsZero() {
				last := j.LastRun
				v.LastRun = &last
			}
			if j.LastResult != nil && j.LastResult.Error != nil {
				v.LastError = j.LastResult.Error.Error()
			}
			resp.Jobs = append(resp.Jobs, v)
		}
	}

	if s.deps.Batch != nil {
		if st := s.deps.Batch.LastStats(); st != nil {
			resp.LastBatch = &batchView{
				StartedAt:     st.StartedAt,
				Duration:      st.Duration.Round(time.Millisecond).String(),
				TotalStudents: st.TotalStudents,
				Completed:     st.Completed,
				Failed:        st.Failed,
				ByStatus:      st.ByStatus,
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
