package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/job"
	"github.com/JakeFAU/usn-result-scraper/internal/metrics"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

const (
	msgRunning      = "Scraping is already in progress."
	msgStarted      = "Scraping process started in the background."
	msgInvalidYear  = "Invalid year format. Use a 2-digit format, e.g., '23' for 2023."
	defaultTimeout  = 2 * time.Minute
	maxRequestBytes = 1 << 16
)

// Jobs is the job manager surface the HTTP handlers depend on.
type Jobs interface {
	StartJob(year string, branches []string) (job.Status, error)
	Cancel() error
	FetchOne(ctx context.Context, id string) (string, error)
	GetStatus() job.Status
	ListArtifacts(ctx context.Context) ([]artifact.Artifact, error)
}

// Server wires HTTP handlers to the job manager.
type Server struct {
	router chi.Router
	jobs   Jobs
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(jobs Jobs, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{jobs: jobs, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(defaultTimeout))

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/status", s.status)
	r.Get("/branches", s.branches)
	r.Get("/results", s.results)
	r.Post("/scrape", s.startScrape)
	r.Post("/scrape/cancel", s.cancelScrape)
	r.Post("/scrape-single", s.scrapeSingle)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "USN result scraper API is running"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.GetStatus())
}

func (s *Server) branches(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"branches": usn.KnownBranches})
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.ListArtifacts(r.Context())
	if err != nil {
		s.logger.Error("list artifacts failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

type scrapeRequest struct {
	Year     string   `json:"year"`
	Branches []string `json:"branches"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	st, err := s.jobs.StartJob(strings.TrimSpace(req.Year), req.Branches)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"message": msgStarted, "job_id": st.JobID})
	case errors.Is(err, job.ErrJobRunning):
		s.writeError(w, http.StatusBadRequest, msgRunning)
	case errors.Is(err, usn.ErrInvalidYear):
		s.writeError(w, http.StatusUnprocessableEntity, msgInvalidYear)
	case errors.Is(err, usn.ErrInvalidBranch):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("start scrape failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) cancelScrape(w http.ResponseWriter, _ *http.Request) {
	if err := s.jobs.Cancel(); err != nil {
		if errors.Is(err, job.ErrNoJob) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Cancellation requested."})
}

type singleRequest struct {
	USN string `json:"usn"`
}

func (s *Server) scrapeSingle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("usn"))
	if id == "" && r.Body != nil {
		var req singleRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err == nil {
			id = strings.TrimSpace(req.USN)
		}
	}
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "usn is required")
		return
	}

	path, err := s.jobs.FetchOne(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"usn": id, "status": "success", "file_path": path})
	case errors.Is(err, job.ErrJobRunning):
		s.writeError(w, http.StatusBadRequest, msgRunning)
	case job.IsInvalidInput(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, job.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Result not found for USN: "+id)
	default:
		s.logger.Error("single fetch failed", zap.String("usn", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
