package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/cwbudde/tilecloud/internal/imgutil"
	"github.com/cwbudde/tilecloud/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxConfigBytes bounds the size of a posted layout.
const maxConfigBytes = 1 << 20

// Server represents the HTTP server
type Server struct {
	jobManager  *JobManager
	resultStore store.Store
	addr        string
	server      *http.Server
	// baseCtx is the parent of every job context; Shutdown cancels it.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a new HTTP server. resultStore may be nil, in which case
// results are kept in memory only.
func NewServer(addr string, resultStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager:  NewJobManager(),
		resultStore: resultStore,
		addr:        addr,
		baseCtx:     ctx,
		cancelJobs:  cancel,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJobStatus)
				r.Get("/status", s.handleGetJobStatus)
				r.Get("/collage.png", s.handleGetCollage)
				r.Get("/trace", s.handleGetTrace)
				r.Get("/stream", s.handleJobStream)
				r.Post("/cancel", s.handleCancelJob)
			})
		})
		r.Get("/results", s.handleListResults)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	layout := config.Default()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	if err := dec.Decode(&layout); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := layout.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(layout)

	ctx := s.jobManager.Start(s.baseCtx, job.ID)
	go runJob(ctx, s.jobManager, s.resultStore, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/{id} and /status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"layout":     job.Layout,
		"attempts":   job.Attempts,
		"ratio":      job.Ratio,
		"placed":     job.Placed,
		"total":      job.Total,
		"placements": job.Placements,
		"elapsed":    job.Elapsed().Seconds(),
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleGetCollage handles GET /api/v1/jobs/{id}/collage.png
func (s *Server) handleGetCollage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, exists := s.jobManager.GetJob(jobID)
	if exists && job.image != nil {
		writePNG(w, job.image)
		return
	}

	// Fall back to results persisted by an earlier server process
	if s.resultStore != nil {
		img, err := imgutil.Decode(s.resultStore.ImagePath(jobID))
		if err == nil {
			writePNG(w, img)
			return
		}
	}

	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	http.Error(w, "No collage yet", http.StatusNotFound)
}

// handleGetTrace handles GET /api/v1/jobs/{id}/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	if s.resultStore == nil {
		http.Error(w, "No result store configured", http.StatusNotFound)
		return
	}
	entries, err := s.resultStore.ReadTrace(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCancelJob handles POST /api/v1/jobs/{id}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}
	slog.Info("Cancel requested", "job_id", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

// handleListResults handles GET /api/v1/results
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.resultStore == nil {
		writeJSON(w, http.StatusOK, []store.ResultInfo{})
		return
	}
	infos, err := s.resultStore.ListResults()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
