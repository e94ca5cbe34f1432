// ============================================================================
// docqueue HTTP Server - transport shell around the service
// ============================================================================
//
// Package: internal/server
// File: server.go
// Purpose: map HTTP requests onto service.Service operations
//
// Routes:
//   POST /upload         ingest documents         200 | 400 | 409 | 502 | 503
//   GET  /status/{id}    status view              200 (unknown id → "not_found")
//   GET  /result/{id}    raw results/{id}.json    200 | 404
//   POST /queue/status   echo the JSON body       200 | 400
//   GET  /healthz        liveness                 200
//   GET  /readyz         accepting uploads        200 | 503
//
// Every request gets an X-Request-ID (kept when the client sends one) and
// one access log line.
//
// ============================================================================

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/docqueue/internal/metrics"
	"github.com/ChuLiYu/docqueue/internal/results"
	"github.com/ChuLiYu/docqueue/internal/service"
	"github.com/ChuLiYu/docqueue/internal/validate"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the part of service.Service the HTTP layer uses.
type Service interface {
	Upload(ctx context.Context, req types.UploadRequest) (service.UploadResult, error)
	Status(id types.TaskID) service.StatusView
	Result(id types.TaskID) ([]byte, error)
	Ready() bool
}

// Server serves the docqueue HTTP API.
type Server struct {
	svc     Service
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a Server. A nil logger means slog.Default().
func New(svc Service, logger *slog.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger, metrics: m}
}

// Handler returns the routed handler wrapped in the request logger.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /result/{id}", s.handleResult)
	mux.HandleFunc("POST /queue/status", s.handleQueueStatus)
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	return s.logRequests(mux)
}

// NewHTTPServer returns the *http.Server for addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.metrics.RecordRejected(metrics.ReasonInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	req, err := validate.Upload(body)
	if err != nil {
		s.metrics.RecordRejected(metrics.ReasonInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	res, err := s.svc.Upload(r.Context(), req)
	if err != nil {
		code, payload := uploadErrorResponse(err)
		if code >= http.StatusInternalServerError {
			s.logger.Error("upload failed", "task_id", req.ID, "error", err)
		}
		writeJSON(w, code, payload)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadErrorResponse maps an upload error to a status code and body.
func uploadErrorResponse(err error) (int, map[string]string) {
	var conflict *service.ConflictError
	var uploadErr *service.UploadError

	switch {
	case errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusBadRequest, map[string]string{"error": service.ErrUnsupportedFormat.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, map[string]string{"message": conflict.Error()}
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable, map[string]string{"message": err.Error()}
	case errors.As(err, &uploadErr) && uploadErr.Op == "validate":
		return http.StatusBadRequest, map[string]string{"message": err.Error()}
	case errors.As(err, &uploadErr) && uploadErr.Op == "download":
		return http.StatusBadGateway, map[string]string{"message": err.Error()}
	default:
		return http.StatusInternalServerError, map[string]string{"message": err.Error()}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := types.TaskID(r.PathValue("id"))
	writeJSON(w, http.StatusOK, s.svc.Status(id))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := types.TaskID(r.PathValue("id"))

	data, err := s.svc.Result(id)
	if err != nil {
		if errors.Is(err, results.ErrResultNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Result not found"})
			return
		}
		s.logger.Error("failed to read result", "task_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleQueueStatus echoes the posted JSON. Useful as a local webhook sink.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "request body must be JSON"})
		return
	}
	s.logger.Info("queue status received", "body", string(body))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ============================================================================
// Middleware
// ============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
