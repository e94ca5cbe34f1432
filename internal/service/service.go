// ============================================================================
// docqueue Service - ingestion and query coordinator
// ============================================================================
//
// Package: internal/service
// File: service.go
// Purpose: own every core component and expose the upload/status/result
//          operations the transport layer calls
//
// Architecture:
//   Service is the single owner of the process-wide state:
//   - statusstore.Store   : TaskID → TaskRecord, state machine enforcement
//   - timetracker.Tracker : started/completed times
//   - queue.Queue         : FIFO of task ids plus the stop sentinel
//   - results.Store       : results/{id}.json, generation-guarded
//   - worker.Supervisor   : lazy, restartable single worker
//
// Upload flow (all documents of a request):
//   1. Every URL must end in .pdf          → ErrUnsupportedFormat
//   2. Every task id must be free          → ConflictError (409)
//   3. Reserve the ids for this request
//   4. Reset prior results, download each PDF to uploads/{id}.pdf
//   5. Seed queued, notify, enqueue, EnsureRunning
//   Nothing is seeded unless steps 1-4 succeed for every document.
//
// Query flow:
//   Status and Result read copies from the stores and run concurrently with
//   the worker.
//
// ============================================================================

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/docqueue/internal/download"
	"github.com/ChuLiYu/docqueue/internal/gate"
	"github.com/ChuLiYu/docqueue/internal/metrics"
	"github.com/ChuLiYu/docqueue/internal/notify"
	"github.com/ChuLiYu/docqueue/internal/queue"
	"github.com/ChuLiYu/docqueue/internal/results"
	"github.com/ChuLiYu/docqueue/internal/statusstore"
	"github.com/ChuLiYu/docqueue/internal/timetracker"
	"github.com/ChuLiYu/docqueue/internal/worker"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Response texts that are part of the HTTP contract.
const (
	MsgUploaded          = "file uploaded successfully"
	MsgQueued            = "Task queued"
	StatusNotFound       = "not_found"
	ResultMissingMessage = "Result file not found despite completed status"
)

var (
	// ErrUnsupportedFormat is returned when a document URL is not a PDF.
	ErrUnsupportedFormat = errors.New("Unsupported format")
	// ErrNoDocuments is returned for an upload without documents.
	ErrNoDocuments = errors.New("no documents in upload")
	// ErrShuttingDown is returned for uploads after Shutdown.
	ErrShuttingDown = errors.New("service is shutting down")
)

// ============================================================================
// Errors
// ============================================================================

// UploadError is a synchronous upload failure. It never enters the queue.
type UploadError struct {
	Op  string // validate | download | enqueue
	ID  types.TaskID
	Err error
}

func (e *UploadError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("upload %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upload %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ConflictError reports an upload for an id whose task is not terminal, or
// whose earlier upload is still being downloaded (Uploading).
type ConflictError struct {
	ID        types.TaskID
	Status    types.TaskStatus
	Uploading bool
}

func (e *ConflictError) Error() string {
	if e.Uploading {
		return fmt.Sprintf("task %s is being uploaded", e.ID)
	}
	return fmt.Sprintf("task %s is still %s", e.ID, e.Status)
}

// Is matches statusstore.ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == statusstore.ErrConflict
}

// ============================================================================
// Service
// ============================================================================

// Config holds the filesystem layout and extraction bound.
type Config struct {
	UploadDir         string
	ResultDir         string
	MaxProcessingTime time.Duration
}

// Deps are the external collaborators.
type Deps struct {
	Classifier gate.Classifier
	Extractor  worker.Extractor
	Downloader download.Downloader
	Notifier   notify.Notifier
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// UploadResult is the success body of POST /upload.
type UploadResult struct {
	Message string         `json:"message"`
	ID      types.TaskID   `json:"id"`
	TaskIDs []types.TaskID `json:"task_ids"`
}

// StatusView is the body of GET /status/{id}.
type StatusView struct {
	Status        string            `json:"status"`
	ID            types.TaskID      `json:"id"`
	TimingInfo    types.TimingInfo  `json:"timing_info"`
	Record        *types.TaskRecord `json:"record,omitempty"`
	QueuePosition *int              `json:"queue_position,omitempty"`
	Result        any               `json:"result,omitempty"`
}

// Service wires the core components together.
type Service struct {
	store      *statusstore.Store
	tracker    *timetracker.Tracker
	queue      *queue.Queue
	results    *results.Store
	supervisor *worker.Supervisor
	downloader download.Downloader
	notifier   notify.Notifier
	metrics    *metrics.Collector
	logger     *slog.Logger
	uploadDir  string

	mu       sync.Mutex
	reserved map[types.TaskID]struct{}
	closed   bool
}

// New creates the Service and its components. The worker is not started
// until the first upload.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Classifier == nil || deps.Extractor == nil || deps.Downloader == nil {
		return nil, errors.New("service: classifier, extractor and downloader are required")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.ResultDir == "" {
		cfg.ResultDir = "results"
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	res, err := results.NewStore(cfg.ResultDir)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	s := &Service{
		store:      statusstore.New(),
		tracker:    timetracker.New(),
		queue:      queue.New(),
		results:    res,
		downloader: deps.Downloader,
		notifier:   notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		uploadDir:  cfg.UploadDir,
		reserved:   make(map[types.TaskID]struct{}),
	}

	w := worker.New(worker.Deps{
		Store:     s.store,
		Tracker:   s.tracker,
		Queue:     s.queue,
		Gate:      gate.New(deps.Classifier),
		Extractor: deps.Extractor,
		Results:   s.results,
	},
		worker.WithNotifier(notifier),
		worker.WithMetrics(deps.Metrics),
		worker.WithLogger(logger),
		worker.WithUploadDir(cfg.UploadDir),
		worker.WithMaxProcessingTime(cfg.MaxProcessingTime),
	)
	s.supervisor = worker.NewSupervisor(w, logger, deps.Metrics)

	return s, nil
}

// ============================================================================
// Upload
// ============================================================================

// Upload ingests every document of req. Document 0 gets the request id,
// document i > 0 gets "{id}-{i+1}".
func (s *Service) Upload(ctx context.Context, req types.UploadRequest) (UploadResult, error) {
	if len(req.Documents) == 0 {
		s.metrics.RecordRejected(metrics.ReasonInvalid)
		return UploadResult{}, &UploadError{Op: "validate", ID: types.TaskID(req.ID), Err: ErrNoDocuments}
	}

	base := types.TaskID(req.ID)
	if base == "" {
		base = types.TaskID(uuid.New().String())
	}
	ids := TaskIDs(base, len(req.Documents))

	for i, doc := range req.Documents {
		if !IsPDF(doc.DocURL) {
			s.metrics.RecordRejected(metrics.ReasonUnsupportedFormat)
			return UploadResult{}, &UploadError{Op: "validate", ID: ids[i], Err: ErrUnsupportedFormat}
		}
	}

	if err := s.reserve(ids); err != nil {
		if errors.Is(err, statusstore.ErrConflict) {
			s.metrics.RecordRejected(metrics.ReasonConflict)
		}
		return UploadResult{}, err
	}
	defer s.release(ids)

	for i, doc := range req.Documents {
		id := ids[i]
		if err := s.results.Reset(id, s.store.NextGeneration(id)); err != nil {
			return UploadResult{}, &UploadError{Op: "download", ID: id, Err: err}
		}
		if err := s.downloader.Download(ctx, doc.DocURL, s.SourcePath(id)); err != nil {
			s.metrics.RecordRejected(metrics.ReasonDownload)
			s.logger.Warn("download failed", "task_id", id, "url", doc.DocURL, "error", err)
			return UploadResult{}, &UploadError{Op: "download", ID: id, Err: err}
		}
	}

	for i, doc := range req.Documents {
		if err := s.enqueue(ctx, ids[i], doc); err != nil {
			return UploadResult{}, err
		}
	}

	s.logger.Info("upload accepted", "task_id", base, "documents", len(ids))
	return UploadResult{Message: MsgUploaded, ID: base, TaskIDs: ids}, nil
}

// reserve claims ids for one upload. A second upload of a reserved or
// non-terminal id gets a ConflictError.
func (s *Service) reserve(ids []types.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &UploadError{Op: "enqueue", Err: ErrShuttingDown}
	}
	for _, id := range ids {
		if _, busy := s.reserved[id]; busy {
			return &ConflictError{ID: id, Uploading: true}
		}
		if err := s.store.CheckAvailable(id); err != nil {
			rec, _ := s.store.Get(id)
			return &ConflictError{ID: id, Status: rec.Status}
		}
	}
	for _, id := range ids {
		s.reserved[id] = struct{}{}
	}
	return nil
}

func (s *Service) release(ids []types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.reserved, id)
	}
}

// enqueue seeds the queued record and hands id to the worker.
func (s *Service) enqueue(ctx context.Context, id types.TaskID, doc types.Document) error {
	rec, err := s.store.Seed(id, doc.DocType, doc.DocURL)
	if err != nil {
		if errors.Is(err, statusstore.ErrConflict) {
			return &ConflictError{ID: id, Status: rec.Status}
		}
		return &UploadError{Op: "enqueue", ID: id, Err: err}
	}
	s.tracker.Reset(id)

	if err := s.notifier.Notify(context.WithoutCancel(ctx), id, rec, MsgQueued); err != nil {
		s.logger.Warn("notification failed", "task_id", id, "status", rec.Status, "error", err)
	}

	if err := s.queue.Enqueue(id); err != nil {
		// The record stays visible; fail it so it does not look stuck in queued.
		s.failUnqueued(ctx, id, err)
		return &UploadError{Op: "enqueue", ID: id, Err: err}
	}
	s.metrics.RecordEnqueue()
	s.metrics.SetQueueDepth(s.queue.Len())

	if err := s.supervisor.EnsureRunning(); err != nil {
		s.logger.Error("worker not running", "task_id", id, "error", err)
		return &UploadError{Op: "enqueue", ID: id, Err: err}
	}
	return nil
}

func (s *Service) failUnqueued(ctx context.Context, id types.TaskID, cause error) {
	if _, err := s.store.Transition(id, types.StatusClassification, nil); err != nil {
		return
	}
	rec, err := s.store.Transition(id, types.StatusFailed, func(r *types.TaskRecord) {
		r.Message = "Error: " + cause.Error()
	})
	if err != nil {
		return
	}
	_ = s.notifier.Notify(context.WithoutCancel(ctx), id, rec, rec.Message)
}

// SourcePath returns where the PDF of id is stored.
func (s *Service) SourcePath(id types.TaskID) string {
	return filepath.Join(s.uploadDir, string(id)+".pdf")
}

// TaskIDs derives one task id per document from base.
func TaskIDs(base types.TaskID, n int) []types.TaskID {
	ids := make([]types.TaskID, n)
	for i := range ids {
		if i == 0 {
			ids[i] = base
			continue
		}
		ids[i] = types.TaskID(fmt.Sprintf("%s-%d", base, i+1))
	}
	return ids
}

// IsPDF reports whether the whole URL, query string included, ends in
// ".pdf" (case-insensitive).
func IsPDF(rawURL string) bool {
	return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
}

// ============================================================================
// Query
// ============================================================================

// Status builds the status view of id. Unknown ids get status "not_found".
func (s *Service) Status(id types.TaskID) StatusView {
	rec, ok := s.store.Get(id)
	if !ok {
		return StatusView{Status: StatusNotFound, ID: id, TimingInfo: s.tracker.Info(id)}
	}

	view := StatusView{
		Status:     string(rec.Status),
		ID:         id,
		TimingInfo: s.tracker.Info(id),
		Record:     &rec,
	}

	if rec.Status == types.StatusQueued {
		pos := s.queue.Position(id)
		view.QueuePosition = &pos
	}

	if rec.Status.IsCompleted() {
		view.Result = s.resultValue(id)
	}
	return view
}

func (s *Service) resultValue(id types.TaskID) any {
	data, err := s.results.Read(id)
	if err != nil {
		if !errors.Is(err, results.ErrResultNotFound) {
			s.logger.Warn("failed to read result", "task_id", id, "error", err)
		}
		return ResultMissingMessage
	}
	return json.RawMessage(data)
}

// Result returns the raw results/{id}.json.
func (s *Service) Result(id types.TaskID) ([]byte, error) {
	return s.results.Read(id)
}

// Stats counts tasks per status.
func (s *Service) Stats() map[types.TaskStatus]int {
	return s.store.Stats()
}

// QueueLength returns the number of tasks waiting.
func (s *Service) QueueLength() int {
	return s.queue.Len()
}

// WorkerRunning reports whether the worker loop is alive.
func (s *Service) WorkerRunning() bool {
	return s.supervisor.IsRunning()
}

// WorkerHealthy reports whether queued work will be picked up: the worker
// is alive, or there is nothing for it to do yet.
func (s *Service) WorkerHealthy() bool {
	return s.supervisor.IsRunning() || s.queue.Len() == 0
}

// Ready reports whether uploads are accepted.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// ============================================================================
// Shutdown
// ============================================================================

// Shutdown stops accepting uploads, lets the worker drain the queue and
// waits for it until ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("shutting down", "queued", s.queue.Len())
	if err := s.supervisor.Stop(ctx); err != nil {
		return fmt.Errorf("worker shutdown: %w", err)
	}
	return nil
}
