// Package api exposes the orchestrator over HTTP. The surface is a thin
// JSON adapter: request and response bodies use the wire types in
// pkg/auditapi, and every operation maps onto one orchestrator call.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/internal/observability"
	"github.com/YingxueSec/AI-Code-Sec/internal/orchestrator"
	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
	"github.com/YingxueSec/AI-Code-Sec/pkg/auditapi"
)

// defaultEventLimit caps GET /api/events responses when no limit is given.
const defaultEventLimit = 50

type Server struct {
	svc *orchestrator.Service
}

func NewServer(svc *orchestrator.Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/owners/", s.handleOwner)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/metrics/prometheus", s.handleMetricsPrometheus)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Healthy(r.Context()); err != nil {
		status := "degraded"
		if errors.Is(err, scheduler.ErrHalted) {
			status = "halted"
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auditapi.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	task, err := s.svc.SubmitTask(r.Context(), orchestrator.SubmitRequest{
		Owner:      req.Owner,
		Role:       req.Role,
		Tier:       req.Tier,
		PayloadRef: req.PayloadRef,
	})
	if err != nil {
		writeError(w, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, auditapi.SubmitTaskResponse{
		TaskID: task.ID,
		Status: string(task.Status),
	})
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "task id required")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleTaskRecord(w, r, id)
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "unknown task resource")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch parts[1] {
	case "start":
		s.handleStart(w, r, id)
	case "cancel":
		s.handleCancel(w, r, id)
	case "complete":
		s.handleComplete(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown task resource")
	}
}

func (s *Server) handleTaskRecord(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.svc.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, taskRecord(task))
}

// handleStart acknowledges a start request. Terminal tasks answer 200 with
// their final status so retried requests stay idempotent.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, id string) {
	status, err := s.svc.RequestStart(r.Context(), id)
	if err != nil && !errors.Is(err, scheduler.ErrAlreadyTerminal) {
		writeError(w, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auditapi.StartTaskResponse{TaskID: id, Status: string(status)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	cancelled, err := s.svc.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auditapi.CancelTaskResponse{Cancelled: cancelled})
}

// handleComplete records an outcome reported by an external executor.
// Re-reporting a terminal task acknowledges without error.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, id string) {
	var req auditapi.CompleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	err := s.svc.ReportCompletion(r.Context(), id, scheduler.Status(req.Outcome), req.Error)
	if err != nil && !errors.Is(err, scheduler.ErrAlreadyTerminal) {
		writeError(w, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, auditapi.CompleteTaskResponse{Acknowledged: true})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, queueStatusResponse(s.svc.QueueStatus()))
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/owners/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "unknown owner resource")
		return
	}
	owner := parts[0]
	switch parts[1] {
	case "queue":
		report := s.svc.OwnerStatus(owner)
		writeJSON(w, http.StatusOK, auditapi.OwnerStatusResponse{
			Owner:            report.Owner,
			State:            report.State,
			TaskID:           report.TaskID,
			ElapsedSec:       int64(report.Elapsed / time.Second),
			Rank:             report.Rank,
			EstimatedWaitSec: int64(report.EstimatedWait / time.Second),
		})
	case "tasks":
		tasks, err := s.svc.OwnerHistory(r.Context(), owner)
		if err != nil {
			writeError(w, httpStatusFor(err), err.Error())
			return
		}
		resp := auditapi.OwnerTasksResponse{
			Owner: owner,
			Tasks: make([]auditapi.TaskRecord, 0, len(tasks)),
		}
		for _, task := range tasks {
			resp.Tasks = append(resp.Tasks, taskRecord(task))
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusNotFound, "unknown owner resource")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	recent := s.svc.RecentEvents(limit)
	resp := auditapi.EventsResponse{Events: make([]auditapi.EventRecord, 0, len(recent))}
	for _, ev := range recent {
		resp.Events = append(resp.Events, auditapi.EventRecord{
			Type:       ev.EventType(),
			TaskID:     ev.TaskID(),
			OccurredAt: ev.OccurredAt(),
			Detail:     events.LogLine(ev),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func taskRecord(task *scheduler.Task) auditapi.TaskRecord {
	return auditapi.TaskRecord{
		ID:          task.ID,
		Owner:       task.Owner,
		Tier:        task.Tier,
		PayloadRef:  task.PayloadRef,
		Status:      string(task.Status),
		Error:       task.Error,
		SubmittedAt: task.SubmittedAt,
		StartedAt:   task.StartedAt,
		FinishedAt:  task.FinishedAt,
	}
}

func queueStatusResponse(report orchestrator.StatusReport) auditapi.QueueStatusResponse {
	resp := auditapi.QueueStatusResponse{
		Capacity:    report.Capacity,
		FreeSlots:   report.FreeSlots,
		Halted:      report.Halted,
		QueuedTotal: report.QueuedTotal,
		Running:     make([]auditapi.RunningEntry, 0, len(report.Running)),
		Queued:      make([]auditapi.QueuedEntry, 0, len(report.Queued)),
		GeneratedAt: report.GeneratedAt,
	}
	for _, task := range report.Running {
		resp.Running = append(resp.Running, auditapi.RunningEntry{
			ID:         task.ID,
			Owner:      task.Owner,
			Tier:       task.Tier,
			StartedAt:  task.StartedAt,
			ElapsedSec: int64(task.Elapsed / time.Second),
		})
	}
	for _, task := range report.Queued {
		resp.Queued = append(resp.Queued, auditapi.QueuedEntry{
			ID:               task.ID,
			Owner:            task.Owner,
			Tier:             task.Tier,
			Rank:             task.Rank,
			WaitedSec:        int64(task.Waited / time.Second),
			EstimatedWaitSec: int64(task.EstimatedWait / time.Second),
		})
	}
	return resp
}

// httpStatusFor translates orchestrator errors into response codes.
// Capacity violations and persistence failures surface as 503 so clients
// back off rather than retry into a halted scheduler.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrHalted),
		errors.Is(err, scheduler.ErrCapacityViolated),
		errors.Is(err, scheduler.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, auditapi.ErrorResponse{Error: msg})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
