package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/shaiso/Batchflow/internal/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// maxSubmitBody — предел тела POST /workflows.
	maxSubmitBody = 1 << 20
)

// SubmitWorkflow сохраняет workflow и уведомляет оркестратор.
// POST /api/v1/workflows
func (h *Handler) SubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBody)

	var req SubmitWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		BadRequest(w, "invalid request body")
		return
	}
	if len(req.Spec) == 0 {
		BadRequest(w, "spec is required")
		return
	}

	spec, err := engine.ParseSpec(req.Spec)
	if err != nil {
		Error(w, http.StatusBadRequest, ErrCodeInvalidWorkflow, err.Error())
		return
	}

	dataRoot := req.DataRoot
	if dataRoot == "" {
		dataRoot = h.dataRoot
	}
	if dataRoot != "" && !filepath.IsAbs(dataRoot) {
		BadRequest(w, "data_root must be absolute")
		return
	}

	// Граф проверяется сразу, чтобы не сохранять заведомо невалидный workflow
	id := uuid.New()
	if _, err := engine.BuildWorkflow(spec, engine.BuildOptions{
		ID:          id,
		DataRoot:    dataRoot,
		StrictGlobs: h.strictGlobs,
		Logger:      h.logger,
	}); err != nil {
		Error(w, http.StatusBadRequest, ErrCodeInvalidWorkflow, err.Error())
		return
	}

	wf := &domain.Workflow{
		ID:       id,
		Name:     spec.Name,
		Spec:     *spec,
		DataRoot: dataRoot,
		Status:   domain.WorkflowStatusPending,
	}
	if HandleError(w, h.logger, h.workflows.Create(r.Context(), wf), "") {
		return
	}

	logger := telemetry.WithWorkflowID(telemetry.FromContext(r.Context()), id)

	// Не критично: PENDING workflow подхватит сверка по расписанию
	if err := h.publisher.PublishWorkflowSubmitted(r.Context(), id); err != nil {
		logger.Warn("failed to publish workflow.submitted",
			"error", err,
		)
	}

	logger.Info("workflow submitted",
		"name", wf.Name,
		"jobs", len(spec.Jobs),
	)

	Created(w, WorkflowFromDomain(*wf))
}

// ListWorkflows возвращает workflows в заданном статусе.
// GET /api/v1/workflows?status=RUNNING&limit=50
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	status := domain.WorkflowStatusRunning
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.WorkflowStatus(s)
		switch status {
		case domain.WorkflowStatusPending, domain.WorkflowStatusRunning,
			domain.WorkflowStatusCompleted, domain.WorkflowStatusAbandoned:
		default:
			BadRequest(w, "invalid status")
			return
		}
	}

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	workflows, err := h.workflows.ListByStatus(r.Context(), status, limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = h.withExecution(WorkflowFromDomain(wf))
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает workflow и, если он выполняется, снимок состояния.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, h.withExecution(WorkflowFromDomain(*wf)))
}

// ListWorkflowJobs возвращает состояние jobs выполняющегося workflow.
// GET /api/v1/workflows/{id}/jobs?status=FAILED
func (h *Handler) ListWorkflowJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var filter domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		filter, err = domain.ParseJobStatus(s)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	snap, ok := h.snapshot(id)
	if !ok {
		NotFound(w, "workflow is not running")
		return
	}

	jobs := snap.View().Jobs
	if filter != "" {
		filtered := make([]engine.JobState, 0, len(jobs))
		for _, j := range jobs {
			if j.Status == filter {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	List(w, jobs, len(jobs))
}

// withExecution дополняет ответ снимком выполнения, если он есть.
func (h *Handler) withExecution(resp WorkflowResponse) WorkflowResponse {
	if snap, ok := h.snapshot(resp.ID); ok {
		view := snap.View()
		resp.Execution = &view
	}
	return resp
}

func (h *Handler) snapshot(id uuid.UUID) (*engine.Snapshot, bool) {
	if h.monitor == nil {
		return nil, false
	}
	return h.monitor.Snapshot(id)
}
