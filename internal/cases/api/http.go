package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/meridian-rcm/platform/internal/agenttask"
	"github.com/meridian-rcm/platform/internal/cases/domain"
	"github.com/meridian-rcm/platform/internal/documents"
	"github.com/meridian-rcm/platform/internal/shared/auth"
	"github.com/meridian-rcm/platform/internal/shared/errors"
	"github.com/meridian-rcm/platform/internal/shared/types"
	"github.com/meridian-rcm/platform/internal/workflow"
)

// Handler provides HTTP handlers for the case module
type Handler struct {
	service *workflow.Service
	repo    domain.Repository
	runner  *agenttask.Runner
	tracker *documents.Tracker
}

// NewHandler creates a new case handler
func NewHandler(service *workflow.Service, repo domain.Repository, runner *agenttask.Runner, tracker *documents.Tracker) *Handler {
	return &Handler{service: service, repo: repo, runner: runner, tracker: tracker}
}

// Routes registers the case routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCases)
	r.Post("/", h.CreateCase)

	r.Route("/{caseID}", func(r chi.Router) {
		r.Get("/", h.GetCase)
		r.Delete("/", h.DeleteCase)
		r.Get("/status", h.GetStatus)

		// Agent tasks
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.StartTask)
			r.Get("/{kind}", h.GetActiveTask)
			r.Delete("/{kind}", h.CancelTask)
		})

		// Review and payer transitions
		r.Post("/decision", h.SubmitDecision)
		r.Post("/payer-response", h.RecordPayerResponse)
		r.Post("/assign", h.AssignCase)

		// Documents
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.GetChecklist)
			r.Post("/", h.RecordDocument)
		})

		// Timeline
		r.Get("/events", h.GetEvents)
	})

	r.Get("/tasks/{taskID}", h.GetTask)

	return r
}

// --- Request/Response types ---

type StartTaskRequest struct {
	Kind  agenttask.Kind `json:"kind"`
	Input any            `json:"input"`
}

type DecisionRequest struct {
	Decision workflow.Decision `json:"decision"`
	Reason   string            `json:"reason,omitempty"`
}

type PayerResponseRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

type AssignCaseRequest struct {
	Assignee string `json:"assignee"`
}

type RecordDocumentRequest struct {
	DocType   string `json:"doc_type"`
	Retrieved bool   `json:"retrieved"`
}

type TaskView struct {
	ID         types.ID        `json:"id"`
	CaseID     types.ID        `json:"case_id"`
	Kind       agenttask.Kind  `json:"kind"`
	State      agenttask.State `json:"state"`
	FailReason string          `json:"fail_reason,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
}

// --- Handlers ---

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{
		PayerCode: r.URL.Query().Get("payer"),
		Assignee:  r.URL.Query().Get("assignee"),
		Search:    r.URL.Query().Get("search"),
		OrderBy:   r.URL.Query().Get("order_by"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.CaseStatus(s)
		filter.Status = &status
	}
	if p := r.URL.Query().Get("priority"); p != "" {
		tier := domain.PriorityTier(p)
		filter.Priority = &tier
	}
	if b := r.URL.Query().Get("breached"); b != "" {
		breached := b == "true"
		filter.Breached = &breached
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil {
			filter.Limit = limit
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if offset, err := strconv.Atoi(o); err == nil {
			filter.Offset = offset
		}
	}

	cases, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cases,
		"total": total,
	})
}

func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var input workflow.CreateCaseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.CreateCase(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	view, err := h.service.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req StartTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// The case must exist before work is queued for it
	if _, err := h.repo.FindByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.runner.Start(r.Context(), id, req.Kind, req.Input)
	if err != nil {
		writeError(w, errors.Conflict(err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, taskView(task))
}

func (h *Handler) GetActiveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	kind := agenttask.Kind(chi.URLParam(r, "kind"))
	task := h.runner.Active(id, kind)
	if task == nil {
		writeError(w, errors.NotFound("task", string(kind)))
		return
	}

	writeJSON(w, http.StatusOK, taskView(task))
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	kind := agenttask.Kind(chi.URLParam(r, "kind"))
	if err := h.runner.Cancel(id, kind); err != nil {
		writeError(w, errors.NotFound("task", string(kind)))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := types.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid task ID"))
		return
	}

	task := h.runner.Get(taskID)
	if task == nil {
		writeError(w, errors.NotFound("task", taskID.String()))
		return
	}

	writeJSON(w, http.StatusOK, taskView(task))
}

func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.SubmitHumanDecision(r.Context(), id, req.Decision, req.Reason, actorName(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RecordPayerResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req PayerResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.service.RecordPayerResponse(r.Context(), id, req.Approved, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) AssignCase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req AssignCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := c.Assign(req.Assignee, actorName(r)); err != nil {
		writeError(w, errors.BadRequest(err.Error()))
		return
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	checklist, err := h.tracker.Checklist(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	complete, err := h.tracker.IsComplete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":     checklist,
		"complete": complete,
	})
}

func (h *Handler) RecordDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	var req RecordDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.DocType == "" {
		writeError(w, errors.BadRequest("doc_type is required"))
		return
	}

	if err := h.service.RecordDocument(r.Context(), id, req.DocType, req.Retrieved); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseCaseID(w, r)
	if !ok {
		return
	}

	events, err := h.repo.GetEvents(r.Context(), id, 50, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  events,
		"total": len(events),
	})
}

// --- Helpers ---

func parseCaseID(w http.ResponseWriter, r *http.Request) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid case ID"))
		return "", false
	}
	return id, true
}

func actorName(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return user.ID.String()
	}
	// For development without auth
	return "anonymous"
}

func taskView(task *agenttask.Task) TaskView {
	view := TaskView{
		ID:        task.ID,
		CaseID:    task.CaseID,
		Kind:      task.Kind,
		State:     task.State(),
		StartedAt: task.StartedAt,
	}

	if _, score, err := task.Result(); err == nil {
		view.Confidence = &score
	}
	if reason := task.FailReason(); reason != "" {
		view.FailReason = reason
	}

	return view
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
