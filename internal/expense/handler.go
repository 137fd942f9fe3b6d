package expense

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/transport"
	"github.com/workfin/finance-core/internal/workflow"
)

type ServiceAPI interface {
	CreateExpense(ctx context.Context, dto CreateExpenseDTO, submittedBy int64) (*Expense, error)
	GetExpense(ctx context.Context, id int64) (*Expense, error)
	ListExpenses(ctx context.Context, projectID int64, limit, offset int) ([]*Expense, error)
	RecordDecision(ctx context.Context, expenseID int64, approverID int64, dto DecisionDTO) (*workflow.DecisionResult, error)
	Resubmit(ctx context.Context, expenseID int64, actorID int64, dto ResubmitDTO) (*Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     service,
	}
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.Logger.Error("CreateExpense: actor not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exp, err := h.Service.CreateExpense(r.Context(), dto, actorID)
	if err != nil {
		h.Logger.Error("CreateExpense: service error", "error", err, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateExpense: expense created",
		"expense_id", exp.ID,
		"project_id", exp.ProjectID,
		"amount", exp.Amount)

	h.WriteJSON(w, http.StatusCreated, exp)
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.Logger.Error("GetExpense: invalid expense ID", "id", chi.URLParam(r, "id"))
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return
	}

	exp, err := h.Service.GetExpense(r.Context(), expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		h.WriteError(w, http.StatusBadRequest, "project_id query parameter is required")
		return
	}

	limit, offset := transport.Pagination(r, 20, 100)

	expenses, err := h.Service.ListExpenses(r.Context(), projectID, limit, offset)
	if err != nil {
		h.Logger.Error("ListExpenses: service error", "error", err, "project_id", projectID)
		h.WriteError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	expenseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return
	}

	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RecordDecision: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.RecordDecision(r.Context(), expenseID, actorID, dto)
	if err != nil {
		h.Logger.Error("RecordDecision: service error",
			"error", err,
			"expense_id", expenseID,
			"approver_id", actorID,
			"step", dto.Step)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RecordDecision: decision recorded",
		"expense_id", expenseID,
		"approver_id", actorID,
		"step", dto.Step,
		"decision", dto.Decision)

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	expenseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid expense ID")
		return
	}

	var dto ResubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exp, err := h.Service.Resubmit(r.Context(), expenseID, actorID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}
