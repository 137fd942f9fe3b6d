package budget

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
	CreateBudget(ctx context.Context, dto CreateBudgetDTO) (*Budget, error)
	GetBudget(ctx context.Context, id int64) (*Budget, error)
	ComputeSummary(ctx context.Context, budgetID int64) (*Summary, error)
	ComputeCategoryBreakdown(ctx context.Context, budgetID int64) ([]*CategoryUsage, error)
	RequestRevision(ctx context.Context, budgetID int64, dto RequestRevisionDTO, requestedBy int64) (*Revision, error)
	RecordRevisionDecision(ctx context.Context, revisionID int64, approverID int64, dto RevisionDecisionDTO) (*workflow.DecisionResult, error)
	ListRevisions(ctx context.Context, budgetID int64, limit, offset int) ([]*Revision, error)
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

func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateBudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateBudget: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.Service.CreateBudget(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	budgetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid budget ID")
		return
	}

	b, err := h.Service.GetBudget(r.Context(), budgetID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	budgetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid budget ID")
		return
	}

	summary, err := h.Service.ComputeSummary(r.Context(), budgetID)
	if err != nil {
		h.Logger.Error("GetSummary: service error", "error", err, "budget_id", budgetID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	budgetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid budget ID")
		return
	}

	breakdown, err := h.Service.ComputeCategoryBreakdown(r.Context(), budgetID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"budget_id":  budgetID,
		"categories": breakdown,
	})
}

func (h *Handler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	budgetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid budget ID")
		return
	}

	var dto RequestRevisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RequestRevision: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rev, err := h.Service.RequestRevision(r.Context(), budgetID, dto, actorID)
	if err != nil {
		h.Logger.Error("RequestRevision: service error", "error", err, "budget_id", budgetID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, rev)
}

func (h *Handler) RecordRevisionDecision(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	revisionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid revision ID")
		return
	}

	var dto RevisionDecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.RecordRevisionDecision(r.Context(), revisionID, actorID, dto)
	if err != nil {
		h.Logger.Error("RecordRevisionDecision: service error",
			"error", err,
			"revision_id", revisionID,
			"approver_id", actorID,
			"step", dto.Step)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	budgetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid budget ID")
		return
	}

	limit, offset := transport.Pagination(r, 20, 100)

	revisions, err := h.Service.ListRevisions(r.Context(), budgetID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"revisions": revisions,
		"limit":     limit,
		"offset":    offset,
	})
}
