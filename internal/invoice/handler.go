package invoice

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/transport"
)

type ServiceAPI interface {
	CreateInvoice(ctx context.Context, dto CreateInvoiceDTO) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, projectID int64, limit, offset int) ([]*Invoice, error)
	AddLineItem(ctx context.Context, invoiceID int64, dto AddItemDTO) (*Invoice, error)
	RecordPayment(ctx context.Context, invoiceID int64, dto RecordPaymentDTO) (*Invoice, error)
	Approve(ctx context.Context, invoiceID, approverID int64) (*Invoice, error)
	Send(ctx context.Context, invoiceID int64) (*Invoice, error)
	MarkViewed(ctx context.Context, invoiceID int64) (*Invoice, error)
	Cancel(ctx context.Context, invoiceID int64) (*Invoice, error)
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

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateInvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateInvoice: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.Service.CreateInvoice(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid invoice ID")
		return
	}

	inv, err := h.Service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		h.WriteError(w, http.StatusBadRequest, "project_id query parameter is required")
		return
	}

	limit, offset := transport.Pagination(r, 20, 100)

	invoices, err := h.Service.ListInvoices(r.Context(), projectID, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid invoice ID")
		return
	}

	var dto AddItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("AddLineItem: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.Service.AddLineItem(r.Context(), invoiceID, dto)
	if err != nil {
		h.Logger.Error("AddLineItem: service error", "error", err, "invoice_id", invoiceID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid invoice ID")
		return
	}

	var dto RecordPaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RecordPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.Service.RecordPayment(r.Context(), invoiceID, dto)
	if err != nil {
		h.Logger.Error("RecordPayment: service error", "error", err, "invoice_id", invoiceID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid invoice ID")
		return
	}

	inv, err := h.Service.Approve(r.Context(), invoiceID, actorID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Service.Send)
}

func (h *Handler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Service.MarkViewed)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.Service.Cancel)
}

func (h *Handler) statusTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*Invoice, error)) {
	actorID := internal.ActorFromContext(r.Context())
	if actorID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid invoice ID")
		return
	}

	inv, err := fn(r.Context(), invoiceID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}
