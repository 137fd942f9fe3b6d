package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
)

// Repository defines the data access methods for invoices, their line
// items and the payment audit trail.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*Invoice, error)
	ListItems(ctx context.Context, invoiceID int64) ([]*Item, error)

	// SourceAlreadyBilled reports whether the task or expense is already a
	// line item on another non-cancelled invoice of the same project.
	SourceAlreadyBilled(ctx context.Context, projectID int64, taskID, expenseID *int64, excludeInvoiceID int64) (bool, error)

	// AddItem inserts the line and, for expense-sourced lines, links the
	// expense to the invoice in the same transaction.
	AddItem(ctx context.Context, item *Item) error
	UpdateTotals(ctx context.Context, inv *Invoice) error

	// RecordPayment appends the payment row and moves paid_amount/status in
	// one transaction.
	RecordPayment(ctx context.Context, inv *Invoice, p *Payment) error

	UpdateStatus(ctx context.Context, invoiceID int64, status string) error
	// Cancel sets the status and releases expense links so the expenses
	// become billable again.
	Cancel(ctx context.Context, invoiceID int64) error
	Approve(ctx context.Context, invoiceID, approverID int64, at time.Time) error
}

// Service composes invoices: line items from billable sources, an ordered
// multi-tax collection, and incremental payments.
type Service struct {
	repo   Repository
	bus    *events.EventBus
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// CreateInvoice opens a draft invoice with an ordered tax collection and a
// generated invoice number.
func (s *Service) CreateInvoice(ctx context.Context, dto CreateInvoiceDTO) (*Invoice, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("invoice validation failed", "error", err, "project_id", dto.ProjectID)
		return nil, err
	}

	now := s.now()
	inv := &Invoice{
		WorkspaceID:   dto.WorkspaceID,
		ProjectID:     dto.ProjectID,
		InvoiceNumber: generateInvoiceNumber(now),
		Status:        StatusDraft,
		Subtotal:      decimal.Zero,
		Taxes:         dto.Taxes,
		TaxAmount:     decimal.Zero,
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		DueDate:       dto.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		s.logger.Error("failed to create invoice", "error", err, "project_id", dto.ProjectID)
		return nil, err
	}

	s.logger.Info("invoice created",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"project_id", inv.ProjectID,
		"taxes", len(inv.Taxes))

	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	inv.Status = inv.EffectiveStatus(s.now())

	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, projectID int64, limit, offset int) ([]*Invoice, error) {
	invoices, err := s.repo.ListByProject(ctx, projectID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list invoices", "error", err, "project_id", projectID)
		return nil, err
	}

	now := s.now()
	for _, inv := range invoices {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invoices, nil
}

// AddLineItem bills one source onto a draft invoice and recalculates the
// totals. The same task or expense cannot appear on two live invoices of
// one project.
func (s *Service) AddLineItem(ctx context.Context, invoiceID int64, dto AddItemDTO) (*Invoice, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("line item validation failed", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	if !inv.IsEditable() {
		s.logger.Warn("line item rejected: invoice not editable",
			"invoice_id", invoiceID,
			"status", inv.Status)
		return nil, internal.ErrInvoiceLocked
	}

	if dto.TaskID != nil || dto.ExpenseID != nil {
		billed, err := s.repo.SourceAlreadyBilled(ctx, inv.ProjectID, dto.TaskID, dto.ExpenseID, invoiceID)
		if err != nil {
			return nil, err
		}
		if billed {
			s.logger.Warn("line item rejected: source already billed",
				"invoice_id", invoiceID,
				"task_id", dto.TaskID,
				"expense_id", dto.ExpenseID)
			return nil, internal.ErrDuplicateSource
		}
	}

	items, err := s.repo.ListItems(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	item := &Item{
		InvoiceID:        invoiceID,
		TaskID:           dto.TaskID,
		ExpenseID:        dto.ExpenseID,
		TimesheetEntryID: dto.TimesheetEntryID,
		AssetID:          dto.AssetID,
		Description:      dto.Description,
		Quantity:         dto.Quantity,
		Rate:             dto.Rate,
		Amount:           dto.Quantity.Mul(dto.Rate).Round(2),
		TaxID:            dto.TaxID,
		SortOrder:        len(items),
	}

	if err := s.repo.AddItem(ctx, item); err != nil {
		s.logger.Error("failed to add line item", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	return s.RecalculateTotals(ctx, invoiceID)
}

// RecalculateTotals recomputes subtotal, tax amount and total from the
// current line items. Each tax in the ordered collection applies to the
// subtotal independently; there is no compounding and no flat discount.
func (s *Service) RecalculateTotals(ctx context.Context, invoiceID int64) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}

	taxAmount := decimal.Zero
	for _, tax := range inv.Taxes {
		taxAmount = taxAmount.Add(subtotal.Mul(tax.Rate).Div(decimal.NewFromInt(100)).Round(2))
	}

	inv.Subtotal = subtotal
	inv.TaxAmount = taxAmount
	inv.TotalAmount = subtotal.Add(taxAmount)
	inv.UpdatedAt = s.now()

	if err := s.repo.UpdateTotals(ctx, inv); err != nil {
		s.logger.Error("failed to update invoice totals", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	inv.Items = items
	return inv, nil
}

// RecordPayment appends a payment and moves the invoice to paid or
// PartialPaid based on the accumulated paid amount.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, dto RecordPaymentDTO) (*Invoice, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	if inv.Status == StatusDraft || inv.Status == StatusCancelled {
		s.logger.Warn("payment rejected: invalid invoice status",
			"invoice_id", invoiceID,
			"status", inv.Status)
		return nil, internal.ErrInvalidStatus
	}

	previousStatus := inv.Status

	receivedAt := s.now()
	if dto.ReceivedAt != nil {
		receivedAt = *dto.ReceivedAt
	}

	payment := &Payment{
		InvoiceID:  invoiceID,
		Amount:     dto.Amount,
		Method:     dto.Method,
		Reference:  dto.Reference,
		ReceivedAt: receivedAt,
	}

	inv.PaidAmount = inv.PaidAmount.Add(dto.Amount)
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		inv.Status = StatusPaid
	} else if inv.PaidAmount.IsPositive() {
		inv.Status = StatusPartialPaid
	}
	inv.UpdatedAt = s.now()

	if err := s.repo.RecordPayment(ctx, inv, payment); err != nil {
		s.logger.Error("failed to record payment", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	s.logger.Info("payment recorded",
		"invoice_id", invoiceID,
		"amount", dto.Amount,
		"paid_amount", inv.PaidAmount,
		"status", inv.Status)

	event := events.NewInvoicePaymentAppliedEvent(inv.ID, dto.Amount, inv.PaidAmount, inv.Status)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish payment event", "error", err, "invoice_id", invoiceID)
	}

	if inv.Status != previousStatus {
		statusEvent := events.NewInvoiceStatusChangedEvent(inv.ID, inv.ProjectID, inv.Status)
		if err := s.bus.Publish(ctx, statusEvent); err != nil {
			s.logger.Error("failed to publish invoice status change", "error", err, "invoice_id", invoiceID)
		}
	}

	return inv, nil
}

// Approve stamps the invoice with the approver and time. Approval is
// independent of payment state and is not re-stamped once set.
func (s *Service) Approve(ctx context.Context, invoiceID, approverID int64) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	if inv.ApprovedAt != nil {
		return inv, nil
	}

	at := s.now()
	if err := s.repo.Approve(ctx, invoiceID, approverID, at); err != nil {
		s.logger.Error("failed to approve invoice", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	inv.ApprovedAt = &at
	inv.ApprovedBy = &approverID

	s.logger.Info("invoice approved", "invoice_id", invoiceID, "approved_by", approverID)
	return inv, nil
}

// Send transitions a draft invoice to sent.
func (s *Service) Send(ctx context.Context, invoiceID int64) (*Invoice, error) {
	return s.transition(ctx, invoiceID, StatusSent, func(status string) bool {
		return status == StatusDraft
	})
}

// MarkViewed records that the recipient opened the invoice.
func (s *Service) MarkViewed(ctx context.Context, invoiceID int64) (*Invoice, error) {
	return s.transition(ctx, invoiceID, StatusViewed, func(status string) bool {
		return status == StatusSent || status == StatusViewed
	})
}

// Cancel voids an unpaid invoice and releases its expense links, making
// those expenses billable elsewhere.
func (s *Service) Cancel(ctx context.Context, invoiceID int64) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	if inv.Status == StatusPaid || inv.Status == StatusCancelled {
		return nil, internal.ErrInvalidStatus
	}

	if err := s.repo.Cancel(ctx, invoiceID); err != nil {
		s.logger.Error("failed to cancel invoice", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	inv.Status = StatusCancelled

	event := events.NewInvoiceStatusChangedEvent(inv.ID, inv.ProjectID, inv.Status)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish invoice status change", "error", err, "invoice_id", invoiceID)
	}

	s.logger.Info("invoice cancelled", "invoice_id", invoiceID)
	return inv, nil
}

func (s *Service) transition(ctx context.Context, invoiceID int64, to string, allowed func(string) bool) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, internal.ErrInvoiceNotFound
	}

	if !allowed(inv.Status) {
		s.logger.Warn("invoice transition rejected",
			"invoice_id", invoiceID,
			"from", inv.Status,
			"to", to)
		return nil, internal.ErrInvalidStatus
	}

	if inv.Status == to {
		return inv, nil
	}

	if err := s.repo.UpdateStatus(ctx, invoiceID, to); err != nil {
		s.logger.Error("failed to update invoice status", "error", err, "invoice_id", invoiceID)
		return nil, err
	}

	inv.Status = to

	event := events.NewInvoiceStatusChangedEvent(inv.ID, inv.ProjectID, inv.Status)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish invoice status change", "error", err, "invoice_id", invoiceID)
	}

	return inv, nil
}

// generateInvoiceNumber builds a month-scoped human-readable number with a
// random suffix; the unique index on invoice_number is the real guarantee.
func generateInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), suffix)
}
