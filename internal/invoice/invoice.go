package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	invoiceDatamodel "github.com/workfin/finance-core/internal/core/datamodel/invoice"
)

const (
	StatusDraft       = invoiceDatamodel.StatusDraft
	StatusSent        = invoiceDatamodel.StatusSent
	StatusViewed      = invoiceDatamodel.StatusViewed
	StatusPaid        = invoiceDatamodel.StatusPaid
	StatusPartialPaid = invoiceDatamodel.StatusPartialPaid
	StatusOverdue     = invoiceDatamodel.StatusOverdue
	StatusCancelled   = invoiceDatamodel.StatusCancelled
)

type TaxLine = invoiceDatamodel.TaxLine

type Invoice struct {
	ID            int64            `json:"id"`
	WorkspaceID   int64            `json:"workspace_id"`
	ProjectID     int64            `json:"project_id"`
	InvoiceNumber string           `json:"invoice_number"`
	Status        string           `json:"status"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	Taxes         []TaxLine        `json:"taxes"`
	TaxAmount     decimal.Decimal  `json:"tax_amount"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy    *int64           `json:"approved_by,omitempty"`
	Items         []*Item          `json:"items,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Item struct {
	ID               int64           `json:"id"`
	InvoiceID        int64           `json:"invoice_id"`
	TaskID           *int64          `json:"task_id,omitempty"`
	ExpenseID        *int64          `json:"expense_id,omitempty"`
	TimesheetEntryID *int64          `json:"timesheet_entry_id,omitempty"`
	AssetID          *int64          `json:"asset_id,omitempty"`
	Description      string          `json:"description"`
	Quantity         decimal.Decimal `json:"quantity"`
	Rate             decimal.Decimal `json:"rate"`
	Amount           decimal.Decimal `json:"amount"`
	TaxID            *int64          `json:"tax_id,omitempty"`
	SortOrder        int             `json:"sort_order"`
}

type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsEditable reports whether line items may still be added or removed.
func (i *Invoice) IsEditable() bool {
	return i.Status == StatusDraft
}

func (i *Invoice) IsSettled() bool {
	return i.Status == StatusPaid || i.Status == StatusCancelled
}

// EffectiveStatus derives the read-time status: an unsettled invoice past
// its due date reads as overdue. The stored status column never holds
// "overdue".
func (i *Invoice) EffectiveStatus(now time.Time) string {
	switch i.Status {
	case StatusSent, StatusViewed, StatusPartialPaid:
		if i.DueDate != nil && now.After(endOfDay(*i.DueDate)) {
			return StatusOverdue
		}
	}
	return i.Status
}

func endOfDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, 0, d.Location())
}

func ToDataModel(i *Invoice) *invoiceDatamodel.Invoice {
	return &invoiceDatamodel.Invoice{
		ID:            i.ID,
		WorkspaceID:   i.WorkspaceID,
		ProjectID:     i.ProjectID,
		InvoiceNumber: i.InvoiceNumber,
		Status:        i.Status,
		Subtotal:      i.Subtotal,
		Taxes:         invoiceDatamodel.TaxLines(i.Taxes),
		TaxAmount:     i.TaxAmount,
		TotalAmount:   i.TotalAmount,
		PaidAmount:    i.PaidAmount,
		DueDate:       i.DueDate,
		ApprovedAt:    i.ApprovedAt,
		ApprovedBy:    i.ApprovedBy,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func FromDataModel(i *invoiceDatamodel.Invoice) *Invoice {
	return &Invoice{
		ID:            i.ID,
		WorkspaceID:   i.WorkspaceID,
		ProjectID:     i.ProjectID,
		InvoiceNumber: i.InvoiceNumber,
		Status:        i.Status,
		Subtotal:      i.Subtotal,
		Taxes:         []TaxLine(i.Taxes),
		TaxAmount:     i.TaxAmount,
		TotalAmount:   i.TotalAmount,
		PaidAmount:    i.PaidAmount,
		DueDate:       i.DueDate,
		ApprovedAt:    i.ApprovedAt,
		ApprovedBy:    i.ApprovedBy,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func ItemToDataModel(it *Item) *invoiceDatamodel.Item {
	return &invoiceDatamodel.Item{
		ID:               it.ID,
		InvoiceID:        it.InvoiceID,
		TaskID:           it.TaskID,
		ExpenseID:        it.ExpenseID,
		TimesheetEntryID: it.TimesheetEntryID,
		AssetID:          it.AssetID,
		Description:      it.Description,
		Quantity:         it.Quantity,
		Rate:             it.Rate,
		Amount:           it.Amount,
		TaxID:            it.TaxID,
		SortOrder:        it.SortOrder,
	}
}

func ItemFromDataModel(it *invoiceDatamodel.Item) *Item {
	return &Item{
		ID:               it.ID,
		InvoiceID:        it.InvoiceID,
		TaskID:           it.TaskID,
		ExpenseID:        it.ExpenseID,
		TimesheetEntryID: it.TimesheetEntryID,
		AssetID:          it.AssetID,
		Description:      it.Description,
		Quantity:         it.Quantity,
		Rate:             it.Rate,
		Amount:           it.Amount,
		TaxID:            it.TaxID,
		SortOrder:        it.SortOrder,
	}
}

func PaymentFromDataModel(p *invoiceDatamodel.Payment) *Payment {
	return &Payment{
		ID:         p.ID,
		InvoiceID:  p.InvoiceID,
		Amount:     p.Amount,
		Method:     p.Method,
		Reference:  p.Reference,
		ReceivedAt: p.ReceivedAt,
		CreatedAt:  p.CreatedAt,
	}
}
