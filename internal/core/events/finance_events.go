package events

import "github.com/shopspring/decimal"

const (
	EventTypeExpenseStatusChanged  = "expense.status_changed"
	EventTypeRevisionStatusChanged = "budget_revision.status_changed"
	EventTypeInvoiceStatusChanged  = "invoice.status_changed"
	EventTypeInvoicePaymentApplied = "invoice.payment_applied"
)

type ExpenseStatusChangedEvent struct {
	BaseEvent
	ExpenseID      int64            `json:"expense_id"`
	ProjectID      int64            `json:"project_id"`
	Status         string           `json:"status"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	DecidedBy      int64            `json:"decided_by"`
}

func NewExpenseStatusChangedEvent(expenseID, projectID int64, status string, approvedAmount *decimal.Decimal, decidedBy int64) *ExpenseStatusChangedEvent {
	data := map[string]interface{}{
		"expense_id": expenseID,
		"project_id": projectID,
		"status":     status,
		"decided_by": decidedBy,
	}
	if approvedAmount != nil {
		data["approved_amount"] = approvedAmount.String()
	}
	return &ExpenseStatusChangedEvent{
		BaseEvent:      NewBaseEvent(EventTypeExpenseStatusChanged, data),
		ExpenseID:      expenseID,
		ProjectID:      projectID,
		Status:         status,
		ApprovedAmount: approvedAmount,
		DecidedBy:      decidedBy,
	}
}

type RevisionStatusChangedEvent struct {
	BaseEvent
	RevisionID int64           `json:"revision_id"`
	BudgetID   int64           `json:"budget_id"`
	Status     string          `json:"status"`
	NewAmount  decimal.Decimal `json:"new_amount"`
	DecidedBy  int64           `json:"decided_by"`
}

func NewRevisionStatusChangedEvent(revisionID, budgetID int64, status string, newAmount decimal.Decimal, decidedBy int64) *RevisionStatusChangedEvent {
	return &RevisionStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeRevisionStatusChanged, map[string]interface{}{
			"revision_id": revisionID,
			"budget_id":   budgetID,
			"status":      status,
			"new_amount":  newAmount.String(),
			"decided_by":  decidedBy,
		}),
		RevisionID: revisionID,
		BudgetID:   budgetID,
		Status:     status,
		NewAmount:  newAmount,
		DecidedBy:  decidedBy,
	}
}

type InvoiceStatusChangedEvent struct {
	BaseEvent
	InvoiceID int64  `json:"invoice_id"`
	ProjectID int64  `json:"project_id"`
	Status    string `json:"status"`
}

func NewInvoiceStatusChangedEvent(invoiceID, projectID int64, status string) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventTypeInvoiceStatusChanged, map[string]interface{}{
			"invoice_id": invoiceID,
			"project_id": projectID,
			"status":     status,
		}),
		InvoiceID: invoiceID,
		ProjectID: projectID,
		Status:    status,
	}
}

type InvoicePaymentAppliedEvent struct {
	BaseEvent
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     string          `json:"status"`
}

func NewInvoicePaymentAppliedEvent(invoiceID int64, amount, paidAmount decimal.Decimal, status string) *InvoicePaymentAppliedEvent {
	return &InvoicePaymentAppliedEvent{
		BaseEvent: NewBaseEvent(EventTypeInvoicePaymentApplied, map[string]interface{}{
			"invoice_id":  invoiceID,
			"amount":      amount.String(),
			"paid_amount": paidAmount.String(),
			"status":      status,
		}),
		InvoiceID:  invoiceID,
		Amount:     amount,
		PaidAmount: paidAmount,
		Status:     status,
	}
}
