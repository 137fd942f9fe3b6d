package expense

import (
	"time"

	"github.com/shopspring/decimal"

	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
)

type Expense struct {
	ID             int64            `json:"id"`
	ProjectID      int64            `json:"project_id"`
	BudgetID       *int64           `json:"budget_id,omitempty"`
	CategoryID     *int64           `json:"category_id,omitempty"`
	TaskID         *int64           `json:"task_id,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	Status         string           `json:"status"`
	Description    string           `json:"description"`
	IsRecurring    bool             `json:"is_recurring"`
	InvoiceID      *int64           `json:"invoice_id,omitempty"`
	SubmittedBy    int64            `json:"submitted_by"`
	ExpenseDate    time.Time        `json:"expense_date"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

const (
	StatusPending      = expenseDatamodel.StatusPending
	StatusApproved     = expenseDatamodel.StatusApproved
	StatusRejected     = expenseDatamodel.StatusRejected
	StatusRequiresInfo = expenseDatamodel.StatusRequiresInfo
)

func (e *Expense) IsTerminal() bool {
	return e.Status == StatusApproved || e.Status == StatusRejected
}

// CanBeResubmitted is true only after a requires_info outcome; a fresh
// approval cycle then starts from step 1.
func (e *Expense) CanBeResubmitted() bool {
	return e.Status == StatusRequiresInfo
}

func (e *Expense) IsBilled() bool {
	return e.InvoiceID != nil
}

func NewExpense(submittedBy int64, dto CreateExpenseDTO) *Expense {
	now := time.Now()

	return &Expense{
		ProjectID:   dto.ProjectID,
		BudgetID:    dto.BudgetID,
		CategoryID:  dto.CategoryID,
		TaskID:      dto.TaskID,
		Amount:      dto.Amount,
		Status:      StatusPending,
		Description: dto.Description,
		IsRecurring: dto.IsRecurring,
		SubmittedBy: submittedBy,
		ExpenseDate: dto.ExpenseDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	return &expenseDatamodel.Expense{
		ID:             e.ID,
		ProjectID:      e.ProjectID,
		BudgetID:       e.BudgetID,
		CategoryID:     e.CategoryID,
		TaskID:         e.TaskID,
		Amount:         e.Amount,
		ApprovedAmount: e.ApprovedAmount,
		Status:         e.Status,
		Description:    e.Description,
		IsRecurring:    e.IsRecurring,
		InvoiceID:      e.InvoiceID,
		SubmittedBy:    e.SubmittedBy,
		ExpenseDate:    e.ExpenseDate,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func FromDataModel(e *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:             e.ID,
		ProjectID:      e.ProjectID,
		BudgetID:       e.BudgetID,
		CategoryID:     e.CategoryID,
		TaskID:         e.TaskID,
		Amount:         e.Amount,
		ApprovedAmount: e.ApprovedAmount,
		Status:         e.Status,
		Description:    e.Description,
		IsRecurring:    e.IsRecurring,
		InvoiceID:      e.InvoiceID,
		SubmittedBy:    e.SubmittedBy,
		ExpenseDate:    e.ExpenseDate,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func FromDataModelSlice(expenses []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(expenses))
	for i, e := range expenses {
		result[i] = FromDataModel(e)
	}
	return result
}
