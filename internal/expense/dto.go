package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/common/validation"
	"github.com/workfin/finance-core/internal/workflow"
)

// CreateExpenseDTO is the request payload for submitting a spend request.
// ApproverIDs is the ordered approval chain; it must not be empty.
type CreateExpenseDTO struct {
	ProjectID   int64           `json:"project_id"`
	BudgetID    *int64          `json:"budget_id,omitempty"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	TaskID      *int64          `json:"task_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	IsRecurring bool            `json:"is_recurring"`
	ExpenseDate time.Time       `json:"expense_date"`
	ApproverIDs []int64         `json:"approver_ids"`
}

func (dto CreateExpenseDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("project_id", dto.ProjectID).Required()
	v.Field("amount", dto.Amount).Required().Positive(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("description", dto.Description).Required().MaxLen(500, internal.ErrCodeValidationFailed)
	v.Field("expense_date", dto.ExpenseDate).Required().NotInFuture(internal.ErrCodeInvalidDate)
	if err := v.Validate(); err != nil {
		return err
	}
	if len(dto.ApproverIDs) == 0 {
		return internal.ErrInvalidChain
	}
	return nil
}

// DecisionDTO records one approver's verdict on a step. ApprovedAmount is
// optional and, when present, must not exceed the requested amount.
type DecisionDTO struct {
	Step           int              `json:"step"`
	Decision       string           `json:"decision"`
	Notes          string           `json:"notes,omitempty"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
}

func (dto DecisionDTO) Validate() error {
	if dto.Step < 1 {
		return internal.NewValidationFieldError("step", "step must be a positive integer", internal.ErrCodeValidationFailed)
	}
	if !workflow.Decision(dto.Decision).Valid() {
		return internal.NewValidationFieldError("decision", "decision must be approved, rejected or requires_info", internal.ErrCodeValidationFailed)
	}
	if dto.Decision == string(workflow.DecisionRejected) && dto.Notes == "" {
		return internal.NewValidationFieldError("notes", "notes are required when rejecting", internal.ErrCodeValidationFailed)
	}
	return nil
}

// ResubmitDTO starts a new approval cycle after requires_info.
type ResubmitDTO struct {
	ApproverIDs []int64 `json:"approver_ids"`
}

func (dto ResubmitDTO) Validate() error {
	if len(dto.ApproverIDs) == 0 {
		return internal.ErrInvalidChain
	}
	return nil
}
