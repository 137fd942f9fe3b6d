package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/common/validation"
	"github.com/workfin/finance-core/internal/workflow"
)

type CreateBudgetDTO struct {
	ProjectID   int64               `json:"project_id"`
	Name        string              `json:"name"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	PeriodType  string              `json:"period_type,omitempty"`
	StartsOn    time.Time           `json:"starts_on"`
	EndsOn      *time.Time          `json:"ends_on,omitempty"`
	Categories  []CreateCategoryDTO `json:"categories,omitempty"`
}

type CreateCategoryDTO struct {
	Name            string          `json:"name"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	Color           string          `json:"color,omitempty"`
}

func (dto CreateBudgetDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("project_id", dto.ProjectID).Required()
	v.Field("name", dto.Name).Required().MaxLen(255, internal.ErrCodeValidationFailed)
	v.Field("total_amount", dto.TotalAmount).Required().Positive(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("starts_on", dto.StartsOn).Required()
	for _, c := range dto.Categories {
		v.Field("categories.name", c.Name).Required().MaxLen(255, internal.ErrCodeValidationFailed)
		v.Field("categories.allocated_amount", c.AllocatedAmount).NonNegative(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	}
	if err := v.Validate(); err != nil {
		return err
	}

	switch dto.PeriodType {
	case "", PeriodProject, PeriodMonthly, PeriodQuarterly:
	default:
		return internal.NewValidationFieldError("period_type", "period_type must be project, monthly or quarterly", internal.ErrCodeValidationFailed)
	}

	if dto.EndsOn != nil && dto.EndsOn.Before(dto.StartsOn) {
		return internal.NewValidationFieldError("ends_on", "ends_on cannot precede starts_on", internal.ErrCodeInvalidDate)
	}

	return nil
}

// RequestRevisionDTO proposes a new budget total. The approver chain is
// ordered and must not be empty.
type RequestRevisionDTO struct {
	NewAmount   decimal.Decimal `json:"new_amount"`
	Reason      string          `json:"reason"`
	ApproverIDs []int64         `json:"approver_ids"`
}

func (dto RequestRevisionDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("new_amount", dto.NewAmount).Required().Positive(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("reason", dto.Reason).Required().MaxLen(500, internal.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	if len(dto.ApproverIDs) == 0 {
		return internal.ErrInvalidChain
	}
	return nil
}

// RevisionDecisionDTO records one approver's verdict on a revision step.
type RevisionDecisionDTO struct {
	Step     int    `json:"step"`
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

func (dto RevisionDecisionDTO) Validate() error {
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
