package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/common/validation"
)

type CreateInvoiceDTO struct {
	WorkspaceID int64      `json:"workspace_id"`
	ProjectID   int64      `json:"project_id"`
	Taxes       []TaxLine  `json:"taxes,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (dto CreateInvoiceDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("workspace_id", dto.WorkspaceID).Required()
	v.Field("project_id", dto.ProjectID).Required()
	for _, t := range dto.Taxes {
		v.Field("taxes.name", t.Name).Required().MaxLen(100, internal.ErrCodeValidationFailed)
		v.Field("taxes.rate", t.Rate).NonNegative(internal.ErrCodeInvalidAmount).MaxScale(4, internal.ErrCodeInvalidAmount)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// AddItemDTO bills one line sourced from exactly one of a task, an expense,
// a timesheet entry, an asset, or free text.
type AddItemDTO struct {
	TaskID           *int64          `json:"task_id,omitempty"`
	ExpenseID        *int64          `json:"expense_id,omitempty"`
	TimesheetEntryID *int64          `json:"timesheet_entry_id,omitempty"`
	AssetID          *int64          `json:"asset_id,omitempty"`
	Description      string          `json:"description,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	Rate             decimal.Decimal `json:"rate"`
	TaxID            *int64          `json:"tax_id,omitempty"`
}

// sourceRefs counts how many source references the item carries.
func (dto AddItemDTO) sourceRefs() int {
	n := 0
	for _, ref := range []*int64{dto.TaskID, dto.ExpenseID, dto.TimesheetEntryID, dto.AssetID} {
		if ref != nil {
			n++
		}
	}
	return n
}

func (dto AddItemDTO) Validate() error {
	refs := dto.sourceRefs()
	if refs > 1 {
		return internal.ErrInvalidSource
	}
	if refs == 0 && dto.Description == "" {
		return internal.ErrInvalidSource
	}

	v := validation.NewValidator()
	v.Field("quantity", dto.Quantity).Required().Positive(internal.ErrCodeInvalidAmount).MaxScale(4, internal.ErrCodeInvalidAmount)
	v.Field("rate", dto.Rate).NonNegative(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("description", dto.Description).MaxLen(500, internal.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RecordPaymentDTO struct {
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
}

func (dto RecordPaymentDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("amount", dto.Amount).Required().Positive(internal.ErrCodeInvalidAmount).MaxScale(2, internal.ErrCodeInvalidAmount)
	v.Field("method", dto.Method).MaxLen(50, internal.ErrCodeValidationFailed)
	v.Field("reference", dto.Reference).MaxLen(100, internal.ErrCodeValidationFailed)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
