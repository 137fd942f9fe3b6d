package budget

import (
	"time"

	"github.com/shopspring/decimal"

	budgetDatamodel "github.com/workfin/finance-core/internal/core/datamodel/budget"
)

type Budget struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	Name        string          `json:"name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PeriodType  string          `json:"period_type"`
	Status      string          `json:"status"`
	StartsOn    time.Time       `json:"starts_on"`
	EndsOn      *time.Time      `json:"ends_on,omitempty"`
	Categories  []*Category     `json:"categories,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Category struct {
	ID              int64           `json:"id"`
	BudgetID        int64           `json:"budget_id"`
	Name            string          `json:"name"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	SortOrder       int             `json:"sort_order"`
	Color           string          `json:"color,omitempty"`
}

const (
	PeriodProject   = budgetDatamodel.PeriodProject
	PeriodMonthly   = budgetDatamodel.PeriodMonthly
	PeriodQuarterly = budgetDatamodel.PeriodQuarterly

	StatusActive    = budgetDatamodel.StatusActive
	StatusCompleted = budgetDatamodel.StatusCompleted
	StatusCancelled = budgetDatamodel.StatusCancelled

	RevisionStatusPending  = budgetDatamodel.RevisionStatusPending
	RevisionStatusApproved = budgetDatamodel.RevisionStatusApproved
	RevisionStatusRejected = budgetDatamodel.RevisionStatusRejected
)

// Revision proposes a new total amount; it goes through its own approval
// chain and, once approved, the new amount becomes the budget total.
type Revision struct {
	ID             int64           `json:"id"`
	BudgetID       int64           `json:"budget_id"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	NewAmount      decimal.Decimal `json:"new_amount"`
	Reason         string          `json:"reason"`
	Status         string          `json:"status"`
	RequestedBy    int64           `json:"requested_by"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summary is the aggregated spend position of a budget. TotalSpent counts
// approved expenses plus paid invoices, with expense-sourced invoice lines
// excluded so billed expenses are not counted twice.
type Summary struct {
	BudgetID        int64           `json:"budget_id"`
	ProjectID       int64           `json:"project_id"`
	TotalBudget     decimal.Decimal `json:"total_budget"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	UtilizationPct  decimal.Decimal `json:"utilization_pct"`
}

// CategoryUsage is one row of the per-category breakdown.
type CategoryUsage struct {
	CategoryID int64           `json:"category_id"`
	Name       string          `json:"name"`
	Allocated  decimal.Decimal `json:"allocated"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
}

func NewBudget(dto CreateBudgetDTO) *Budget {
	now := time.Now()

	periodType := dto.PeriodType
	if periodType == "" {
		periodType = PeriodProject
	}

	b := &Budget{
		ProjectID:   dto.ProjectID,
		Name:        dto.Name,
		TotalAmount: dto.TotalAmount,
		PeriodType:  periodType,
		Status:      StatusActive,
		StartsOn:    dto.StartsOn,
		EndsOn:      dto.EndsOn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for i, c := range dto.Categories {
		b.Categories = append(b.Categories, &Category{
			Name:            c.Name,
			AllocatedAmount: c.AllocatedAmount,
			SortOrder:       i,
			Color:           c.Color,
		})
	}

	return b
}

func ToDataModel(b *Budget) *budgetDatamodel.Budget {
	return &budgetDatamodel.Budget{
		ID:          b.ID,
		ProjectID:   b.ProjectID,
		Name:        b.Name,
		TotalAmount: b.TotalAmount,
		PeriodType:  b.PeriodType,
		Status:      b.Status,
		StartsOn:    b.StartsOn,
		EndsOn:      b.EndsOn,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func FromDataModel(b *budgetDatamodel.Budget) *Budget {
	return &Budget{
		ID:          b.ID,
		ProjectID:   b.ProjectID,
		Name:        b.Name,
		TotalAmount: b.TotalAmount,
		PeriodType:  b.PeriodType,
		Status:      b.Status,
		StartsOn:    b.StartsOn,
		EndsOn:      b.EndsOn,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func CategoryToDataModel(c *Category) *budgetDatamodel.Category {
	return &budgetDatamodel.Category{
		ID:              c.ID,
		BudgetID:        c.BudgetID,
		Name:            c.Name,
		AllocatedAmount: c.AllocatedAmount,
		SortOrder:       c.SortOrder,
		Color:           c.Color,
	}
}

func CategoryFromDataModel(c *budgetDatamodel.Category) *Category {
	return &Category{
		ID:              c.ID,
		BudgetID:        c.BudgetID,
		Name:            c.Name,
		AllocatedAmount: c.AllocatedAmount,
		SortOrder:       c.SortOrder,
		Color:           c.Color,
	}
}

func RevisionToDataModel(r *Revision) *budgetDatamodel.Revision {
	return &budgetDatamodel.Revision{
		ID:             r.ID,
		BudgetID:       r.BudgetID,
		PreviousAmount: r.PreviousAmount,
		NewAmount:      r.NewAmount,
		Reason:         r.Reason,
		Status:         r.Status,
		RequestedBy:    r.RequestedBy,
		ProcessedAt:    r.ProcessedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func RevisionFromDataModel(r *budgetDatamodel.Revision) *Revision {
	return &Revision{
		ID:             r.ID,
		BudgetID:       r.BudgetID,
		PreviousAmount: r.PreviousAmount,
		NewAmount:      r.NewAmount,
		Reason:         r.Reason,
		Status:         r.Status,
		RequestedBy:    r.RequestedBy,
		ProcessedAt:    r.ProcessedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
