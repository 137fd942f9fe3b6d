package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PeriodProject   = "project"
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"

	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Budget struct {
	ID          int64           `gorm:"primaryKey"`
	ProjectID   int64           `gorm:"column:project_id;not null;index"`
	Name        string          `gorm:"column:name;not null"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(18,2);not null"`
	PeriodType  string          `gorm:"column:period_type;not null;default:project"`
	Status      string          `gorm:"column:status;not null;default:active"`
	StartsOn    time.Time       `gorm:"column:starts_on;type:date"`
	EndsOn      *time.Time      `gorm:"column:ends_on;type:date"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Budget) TableName() string {
	return "budgets"
}

// Category sub-allocations are advisory; their sum is not constrained to
// equal the budget total.
type Category struct {
	ID              int64           `gorm:"primaryKey"`
	BudgetID        int64           `gorm:"column:budget_id;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	AllocatedAmount decimal.Decimal `gorm:"column:allocated_amount;type:numeric(18,2);not null"`
	SortOrder       int             `gorm:"column:sort_order;default:0"`
	Color           string          `gorm:"column:color"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Category) TableName() string {
	return "budget_categories"
}

const (
	RevisionStatusPending  = "pending"
	RevisionStatusApproved = "approved"
	RevisionStatusRejected = "rejected"
)

// Revision proposes a new total amount for a budget. Its approval chain
// lives in budget_revision_approval_steps, separate from expense steps.
type Revision struct {
	ID             int64           `gorm:"primaryKey"`
	BudgetID       int64           `gorm:"column:budget_id;not null;index"`
	PreviousAmount decimal.Decimal `gorm:"column:previous_amount;type:numeric(18,2);not null"`
	NewAmount      decimal.Decimal `gorm:"column:new_amount;type:numeric(18,2);not null"`
	Reason         string          `gorm:"column:reason"`
	Status         string          `gorm:"column:status;not null;default:pending"`
	RequestedBy    int64           `gorm:"column:requested_by;not null"`
	ProcessedAt    *time.Time      `gorm:"column:processed_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Revision) TableName() string {
	return "budget_revisions"
}
