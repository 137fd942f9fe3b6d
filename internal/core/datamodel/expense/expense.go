package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending      = "pending"
	StatusApproved     = "approved"
	StatusRejected     = "rejected"
	StatusRequiresInfo = "requires_info"
)

// Expense is a single spend request. ApprovedAmount stays nil until the
// approval chain reaches its terminal approved state; InvoiceID carries a
// unique constraint so an invoice is linked from at most one expense.
type Expense struct {
	ID             int64            `gorm:"primaryKey"`
	ProjectID      int64            `gorm:"column:project_id;not null;index"`
	BudgetID       *int64           `gorm:"column:budget_id;index"`
	CategoryID     *int64           `gorm:"column:category_id;index"`
	TaskID         *int64           `gorm:"column:task_id"`
	Amount         decimal.Decimal  `gorm:"column:amount;type:numeric(18,2);not null"`
	ApprovedAmount *decimal.Decimal `gorm:"column:approved_amount;type:numeric(18,2)"`
	Status         string           `gorm:"column:status;not null;default:pending"`
	Description    string           `gorm:"column:description;not null"`
	IsRecurring    bool             `gorm:"column:is_recurring;default:false"`
	InvoiceID      *int64           `gorm:"column:invoice_id;uniqueIndex"`
	SubmittedBy    int64            `gorm:"column:submitted_by;not null"`
	ExpenseDate    time.Time        `gorm:"column:expense_date;type:date"`
	ProcessedAt    *time.Time       `gorm:"column:processed_at"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Expense) TableName() string {
	return "expenses"
}
