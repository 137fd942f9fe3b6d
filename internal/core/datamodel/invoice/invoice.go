package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Stored invoice statuses. "overdue" is derived at read time from the due
// date and is never written to the status column.
const (
	StatusDraft       = "draft"
	StatusSent        = "sent"
	StatusViewed      = "viewed"
	StatusPaid        = "paid"
	StatusPartialPaid = "PartialPaid"
	StatusOverdue     = "overdue"
	StatusCancelled   = "cancelled"
)

// TaxLine is one named rate in an invoice's tax collection. Rate is a
// percentage (5 means 5%).
type TaxLine struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// TaxLines is the ordered jsonb collection replacing the old single
// rate+discount pair.
type TaxLines []TaxLine

func (t TaxLines) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *TaxLines) Scan(value interface{}) error {
	if value == nil {
		*t = TaxLines{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return errors.New("unsupported type for TaxLines")
	}
}

type Invoice struct {
	ID            int64           `gorm:"primaryKey"`
	WorkspaceID   int64           `gorm:"column:workspace_id;not null;index"`
	ProjectID     int64           `gorm:"column:project_id;not null;index"`
	InvoiceNumber string          `gorm:"column:invoice_number;not null;uniqueIndex"`
	Status        string          `gorm:"column:status;not null;default:draft"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(18,2);not null"`
	Taxes         TaxLines        `gorm:"column:taxes;type:jsonb"`
	TaxAmount     decimal.Decimal `gorm:"column:tax_amount;type:numeric(18,2);not null"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(18,2);not null"`
	PaidAmount    decimal.Decimal `gorm:"column:paid_amount;type:numeric(18,2);not null;default:0"`
	DueDate       *time.Time      `gorm:"column:due_date;type:date"`
	ApprovedAt    *time.Time      `gorm:"column:approved_at"`
	ApprovedBy    *int64          `gorm:"column:approved_by"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// Item is one billable row, sourced from exactly one of a task, an
// expense, a timesheet entry, an asset, or free text.
type Item struct {
	ID               int64           `gorm:"primaryKey"`
	InvoiceID        int64           `gorm:"column:invoice_id;not null;index"`
	TaskID           *int64          `gorm:"column:task_id"`
	ExpenseID        *int64          `gorm:"column:expense_id;index"`
	TimesheetEntryID *int64          `gorm:"column:timesheet_entry_id"`
	AssetID          *int64          `gorm:"column:asset_id"`
	Description      string          `gorm:"column:description"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:numeric(12,4);not null"`
	Rate             decimal.Decimal `gorm:"column:rate;type:numeric(18,2);not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	TaxID            *int64          `gorm:"column:tax_id"`
	SortOrder        int             `gorm:"column:sort_order;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string {
	return "invoice_items"
}

// Payment is the audit trail behind invoices.paid_amount.
type Payment struct {
	ID         int64           `gorm:"primaryKey"`
	InvoiceID  int64           `gorm:"column:invoice_id;not null;index"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Method     string          `gorm:"column:method"`
	Reference  string          `gorm:"column:reference"`
	ReceivedAt time.Time       `gorm:"column:received_at"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Payment) TableName() string {
	return "invoice_payments"
}

// Tax is a reusable named rate that items may reference by id.
type Tax struct {
	ID        int64           `gorm:"primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(7,4);not null"`
	IsActive  bool            `gorm:"column:is_active;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Tax) TableName() string {
	return "taxes"
}
