package workflow

import "time"

// Step statuses. "waiting" marks steps behind the current one; "pending"
// marks the single actionable step of a cycle.
const (
	StepStatusPending   = "pending"
	StepStatusApproved  = "approved"
	StepStatusRejected  = "rejected"
	StepStatusWaiting   = "waiting"
	StepStatusCancelled = "cancelled"
)

// ExpenseApprovalStep is one approver's decision point in an expense's
// chain. (expense_id, cycle, step_number) is unique; cycles increment on
// resubmission after a requires_info decision.
type ExpenseApprovalStep struct {
	ID          int64      `gorm:"primaryKey"`
	ExpenseID   int64      `gorm:"column:expense_id;not null;index;uniqueIndex:ux_expense_cycle_step,priority:1"`
	Cycle       int        `gorm:"column:cycle;not null;default:1;uniqueIndex:ux_expense_cycle_step,priority:2"`
	StepNumber  int        `gorm:"column:step_number;not null;uniqueIndex:ux_expense_cycle_step,priority:3"`
	ApproverID  int64      `gorm:"column:approver_id;not null"`
	Status      string     `gorm:"column:status;not null;default:waiting"`
	Notes       string     `gorm:"column:notes"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ExpenseApprovalStep) TableName() string {
	return "expense_approval_steps"
}

// RevisionApprovalStep mirrors ExpenseApprovalStep for budget revisions,
// kept as a separate table on purpose.
type RevisionApprovalStep struct {
	ID          int64      `gorm:"primaryKey"`
	RevisionID  int64      `gorm:"column:revision_id;not null;index;uniqueIndex:ux_revision_cycle_step,priority:1"`
	Cycle       int        `gorm:"column:cycle;not null;default:1;uniqueIndex:ux_revision_cycle_step,priority:2"`
	StepNumber  int        `gorm:"column:step_number;not null;uniqueIndex:ux_revision_cycle_step,priority:3"`
	ApproverID  int64      `gorm:"column:approver_id;not null"`
	Status      string     `gorm:"column:status;not null;default:waiting"`
	Notes       string     `gorm:"column:notes"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (RevisionApprovalStep) TableName() string {
	return "budget_revision_approval_steps"
}
