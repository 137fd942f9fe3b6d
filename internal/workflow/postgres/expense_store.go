package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workfin/finance-core/internal"
	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
	workflowDatamodel "github.com/workfin/finance-core/internal/core/datamodel/workflow"
	"github.com/workfin/finance-core/internal/workflow"
)

// ExpenseChainStore persists expense approval chains and, inside the same
// transaction, the expense row the chain decides about.
type ExpenseChainStore struct {
	db *gorm.DB
}

func NewExpenseChainStore(db *gorm.DB) *ExpenseChainStore {
	return &ExpenseChainStore{db: db}
}

func (s *ExpenseChainStore) InTx(ctx context.Context, fn func(tx workflow.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&ExpenseChainStore{db: txdb})
	})
}

// StepsForUpdate reads the latest cycle's steps in step order. On postgres
// the rows are locked FOR UPDATE; sqlite (tests) has no row locks and
// serializes writers itself.
func (s *ExpenseChainStore) StepsForUpdate(ctx context.Context, expenseID int64) ([]workflow.Step, error) {
	q := s.db.WithContext(ctx)
	if s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []workflowDatamodel.ExpenseApprovalStep
	err := q.
		Where("expense_id = ? AND cycle = (SELECT COALESCE(MAX(cycle), 0) FROM expense_approval_steps WHERE expense_id = ?)", expenseID, expenseID).
		Order("step_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	steps := make([]workflow.Step, len(rows))
	for i, row := range rows {
		steps[i] = expenseStepToDomain(&row)
	}
	return steps, nil
}

func (s *ExpenseChainStore) LatestCycle(ctx context.Context, expenseID int64) (int, error) {
	var cycle int
	err := s.db.WithContext(ctx).
		Model(&workflowDatamodel.ExpenseApprovalStep{}).
		Where("expense_id = ?", expenseID).
		Select("COALESCE(MAX(cycle), 0)").
		Scan(&cycle).Error
	return cycle, err
}

func (s *ExpenseChainStore) InsertSteps(ctx context.Context, expenseID int64, cycle int, steps []workflow.Step) ([]workflow.Step, error) {
	rows := make([]workflowDatamodel.ExpenseApprovalStep, len(steps))
	for i, step := range steps {
		rows[i] = workflowDatamodel.ExpenseApprovalStep{
			ExpenseID:  expenseID,
			Cycle:      cycle,
			StepNumber: step.StepNumber,
			ApproverID: step.ApproverID,
			Status:     step.Status,
			Notes:      step.Notes,
		}
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}

	created := make([]workflow.Step, len(rows))
	for i, row := range rows {
		created[i] = expenseStepToDomain(&row)
	}
	return created, nil
}

func (s *ExpenseChainStore) SaveStep(ctx context.Context, step *workflow.Step) error {
	return s.db.WithContext(ctx).
		Model(&workflowDatamodel.ExpenseApprovalStep{}).
		Where("id = ?", step.ID).
		Updates(map[string]interface{}{
			"status":       step.Status,
			"notes":        step.Notes,
			"processed_at": step.ProcessedAt,
			"updated_at":   time.Now(),
		}).Error
}

// MarkSubject writes the chain's outcome onto the expense row. For the
// approved outcome, approvedAmount overrides the requested amount only
// when it is an explicitly supplied lesser amount.
func (s *ExpenseChainStore) MarkSubject(ctx context.Context, expenseID int64, outcome workflow.Outcome, approvedAmount *decimal.Decimal, decidedBy int64) error {
	var exp expenseDatamodel.Expense
	if err := s.db.WithContext(ctx).Where("id = ?", expenseID).First(&exp).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return internal.ErrExpenseNotFound
		}
		return err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"updated_at": now,
	}

	switch outcome {
	case workflow.OutcomeApproved:
		amount := exp.Amount
		if approvedAmount != nil {
			if approvedAmount.GreaterThan(exp.Amount) {
				return internal.NewValidationError("approved amount cannot exceed the requested amount", internal.ErrCodeInvalidAmount)
			}
			if approvedAmount.IsNegative() {
				return internal.NewValidationError("approved amount cannot be negative", internal.ErrCodeInvalidAmount)
			}
			amount = *approvedAmount
		}
		updates["status"] = expenseDatamodel.StatusApproved
		updates["approved_amount"] = amount
		updates["processed_at"] = now

	case workflow.OutcomeRejected:
		updates["status"] = expenseDatamodel.StatusRejected
		updates["processed_at"] = now

	case workflow.OutcomeRequiresInfo:
		updates["status"] = expenseDatamodel.StatusRequiresInfo
		updates["processed_at"] = now

	case workflow.OutcomePending:
		updates["status"] = expenseDatamodel.StatusPending
		updates["approved_amount"] = nil
		updates["processed_at"] = nil
	}

	return s.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Where("id = ?", expenseID).
		Updates(updates).Error
}

func expenseStepToDomain(row *workflowDatamodel.ExpenseApprovalStep) workflow.Step {
	return workflow.Step{
		ID:          row.ID,
		SubjectID:   row.ExpenseID,
		Cycle:       row.Cycle,
		StepNumber:  row.StepNumber,
		ApproverID:  row.ApproverID,
		Status:      row.Status,
		Notes:       row.Notes,
		ProcessedAt: row.ProcessedAt,
	}
}
