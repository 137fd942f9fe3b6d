package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/workfin/finance-core/internal"
	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
	workflowDatamodel "github.com/workfin/finance-core/internal/core/datamodel/workflow"
	"github.com/workfin/finance-core/internal/expense"
)

// ExpenseRepository implements the expense.Repository interface using GORM.
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) expense.Repository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, exp *expense.Expense) error {
	row := expense.ToDataModel(exp)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	exp.ID = row.ID
	exp.CreatedAt = row.CreatedAt
	exp.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	var row expenseDatamodel.Expense
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.FromDataModel(&row), nil
}

func (r *ExpenseRepository) ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*expense.Expense, error) {
	var rows []*expenseDatamodel.Expense
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(rows), nil
}

// ListRecurringApproved returns the recurring templates eligible for
// cloning by the scheduled generator.
func (r *ExpenseRepository) ListRecurringApproved(ctx context.Context) ([]*expense.Expense, error) {
	var rows []*expenseDatamodel.Expense
	err := r.db.WithContext(ctx).
		Where("is_recurring = ? AND status = ?", true, expenseDatamodel.StatusApproved).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(rows), nil
}

// LatestApproverChain returns the approver ids of the most recent cycle,
// ordered by step number.
func (r *ExpenseRepository) LatestApproverChain(ctx context.Context, expenseID int64) ([]int64, error) {
	var rows []workflowDatamodel.ExpenseApprovalStep
	err := r.db.WithContext(ctx).
		Where("expense_id = ? AND cycle = (SELECT COALESCE(MAX(cycle), 0) FROM expense_approval_steps WHERE expense_id = ?)", expenseID, expenseID).
		Order("step_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	chain := make([]int64, len(rows))
	for i, row := range rows {
		chain[i] = row.ApproverID
	}
	return chain, nil
}
