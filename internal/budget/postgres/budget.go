package postgres

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/budget"
	budgetDatamodel "github.com/workfin/finance-core/internal/core/datamodel/budget"
	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
	invoiceDatamodel "github.com/workfin/finance-core/internal/core/datamodel/invoice"
)

// BudgetRepository implements the budget.Repository interface using GORM.
type BudgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) budget.Repository {
	return &BudgetRepository{db: db}
}

func (r *BudgetRepository) Create(ctx context.Context, b *budget.Budget) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := budget.ToDataModel(b)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		b.ID = row.ID
		b.CreatedAt = row.CreatedAt
		b.UpdatedAt = row.UpdatedAt

		for _, c := range b.Categories {
			c.BudgetID = row.ID
			catRow := budget.CategoryToDataModel(c)
			if err := tx.Create(catRow).Error; err != nil {
				return err
			}
			c.ID = catRow.ID
		}
		return nil
	})
}

func (r *BudgetRepository) GetByID(ctx context.Context, id int64) (*budget.Budget, error) {
	var row budgetDatamodel.Budget
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrBudgetNotFound
		}
		return nil, err
	}
	return budget.FromDataModel(&row), nil
}

func (r *BudgetRepository) ListCategories(ctx context.Context, budgetID int64) ([]*budget.Category, error) {
	var rows []*budgetDatamodel.Category
	err := r.db.WithContext(ctx).
		Where("budget_id = ?", budgetID).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	categories := make([]*budget.Category, len(rows))
	for i, row := range rows {
		categories[i] = budget.CategoryFromDataModel(row)
	}
	return categories, nil
}

// ApprovedExpenseTotal counts the approved amount where one was granted and
// the requested amount otherwise.
func (r *BudgetRepository) ApprovedExpenseTotal(ctx context.Context, budgetID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Select("SUM(COALESCE(approved_amount, amount))").
		Where("budget_id = ? AND status = ?", budgetID, expenseDatamodel.StatusApproved).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *BudgetRepository) ApprovedExpenseTotalsByCategory(ctx context.Context, budgetID int64) (map[int64]decimal.Decimal, error) {
	type categorySum struct {
		CategoryID int64           `gorm:"column:category_id"`
		Total      decimal.Decimal `gorm:"column:total"`
	}

	var rows []categorySum
	err := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Select("category_id, SUM(COALESCE(approved_amount, amount)) AS total").
		Where("budget_id = ? AND status = ? AND category_id IS NOT NULL", budgetID, expenseDatamodel.StatusApproved).
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.CategoryID] = row.Total
	}
	return totals, nil
}

func (r *BudgetRepository) PaidInvoiceTotal(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&invoiceDatamodel.Invoice{}).
		Select("SUM(total_amount)").
		Where("project_id = ? AND status = ?", projectID, invoiceDatamodel.StatusPaid).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// BilledApprovedExpenseTotal sums the line amounts of paid invoices whose
// source expense is approved under the budget; those amounts are already
// counted on the expense side of the summary.
func (r *BudgetRepository) BilledApprovedExpenseTotal(ctx context.Context, projectID, budgetID int64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Table("invoice_items").
		Select("SUM(invoice_items.amount)").
		Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
		Joins("JOIN expenses ON expenses.id = invoice_items.expense_id").
		Where("invoices.project_id = ? AND invoices.status = ?", projectID, invoiceDatamodel.StatusPaid).
		Where("expenses.budget_id = ? AND expenses.status = ?", budgetID, expenseDatamodel.StatusApproved).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *BudgetRepository) CreateRevision(ctx context.Context, rev *budget.Revision) error {
	row := budget.RevisionToDataModel(rev)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	rev.ID = row.ID
	rev.CreatedAt = row.CreatedAt
	rev.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *BudgetRepository) GetRevision(ctx context.Context, id int64) (*budget.Revision, error) {
	var row budgetDatamodel.Revision
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrRevisionNotFound
		}
		return nil, err
	}
	return budget.RevisionFromDataModel(&row), nil
}

func (r *BudgetRepository) ListRevisions(ctx context.Context, budgetID int64, limit, offset int) ([]*budget.Revision, error) {
	var rows []*budgetDatamodel.Revision
	err := r.db.WithContext(ctx).
		Where("budget_id = ?", budgetID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	revisions := make([]*budget.Revision, len(rows))
	for i, row := range rows {
		revisions[i] = budget.RevisionFromDataModel(row)
	}
	return revisions, nil
}
