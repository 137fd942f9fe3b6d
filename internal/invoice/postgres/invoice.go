package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/workfin/finance-core/internal"
	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
	invoiceDatamodel "github.com/workfin/finance-core/internal/core/datamodel/invoice"
	"github.com/workfin/finance-core/internal/invoice"
)

// InvoiceRepository implements the invoice.Repository interface using GORM.
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) invoice.Repository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	row := invoice.ToDataModel(inv)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	inv.ID = row.ID
	inv.CreatedAt = row.CreatedAt
	inv.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	var row invoiceDatamodel.Invoice
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrInvoiceNotFound
		}
		return nil, err
	}
	return invoice.FromDataModel(&row), nil
}

func (r *InvoiceRepository) ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*invoice.Invoice, error) {
	var rows []*invoiceDatamodel.Invoice
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	invoices := make([]*invoice.Invoice, len(rows))
	for i, row := range rows {
		invoices[i] = invoice.FromDataModel(row)
	}
	return invoices, nil
}

func (r *InvoiceRepository) ListItems(ctx context.Context, invoiceID int64) ([]*invoice.Item, error) {
	var rows []*invoiceDatamodel.Item
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]*invoice.Item, len(rows))
	for i, row := range rows {
		items[i] = invoice.ItemFromDataModel(row)
	}
	return items, nil
}

// SourceAlreadyBilled checks for the same task or expense on any other
// non-cancelled invoice of the project.
func (r *InvoiceRepository) SourceAlreadyBilled(ctx context.Context, projectID int64, taskID, expenseID *int64, excludeInvoiceID int64) (bool, error) {
	if taskID == nil && expenseID == nil {
		return false, nil
	}

	query := r.db.WithContext(ctx).
		Table("invoice_items").
		Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
		Where("invoices.project_id = ? AND invoices.status <> ?", projectID, invoiceDatamodel.StatusCancelled).
		Where("invoice_items.invoice_id <> ?", excludeInvoiceID)

	if taskID != nil {
		query = query.Where("invoice_items.task_id = ?", *taskID)
	}
	if expenseID != nil {
		query = query.Where("invoice_items.expense_id = ?", *expenseID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddItem inserts the line item and, for expense-sourced lines, stamps the
// expense with the invoice id in the same transaction.
func (r *InvoiceRepository) AddItem(ctx context.Context, item *invoice.Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := invoice.ItemToDataModel(item)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		item.ID = row.ID

		if item.ExpenseID != nil {
			err := tx.Model(&expenseDatamodel.Expense{}).
				Where("id = ?", *item.ExpenseID).
				Update("invoice_id", item.InvoiceID).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InvoiceRepository) UpdateTotals(ctx context.Context, inv *invoice.Invoice) error {
	return r.db.WithContext(ctx).
		Model(&invoiceDatamodel.Invoice{}).
		Where("id = ?", inv.ID).
		Updates(map[string]interface{}{
			"subtotal":     inv.Subtotal,
			"tax_amount":   inv.TaxAmount,
			"total_amount": inv.TotalAmount,
			"updated_at":   inv.UpdatedAt,
		}).Error
}

func (r *InvoiceRepository) RecordPayment(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &invoiceDatamodel.Payment{
			InvoiceID:  p.InvoiceID,
			Amount:     p.Amount,
			Method:     p.Method,
			Reference:  p.Reference,
			ReceivedAt: p.ReceivedAt,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		p.ID = row.ID
		p.CreatedAt = row.CreatedAt

		return tx.Model(&invoiceDatamodel.Invoice{}).
			Where("id = ?", inv.ID).
			Updates(map[string]interface{}{
				"paid_amount": inv.PaidAmount,
				"status":      inv.Status,
				"updated_at":  inv.UpdatedAt,
			}).Error
	})
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, invoiceID int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&invoiceDatamodel.Invoice{}).
		Where("id = ?", invoiceID).
		Update("status", status).Error
}

// Cancel voids the invoice and releases expense links so those expenses
// can be billed on a fresh invoice.
func (r *InvoiceRepository) Cancel(ctx context.Context, invoiceID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&invoiceDatamodel.Invoice{}).
			Where("id = ?", invoiceID).
			Update("status", invoiceDatamodel.StatusCancelled).Error
		if err != nil {
			return err
		}

		return tx.Model(&expenseDatamodel.Expense{}).
			Where("invoice_id = ?", invoiceID).
			Update("invoice_id", nil).Error
	})
}

func (r *InvoiceRepository) Approve(ctx context.Context, invoiceID, approverID int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&invoiceDatamodel.Invoice{}).
		Where("id = ? AND approved_at IS NULL", invoiceID).
		Updates(map[string]interface{}{
			"approved_at": at,
			"approved_by": approverID,
		}).Error
}
