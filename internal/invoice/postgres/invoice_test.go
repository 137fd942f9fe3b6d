package postgres

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	expenseDatamodel "github.com/workfin/finance-core/internal/core/datamodel/expense"
	invoiceDatamodel "github.com/workfin/finance-core/internal/core/datamodel/invoice"
	"github.com/workfin/finance-core/internal/invoice"
)

func TestInvoiceRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "InvoiceRepository Suite")
}

var _ = Describe("InvoiceRepository", func() {
	var (
		db   *gorm.DB
		repo invoice.Repository
		ctx  context.Context
	)

	ptr := func(v int64) *int64 { return &v }

	newInvoice := func(projectID int64, status string) *invoice.Invoice {
		inv := &invoice.Invoice{
			WorkspaceID:   1,
			ProjectID:     projectID,
			InvoiceNumber: "INV-202608-" + time.Now().Format("150405.000000"),
			Status:        status,
			Subtotal:      decimal.Zero,
			TaxAmount:     decimal.Zero,
			TotalAmount:   decimal.Zero,
			PaidAmount:    decimal.Zero,
		}
		Expect(repo.Create(ctx, inv)).NotTo(HaveOccurred())
		return inv
	}

	newExpense := func(amount string) *expenseDatamodel.Expense {
		exp := &expenseDatamodel.Expense{
			ProjectID:   1,
			Amount:      decimal.RequireFromString(amount),
			Status:      expenseDatamodel.StatusApproved,
			Description: "billable expense",
			SubmittedBy: 5,
			ExpenseDate: time.Now().AddDate(0, 0, -1),
		}
		Expect(db.Create(exp).Error).NotTo(HaveOccurred())
		return exp
	}

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(
			&expenseDatamodel.Expense{},
			&invoiceDatamodel.Invoice{},
			&invoiceDatamodel.Item{},
			&invoiceDatamodel.Payment{},
		)
		Expect(err).NotTo(HaveOccurred())

		repo = NewInvoiceRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).NotTo(HaveOccurred())
	})

	Describe("taxes round trip", func() {
		It("persists the ordered tax collection as json", func() {
			inv := &invoice.Invoice{
				WorkspaceID:   1,
				ProjectID:     1,
				InvoiceNumber: "INV-202608-TAXES01",
				Status:        invoice.StatusDraft,
				Subtotal:      decimal.Zero,
				Taxes: []invoice.TaxLine{
					{Name: "VAT", Rate: decimal.RequireFromString("11")},
					{Name: "Service", Rate: decimal.RequireFromString("5")},
				},
				TaxAmount:   decimal.Zero,
				TotalAmount: decimal.Zero,
				PaidAmount:  decimal.Zero,
			}
			Expect(repo.Create(ctx, inv)).NotTo(HaveOccurred())

			reloaded, err := repo.GetByID(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Taxes).To(HaveLen(2))
			Expect(reloaded.Taxes[0].Name).To(Equal("VAT"))
			Expect(reloaded.Taxes[1].Rate.Equal(decimal.RequireFromString("5"))).To(BeTrue())
		})
	})

	Describe("AddItem", func() {
		It("links an expense-sourced line to the invoice", func() {
			inv := newInvoice(1, invoice.StatusDraft)
			exp := newExpense("75.00")

			item := &invoice.Item{
				InvoiceID: inv.ID,
				ExpenseID: &exp.ID,
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("75.00"),
				Amount:    decimal.RequireFromString("75.00"),
			}
			Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())
			Expect(item.ID).NotTo(BeZero())

			var reloaded expenseDatamodel.Expense
			Expect(db.First(&reloaded, exp.ID).Error).NotTo(HaveOccurred())
			Expect(reloaded.InvoiceID).NotTo(BeNil())
			Expect(*reloaded.InvoiceID).To(Equal(inv.ID))
		})

		It("orders items by sort order", func() {
			inv := newInvoice(1, invoice.StatusDraft)

			for i, desc := range []string{"first", "second", "third"} {
				item := &invoice.Item{
					InvoiceID:   inv.ID,
					Description: desc,
					Quantity:    decimal.NewFromInt(1),
					Rate:        decimal.RequireFromString("10.00"),
					Amount:      decimal.RequireFromString("10.00"),
					SortOrder:   i,
				}
				Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())
			}

			items, err := repo.ListItems(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(3))
			Expect(items[0].Description).To(Equal("first"))
			Expect(items[2].Description).To(Equal("third"))
		})
	})

	Describe("SourceAlreadyBilled", func() {
		It("finds a task billed on another live invoice of the project", func() {
			other := newInvoice(1, invoice.StatusSent)
			item := &invoice.Item{
				InvoiceID: other.ID,
				TaskID:    ptr(42),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("20.00"),
				Amount:    decimal.RequireFromString("20.00"),
			}
			Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())

			current := newInvoice(1, invoice.StatusDraft)
			billed, err := repo.SourceAlreadyBilled(ctx, 1, ptr(42), nil, current.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(billed).To(BeTrue())
		})

		It("ignores cancelled invoices", func() {
			cancelled := newInvoice(1, invoice.StatusCancelled)
			item := &invoice.Item{
				InvoiceID: cancelled.ID,
				TaskID:    ptr(42),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("20.00"),
				Amount:    decimal.RequireFromString("20.00"),
			}
			Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())

			current := newInvoice(1, invoice.StatusDraft)
			billed, err := repo.SourceAlreadyBilled(ctx, 1, ptr(42), nil, current.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(billed).To(BeFalse())
		})

		It("ignores other projects", func() {
			other := newInvoice(2, invoice.StatusSent)
			item := &invoice.Item{
				InvoiceID: other.ID,
				TaskID:    ptr(42),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("20.00"),
				Amount:    decimal.RequireFromString("20.00"),
			}
			Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())

			current := newInvoice(1, invoice.StatusDraft)
			billed, err := repo.SourceAlreadyBilled(ctx, 1, ptr(42), nil, current.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(billed).To(BeFalse())
		})
	})

	Describe("RecordPayment", func() {
		It("appends the payment row and moves paid amount and status together", func() {
			inv := newInvoice(1, invoice.StatusSent)
			inv.PaidAmount = decimal.RequireFromString("40.00")
			inv.Status = invoice.StatusPartialPaid
			inv.UpdatedAt = time.Now()

			p := &invoice.Payment{
				InvoiceID:  inv.ID,
				Amount:     decimal.RequireFromString("40.00"),
				Method:     "bank_transfer",
				Reference:  "TRX-1",
				ReceivedAt: time.Now(),
			}
			Expect(repo.RecordPayment(ctx, inv, p)).NotTo(HaveOccurred())
			Expect(p.ID).NotTo(BeZero())

			reloaded, err := repo.GetByID(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(invoice.StatusPartialPaid))
			Expect(reloaded.PaidAmount.Equal(decimal.RequireFromString("40.00"))).To(BeTrue())

			var count int64
			Expect(db.Model(&invoiceDatamodel.Payment{}).Where("invoice_id = ?", inv.ID).Count(&count).Error).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("Cancel", func() {
		It("voids the invoice and releases its expense links", func() {
			inv := newInvoice(1, invoice.StatusSent)
			exp := newExpense("75.00")

			item := &invoice.Item{
				InvoiceID: inv.ID,
				ExpenseID: &exp.ID,
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("75.00"),
				Amount:    decimal.RequireFromString("75.00"),
			}
			Expect(repo.AddItem(ctx, item)).NotTo(HaveOccurred())

			Expect(repo.Cancel(ctx, inv.ID)).NotTo(HaveOccurred())

			reloaded, err := repo.GetByID(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(invoice.StatusCancelled))

			var freed expenseDatamodel.Expense
			Expect(db.First(&freed, exp.ID).Error).NotTo(HaveOccurred())
			Expect(freed.InvoiceID).To(BeNil())
		})
	})

	Describe("Approve", func() {
		It("stamps once and ignores later attempts", func() {
			inv := newInvoice(1, invoice.StatusDraft)

			first := time.Now().Add(-time.Hour)
			Expect(repo.Approve(ctx, inv.ID, 10, first)).NotTo(HaveOccurred())
			Expect(repo.Approve(ctx, inv.ID, 99, time.Now())).NotTo(HaveOccurred())

			reloaded, err := repo.GetByID(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.ApprovedBy).NotTo(BeNil())
			Expect(*reloaded.ApprovedBy).To(Equal(int64(10)))
		})
	})

	Describe("GetByID", func() {
		It("returns a typed not found error", func() {
			_, err := repo.GetByID(ctx, 12345)
			Expect(err).To(HaveOccurred())
		})
	})
})
