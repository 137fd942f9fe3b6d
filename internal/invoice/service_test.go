package invoice_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
	"github.com/workfin/finance-core/internal/invoice"
)

func TestInvoiceService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "InvoiceService Suite")
}

type mockRepository struct {
	invoices map[int64]*invoice.Invoice
	items    map[int64][]*invoice.Item
	payments []*invoice.Payment
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		invoices: make(map[int64]*invoice.Invoice),
		items:    make(map[int64][]*invoice.Item),
		nextID:   1,
	}
}

func (m *mockRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	inv.ID = m.nextID
	m.nextID++
	m.invoices[inv.ID] = inv
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, internal.ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *mockRepository) ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range m.invoices {
		if inv.ProjectID == projectID {
			copied := *inv
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRepository) ListItems(ctx context.Context, invoiceID int64) ([]*invoice.Item, error) {
	return m.items[invoiceID], nil
}

func (m *mockRepository) SourceAlreadyBilled(ctx context.Context, projectID int64, taskID, expenseID *int64, excludeInvoiceID int64) (bool, error) {
	for invID, items := range m.items {
		if invID == excludeInvoiceID {
			continue
		}
		inv := m.invoices[invID]
		if inv == nil || inv.ProjectID != projectID || inv.Status == invoice.StatusCancelled {
			continue
		}
		for _, item := range items {
			if taskID != nil && item.TaskID != nil && *item.TaskID == *taskID {
				return true, nil
			}
			if expenseID != nil && item.ExpenseID != nil && *item.ExpenseID == *expenseID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockRepository) AddItem(ctx context.Context, item *invoice.Item) error {
	item.ID = m.nextID
	m.nextID++
	m.items[item.InvoiceID] = append(m.items[item.InvoiceID], item)
	return nil
}

func (m *mockRepository) UpdateTotals(ctx context.Context, inv *invoice.Invoice) error {
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return internal.ErrInvoiceNotFound
	}
	stored.Subtotal = inv.Subtotal
	stored.TaxAmount = inv.TaxAmount
	stored.TotalAmount = inv.TotalAmount
	stored.UpdatedAt = inv.UpdatedAt
	return nil
}

func (m *mockRepository) RecordPayment(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment) error {
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return internal.ErrInvoiceNotFound
	}
	p.ID = m.nextID
	m.nextID++
	m.payments = append(m.payments, p)
	stored.PaidAmount = inv.PaidAmount
	stored.Status = inv.Status
	return nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, invoiceID int64, status string) error {
	stored, ok := m.invoices[invoiceID]
	if !ok {
		return internal.ErrInvoiceNotFound
	}
	stored.Status = status
	return nil
}

func (m *mockRepository) Cancel(ctx context.Context, invoiceID int64) error {
	return m.UpdateStatus(ctx, invoiceID, invoice.StatusCancelled)
}

func (m *mockRepository) Approve(ctx context.Context, invoiceID, approverID int64, at time.Time) error {
	stored, ok := m.invoices[invoiceID]
	if !ok {
		return internal.ErrInvoiceNotFound
	}
	if stored.ApprovedAt == nil {
		stored.ApprovedAt = &at
		stored.ApprovedBy = &approverID
	}
	return nil
}

var _ = Describe("Service", func() {
	var (
		repo    *mockRepository
		bus     *events.EventBus
		service *invoice.Service
		ctx     context.Context
	)

	ptr := func(v int64) *int64 { return &v }

	newDraft := func(taxes ...invoice.TaxLine) *invoice.Invoice {
		inv, err := service.CreateInvoice(ctx, invoice.CreateInvoiceDTO{
			WorkspaceID: 1,
			ProjectID:   1,
			Taxes:       taxes,
		})
		Expect(err).NotTo(HaveOccurred())
		return inv
	}

	addLine := func(invoiceID int64, desc, qty, rate string) *invoice.Invoice {
		inv, err := service.AddLineItem(ctx, invoiceID, invoice.AddItemDTO{
			Description: desc,
			Quantity:    decimal.RequireFromString(qty),
			Rate:        decimal.RequireFromString(rate),
		})
		Expect(err).NotTo(HaveOccurred())
		return inv
	}

	BeforeEach(func() {
		repo = newMockRepository()
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(logger)
		service = invoice.NewService(repo, bus, logger)
		ctx = context.Background()
	})

	Describe("CreateInvoice", func() {
		It("opens a draft with zero totals and a month-scoped number", func() {
			inv := newDraft(invoice.TaxLine{Name: "VAT", Rate: decimal.RequireFromString("11")})
			Expect(inv.Status).To(Equal(invoice.StatusDraft))
			Expect(inv.TotalAmount.IsZero()).To(BeTrue())
			Expect(inv.InvoiceNumber).To(MatchRegexp(`^INV-\d{6}-[0-9A-F]{8}$`))
			Expect(inv.Taxes).To(HaveLen(1))
		})
	})

	Describe("AddLineItem", func() {
		It("computes the line amount and applies each tax to the subtotal independently", func() {
			inv := newDraft(
				invoice.TaxLine{Name: "VAT", Rate: decimal.RequireFromString("5")},
				invoice.TaxLine{Name: "Service", Rate: decimal.RequireFromString("2")},
			)

			updated := addLine(inv.ID, "consulting", "2", "50.00")
			Expect(updated.Subtotal.Equal(decimal.RequireFromString("100.00"))).To(BeTrue())
			Expect(updated.TaxAmount.Equal(decimal.RequireFromString("7.00"))).To(BeTrue())
			Expect(updated.TotalAmount.Equal(decimal.RequireFromString("107.00"))).To(BeTrue())
		})

		It("supports fractional quantities up to four decimal places", func() {
			inv := newDraft()

			updated := addLine(inv.ID, "hours", "1.7500", "120.00")
			Expect(updated.Subtotal.Equal(decimal.RequireFromString("210.00"))).To(BeTrue())
		})

		It("rounds each tax line before summing", func() {
			inv := newDraft(
				invoice.TaxLine{Name: "A", Rate: decimal.RequireFromString("3.33")},
				invoice.TaxLine{Name: "B", Rate: decimal.RequireFromString("3.33")},
			)

			updated := addLine(inv.ID, "work", "1", "10.00")
			// 10.00 * 3.33% = 0.333 -> 0.33 per line, not 0.67 on the sum
			Expect(updated.TaxAmount.Equal(decimal.RequireFromString("0.66"))).To(BeTrue())
		})

		It("rejects a line with more than one source reference", func() {
			inv := newDraft()

			_, err := service.AddLineItem(ctx, inv.ID, invoice.AddItemDTO{
				TaskID:    ptr(1),
				ExpenseID: ptr(2),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("10.00"),
			})
			Expect(err).To(MatchError(internal.ErrInvalidSource))
		})

		It("rejects a line with no source and no description", func() {
			inv := newDraft()

			_, err := service.AddLineItem(ctx, inv.ID, invoice.AddItemDTO{
				Quantity: decimal.NewFromInt(1),
				Rate:     decimal.RequireFromString("10.00"),
			})
			Expect(err).To(MatchError(internal.ErrInvalidSource))
		})

		It("rejects a source already billed on a live invoice of the project", func() {
			first := newDraft()
			_, err := service.AddLineItem(ctx, first.ID, invoice.AddItemDTO{
				ExpenseID: ptr(7),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("40.00"),
			})
			Expect(err).NotTo(HaveOccurred())

			second := newDraft()
			_, err = service.AddLineItem(ctx, second.ID, invoice.AddItemDTO{
				ExpenseID: ptr(7),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("40.00"),
			})
			Expect(err).To(MatchError(internal.ErrDuplicateSource))
		})

		It("allows rebilling a source once the first invoice is cancelled", func() {
			first := newDraft()
			_, err := service.AddLineItem(ctx, first.ID, invoice.AddItemDTO{
				ExpenseID: ptr(7),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("40.00"),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Cancel(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())

			second := newDraft()
			_, err = service.AddLineItem(ctx, second.ID, invoice.AddItemDTO{
				ExpenseID: ptr(7),
				Quantity:  decimal.NewFromInt(1),
				Rate:      decimal.RequireFromString("40.00"),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("locks line items once the invoice leaves draft", func() {
			inv := newDraft()
			addLine(inv.ID, "work", "1", "10.00")

			_, err := service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AddLineItem(ctx, inv.ID, invoice.AddItemDTO{
				Description: "late line",
				Quantity:    decimal.NewFromInt(1),
				Rate:        decimal.RequireFromString("10.00"),
			})
			Expect(err).To(MatchError(internal.ErrInvoiceLocked))
		})
	})

	Describe("RecordPayment", func() {
		var inv *invoice.Invoice

		BeforeEach(func() {
			inv = newDraft()
			addLine(inv.ID, "work", "1", "100.00")
			var err error
			inv, err = service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("moves to PartialPaid while the balance is outstanding", func() {
			updated, err := service.RecordPayment(ctx, inv.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("40.00"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(invoice.StatusPartialPaid))
			Expect(updated.PaidAmount.Equal(decimal.RequireFromString("40.00"))).To(BeTrue())
		})

		It("settles the invoice when accumulated payments cover the total", func() {
			_, err := service.RecordPayment(ctx, inv.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("40.00"),
			})
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.RecordPayment(ctx, inv.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("60.00"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(invoice.StatusPaid))
		})

		It("publishes a payment event and a status change", func() {
			payments := make(chan events.Event, 1)
			statuses := make(chan events.Event, 1)
			bus.Subscribe(events.EventTypeInvoicePaymentApplied, func(ctx context.Context, e events.Event) error {
				payments <- e
				return nil
			})
			bus.Subscribe(events.EventTypeInvoiceStatusChanged, func(ctx context.Context, e events.Event) error {
				statuses <- e
				return nil
			})

			_, err := service.RecordPayment(ctx, inv.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("100.00"),
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(payments).Should(Receive())
			Eventually(statuses).Should(Receive())
		})

		It("rejects payments against a draft invoice", func() {
			draft := newDraft()
			addLine(draft.ID, "work", "1", "50.00")

			_, err := service.RecordPayment(ctx, draft.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("50.00"),
			})
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})
	})

	Describe("status transitions", func() {
		It("derives overdue at read time without storing it", func() {
			due := time.Now().AddDate(0, 0, -3)
			inv, err := service.CreateInvoice(ctx, invoice.CreateInvoiceDTO{
				WorkspaceID: 1,
				ProjectID:   1,
				DueDate:     &due,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())

			read, err := service.GetInvoice(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(read.Status).To(Equal(invoice.StatusOverdue))

			// stored status stays "sent"
			Expect(repo.invoices[inv.ID].Status).To(Equal(invoice.StatusSent))
		})

		It("only a draft can be sent", func() {
			inv := newDraft()
			_, err := service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Send(ctx, inv.ID)
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})

		It("marks a sent invoice as viewed", func() {
			inv := newDraft()
			_, err := service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())

			updated, err := service.MarkViewed(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(invoice.StatusViewed))
		})

		It("refuses to cancel a paid invoice", func() {
			inv := newDraft()
			addLine(inv.ID, "work", "1", "30.00")
			_, err := service.Send(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.RecordPayment(ctx, inv.ID, invoice.RecordPaymentDTO{
				Amount: decimal.RequireFromString("30.00"),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Cancel(ctx, inv.ID)
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})
	})

	Describe("Approve", func() {
		It("stamps the approver once and does not re-stamp", func() {
			inv := newDraft()

			first, err := service.Approve(ctx, inv.ID, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ApprovedAt).NotTo(BeNil())
			Expect(*first.ApprovedBy).To(Equal(int64(10)))

			stamped := *repo.invoices[inv.ID].ApprovedAt
			second, err := service.Approve(ctx, inv.ID, 99)
			Expect(err).NotTo(HaveOccurred())
			Expect(*second.ApprovedBy).To(Equal(int64(10)))
			Expect(repo.invoices[inv.ID].ApprovedAt.Equal(stamped)).To(BeTrue())
		})
	})
})
