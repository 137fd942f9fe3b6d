package postgres

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	budgetDatamodel "github.com/workfin/finance-core/internal/core/datamodel/budget"
	workflowDatamodel "github.com/workfin/finance-core/internal/core/datamodel/workflow"
	"github.com/workfin/finance-core/internal/workflow"
)

var _ = Describe("RevisionChainStore", func() {
	var (
		db     *gorm.DB
		store  *RevisionChainStore
		engine *workflow.Engine
		ctx    context.Context
	)

	newRevision := func(budgetID int64, previous, proposed string) *budgetDatamodel.Revision {
		rev := &budgetDatamodel.Revision{
			BudgetID:       budgetID,
			PreviousAmount: decimal.RequireFromString(previous),
			NewAmount:      decimal.RequireFromString(proposed),
			Reason:         "scope change",
			Status:         budgetDatamodel.RevisionStatusPending,
			RequestedBy:    5,
		}
		Expect(db.Create(rev).Error).NotTo(HaveOccurred())
		return rev
	}

	newBudget := func(total string) *budgetDatamodel.Budget {
		b := &budgetDatamodel.Budget{
			ProjectID:   1,
			Name:        "Website Relaunch",
			TotalAmount: decimal.RequireFromString(total),
			PeriodType:  budgetDatamodel.PeriodProject,
			Status:      budgetDatamodel.StatusActive,
			StartsOn:    time.Now().AddDate(0, -1, 0),
		}
		Expect(db.Create(b).Error).NotTo(HaveOccurred())
		return b
	}

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(
			&budgetDatamodel.Budget{},
			&budgetDatamodel.Revision{},
			&workflowDatamodel.RevisionApprovalStep{},
		)
		Expect(err).NotTo(HaveOccurred())

		store = NewRevisionChainStore(db)
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		engine = workflow.NewEngine(store, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).NotTo(HaveOccurred())
	})

	It("applies the new total to the budget when the chain approves", func() {
		b := newBudget("10000.00")
		rev := newRevision(b.ID, "10000.00", "15000.00")

		_, err := engine.Initiate(ctx, rev.ID, []int64{10, 20})
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.RecordDecision(ctx, rev.ID, 1, 10, workflow.DecisionApproved, "", nil)
		Expect(err).NotTo(HaveOccurred())

		res, err := engine.RecordDecision(ctx, rev.ID, 2, 20, workflow.DecisionApproved, "ok", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ChainComplete).To(BeTrue())

		var reloadedRev budgetDatamodel.Revision
		Expect(db.First(&reloadedRev, rev.ID).Error).NotTo(HaveOccurred())
		Expect(reloadedRev.Status).To(Equal(budgetDatamodel.RevisionStatusApproved))
		Expect(reloadedRev.ProcessedAt).NotTo(BeNil())

		var reloadedBudget budgetDatamodel.Budget
		Expect(db.First(&reloadedBudget, b.ID).Error).NotTo(HaveOccurred())
		Expect(reloadedBudget.TotalAmount.Equal(decimal.RequireFromString("15000.00"))).To(BeTrue())
	})

	It("leaves the budget untouched when the chain rejects", func() {
		b := newBudget("10000.00")
		rev := newRevision(b.ID, "10000.00", "20000.00")

		_, err := engine.Initiate(ctx, rev.ID, []int64{10})
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.RecordDecision(ctx, rev.ID, 1, 10, workflow.DecisionRejected, "too big", nil)
		Expect(err).NotTo(HaveOccurred())

		var reloadedRev budgetDatamodel.Revision
		Expect(db.First(&reloadedRev, rev.ID).Error).NotTo(HaveOccurred())
		Expect(reloadedRev.Status).To(Equal(budgetDatamodel.RevisionStatusRejected))

		var reloadedBudget budgetDatamodel.Budget
		Expect(db.First(&reloadedBudget, b.ID).Error).NotTo(HaveOccurred())
		Expect(reloadedBudget.TotalAmount.Equal(decimal.RequireFromString("10000.00"))).To(BeTrue())
	})

	It("records a requires_info outcome as a rejection", func() {
		b := newBudget("8000.00")
		rev := newRevision(b.ID, "8000.00", "9000.00")

		_, err := engine.Initiate(ctx, rev.ID, []int64{10, 20})
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.RecordDecision(ctx, rev.ID, 1, 10, workflow.DecisionRequiresInfo, "justify", nil)
		Expect(err).NotTo(HaveOccurred())

		var reloadedRev budgetDatamodel.Revision
		Expect(db.First(&reloadedRev, rev.ID).Error).NotTo(HaveOccurred())
		Expect(reloadedRev.Status).To(Equal(budgetDatamodel.RevisionStatusRejected))

		steps, err := store.StepsForUpdate(ctx, rev.ID)
		Expect(err).NotTo(HaveOccurred())
		for _, s := range steps {
			Expect(s.Status).To(Equal(workflow.StepStatusCancelled))
		}
	})

	It("keeps expense and revision chains on separate tables", func() {
		b := newBudget("5000.00")
		rev := newRevision(b.ID, "5000.00", "6000.00")

		_, err := engine.Initiate(ctx, rev.ID, []int64{10})
		Expect(err).NotTo(HaveOccurred())

		var count int64
		Expect(db.Model(&workflowDatamodel.RevisionApprovalStep{}).Count(&count).Error).NotTo(HaveOccurred())
		Expect(count).To(Equal(int64(1)))
	})
})
