package expense_test

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
	"github.com/workfin/finance-core/internal/expense"
	"github.com/workfin/finance-core/internal/workflow"
)

func TestExpenseService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ExpenseService Suite")
}

type mockRepository struct {
	expenses map[int64]*expense.Expense
	chains   map[int64][]int64
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		expenses: make(map[int64]*expense.Expense),
		chains:   make(map[int64][]int64),
		nextID:   1,
	}
}

func (m *mockRepository) Create(ctx context.Context, exp *expense.Expense) error {
	exp.ID = m.nextID
	m.nextID++
	m.expenses[exp.ID] = exp
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	exp, ok := m.expenses[id]
	if !ok {
		return nil, internal.ErrExpenseNotFound
	}
	copied := *exp
	return &copied, nil
}

func (m *mockRepository) ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*expense.Expense, error) {
	var out []*expense.Expense
	for _, exp := range m.expenses {
		if exp.ProjectID == projectID {
			out = append(out, exp)
		}
	}
	return out, nil
}

func (m *mockRepository) ListRecurringApproved(ctx context.Context) ([]*expense.Expense, error) {
	var out []*expense.Expense
	for _, exp := range m.expenses {
		if exp.IsRecurring && exp.Status == expense.StatusApproved {
			out = append(out, exp)
		}
	}
	return out, nil
}

func (m *mockRepository) LatestApproverChain(ctx context.Context, expenseID int64) ([]int64, error) {
	return m.chains[expenseID], nil
}

// mockChainStore backs the workflow engine in memory and mirrors the SQL
// store's subject update: MarkSubject writes the outcome onto the expense
// held by the repository.
type mockChainStore struct {
	repo   *mockRepository
	steps  []workflow.Step
	nextID int64
}

func newMockChainStore(repo *mockRepository) *mockChainStore {
	return &mockChainStore{repo: repo, nextID: 1}
}

func (m *mockChainStore) InTx(ctx context.Context, fn func(tx workflow.Store) error) error {
	return fn(m)
}

func (m *mockChainStore) LatestCycle(ctx context.Context, subjectID int64) (int, error) {
	latest := 0
	for _, s := range m.steps {
		if s.SubjectID == subjectID && s.Cycle > latest {
			latest = s.Cycle
		}
	}
	return latest, nil
}

func (m *mockChainStore) StepsForUpdate(ctx context.Context, subjectID int64) ([]workflow.Step, error) {
	latest, _ := m.LatestCycle(ctx, subjectID)

	var out []workflow.Step
	for _, s := range m.steps {
		if s.SubjectID == subjectID && s.Cycle == latest {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockChainStore) InsertSteps(ctx context.Context, subjectID int64, cycle int, steps []workflow.Step) ([]workflow.Step, error) {
	created := make([]workflow.Step, len(steps))
	for i, s := range steps {
		s.ID = m.nextID
		m.nextID++
		m.steps = append(m.steps, s)
		created[i] = s
	}
	m.repo.chains[subjectID] = approversOf(steps)
	return created, nil
}

func (m *mockChainStore) SaveStep(ctx context.Context, step *workflow.Step) error {
	for i := range m.steps {
		if m.steps[i].ID == step.ID {
			m.steps[i] = *step
		}
	}
	return nil
}

func (m *mockChainStore) MarkSubject(ctx context.Context, subjectID int64, outcome workflow.Outcome, approvedAmount *decimal.Decimal, decidedBy int64) error {
	exp, ok := m.repo.expenses[subjectID]
	if !ok {
		return internal.ErrExpenseNotFound
	}

	switch outcome {
	case workflow.OutcomeApproved:
		exp.Status = expense.StatusApproved
		if approvedAmount != nil {
			exp.ApprovedAmount = approvedAmount
		} else {
			amount := exp.Amount
			exp.ApprovedAmount = &amount
		}
	case workflow.OutcomeRejected:
		exp.Status = expense.StatusRejected
	case workflow.OutcomeRequiresInfo:
		exp.Status = expense.StatusRequiresInfo
	case workflow.OutcomePending:
		exp.Status = expense.StatusPending
		exp.ApprovedAmount = nil
	}
	return nil
}

func approversOf(steps []workflow.Step) []int64 {
	ids := make([]int64, len(steps))
	for i, s := range steps {
		ids[i] = s.ApproverID
	}
	return ids
}

var _ = Describe("Service", func() {
	var (
		repo    *mockRepository
		store   *mockChainStore
		bus     *events.EventBus
		service *expense.Service
		ctx     context.Context
	)

	validDTO := func(approvers ...int64) expense.CreateExpenseDTO {
		return expense.CreateExpenseDTO{
			ProjectID:   1,
			Amount:      decimal.RequireFromString("250.00"),
			Description: "conference travel",
			ExpenseDate: time.Now().AddDate(0, 0, -2),
			ApproverIDs: approvers,
		}
	}

	BeforeEach(func() {
		repo = newMockRepository()
		store = newMockChainStore(repo)
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		engine := workflow.NewEngine(store, logger)
		bus = events.NewEventBus(logger)
		service = expense.NewService(repo, engine, bus, logger)
		ctx = context.Background()
	})

	Describe("CreateExpense", func() {
		It("persists a pending expense and its approval chain", func() {
			exp, err := service.CreateExpense(ctx, validDTO(10, 20), 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp.ID).NotTo(BeZero())
			Expect(exp.Status).To(Equal(expense.StatusPending))

			steps, err := store.StepsForUpdate(ctx, exp.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(steps).To(HaveLen(2))
			Expect(steps[0].Status).To(Equal(workflow.StepStatusPending))
		})

		It("rejects an empty approver chain", func() {
			_, err := service.CreateExpense(ctx, validDTO(), 5)
			Expect(err).To(MatchError(internal.ErrInvalidChain))
		})

		It("rejects a non-positive amount", func() {
			dto := validDTO(10)
			dto.Amount = decimal.Zero
			_, err := service.CreateExpense(ctx, dto, 5)
			Expect(err).To(HaveOccurred())
		})

		It("rejects an expense dated in the future", func() {
			dto := validDTO(10)
			dto.ExpenseDate = time.Now().AddDate(0, 0, 3)
			_, err := service.CreateExpense(ctx, dto, 5)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RecordDecision", func() {
		var exp *expense.Expense

		BeforeEach(func() {
			var err error
			exp, err = service.CreateExpense(ctx, validDTO(10, 20), 5)
			Expect(err).NotTo(HaveOccurred())
		})

		It("publishes a status change when the chain concludes", func() {
			received := make(chan events.Event, 1)
			bus.Subscribe(events.EventTypeExpenseStatusChanged, func(ctx context.Context, e events.Event) error {
				received <- e
				return nil
			})

			_, err := service.RecordDecision(ctx, exp.ID, 10, expense.DecisionDTO{Step: 1, Decision: "approved"})
			Expect(err).NotTo(HaveOccurred())
			Consistently(received).ShouldNot(Receive())

			res, err := service.RecordDecision(ctx, exp.ID, 20, expense.DecisionDTO{Step: 2, Decision: "approved"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ChainComplete).To(BeTrue())

			var evt events.Event
			Eventually(received).Should(Receive(&evt))
			statusEvt, ok := evt.(*events.ExpenseStatusChangedEvent)
			Expect(ok).To(BeTrue())
			Expect(statusEvt.Status).To(Equal(expense.StatusApproved))
			Expect(statusEvt.DecidedBy).To(Equal(int64(20)))
		})

		It("returns not found for an unknown expense", func() {
			_, err := service.RecordDecision(ctx, 999, 10, expense.DecisionDTO{Step: 1, Decision: "approved"})
			Expect(err).To(MatchError(internal.ErrExpenseNotFound))
		})

		It("requires notes when rejecting", func() {
			_, err := service.RecordDecision(ctx, exp.ID, 10, expense.DecisionDTO{Step: 1, Decision: "rejected"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Resubmit", func() {
		var exp *expense.Expense

		BeforeEach(func() {
			var err error
			exp, err = service.CreateExpense(ctx, validDTO(10, 20), 5)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RecordDecision(ctx, exp.ID, 10, expense.DecisionDTO{Step: 1, Decision: "requires_info", Notes: "need receipt"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("starts a fresh cycle and returns the expense to pending", func() {
			resubmitted, err := service.Resubmit(ctx, exp.ID, 5, expense.ResubmitDTO{ApproverIDs: []int64{10, 20}})
			Expect(err).NotTo(HaveOccurred())
			Expect(resubmitted.Status).To(Equal(expense.StatusPending))

			steps, err := store.StepsForUpdate(ctx, exp.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(steps[0].Cycle).To(Equal(2))
			Expect(steps[0].Status).To(Equal(workflow.StepStatusPending))
		})

		It("only the original submitter may resubmit", func() {
			_, err := service.Resubmit(ctx, exp.ID, 99, expense.ResubmitDTO{ApproverIDs: []int64{10}})
			Expect(err).To(MatchError(internal.ErrNotAuthorized))
		})

		It("rejects resubmission of an expense that is not awaiting info", func() {
			other, err := service.CreateExpense(ctx, validDTO(10), 5)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Resubmit(ctx, other.ID, 5, expense.ResubmitDTO{ApproverIDs: []int64{10}})
			Expect(err).To(MatchError(internal.ErrInvalidStatus))
		})
	})

	Describe("GenerateRecurring", func() {
		It("clones approved recurring expenses into new pending submissions", func() {
			dto := validDTO(10)
			dto.IsRecurring = true
			exp, err := service.CreateExpense(ctx, dto, 5)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RecordDecision(ctx, exp.ID, 10, expense.DecisionDTO{Step: 1, Decision: "approved"})
			Expect(err).NotTo(HaveOccurred())

			asOf := time.Now()
			created, err := service.GenerateRecurring(ctx, asOf)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(1))

			clones, err := service.ListExpenses(ctx, 1, 50, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(clones).To(HaveLen(2))

			var clone *expense.Expense
			for _, c := range clones {
				if c.ID != exp.ID {
					clone = c
				}
			}
			Expect(clone).NotTo(BeNil())
			Expect(clone.Status).To(Equal(expense.StatusPending))
			Expect(clone.IsRecurring).To(BeTrue())
			Expect(clone.Amount.Equal(exp.Amount)).To(BeTrue())

			steps, err := store.StepsForUpdate(ctx, clone.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(steps).To(HaveLen(1))
		})

		It("skips recurring sources without an approver chain", func() {
			repo.expenses[77] = &expense.Expense{
				ID:          77,
				ProjectID:   1,
				Amount:      decimal.RequireFromString("40.00"),
				Status:      expense.StatusApproved,
				IsRecurring: true,
				SubmittedBy: 5,
			}

			created, err := service.GenerateRecurring(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(0))
		})
	})
})
