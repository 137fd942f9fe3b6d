package budget

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
	"github.com/workfin/finance-core/internal/workflow"
)

// Repository defines the data access methods for budgets and the aggregate
// reads that feed the summary and breakdown computations.
type Repository interface {
	Create(ctx context.Context, b *Budget) error
	GetByID(ctx context.Context, id int64) (*Budget, error)
	ListCategories(ctx context.Context, budgetID int64) ([]*Category, error)

	// ApprovedExpenseTotal sums approved expense amounts booked against the
	// budget. The approved amount wins over the requested amount.
	ApprovedExpenseTotal(ctx context.Context, budgetID int64) (decimal.Decimal, error)
	ApprovedExpenseTotalsByCategory(ctx context.Context, budgetID int64) (map[int64]decimal.Decimal, error)

	// PaidInvoiceTotal sums total_amount of paid invoices for the project.
	PaidInvoiceTotal(ctx context.Context, projectID int64) (decimal.Decimal, error)
	// BilledApprovedExpenseTotal sums expense-sourced line amounts on paid
	// invoices of the project whose expense is approved under this budget.
	// Those amounts are already counted on the expense side.
	BilledApprovedExpenseTotal(ctx context.Context, projectID, budgetID int64) (decimal.Decimal, error)

	CreateRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, id int64) (*Revision, error)
	ListRevisions(ctx context.Context, budgetID int64, limit, offset int) ([]*Revision, error)
}

// Service owns budget lifecycle and the spend aggregation reads. Revision
// approvals run through the shared workflow engine backed by the revision
// chain store, which applies the new total inside the deciding transaction.
type Service struct {
	repo   Repository
	engine *workflow.Engine
	bus    *events.EventBus
	logger *slog.Logger
}

func NewService(repo Repository, engine *workflow.Engine, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		bus:    bus,
		logger: logger,
	}
}

func (s *Service) CreateBudget(ctx context.Context, dto CreateBudgetDTO) (*Budget, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("budget validation failed", "error", err, "project_id", dto.ProjectID)
		return nil, err
	}

	b := NewBudget(dto)
	if err := s.repo.Create(ctx, b); err != nil {
		s.logger.Error("failed to create budget", "error", err, "project_id", dto.ProjectID)
		return nil, err
	}

	s.logger.Info("budget created",
		"budget_id", b.ID,
		"project_id", b.ProjectID,
		"total_amount", b.TotalAmount,
		"categories", len(b.Categories))

	return b, nil
}

func (s *Service) GetBudget(ctx context.Context, id int64) (*Budget, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get budget", "error", err, "budget_id", id)
		return nil, internal.ErrBudgetNotFound
	}

	categories, err := s.repo.ListCategories(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Categories = categories

	return b, nil
}

// ComputeSummary aggregates the budget's spend position from plain reads.
// The snapshot is eventually consistent with in-flight decisions; callers
// treat it as advisory, not a balance.
func (s *Service) ComputeSummary(ctx context.Context, budgetID int64) (*Summary, error) {
	b, err := s.repo.GetByID(ctx, budgetID)
	if err != nil {
		return nil, internal.ErrBudgetNotFound
	}

	expenseTotal, err := s.repo.ApprovedExpenseTotal(ctx, budgetID)
	if err != nil {
		s.logger.Error("failed to sum approved expenses", "error", err, "budget_id", budgetID)
		return nil, err
	}

	invoiceTotal, err := s.repo.PaidInvoiceTotal(ctx, b.ProjectID)
	if err != nil {
		s.logger.Error("failed to sum paid invoices", "error", err, "budget_id", budgetID)
		return nil, err
	}

	billedExpenses, err := s.repo.BilledApprovedExpenseTotal(ctx, b.ProjectID, budgetID)
	if err != nil {
		s.logger.Error("failed to sum billed expense lines", "error", err, "budget_id", budgetID)
		return nil, err
	}

	totalSpent := expenseTotal.Add(invoiceTotal).Sub(billedExpenses)
	if totalSpent.IsNegative() {
		totalSpent = decimal.Zero
	}

	// A zero-amount budget reports zero utilization rather than erroring.
	utilization := decimal.Zero
	if b.TotalAmount.IsPositive() {
		utilization = totalSpent.Div(b.TotalAmount).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return &Summary{
		BudgetID:        b.ID,
		ProjectID:       b.ProjectID,
		TotalBudget:     b.TotalAmount,
		TotalSpent:      totalSpent,
		RemainingBudget: b.TotalAmount.Sub(totalSpent),
		UtilizationPct:  utilization,
	}, nil
}

// ComputeCategoryBreakdown reports allocated versus spent per category.
// Category spend counts approved expense amounts only; invoice totals are
// project-level and their expense-sourced lines are already attributed to
// the expense's category.
func (s *Service) ComputeCategoryBreakdown(ctx context.Context, budgetID int64) ([]*CategoryUsage, error) {
	if _, err := s.repo.GetByID(ctx, budgetID); err != nil {
		return nil, internal.ErrBudgetNotFound
	}

	categories, err := s.repo.ListCategories(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	spentByCategory, err := s.repo.ApprovedExpenseTotalsByCategory(ctx, budgetID)
	if err != nil {
		s.logger.Error("failed to sum expenses by category", "error", err, "budget_id", budgetID)
		return nil, err
	}

	breakdown := make([]*CategoryUsage, 0, len(categories))
	for _, c := range categories {
		spent := spentByCategory[c.ID]
		breakdown = append(breakdown, &CategoryUsage{
			CategoryID: c.ID,
			Name:       c.Name,
			Allocated:  c.AllocatedAmount,
			Spent:      spent,
			Remaining:  c.AllocatedAmount.Sub(spent),
		})
	}

	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].CategoryID < breakdown[j].CategoryID
	})

	return breakdown, nil
}

// RequestRevision captures a proposed total change and opens its approval
// chain. The previous amount is the budget total at request time.
func (s *Service) RequestRevision(ctx context.Context, budgetID int64, dto RequestRevisionDTO, requestedBy int64) (*Revision, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.GetByID(ctx, budgetID)
	if err != nil {
		return nil, internal.ErrBudgetNotFound
	}

	now := time.Now()
	rev := &Revision{
		BudgetID:       budgetID,
		PreviousAmount: b.TotalAmount,
		NewAmount:      dto.NewAmount,
		Reason:         dto.Reason,
		Status:         RevisionStatusPending,
		RequestedBy:    requestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateRevision(ctx, rev); err != nil {
		s.logger.Error("failed to create budget revision", "error", err, "budget_id", budgetID)
		return nil, err
	}

	if _, err := s.engine.Initiate(ctx, rev.ID, dto.ApproverIDs); err != nil {
		s.logger.Error("failed to initiate revision chain", "error", err, "revision_id", rev.ID)
		return nil, err
	}

	s.logger.Info("budget revision requested",
		"revision_id", rev.ID,
		"budget_id", budgetID,
		"previous_amount", rev.PreviousAmount,
		"new_amount", rev.NewAmount,
		"requested_by", requestedBy)

	return rev, nil
}

// RecordRevisionDecision resolves one step of a revision's approval chain.
// The revision store applies the new total to the budget when the chain
// concludes with approval.
func (s *Service) RecordRevisionDecision(ctx context.Context, revisionID int64, approverID int64, dto RevisionDecisionDTO) (*workflow.DecisionResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetRevision(ctx, revisionID); err != nil {
		return nil, internal.ErrRevisionNotFound
	}

	result, err := s.engine.RecordDecision(ctx, revisionID, dto.Step, approverID, workflow.Decision(dto.Decision), dto.Notes, nil)
	if err != nil {
		return nil, err
	}

	if result.ChainComplete && !result.Replayed {
		rev, err := s.repo.GetRevision(ctx, revisionID)
		if err != nil {
			s.logger.Error("failed to reload revision after decision", "error", err, "revision_id", revisionID)
			return result, nil
		}

		event := events.NewRevisionStatusChangedEvent(rev.ID, rev.BudgetID, rev.Status, rev.NewAmount, approverID)
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish revision status change", "error", err, "revision_id", revisionID)
		}
	}

	return result, nil
}

func (s *Service) ListRevisions(ctx context.Context, budgetID int64, limit, offset int) ([]*Revision, error) {
	revisions, err := s.repo.ListRevisions(ctx, budgetID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list revisions", "error", err, "budget_id", budgetID)
		return nil, err
	}
	return revisions, nil
}
