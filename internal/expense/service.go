package expense

import (
	"context"
	"log/slog"
	"time"

	"github.com/workfin/finance-core/internal"
	"github.com/workfin/finance-core/internal/core/events"
	"github.com/workfin/finance-core/internal/workflow"
)

// Repository defines the data access methods for expenses.
type Repository interface {
	Create(ctx context.Context, expense *Expense) error
	GetByID(ctx context.Context, id int64) (*Expense, error)
	ListByProject(ctx context.Context, projectID int64, limit, offset int) ([]*Expense, error)
	ListRecurringApproved(ctx context.Context) ([]*Expense, error)
	LatestApproverChain(ctx context.Context, expenseID int64) ([]int64, error)
}

// Service handles expense submission and drives the approval workflow
// engine for expense chains.
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

// CreateExpense persists a pending expense and creates its approval chain.
func (s *Service) CreateExpense(ctx context.Context, dto CreateExpenseDTO, submittedBy int64) (*Expense, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("expense validation failed", "error", err, "submitted_by", submittedBy)
		return nil, err
	}

	exp := NewExpense(submittedBy, dto)
	if err := s.repo.Create(ctx, exp); err != nil {
		s.logger.Error("failed to create expense", "error", err, "submitted_by", submittedBy)
		return nil, err
	}

	if _, err := s.engine.Initiate(ctx, exp.ID, dto.ApproverIDs); err != nil {
		s.logger.Error("failed to initiate approval chain", "error", err, "expense_id", exp.ID)
		return nil, err
	}

	s.logger.Info("expense created",
		"expense_id", exp.ID,
		"project_id", exp.ProjectID,
		"amount", exp.Amount,
		"approvers", len(dto.ApproverIDs))

	return exp, nil
}

func (s *Service) GetExpense(ctx context.Context, id int64) (*Expense, error) {
	exp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to get expense", "error", err, "expense_id", id)
		return nil, internal.ErrExpenseNotFound
	}
	return exp, nil
}

func (s *Service) ListExpenses(ctx context.Context, projectID int64, limit, offset int) ([]*Expense, error) {
	expenses, err := s.repo.ListByProject(ctx, projectID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "project_id", projectID)
		return nil, err
	}
	return expenses, nil
}

// RecordDecision resolves one step of the expense's approval chain and, on
// a concluding decision, publishes the status change for downstream
// notification consumers.
func (s *Service) RecordDecision(ctx context.Context, expenseID int64, approverID int64, dto DecisionDTO) (*workflow.DecisionResult, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("decision validation failed", "error", err, "expense_id", expenseID)
		return nil, err
	}

	if _, err := s.repo.GetByID(ctx, expenseID); err != nil {
		return nil, internal.ErrExpenseNotFound
	}

	result, err := s.engine.RecordDecision(ctx, expenseID, dto.Step, approverID, workflow.Decision(dto.Decision), dto.Notes, dto.ApprovedAmount)
	if err != nil {
		return nil, err
	}

	if result.ChainComplete && !result.Replayed {
		exp, err := s.repo.GetByID(ctx, expenseID)
		if err != nil {
			s.logger.Error("failed to reload expense after decision", "error", err, "expense_id", expenseID)
			return result, nil
		}

		event := events.NewExpenseStatusChangedEvent(exp.ID, exp.ProjectID, exp.Status, exp.ApprovedAmount, approverID)
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish expense status change", "error", err, "expense_id", expenseID)
		}
	}

	return result, nil
}

// Resubmit opens a new approval cycle for an expense that was sent back
// with requires_info. The chain restarts from step 1.
func (s *Service) Resubmit(ctx context.Context, expenseID int64, actorID int64, dto ResubmitDTO) (*Expense, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	exp, err := s.repo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, internal.ErrExpenseNotFound
	}

	if !exp.CanBeResubmitted() {
		s.logger.Warn("cannot resubmit expense in current status",
			"expense_id", expenseID,
			"status", exp.Status)
		return nil, internal.ErrInvalidStatus
	}

	if exp.SubmittedBy != actorID {
		s.logger.Warn("resubmit denied: not the submitter", "expense_id", expenseID, "actor_id", actorID)
		return nil, internal.ErrNotAuthorized
	}

	if _, err := s.engine.Resubmit(ctx, expenseID, dto.ApproverIDs, actorID); err != nil {
		return nil, err
	}

	exp, err = s.repo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, internal.ErrExpenseNotFound
	}

	event := events.NewExpenseStatusChangedEvent(exp.ID, exp.ProjectID, exp.Status, nil, actorID)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish expense status change", "error", err, "expense_id", expenseID)
	}

	return exp, nil
}

// GenerateRecurring clones approved recurring expenses into fresh pending
// submissions with the same approver chain. Called by the scheduled
// worker, never by request handlers.
func (s *Service) GenerateRecurring(ctx context.Context, asOf time.Time) (int, error) {
	recurring, err := s.repo.ListRecurringApproved(ctx)
	if err != nil {
		s.logger.Error("failed to list recurring expenses", "error", err)
		return 0, err
	}

	created := 0
	for _, src := range recurring {
		chain, err := s.repo.LatestApproverChain(ctx, src.ID)
		if err != nil || len(chain) == 0 {
			s.logger.Warn("skipping recurring expense without approver chain",
				"expense_id", src.ID, "error", err)
			continue
		}

		clone := &Expense{
			ProjectID:   src.ProjectID,
			BudgetID:    src.BudgetID,
			CategoryID:  src.CategoryID,
			TaskID:      src.TaskID,
			Amount:      src.Amount,
			Status:      StatusPending,
			Description: src.Description,
			IsRecurring: true,
			SubmittedBy: src.SubmittedBy,
			ExpenseDate: asOf,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		if err := s.repo.Create(ctx, clone); err != nil {
			s.logger.Error("failed to clone recurring expense", "error", err, "source_id", src.ID)
			continue
		}

		if _, err := s.engine.Initiate(ctx, clone.ID, chain); err != nil {
			s.logger.Error("failed to initiate chain for recurring clone", "error", err, "expense_id", clone.ID)
			continue
		}

		created++
	}

	s.logger.Info("recurring expense generation complete",
		"candidates", len(recurring),
		"created", created,
		"as_of", asOf.Format("2006-01-02"))

	return created, nil
}
