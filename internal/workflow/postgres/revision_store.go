package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workfin/finance-core/internal"
	budgetDatamodel "github.com/workfin/finance-core/internal/core/datamodel/budget"
	workflowDatamodel "github.com/workfin/finance-core/internal/core/datamodel/workflow"
	"github.com/workfin/finance-core/internal/workflow"
)

// RevisionChainStore is the budget-revision counterpart of
// ExpenseChainStore, over a structurally identical but separate table.
// Approving the final step also applies the new total to the budget row,
// inside the same transaction.
type RevisionChainStore struct {
	db *gorm.DB
}

func NewRevisionChainStore(db *gorm.DB) *RevisionChainStore {
	return &RevisionChainStore{db: db}
}

func (s *RevisionChainStore) InTx(ctx context.Context, fn func(tx workflow.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&RevisionChainStore{db: txdb})
	})
}

func (s *RevisionChainStore) StepsForUpdate(ctx context.Context, revisionID int64) ([]workflow.Step, error) {
	q := s.db.WithContext(ctx)
	if s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []workflowDatamodel.RevisionApprovalStep
	err := q.
		Where("revision_id = ? AND cycle = (SELECT COALESCE(MAX(cycle), 0) FROM budget_revision_approval_steps WHERE revision_id = ?)", revisionID, revisionID).
		Order("step_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	steps := make([]workflow.Step, len(rows))
	for i, row := range rows {
		steps[i] = revisionStepToDomain(&row)
	}
	return steps, nil
}

func (s *RevisionChainStore) LatestCycle(ctx context.Context, revisionID int64) (int, error) {
	var cycle int
	err := s.db.WithContext(ctx).
		Model(&workflowDatamodel.RevisionApprovalStep{}).
		Where("revision_id = ?", revisionID).
		Select("COALESCE(MAX(cycle), 0)").
		Scan(&cycle).Error
	return cycle, err
}

func (s *RevisionChainStore) InsertSteps(ctx context.Context, revisionID int64, cycle int, steps []workflow.Step) ([]workflow.Step, error) {
	rows := make([]workflowDatamodel.RevisionApprovalStep, len(steps))
	for i, step := range steps {
		rows[i] = workflowDatamodel.RevisionApprovalStep{
			RevisionID: revisionID,
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
		created[i] = revisionStepToDomain(&row)
	}
	return created, nil
}

func (s *RevisionChainStore) SaveStep(ctx context.Context, step *workflow.Step) error {
	return s.db.WithContext(ctx).
		Model(&workflowDatamodel.RevisionApprovalStep{}).
		Where("id = ?", step.ID).
		Updates(map[string]interface{}{
			"status":       step.Status,
			"notes":        step.Notes,
			"processed_at": step.ProcessedAt,
			"updated_at":   time.Now(),
		}).Error
}

// MarkSubject writes the outcome onto the revision. Revisions have no
// requires_info state of their own; that outcome records as a rejection.
func (s *RevisionChainStore) MarkSubject(ctx context.Context, revisionID int64, outcome workflow.Outcome, _ *decimal.Decimal, decidedBy int64) error {
	var rev budgetDatamodel.Revision
	if err := s.db.WithContext(ctx).Where("id = ?", revisionID).First(&rev).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return internal.ErrRevisionNotFound
		}
		return err
	}

	now := time.Now()
	status := rev.Status

	switch outcome {
	case workflow.OutcomeApproved:
		status = budgetDatamodel.RevisionStatusApproved
	case workflow.OutcomeRejected, workflow.OutcomeRequiresInfo:
		status = budgetDatamodel.RevisionStatusRejected
	case workflow.OutcomePending:
		status = budgetDatamodel.RevisionStatusPending
	}

	err := s.db.WithContext(ctx).
		Model(&budgetDatamodel.Revision{}).
		Where("id = ?", revisionID).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": now,
			"updated_at":   now,
		}).Error
	if err != nil {
		return err
	}

	if outcome == workflow.OutcomeApproved {
		return s.db.WithContext(ctx).
			Model(&budgetDatamodel.Budget{}).
			Where("id = ?", rev.BudgetID).
			Updates(map[string]interface{}{
				"total_amount": rev.NewAmount,
				"updated_at":   now,
			}).Error
	}

	return nil
}

func revisionStepToDomain(row *workflowDatamodel.RevisionApprovalStep) workflow.Step {
	return workflow.Step{
		ID:          row.ID,
		SubjectID:   row.RevisionID,
		Cycle:       row.Cycle,
		StepNumber:  row.StepNumber,
		ApproverID:  row.ApproverID,
		Status:      row.Status,
		Notes:       row.Notes,
		ProcessedAt: row.ProcessedAt,
	}
}
