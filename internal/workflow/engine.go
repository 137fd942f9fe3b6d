package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/workfin/finance-core/internal"
)

// Engine drives an ordered chain of approval decisions for one subject.
// It is agnostic of the subject kind; each domain supplies a Store.
type Engine struct {
	store  Store
	logger *slog.Logger
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
	}
}

// Initiate creates the approval chain for a subject: step 1 immediately
// actionable, the rest waiting. An empty approver chain is rejected.
func (e *Engine) Initiate(ctx context.Context, subjectID int64, approverChain []int64) ([]Step, error) {
	if len(approverChain) == 0 {
		e.logger.Warn("initiate rejected: empty approver chain", "subject_id", subjectID)
		return nil, internal.ErrInvalidChain
	}

	var created []Step
	err := e.store.InTx(ctx, func(tx Store) error {
		cycle, err := tx.LatestCycle(ctx, subjectID)
		if err != nil {
			return err
		}

		steps := buildChain(subjectID, cycle+1, approverChain)
		created, err = tx.InsertSteps(ctx, subjectID, cycle+1, steps)
		return err
	})
	if err != nil {
		e.logger.Error("failed to initiate workflow", "error", err, "subject_id", subjectID)
		return nil, err
	}

	e.logger.Info("workflow initiated",
		"subject_id", subjectID,
		"steps", len(created),
		"cycle", created[0].Cycle)

	return created, nil
}

// Resubmit starts a fresh approval cycle after a requires_info outcome.
// The new chain begins at step 1 and the subject returns to pending.
func (e *Engine) Resubmit(ctx context.Context, subjectID int64, approverChain []int64, resubmittedBy int64) ([]Step, error) {
	if len(approverChain) == 0 {
		return nil, internal.ErrInvalidChain
	}

	var created []Step
	err := e.store.InTx(ctx, func(tx Store) error {
		cycle, err := tx.LatestCycle(ctx, subjectID)
		if err != nil {
			return err
		}

		steps := buildChain(subjectID, cycle+1, approverChain)
		created, err = tx.InsertSteps(ctx, subjectID, cycle+1, steps)
		if err != nil {
			return err
		}

		return tx.MarkSubject(ctx, subjectID, OutcomePending, nil, resubmittedBy)
	})
	if err != nil {
		e.logger.Error("failed to resubmit workflow", "error", err, "subject_id", subjectID)
		return nil, err
	}

	e.logger.Info("workflow resubmitted",
		"subject_id", subjectID,
		"cycle", created[0].Cycle,
		"resubmitted_by", resubmittedBy)

	return created, nil
}

// RecordDecision resolves one step of the chain. The whole read-validate-
// write sequence runs in a transaction with the step rows locked, so two
// concurrent decisions on the same step cannot both land. Replaying an
// already-processed step returns its existing terminal state instead of
// erroring, to tolerate at-least-once delivery of approval requests.
func (e *Engine) RecordDecision(ctx context.Context, subjectID int64, stepNumber int, approverID int64, decision Decision, notes string, approvedAmount *decimal.Decimal) (*DecisionResult, error) {
	if !decision.Valid() {
		return nil, internal.NewValidationError("decision must be approved, rejected or requires_info", internal.ErrCodeValidationFailed)
	}

	var result *DecisionResult
	err := e.store.InTx(ctx, func(tx Store) error {
		steps, err := tx.StepsForUpdate(ctx, subjectID)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return internal.ErrInvalidChain
		}

		var target *Step
		for i := range steps {
			if steps[i].StepNumber == stepNumber {
				target = &steps[i]
				break
			}
		}
		if target == nil {
			return internal.ErrStepOutOfOrder
		}

		if target.ApproverID != approverID {
			return internal.ErrNotAuthorized
		}

		if target.terminal() {
			result = &DecisionResult{Step: *target, Replayed: true}
			return nil
		}

		current := lowestNonTerminal(steps)
		if current == nil || current.StepNumber != target.StepNumber {
			return internal.ErrStepOutOfOrder
		}

		now := time.Now()
		target.Notes = notes
		target.ProcessedAt = &now

		switch decision {
		case DecisionApproved:
			target.Status = StepStatusApproved
			if err := tx.SaveStep(ctx, target); err != nil {
				return err
			}

			next := nextStep(steps, target.StepNumber)
			if next == nil {
				if err := tx.MarkSubject(ctx, subjectID, OutcomeApproved, approvedAmount, approverID); err != nil {
					return err
				}
				result = &DecisionResult{Step: *target, ChainComplete: true, Outcome: OutcomeApproved}
				return nil
			}

			next.Status = StepStatusPending
			if err := tx.SaveStep(ctx, next); err != nil {
				return err
			}
			result = &DecisionResult{Step: *target}
			return nil

		case DecisionRejected:
			target.Status = StepStatusRejected
			if err := tx.SaveStep(ctx, target); err != nil {
				return err
			}
			if err := cancelAfter(ctx, tx, steps, target.StepNumber, now); err != nil {
				return err
			}
			if err := tx.MarkSubject(ctx, subjectID, OutcomeRejected, nil, approverID); err != nil {
				return err
			}
			result = &DecisionResult{Step: *target, ChainComplete: true, Outcome: OutcomeRejected}
			return nil

		case DecisionRequiresInfo:
			// The step chain has no requires_info status of its own; the
			// cycle is torn down and a resubmission starts a new one.
			target.Status = StepStatusCancelled
			if err := tx.SaveStep(ctx, target); err != nil {
				return err
			}
			if err := cancelAfter(ctx, tx, steps, target.StepNumber, now); err != nil {
				return err
			}
			if err := tx.MarkSubject(ctx, subjectID, OutcomeRequiresInfo, nil, approverID); err != nil {
				return err
			}
			result = &DecisionResult{Step: *target, ChainComplete: true, Outcome: OutcomeRequiresInfo}
			return nil
		}

		return nil
	})
	if err != nil {
		e.logger.Warn("decision not recorded",
			"error", err,
			"subject_id", subjectID,
			"step", stepNumber,
			"approver_id", approverID)
		return nil, err
	}

	e.logger.Info("decision recorded",
		"subject_id", subjectID,
		"step", stepNumber,
		"approver_id", approverID,
		"decision", decision,
		"chain_complete", result.ChainComplete,
		"replayed", result.Replayed)

	return result, nil
}

func buildChain(subjectID int64, cycle int, approverChain []int64) []Step {
	steps := make([]Step, len(approverChain))
	for i, approverID := range approverChain {
		status := StepStatusWaiting
		if i == 0 {
			status = StepStatusPending
		}
		steps[i] = Step{
			SubjectID:  subjectID,
			Cycle:      cycle,
			StepNumber: i + 1,
			ApproverID: approverID,
			Status:     status,
		}
	}
	return steps
}

func lowestNonTerminal(steps []Step) *Step {
	for i := range steps {
		if !steps[i].terminal() {
			return &steps[i]
		}
	}
	return nil
}

func nextStep(steps []Step, after int) *Step {
	for i := range steps {
		if steps[i].StepNumber == after+1 {
			return &steps[i]
		}
	}
	return nil
}

func cancelAfter(ctx context.Context, tx Store, steps []Step, after int, now time.Time) error {
	for i := range steps {
		if steps[i].StepNumber <= after || steps[i].terminal() {
			continue
		}
		steps[i].Status = StepStatusCancelled
		steps[i].ProcessedAt = &now
		if err := tx.SaveStep(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}
