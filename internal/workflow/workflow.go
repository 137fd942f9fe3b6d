package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is what an approver records against the current step.
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionRejected     Decision = "rejected"
	DecisionRequiresInfo Decision = "requires_info"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionRequiresInfo:
		return true
	}
	return false
}

// Outcome is the terminal (or reset) state the chain imposes on its
// subject once a decision concludes it.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeRejected     Outcome = "rejected"
	OutcomeRequiresInfo Outcome = "requires_info"
	OutcomePending      Outcome = "pending"
)

// Step statuses mirror the step tables. A cycle has exactly one "pending"
// step at a time; later steps sit in "waiting" until promoted.
const (
	StepStatusPending   = "pending"
	StepStatusApproved  = "approved"
	StepStatusRejected  = "rejected"
	StepStatusWaiting   = "waiting"
	StepStatusCancelled = "cancelled"
)

// Step is the engine's view of one approval record, independent of which
// table (expense or budget revision) it came from.
type Step struct {
	ID          int64      `json:"id"`
	SubjectID   int64      `json:"subject_id"`
	Cycle       int        `json:"cycle"`
	StepNumber  int        `json:"step_number"`
	ApproverID  int64      `json:"approver_id"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func (s *Step) terminal() bool {
	switch s.Status {
	case StepStatusApproved, StepStatusRejected, StepStatusCancelled:
		return true
	}
	return false
}

// DecisionResult reports what a RecordDecision call did. Replayed is set
// when an already-processed step was targeted again; the call is a no-op
// and Step carries the existing terminal state.
type DecisionResult struct {
	Step          Step    `json:"step"`
	ChainComplete bool    `json:"chain_complete"`
	Outcome       Outcome `json:"outcome,omitempty"`
	Replayed      bool    `json:"replayed"`
}

// Store is the persistence contract one subject kind (expenses, budget
// revisions) provides to the engine. InTx must hand back a Store bound to
// the transaction, and StepsForUpdate must take row locks inside one so
// two concurrent decisions on the same step serialize.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
	StepsForUpdate(ctx context.Context, subjectID int64) ([]Step, error)
	LatestCycle(ctx context.Context, subjectID int64) (int, error)
	InsertSteps(ctx context.Context, subjectID int64, cycle int, steps []Step) ([]Step, error)
	SaveStep(ctx context.Context, step *Step) error
	MarkSubject(ctx context.Context, subjectID int64, outcome Outcome, approvedAmount *decimal.Decimal, decidedBy int64) error
}
