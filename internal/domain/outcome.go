package domain

import "context"

// OutcomeKind classifies what an adapter operation actually did, so
// callers can tell "nothing to do" apart from "did the work" without
// inspecting errors.
type OutcomeKind string

const (
	// OutcomeCompleted means the operation ran and the service confirmed it.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeAlreadyAbsent means the service had no data for the learner.
	// Delete-type operations treat this as success.
	OutcomeAlreadyAbsent OutcomeKind = "already_absent"
	// OutcomeNoOp means the operation intentionally did nothing, for
	// example a vendor that requires manual follow-up instead of deletion.
	OutcomeNoOp OutcomeKind = "no_op"
)

// StepOutcome is the result of a successful adapter operation. Detail is
// persisted into the learner's state-transition message.
type StepOutcome struct {
	Kind   OutcomeKind
	Detail string
}

func Completed(detail string) StepOutcome {
	return StepOutcome{Kind: OutcomeCompleted, Detail: detail}
}

func AlreadyAbsent(detail string) StepOutcome {
	return StepOutcome{Kind: OutcomeAlreadyAbsent, Detail: detail}
}

func NoOp(detail string) StepOutcome {
	return StepOutcome{Kind: OutcomeNoOp, Detail: detail}
}

// Message renders the outcome for the persisted transition message.
func (o StepOutcome) Message() string {
	if o.Detail == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + ": " + o.Detail
}

// StepFunc is the uniform adapter operation signature. Every operation
// takes the full learner record even when it uses a single field, so the
// pipeline can reference any operation generically by name.
type StepFunc func(ctx context.Context, learner *LearnerRecord) (StepOutcome, error)
