package core

import (
	"context"
	"fmt"

	"tracecore/pkg/domain"
)

// StatusTransitionRule blocks batch status changes outside the lifecycle
// state machine. Recalled and disposed are terminal.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

func (statusTransitionRule) Name() string { return RuleStatusTransition }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBatch {
			continue
		}
		after, ok := change.After.(domain.Batch)
		if !ok {
			continue
		}
		if !domain.ValidBatchStatus(after.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleStatusTransition,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s is set to invalid status %s", after.ID, after.Status),
				Entity:   domain.EntityBatch,
				EntityID: after.ID,
			})
			continue
		}
		if change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.Batch)
		if !ok || before.Status == after.Status {
			continue
		}
		if !transitionAllowed(before.Status, after.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleStatusTransition,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move batch %s from %s to %s", after.ID, before.Status, after.Status),
				Entity:   domain.EntityBatch,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func transitionAllowed(from, to domain.BatchStatus) bool {
	for _, next := range domain.AllowedStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
