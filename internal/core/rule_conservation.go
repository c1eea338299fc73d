package core

import (
	"context"
	"fmt"

	"tracecore/pkg/domain"
)

// ConservationRule blocks changes that leave a batch handing out more
// material than it holds. The tolerance allows for measured waste and loss.
func ConservationRule(tolerance float64) domain.Rule {
	if tolerance < 0 {
		tolerance = 0
	}
	return conservationRule{tolerance: tolerance}
}

type conservationRule struct {
	tolerance float64
}

func (conservationRule) Name() string { return RuleQuantityConservation }

func (r conservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[string]struct{})
	for _, change := range changes {
		var sourceID string
		switch {
		case change.Entity == domain.EntityLink && change.Action == domain.ActionCreate:
			link, ok := change.After.(domain.TraceabilityLink)
			if !ok {
				continue
			}
			sourceID = link.SourceBatchID
		case change.Entity == domain.EntityBatch && change.Action == domain.ActionUpdate:
			batch, ok := change.After.(domain.Batch)
			if !ok {
				continue
			}
			sourceID = batch.ID
		default:
			continue
		}
		if _, done := checked[sourceID]; done {
			continue
		}
		checked[sourceID] = struct{}{}
		if v, violated := r.check(view, sourceID); violated {
			res.Violations = append(res.Violations, v)
		}
	}
	return res, nil
}

func (r conservationRule) check(view domain.RuleView, sourceID string) (domain.Violation, bool) {
	source, ok := view.FindBatch(sourceID)
	if !ok {
		return domain.Violation{}, false
	}
	total := 0.0
	for _, link := range view.LinksBySource(sourceID) {
		total += link.QuantityUsed
	}
	if total <= source.Quantity+r.tolerance {
		return domain.Violation{}, false
	}
	return domain.Violation{
		Rule:     RuleQuantityConservation,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("batch %s hands out %.3f %s but only holds %.3f (tolerance %.3f)", sourceID, total, source.Unit, source.Quantity, r.tolerance),
		Entity:   domain.EntityBatch,
		EntityID: sourceID,
	}, true
}
