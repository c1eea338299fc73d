package core

import (
	"context"
	"fmt"

	"tracecore/pkg/domain"
)

// AcyclicityRule blocks link creations that would make a batch reachable from
// itself along consumption edges. It runs against the post-change snapshot,
// so the candidate link is already part of the view.
func AcyclicityRule() domain.Rule {
	return acyclicityRule{}
}

type acyclicityRule struct{}

func (acyclicityRule) Name() string { return RuleLinkAcyclicity }

func (acyclicityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityLink || change.Action != domain.ActionCreate {
			continue
		}
		link, ok := change.After.(domain.TraceabilityLink)
		if !ok {
			continue
		}
		if link.ConsumerBatchID == link.SourceBatchID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleLinkAcyclicity,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("link %s makes batch %s consume itself", link.ID, link.SourceBatchID),
				Entity:   domain.EntityLink,
				EntityID: link.ID,
			})
			continue
		}
		if reachesDownstream(view, link.ConsumerBatchID, link.SourceBatchID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     RuleLinkAcyclicity,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("link %s closes a cycle: batch %s is downstream of batch %s", link.ID, link.SourceBatchID, link.ConsumerBatchID),
				Entity:   domain.EntityLink,
				EntityID: link.ID,
			})
		}
	}
	return res, nil
}

// reachesDownstream walks consumption edges from start and reports whether
// target appears. The visited set keeps the walk bounded on an already
// corrupted graph.
func reachesDownstream(view domain.RuleView, start, target string) bool {
	visited := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, link := range view.LinksBySource(id) {
			consumer := link.ConsumerBatchID
			if consumer == target {
				return true
			}
			if _, seen := visited[consumer]; seen {
				continue
			}
			visited[consumer] = struct{}{}
			stack = append(stack, consumer)
		}
	}
	return false
}
