package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tracecore/pkg/domain"
)

// RecallRequest describes a recall simulation. Triggers may be named directly,
// resolved through search criteria, or both; duplicates collapse.
type RecallRequest struct {
	TriggerBatchIDs   []string
	Search            *domain.BatchSearch
	HazardDescription string
	SeverityHint      string
	// Thresholds maps tainted fractions to recommended actions. Empty uses
	// domain.DefaultActionThresholds.
	Thresholds []domain.ActionThreshold
	// MaxDepth bounds the downstream walk. Defaults to the depth ceiling.
	MaxDepth *int
}

// RecallEngine computes the downstream impact of a hazard. It is a pure
// computation: persisting a recall record from the returned plan is the
// caller's responsibility.
type RecallEngine struct {
	store  domain.PersistentStore
	config TraceConfig
	nowFn  func() time.Time
}

// NewRecallEngine constructs a recall engine over the store.
func NewRecallEngine(store domain.PersistentStore, config TraceConfig) *RecallEngine {
	return &RecallEngine{store: store, config: config.normalized(), nowFn: time.Now}
}

// SetNowFunc overrides the plan timestamp source.
func (e *RecallEngine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

// Simulate resolves the trigger batches, walks the downstream genealogy, and
// attributes tainted quantity to every affected batch.
func (e *RecallEngine) Simulate(ctx context.Context, req RecallRequest) (domain.RecallPlan, error) {
	depth := e.config.DepthCeiling
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	if depth < 0 || depth > e.config.DepthCeiling {
		return domain.RecallPlan{}, domain.InvalidDepthError(depth, e.config.DepthCeiling)
	}

	var plan domain.RecallPlan
	err := e.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		plan, err = e.simulateView(ctx, view, req, depth)
		return err
	})
	if err != nil {
		return domain.RecallPlan{}, err
	}
	return plan, nil
}

func (e *RecallEngine) simulateView(ctx context.Context, view domain.RuleView, req RecallRequest, depth int) (domain.RecallPlan, error) {
	triggers, err := resolveTriggers(view, req)
	if err != nil {
		return domain.RecallPlan{}, err
	}

	triggerSet := make(map[string]struct{}, len(triggers))
	for _, id := range triggers {
		triggerSet[id] = struct{}{}
	}

	visited := make(map[string]struct{}, len(triggers))
	var order []string
	var warnings []domain.TraceWarning
	warnedLinks := make(map[string]struct{})

	frontier := append([]string(nil), triggers...)
	sort.Strings(frontier)
	for _, id := range frontier {
		visited[id] = struct{}{}
	}
	order = append(order, frontier...)

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var discovered []string
		for _, id := range frontier {
			if ctx.Err() != nil {
				return domain.RecallPlan{}, domain.TimeoutError("simulate_recall", triggers[0])
			}
			for _, link := range view.LinksBySource(id) {
				consumer := link.ConsumerBatchID
				if consumer == id {
					if _, done := warnedLinks[link.ID]; !done {
						warnedLinks[link.ID] = struct{}{}
						warnings = append(warnings, domain.TraceWarning{
							Kind:     domain.KindCycleDetected,
							Message:  fmt.Sprintf("link %s connects batch %s to itself", link.ID, id),
							BatchIDs: []string{id},
							LinkIDs:  []string{link.ID},
						})
					}
					continue
				}
				if _, seen := visited[consumer]; seen {
					if _, isTrigger := triggerSet[consumer]; isTrigger {
						if _, done := warnedLinks[link.ID]; !done {
							warnedLinks[link.ID] = struct{}{}
							warnings = append(warnings, domain.TraceWarning{
								Kind:     domain.KindCycleDetected,
								Message:  fmt.Sprintf("link %s leads back to trigger batch %s", link.ID, consumer),
								BatchIDs: []string{id, consumer},
								LinkIDs:  []string{link.ID},
							})
						}
					}
					continue
				}
				if _, ok := view.FindBatch(consumer); !ok {
					continue
				}
				visited[consumer] = struct{}{}
				if len(visited) > e.config.MaxBatches {
					return domain.RecallPlan{}, domain.GraphTooLargeError(len(visited), e.config.MaxBatches, triggers[0])
				}
				discovered = append(discovered, consumer)
			}
		}
		sort.Strings(discovered)
		order = append(order, discovered...)
		frontier = discovered
	}

	fractions, attributionWarnings := attributeTaint(view, visited, triggerSet)
	warnings = append(warnings, attributionWarnings...)

	entries := make([]domain.RecallEntry, 0, len(order))
	for _, id := range order {
		batch, _ := view.FindBatch(id)
		fraction := fractions[id]
		entries = append(entries, domain.RecallEntry{
			BatchID:          id,
			BatchNumber:      batch.BatchNumber,
			TaintedFraction:  fraction,
			QuantityAffected: batch.Quantity * fraction,
			Unit:             batch.Unit,
			Action:           domain.ActionFor(req.Thresholds, fraction),
			Metadata:         batch.Metadata,
		})
	}

	return domain.RecallPlan{
		TriggerBatchIDs:   triggers,
		HazardDescription: req.HazardDescription,
		SeverityHint:      req.SeverityHint,
		Entries:           entries,
		Warnings:          warnings,
		GeneratedAt:       e.nowFn().UTC(),
	}, nil
}

// resolveTriggers collects the trigger batches: explicit ids must all exist,
// search criteria add matches in ascending id order.
func resolveTriggers(view domain.RuleView, req RecallRequest) ([]string, error) {
	var triggers []string
	seen := make(map[string]struct{})
	for _, id := range req.TriggerBatchIDs {
		if _, ok := view.FindBatch(id); !ok {
			return nil, domain.NotFoundError(id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		triggers = append(triggers, id)
	}
	if req.Search != nil {
		for _, batch := range view.ListBatches() {
			if !req.Search.Matches(batch) {
				continue
			}
			if _, dup := seen[batch.ID]; dup {
				continue
			}
			seen[batch.ID] = struct{}{}
			triggers = append(triggers, batch.ID)
		}
	}
	if len(triggers) == 0 {
		return nil, &domain.Error{Kind: domain.KindNotFound, Message: "no batches match recall trigger criteria"}
	}
	return triggers, nil
}

// attributeTaint computes tainted fractions over the affected set. Triggers
// carry 1.0. Every other batch takes the maximum over its incoming links from
// affected sources of link_ratio times the source fraction, where link_ratio
// is quantity_used over the source batch quantity, clamped to [0,1]. Max
// rather than sum keeps converging paths of the same contamination from
// double-counting.
func attributeTaint(view domain.RuleView, affected map[string]struct{}, triggerSet map[string]struct{}) (map[string]float64, []domain.TraceWarning) {
	fractions := make(map[string]float64, len(affected))
	var warnings []domain.TraceWarning
	warnedLinks := make(map[string]struct{})

	indeg := make(map[string]int, len(affected))
	adjacency := make(map[string][]string)
	for id := range affected {
		indeg[id] = 0
	}
	for id := range affected {
		if _, isTrigger := triggerSet[id]; isTrigger {
			fractions[id] = 1.0
			continue
		}
		for _, link := range view.LinksByConsumer(id) {
			source := link.SourceBatchID
			if source == id {
				continue
			}
			if _, ok := affected[source]; !ok {
				continue
			}
			indeg[id]++
			adjacency[source] = append(adjacency[source], id)
		}
	}

	recompute := func(id string) float64 {
		fraction := 0.0
		for _, link := range view.LinksByConsumer(id) {
			source := link.SourceBatchID
			if source == id {
				continue
			}
			sourceFraction, ok := fractions[source]
			if !ok {
				continue
			}
			sourceBatch, found := view.FindBatch(source)
			ratio := 1.0
			if found && sourceBatch.Quantity > 0 {
				ratio = link.QuantityUsed / sourceBatch.Quantity
			}
			if found && link.QuantityUsed > sourceBatch.Quantity {
				if _, done := warnedLinks[link.ID]; !done {
					warnedLinks[link.ID] = struct{}{}
					warnings = append(warnings, domain.TraceWarning{
						Kind:     domain.KindConservationViolation,
						Message:  fmt.Sprintf("link %s uses %.3f of batch %s which only holds %.3f", link.ID, link.QuantityUsed, source, sourceBatch.Quantity),
						BatchIDs: []string{source},
						LinkIDs:  []string{link.ID},
					})
				}
			}
			if ratio > 1 {
				ratio = 1
			}
			if contribution := ratio * sourceFraction; contribution > fraction {
				fraction = contribution
			}
		}
		if fraction > 1 {
			fraction = 1
		}
		return fraction
	}

	// Kahn ordering so every source fraction is final before its consumers.
	var ready []string
	for id := range affected {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	processed := 0
	for len(ready) > 0 {
		var next []string
		for _, id := range ready {
			processed++
			if _, isTrigger := triggerSet[id]; !isTrigger {
				fractions[id] = recompute(id)
			}
			for _, consumer := range adjacency[id] {
				indeg[consumer]--
				if indeg[consumer] == 0 {
					next = append(next, consumer)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}

	if processed < len(affected) {
		var remaining []string
		for id := range affected {
			if _, done := fractions[id]; !done {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		warnings = append(warnings, domain.TraceWarning{
			Kind:     domain.KindCycleDetected,
			Message:  "attribution order contains a cycle; fractions for the affected batches converged by relaxation",
			BatchIDs: remaining,
		})
		for _, id := range remaining {
			fractions[id] = 0
		}
		// Bounded relaxation: max-based fractions only ever grow and are
		// capped at 1, so a pass per remaining node reaches the fixpoint.
		for pass := 0; pass <= len(remaining); pass++ {
			changed := false
			for _, id := range remaining {
				if updated := recompute(id); updated > fractions[id] {
					fractions[id] = updated
					changed = true
				}
			}
			if !changed {
				break
			}
		}
	}

	return fractions, warnings
}
