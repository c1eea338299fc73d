package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tracecore/pkg/domain"
)

// TraceConfig bounds graph traversal. The zero value is replaced field by
// field with the defaults.
type TraceConfig struct {
	// DefaultDepth applies when a request does not specify a depth.
	DefaultDepth int
	// DepthCeiling is the hard upper bound on requested depth.
	DepthCeiling int
	// MaxBatches caps the visited set. Exceeding it aborts the whole
	// operation; a partial result is never returned.
	MaxBatches int
}

// DefaultTraceConfig returns the standard traversal bounds.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{DefaultDepth: 5, DepthCeiling: 10, MaxBatches: 100000}
}

func (c TraceConfig) normalized() TraceConfig {
	def := DefaultTraceConfig()
	if c.DefaultDepth <= 0 {
		c.DefaultDepth = def.DefaultDepth
	}
	if c.DepthCeiling <= 0 {
		c.DepthCeiling = def.DepthCeiling
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = def.MaxBatches
	}
	if c.DefaultDepth > c.DepthCeiling {
		c.DefaultDepth = c.DepthCeiling
	}
	return c
}

// TraceRequest describes one traversal.
type TraceRequest struct {
	StartBatchID string
	Direction    domain.TraceDirection
	// MaxDepth overrides the configured default when set. Values outside
	// [0, DepthCeiling] are rejected, never clamped.
	MaxDepth *int
}

// TraceEngine performs bounded, deterministic genealogy traversals.
type TraceEngine struct {
	store  domain.PersistentStore
	config TraceConfig
	nowFn  func() time.Time
}

// NewTraceEngine constructs a trace engine over the store.
func NewTraceEngine(store domain.PersistentStore, config TraceConfig) *TraceEngine {
	return &TraceEngine{store: store, config: config.normalized(), nowFn: time.Now}
}

// SetNowFunc overrides the report timestamp source.
func (e *TraceEngine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

// Config returns the normalized traversal bounds.
func (e *TraceEngine) Config() TraceConfig { return e.config }

// Trace runs a traversal against a consistent snapshot of the store. Two
// calls with identical inputs on an unchanged graph produce identical reports
// apart from the timestamp.
func (e *TraceEngine) Trace(ctx context.Context, req TraceRequest) (domain.TraceReport, error) {
	if !domain.ValidTraceDirection(req.Direction) {
		return domain.TraceReport{}, fmt.Errorf("unknown trace direction %q", req.Direction)
	}
	depth := e.config.DefaultDepth
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	if depth < 0 || depth > e.config.DepthCeiling {
		return domain.TraceReport{}, domain.InvalidDepthError(depth, e.config.DepthCeiling)
	}

	var report domain.TraceReport
	err := e.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		report, err = e.traceView(ctx, view, req.StartBatchID, req.Direction, depth)
		return err
	})
	if err != nil {
		return domain.TraceReport{}, err
	}
	return report, nil
}

// traversalEdge is one candidate expansion from a visited batch.
type traversalEdge struct {
	link      domain.TraceabilityLink
	linkedID  string
	direction domain.TraceDirection
}

// expandEdges lists the edges leaving batchID in the requested direction(s).
// Adjacency is already ordered ascending by linked batch id then link id, and
// for a full trace backward edges precede forward ones.
func expandEdges(view domain.RuleView, batchID string, direction domain.TraceDirection) []traversalEdge {
	var out []traversalEdge
	if direction == domain.TraceBackward || direction == domain.TraceFull {
		for _, link := range view.LinksByConsumer(batchID) {
			out = append(out, traversalEdge{link: link, linkedID: link.SourceBatchID, direction: domain.TraceBackward})
		}
	}
	if direction == domain.TraceForward || direction == domain.TraceFull {
		for _, link := range view.LinksBySource(batchID) {
			out = append(out, traversalEdge{link: link, linkedID: link.ConsumerBatchID, direction: domain.TraceForward})
		}
	}
	return out
}

func tracedBatch(b domain.Batch, depth int) domain.TracedBatch {
	return domain.TracedBatch{
		BatchID:     b.ID,
		BatchNumber: b.BatchNumber,
		Type:        b.Type,
		Status:      b.Status,
		Quantity:    b.Quantity,
		Unit:        b.Unit,
		Depth:       depth,
	}
}

func (e *TraceEngine) traceView(ctx context.Context, view domain.RuleView, startID string, direction domain.TraceDirection, depth int) (domain.TraceReport, error) {
	graph := NewGenealogyGraph(view)
	start, err := graph.Batch(startID)
	if err != nil {
		return domain.TraceReport{}, err
	}

	visited := map[string]struct{}{startID: {}}
	traced := []domain.TracedBatch{tracedBatch(start, 0)}
	tracePath := make(map[string][]domain.TraceEdge)
	var warnings []domain.TraceWarning
	warnedLinks := make(map[string]struct{})

	// A full trace is the union of the backward and forward walks anchored at
	// the start: only the start expands both directions, every other batch
	// keeps expanding in the direction it was discovered. Mixing directions at
	// interior nodes would pull in relatives of the start's ancestors and
	// descendants, such as a sibling sharing a parent.
	nodeDir := map[string]domain.TraceDirection{startID: direction}

	frontier := []string{startID}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var discovered []string
		for _, id := range frontier {
			if ctx.Err() != nil {
				return domain.TraceReport{}, domain.TimeoutError("trace", startID)
			}
			for _, cand := range expandEdges(view, id, nodeDir[id]) {
				if cand.linkedID == id {
					if _, done := warnedLinks[cand.link.ID]; !done {
						warnedLinks[cand.link.ID] = struct{}{}
						warnings = append(warnings, domain.TraceWarning{
							Kind:     domain.KindCycleDetected,
							Message:  fmt.Sprintf("link %s connects batch %s to itself", cand.link.ID, id),
							BatchIDs: []string{id},
							LinkIDs:  []string{cand.link.ID},
						})
					}
					continue
				}
				if _, seen := visited[cand.linkedID]; seen {
					if cand.linkedID == startID {
						if _, done := warnedLinks[cand.link.ID]; !done {
							warnedLinks[cand.link.ID] = struct{}{}
							warnings = append(warnings, domain.TraceWarning{
								Kind:     domain.KindCycleDetected,
								Message:  fmt.Sprintf("link %s leads back to starting batch %s", cand.link.ID, startID),
								BatchIDs: []string{id, startID},
								LinkIDs:  []string{cand.link.ID},
							})
						}
					}
					continue
				}
				if _, ok := view.FindBatch(cand.linkedID); !ok {
					continue
				}
				visited[cand.linkedID] = struct{}{}
				nodeDir[cand.linkedID] = cand.direction
				if len(visited) > e.config.MaxBatches {
					return domain.TraceReport{}, domain.GraphTooLargeError(len(visited), e.config.MaxBatches, startID)
				}
				discovered = append(discovered, cand.linkedID)
				tracePath[id] = append(tracePath[id], domain.TraceEdge{
					LinkID:        cand.link.ID,
					LinkedBatchID: cand.linkedID,
					Relationship:  cand.link.Relationship,
					QuantityUsed:  cand.link.QuantityUsed,
					Unit:          cand.link.Unit,
					Direction:     cand.direction,
				})
			}
		}
		// Canonical visit order: level by level, ascending batch id within
		// the level.
		sort.Strings(discovered)
		for _, id := range discovered {
			batch, _ := view.FindBatch(id)
			traced = append(traced, tracedBatch(batch, level+1))
		}
		frontier = discovered
	}

	summary := domain.TraceSummary{
		TotalBatches: len(traced),
		ByType:       make(map[domain.BatchType]int),
		ByStatus:     make(map[domain.BatchStatus]int),
	}
	for _, tb := range traced {
		summary.ByType[tb.Type]++
		summary.ByStatus[tb.Status]++
	}

	return domain.TraceReport{
		StartingBatch: startID,
		Direction:     direction,
		MaxDepth:      depth,
		TracedBatches: traced,
		TracePath:     tracePath,
		Summary:       summary,
		Warnings:      warnings,
		GeneratedAt:   e.nowFn().UTC(),
	}, nil
}
