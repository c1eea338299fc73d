package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tracecore/internal/blob"
	"tracecore/internal/infra/persistence/memory"
	"tracecore/pkg/domain"
)

// ErrNoArchiver is returned by archive operations when the service was built
// without a report archiver.
var ErrNoArchiver = errors.New("report archiver not configured")

// Service exposes the transactional write operations, reads, traversal, and
// recall simulation as one instrumented facade.
type Service struct {
	store    domain.PersistentStore
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
	archiver *ReportArchiver
	trace    *TraceEngine
	recall   *RecallEngine
}

// NewService constructs a service over a pre-wired store.
func NewService(store domain.PersistentStore, options ...ServiceOption) *Service {
	opts := defaultServiceOptions()
	for _, option := range options {
		option(&opts)
	}
	if setter, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		setter.SetNowFunc(opts.clock.Now)
	}
	traceEngine := NewTraceEngine(store, opts.traceConfig)
	traceEngine.SetNowFunc(opts.clock.Now)
	recallEngine := NewRecallEngine(store, opts.traceConfig)
	recallEngine.SetNowFunc(opts.clock.Now)
	if opts.archiver != nil {
		opts.archiver.SetNowFunc(opts.clock.Now)
	}
	return &Service{
		store:    store,
		metrics:  opts.metrics,
		tracer:   opts.tracer,
		clock:    opts.clock,
		archiver: opts.archiver,
		trace:    traceEngine,
		recall:   recallEngine,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store carrying
// the given rules engine (nil gets the default rules).
func NewInMemoryService(engine *RulesEngine, options ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), options...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(start))
		span.End(err)
	}
}

// mapRuleViolation converts blocking violations from the graph-shape rules
// into their typed errors so callers can branch on kind instead of parsing
// violation lists.
func mapRuleViolation(err error) error {
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		return err
	}
	for _, v := range rve.Result.Violations {
		if v.Severity != domain.SeverityBlock {
			continue
		}
		switch v.Rule {
		case RuleQuantityConservation:
			return &domain.Error{Kind: domain.KindConservationViolation, Message: v.Message, BatchIDs: []string{v.EntityID}}
		case RuleLinkAcyclicity:
			return &domain.Error{Kind: domain.KindCycleDetected, Message: v.Message, LinkIDs: []string{v.EntityID}}
		}
	}
	return err
}

// CreateBatch persists a new batch.
func (s *Service) CreateBatch(ctx context.Context, batch Batch) (Batch, Result, error) {
	ctx, done := s.instrument(ctx, "create_batch")
	var created Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBatch(batch)
		return err
	})
	done(err)
	return created, res, err
}

// UpdateBatch mutates a batch using the provided mutator.
func (s *Service) UpdateBatch(ctx context.Context, id string, mutator func(*Batch) error) (Batch, Result, error) {
	ctx, done := s.instrument(ctx, "update_batch")
	var updated Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateBatch(id, mutator)
		return err
	})
	err = mapRuleViolation(err)
	done(err)
	return updated, res, err
}

// SetBatchStatus appends a status history event and moves the batch to the
// new status. Illegal transitions are blocked by the status transition rule.
func (s *Service) SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus, note string) (Batch, Result, error) {
	ctx, done := s.instrument(ctx, "set_batch_status")
	var updated Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.SetBatchStatus(id, status, note)
		return err
	})
	done(err)
	return updated, res, err
}

// CreateLink persists a traceability link. Links that close a cycle or break
// quantity conservation are rejected with the matching typed error.
func (s *Service) CreateLink(ctx context.Context, link TraceabilityLink) (TraceabilityLink, Result, error) {
	ctx, done := s.instrument(ctx, "create_link")
	var created TraceabilityLink
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateLink(link)
		return err
	})
	err = mapRuleViolation(err)
	done(err)
	return created, res, err
}

// GetBatch retrieves a batch by id.
func (s *Service) GetBatch(id string) (Batch, error) {
	batch, ok := s.store.GetBatch(id)
	if !ok {
		return Batch{}, domain.NotFoundError(id)
	}
	return batch, nil
}

// GetLink retrieves a link by id.
func (s *Service) GetLink(id string) (TraceabilityLink, error) {
	link, ok := s.store.GetLink(id)
	if !ok {
		return TraceabilityLink{}, &domain.Error{
			Kind:    domain.KindNotFound,
			Message: fmt.Sprintf("link %s not found", id),
			LinkIDs: []string{id},
		}
	}
	return link, nil
}

// ListBatches returns all batches ordered by id.
func (s *Service) ListBatches() []Batch {
	return s.store.ListBatches()
}

// ListLinks returns all links ordered by id.
func (s *Service) ListLinks() []TraceabilityLink {
	return s.store.ListLinks()
}

// SearchBatches returns the batches matching every populated criterion,
// ordered by id.
func (s *Service) SearchBatches(criteria BatchSearch) []Batch {
	return s.store.SearchBatches(criteria)
}

// Trace runs a bounded genealogy traversal.
func (s *Service) Trace(ctx context.Context, req TraceRequest) (TraceReport, error) {
	ctx, done := s.instrument(ctx, "trace")
	report, err := s.trace.Trace(ctx, req)
	done(err)
	return report, err
}

// SimulateRecall computes the downstream impact of a hazard without touching
// stored state.
func (s *Service) SimulateRecall(ctx context.Context, req RecallRequest) (RecallPlan, error) {
	ctx, done := s.instrument(ctx, "simulate_recall")
	plan, err := s.recall.Simulate(ctx, req)
	done(err)
	return plan, err
}

// ArchiveTraceReport retains a generated report as an immutable blob.
func (s *Service) ArchiveTraceReport(ctx context.Context, report TraceReport) (blob.Info, error) {
	ctx, done := s.instrument(ctx, "archive_trace_report")
	if s.archiver == nil {
		done(ErrNoArchiver)
		return blob.Info{}, ErrNoArchiver
	}
	info, err := s.archiver.ArchiveTraceReport(ctx, report)
	done(err)
	return info, err
}

// ArchiveRecallPlan retains a recall plan as an immutable blob.
func (s *Service) ArchiveRecallPlan(ctx context.Context, plan RecallPlan) (blob.Info, error) {
	ctx, done := s.instrument(ctx, "archive_recall_plan")
	if s.archiver == nil {
		done(ErrNoArchiver)
		return blob.Info{}, ErrNoArchiver
	}
	info, err := s.archiver.ArchiveRecallPlan(ctx, plan)
	done(err)
	return info, err
}
