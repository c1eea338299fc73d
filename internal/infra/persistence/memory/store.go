// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tracecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Batch aliases domain.Batch for in-memory persistence operations.
	Batch = domain.Batch
	// TraceabilityLink aliases domain.TraceabilityLink.
	TraceabilityLink = domain.TraceabilityLink
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	batches map[string]Batch
	links   map[string]TraceabilityLink
	// byConsumer and bySource index link ids per batch, ordered by
	// (counterpart batch id, link id) so adjacency reads are deterministic.
	byConsumer map[string][]string
	bySource   map[string][]string
}

// Snapshot captures a point-in-time clone of the store state. Indexes are
// derived and therefore not part of the snapshot.
type Snapshot struct {
	Batches map[string]Batch            `json:"batches"`
	Links   map[string]TraceabilityLink `json:"links"`
}

func newMemoryState() memoryState {
	return memoryState{
		batches:    make(map[string]Batch),
		links:      make(map[string]TraceabilityLink),
		byConsumer: make(map[string][]string),
		bySource:   make(map[string][]string),
	}
}

func cloneBatch(b Batch) Batch {
	cp := b
	if b.ExpiryDate != nil {
		t := *b.ExpiryDate
		cp.ExpiryDate = &t
	}
	cp.StatusHistory = append([]domain.StatusEvent(nil), b.StatusHistory...)
	if b.Metadata != nil {
		cp.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

func cloneLink(l TraceabilityLink) TraceabilityLink { return l }

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.links {
		cloned.links[k] = cloneLink(v)
	}
	for k, v := range s.byConsumer {
		cloned.byConsumer[k] = append([]string(nil), v...)
	}
	for k, v := range s.bySource {
		cloned.bySource[k] = append([]string(nil), v...)
	}
	return cloned
}

// indexLink inserts the link id into both adjacency indexes, keeping each
// slice ordered by (counterpart batch id, link id).
func (s *memoryState) indexLink(l TraceabilityLink) {
	s.byConsumer[l.ConsumerBatchID] = insertOrdered(s.byConsumer[l.ConsumerBatchID], l.ID, func(id string) (string, string) {
		return s.links[id].SourceBatchID, id
	})
	s.bySource[l.SourceBatchID] = insertOrdered(s.bySource[l.SourceBatchID], l.ID, func(id string) (string, string) {
		return s.links[id].ConsumerBatchID, id
	})
}

func insertOrdered(ids []string, id string, keyOf func(string) (string, string)) []string {
	k1, k2 := keyOf(id)
	pos := sort.Search(len(ids), func(i int) bool {
		c1, c2 := keyOf(ids[i])
		if c1 != k1 {
			return c1 > k1
		}
		return c2 >= k2
	})
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

func (s *memoryState) rebuildIndexes() {
	s.byConsumer = make(map[string][]string)
	s.bySource = make(map[string][]string)
	ids := make([]string, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.indexLink(s.links[id])
	}
}

func (s *memoryState) linksFor(ids []string) []TraceabilityLink {
	out := make([]TraceabilityLink, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneLink(s.links[id]))
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Batches: make(map[string]Batch, len(state.batches)),
		Links:   make(map[string]TraceabilityLink, len(state.links)),
	}
	for k, v := range state.batches {
		s.Batches[k] = cloneBatch(v)
	}
	for k, v := range state.links {
		s.Links[k] = cloneLink(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Batches {
		state.batches[k] = cloneBatch(v)
	}
	for k, v := range s.Links {
		state.links[k] = cloneLink(v)
	}
	state.rebuildIndexes()
	return state
}

// migrateSnapshot normalizes a snapshot loaded from durable storage: nil maps
// become empty, batches missing a status default to in_production with a
// seeded history event, and links referencing missing batches are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Batches == nil {
		snapshot.Batches = map[string]Batch{}
	}
	if snapshot.Links == nil {
		snapshot.Links = map[string]TraceabilityLink{}
	}

	for id, batch := range snapshot.Batches {
		if batch.Status == "" {
			batch.Status = domain.BatchStatusInProduction
		}
		if len(batch.StatusHistory) == 0 {
			batch.StatusHistory = []domain.StatusEvent{{Status: batch.Status, RecordedAt: batch.CreatedAt}}
		}
		snapshot.Batches[id] = batch
	}

	batchExists := func(id string) bool {
		_, ok := snapshot.Batches[id]
		return ok
	}
	for id, link := range snapshot.Links {
		if !batchExists(link.ConsumerBatchID) || !batchExists(link.SourceBatchID) {
			delete(snapshot.Links, id)
		}
	}
	return snapshot
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider. Intended for tests that need
// reproducible timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListBatches returns all batches within the snapshot, ordered by ascending id.
func (v transactionView) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListLinks returns all links within the snapshot, ordered by ascending id.
func (v transactionView) ListLinks() []TraceabilityLink {
	out := make([]TraceabilityLink, 0, len(v.state.links))
	for _, l := range v.state.links {
		out = append(out, cloneLink(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindBatch retrieves a batch by id from the snapshot.
func (v transactionView) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// FindLink retrieves a link by id from the snapshot.
func (v transactionView) FindLink(id string) (TraceabilityLink, bool) {
	l, ok := v.state.links[id]
	if !ok {
		return TraceabilityLink{}, false
	}
	return cloneLink(l), true
}

// LinksByConsumer returns the indexed links consumed by the batch.
func (v transactionView) LinksByConsumer(batchID string) []TraceabilityLink {
	return v.state.linksFor(v.state.byConsumer[batchID])
}

// LinksBySource returns the indexed links sourced from the batch.
func (v transactionView) LinksBySource(batchID string) []TraceabilityLink {
	return v.state.linksFor(v.state.bySource[batchID])
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindBatch retrieves a batch from the transactional state.
func (tx *transaction) FindBatch(id string) (Batch, bool) {
	b, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// FindLink retrieves a link from the transactional state.
func (tx *transaction) FindLink(id string) (TraceabilityLink, bool) {
	l, ok := tx.state.links[id]
	if !ok {
		return TraceabilityLink{}, false
	}
	return cloneLink(l), true
}

// CreateBatch stores a new batch within the transaction. A missing status
// defaults to in_production and the status history is seeded.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	if b.Status == "" {
		b.Status = domain.BatchStatusInProduction
	}
	if !domain.ValidBatchStatus(b.Status) {
		return Batch{}, fmt.Errorf("batch %q has invalid status %q", b.ID, b.Status)
	}
	if b.Quantity < 0 {
		return Batch{}, errors.New("batch quantity must not be negative")
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	if len(b.StatusHistory) == 0 {
		b.StatusHistory = []domain.StatusEvent{{Status: b.Status, RecordedAt: tx.now}}
	}
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: cloneBatch(b)})
	return cloneBatch(b), nil
}

// UpdateBatch mutates a batch using the provided mutator function. The status
// history is append-only; mutators that shrink it are rejected.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("batch %q not found", id)
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	if len(current.StatusHistory) < len(before.StatusHistory) {
		return Batch{}, fmt.Errorf("batch %q status history is append-only", id)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: cloneBatch(current)})
	return cloneBatch(current), nil
}

// SetBatchStatus appends a status event and updates the batch status. The
// allowed-transition check runs at commit via the rules engine.
func (tx *transaction) SetBatchStatus(id string, status domain.BatchStatus, note string) (Batch, error) {
	return tx.UpdateBatch(id, func(b *Batch) error {
		b.Status = status
		b.StatusHistory = append(b.StatusHistory, domain.StatusEvent{
			Status:     status,
			Note:       note,
			RecordedAt: tx.now,
		})
		return nil
	})
}

// CreateLink stores a new traceability link. Links are immutable once
// created; there is no update or delete counterpart.
func (tx *transaction) CreateLink(l TraceabilityLink) (TraceabilityLink, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.links[l.ID]; exists {
		return TraceabilityLink{}, fmt.Errorf("link %q already exists", l.ID)
	}
	if !domain.ValidRelationshipType(l.Relationship) {
		return TraceabilityLink{}, fmt.Errorf("link %q has invalid relationship type %q", l.ID, l.Relationship)
	}
	if l.QuantityUsed <= 0 {
		return TraceabilityLink{}, errors.New("link quantity_used must be positive")
	}
	if _, ok := tx.state.batches[l.ConsumerBatchID]; !ok {
		return TraceabilityLink{}, domain.NotFoundError(l.ConsumerBatchID)
	}
	if _, ok := tx.state.batches[l.SourceBatchID]; !ok {
		return TraceabilityLink{}, domain.NotFoundError(l.SourceBatchID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.links[l.ID] = cloneLink(l)
	tx.state.indexLink(l)
	tx.recordChange(Change{Entity: domain.EntityLink, Action: domain.ActionCreate, After: cloneLink(l)})
	return cloneLink(l), nil
}

// Read helpers ---------------------------------------------------------------

// GetBatch retrieves a batch by id from committed state.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// GetLink retrieves a link by id from committed state.
func (s *Store) GetLink(id string) (TraceabilityLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.links[id]
	if !ok {
		return TraceabilityLink{}, false
	}
	return cloneLink(l), true
}

// ListBatches returns all batches from committed state, ordered by ascending id.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Batch, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListLinks returns all links from committed state, ordered by ascending id.
func (s *Store) ListLinks() []TraceabilityLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TraceabilityLink, 0, len(s.state.links))
	for _, l := range s.state.links {
		out = append(out, cloneLink(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LinksByConsumer returns the indexed links where the batch is the consumer.
func (s *Store) LinksByConsumer(batchID string) []TraceabilityLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.linksFor(s.state.byConsumer[batchID])
}

// LinksBySource returns the indexed links where the batch is the source.
func (s *Store) LinksBySource(batchID string) []TraceabilityLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.linksFor(s.state.bySource[batchID])
}

// SearchBatches returns batches matching the criteria, ordered by ascending id.
func (s *Store) SearchBatches(criteria domain.BatchSearch) []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Batch
	for _, b := range s.state.batches {
		if criteria.Matches(b) {
			out = append(out, cloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
