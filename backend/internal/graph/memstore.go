package graph

import (
	"context"
	"fmt"
	"sync"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
)

// MemStore is an in-memory Store. Nodes live in per-label maps and edges in
// outgoing/incoming adjacency indexes. Writers are serialised and every write
// unit of work keeps an undo log that is replayed on failure.
type MemStore struct {
	mu     sync.RWMutex
	unique UniqueKeys
	nodes  map[string]map[string]Props
	out    map[NodeRef]map[Edge]struct{}
	in     map[NodeRef]map[Edge]struct{}
}

// Compile-time check that MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	o := applyOptions(opts)
	return &MemStore{
		unique: o.unique,
		nodes:  make(map[string]map[string]Props),
		out:    make(map[NodeRef]map[Edge]struct{}),
		in:     make(map[NodeRef]map[Edge]struct{}),
	}
}

// InitSchema is a no-op; uniqueness is enforced on every write.
func (s *MemStore) InitSchema(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemStore) Close(_ context.Context) error { return nil }

// View runs fn under a read lock.
func (s *MemStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("view aborted: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s})
}

// Update runs fn under the write lock, undoing its changes if fn fails or panics.
func (s *MemStore) Update(ctx context.Context, fn func(Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update aborted: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, writable: true}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		tx.rollback()
	}
	return err
}

type memTx struct {
	s        *MemStore
	writable bool
	undo     []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// ============================================================================
// Low-level mutation with undo
// ============================================================================

func (tx *memTx) putNode(label, id string, props Props) {
	byID := tx.s.nodes[label]
	if byID == nil {
		byID = make(map[string]Props)
		tx.s.nodes[label] = byID
	}
	prev, existed := byID[id]
	byID[id] = props
	tx.undo = append(tx.undo, func() {
		if existed {
			byID[id] = prev
		} else {
			delete(byID, id)
		}
	})
}

func (tx *memTx) removeNode(label, id string) {
	byID := tx.s.nodes[label]
	prev, existed := byID[id]
	if !existed {
		return
	}
	delete(byID, id)
	tx.undo = append(tx.undo, func() { byID[id] = prev })
}

func (tx *memTx) putEdge(e Edge) {
	addIndex(tx.s.out, e.From, e)
	addIndex(tx.s.in, e.To, e)
	tx.undo = append(tx.undo, func() {
		removeIndex(tx.s.out, e.From, e)
		removeIndex(tx.s.in, e.To, e)
	})
}

func (tx *memTx) removeEdge(e Edge) {
	removeIndex(tx.s.out, e.From, e)
	removeIndex(tx.s.in, e.To, e)
	tx.undo = append(tx.undo, func() {
		addIndex(tx.s.out, e.From, e)
		addIndex(tx.s.in, e.To, e)
	})
}

func addIndex(idx map[NodeRef]map[Edge]struct{}, ref NodeRef, e Edge) {
	set := idx[ref]
	if set == nil {
		set = make(map[Edge]struct{})
		idx[ref] = set
	}
	set[e] = struct{}{}
}

func removeIndex(idx map[NodeRef]map[Edge]struct{}, ref NodeRef, e Edge) {
	set := idx[ref]
	delete(set, e)
	if len(set) == 0 {
		delete(idx, ref)
	}
}

func (tx *memTx) lookup(label string) func(key string, value interface{}) (string, bool) {
	return func(key string, value interface{}) (string, bool) {
		best := ""
		for id, props := range tx.s.nodes[label] {
			if v, ok := props[key]; ok && valuesEqual(v, value) && (best == "" || id < best) {
				best = id
			}
		}
		return best, best != ""
	}
}

func (tx *memTx) exists(ref NodeRef) bool {
	_, ok := tx.s.nodes[ref.Label][ref.ID]
	return ok
}

// ============================================================================
// Tx Operations
// ============================================================================

func (tx *memTx) Nodes(_ context.Context, refs ...NodeRef) ([]Node, error) {
	out := make([]Node, 0, len(refs))
	for _, ref := range refs {
		if props, ok := tx.s.nodes[ref.Label][ref.ID]; ok {
			out = append(out, nodeFrom(ref.Label, props.Clone()))
		}
	}
	return out, nil
}

func (tx *memTx) Match(ctx context.Context, p Pattern) ([]Node, error) {
	if err := checkPattern(p); err != nil {
		return nil, err
	}
	var candidates []Node
	for _, props := range tx.s.nodes[p.Label] {
		if matchesProps(props, p.Props) {
			candidates = append(candidates, nodeFrom(p.Label, props.Clone()))
		}
	}
	sortNodes(candidates)
	return filterByRels(ctx, tx, candidates, p.Rels)
}

func (tx *memTx) Create(_ context.Context, n Node) error {
	if !tx.writable {
		return errReadOnly
	}
	if err := checkIdentifiers("label", n.Label); err != nil {
		return err
	}
	if err := checkProps(n.Props); err != nil {
		return err
	}
	if tx.exists(n.Ref()) {
		return apperrors.NewIntegrityViolation(fmt.Sprintf("%s with id %s already exists", n.Label, n.ID), nil)
	}
	props := NormalizeProps(n.Props)
	props[constants.PropID] = n.ID
	if err := uniqueConflict(tx.s.unique, n.Label, props, n.ID, tx.lookup(n.Label)); err != nil {
		return err
	}
	tx.putNode(n.Label, n.ID, props)
	return nil
}

func (tx *memTx) Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error) {
	if !tx.writable {
		return Node{}, errReadOnly
	}
	if err := checkIdentifiers("identifier", label, key); err != nil {
		return Node{}, err
	}
	if id, ok := tx.lookup(label)(key, value); ok {
		return nodeFrom(label, tx.s.nodes[label][id].Clone()), nil
	}
	props := onCreate.Clone()
	props[key] = value
	id := props.String(constants.PropID)
	if id == "" {
		return Node{}, apperrors.NewValidationError("merge requires an id for new nodes")
	}
	n := Node{Label: label, ID: id, Props: props}
	if err := tx.Create(ctx, n); err != nil {
		return Node{}, err
	}
	return nodeFrom(label, tx.s.nodes[label][id].Clone()), nil
}

func (tx *memTx) Set(_ context.Context, ref NodeRef, props Props) (*Node, error) {
	if !tx.writable {
		return nil, errReadOnly
	}
	if err := checkProps(props); err != nil {
		return nil, err
	}
	current, ok := tx.s.nodes[ref.Label][ref.ID]
	if !ok {
		return nil, nil
	}
	next := current.Clone()
	for k, v := range NormalizeProps(props) {
		next[k] = v
	}
	next[constants.PropID] = ref.ID
	if err := uniqueConflict(tx.s.unique, ref.Label, next, ref.ID, tx.lookup(ref.Label)); err != nil {
		return nil, err
	}
	tx.putNode(ref.Label, ref.ID, next)
	n := nodeFrom(ref.Label, next.Clone())
	return &n, nil
}

func (tx *memTx) DetachDelete(_ context.Context, ref NodeRef) (bool, error) {
	if !tx.writable {
		return false, errReadOnly
	}
	if !tx.exists(ref) {
		return false, nil
	}
	var edges []Edge
	for e := range tx.s.out[ref] {
		edges = append(edges, e)
	}
	for e := range tx.s.in[ref] {
		edges = append(edges, e)
	}
	for _, e := range edges {
		tx.removeEdge(e)
	}
	tx.removeNode(ref.Label, ref.ID)
	return true, nil
}

func (tx *memTx) MergeEdge(_ context.Context, e Edge) (bool, error) {
	if !tx.writable {
		return false, errReadOnly
	}
	if err := checkEdge(e); err != nil {
		return false, err
	}
	if !tx.exists(e.From) {
		return false, apperrors.NewNotFound(e.From.Label, e.From.ID)
	}
	if !tx.exists(e.To) {
		return false, apperrors.NewNotFound(e.To.Label, e.To.ID)
	}
	if _, ok := tx.s.out[e.From][e]; ok {
		return false, nil
	}
	tx.putEdge(e)
	return true, nil
}

func (tx *memTx) DeleteEdges(_ context.Context, f EdgeFilter) (int, error) {
	if !tx.writable {
		return 0, errReadOnly
	}
	if err := checkEdgeFilter(f); err != nil {
		return 0, err
	}
	var doomed []Edge
	collect := func(set map[Edge]struct{}) {
		for e := range set {
			if e.Type != f.Type {
				continue
			}
			if f.From != nil && e.From != *f.From {
				continue
			}
			if f.To != nil && e.To != *f.To {
				continue
			}
			doomed = append(doomed, e)
		}
	}
	switch {
	case f.From != nil:
		collect(tx.s.out[*f.From])
	case f.To != nil:
		collect(tx.s.in[*f.To])
	default:
		for _, set := range tx.s.out {
			collect(set)
		}
	}
	for _, e := range doomed {
		tx.removeEdge(e)
	}
	return len(doomed), nil
}

func (tx *memTx) Edges(_ context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error) {
	if err := checkIdentifiers("relationship type", types...); err != nil {
		return nil, err
	}
	seen := make(map[Edge]struct{})
	var out []Edge
	add := func(set map[Edge]struct{}) {
		for e := range set {
			if _, dup := seen[e]; dup || !typeAllowed(e.Type, types) {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	for _, ref := range refs {
		if dir == Outgoing || dir == Both {
			add(tx.s.out[ref])
		}
		if dir == Incoming || dir == Both {
			add(tx.s.in[ref])
		}
	}
	SortEdges(out)
	return out, nil
}
