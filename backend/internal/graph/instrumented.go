package graph

import (
	"context"
	"time"

	"catalog-graph/backend/pkg/metrics"
)

// Instrumented decorates a Store, recording a counter and a latency sample for every
// unit of work and every primitive run inside one.
type Instrumented struct {
	Store
	metrics *metrics.Collector
}

// NewInstrumented wraps store so its operations are reported to m.
func NewInstrumented(store Store, m *metrics.Collector) *Instrumented {
	return &Instrumented{Store: store, metrics: m}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStore(op, err, time.Since(start))
}

func (s *Instrumented) View(ctx context.Context, fn func(Tx) error) (err error) {
	start := time.Now()
	err = s.Store.View(ctx, func(tx Tx) error {
		return fn(&instrumentedTx{tx: tx, s: s})
	})
	s.observe("view", start, err)
	return err
}

func (s *Instrumented) Update(ctx context.Context, fn func(Tx) error) (err error) {
	start := time.Now()
	err = s.Store.Update(ctx, func(tx Tx) error {
		return fn(&instrumentedTx{tx: tx, s: s})
	})
	s.observe("update", start, err)
	return err
}

type instrumentedTx struct {
	tx Tx
	s  *Instrumented
}

func (t *instrumentedTx) Nodes(ctx context.Context, refs ...NodeRef) ([]Node, error) {
	start := time.Now()
	nodes, err := t.tx.Nodes(ctx, refs...)
	t.s.observe("nodes", start, err)
	return nodes, err
}

func (t *instrumentedTx) Match(ctx context.Context, p Pattern) ([]Node, error) {
	start := time.Now()
	nodes, err := t.tx.Match(ctx, p)
	t.s.observe("match", start, err)
	return nodes, err
}

func (t *instrumentedTx) Create(ctx context.Context, n Node) error {
	start := time.Now()
	err := t.tx.Create(ctx, n)
	t.s.observe("create", start, err)
	return err
}

func (t *instrumentedTx) Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error) {
	start := time.Now()
	n, err := t.tx.Merge(ctx, label, key, value, onCreate)
	t.s.observe("merge", start, err)
	return n, err
}

func (t *instrumentedTx) Set(ctx context.Context, ref NodeRef, props Props) (*Node, error) {
	start := time.Now()
	n, err := t.tx.Set(ctx, ref, props)
	t.s.observe("set", start, err)
	return n, err
}

func (t *instrumentedTx) DetachDelete(ctx context.Context, ref NodeRef) (bool, error) {
	start := time.Now()
	ok, err := t.tx.DetachDelete(ctx, ref)
	t.s.observe("detach_delete", start, err)
	return ok, err
}

func (t *instrumentedTx) MergeEdge(ctx context.Context, e Edge) (bool, error) {
	start := time.Now()
	created, err := t.tx.MergeEdge(ctx, e)
	t.s.observe("merge_edge", start, err)
	return created, err
}

func (t *instrumentedTx) DeleteEdges(ctx context.Context, f EdgeFilter) (int, error) {
	start := time.Now()
	n, err := t.tx.DeleteEdges(ctx, f)
	t.s.observe("delete_edges", start, err)
	return n, err
}

func (t *instrumentedTx) Edges(ctx context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error) {
	start := time.Now()
	edges, err := t.tx.Edges(ctx, refs, dir, types...)
	t.s.observe("edges", start, err)
	return edges, err
}
