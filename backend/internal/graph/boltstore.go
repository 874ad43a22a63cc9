package graph

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
	"catalog-graph/backend/pkg/logger"
)

// Bucket names used in bbolt.
var (
	bucketMeta   = []byte("meta")
	bucketNodes  = []byte("nodes")   // label \x00 id -> msgpack props
	bucketAdjOut = []byte("adj_out") // fromLabel \x00 fromID \x00 type \x00 toLabel \x00 toID
	bucketAdjIn  = []byte("adj_in")  // toLabel \x00 toID \x00 type \x00 fromLabel \x00 fromID
	bucketUnique = []byte("idx_unique")

	metaSchemaVersion = []byte("schema_version")
)

var allBuckets = [][]byte{bucketMeta, bucketNodes, bucketAdjOut, bucketAdjIn, bucketUnique}

const (
	keySep            = "\x00"
	boltSchemaVersion = "1"
	boltOpenTimeout   = 5 * time.Second
)

// present marks adjacency keys; bbolt cannot tell an empty value from a missing key.
var present = []byte{1}

// BoltStore is a persistent Store on a single bbolt file. Atomicity comes from
// bbolt transactions; writers are serialised by bbolt itself.
type BoltStore struct {
	db     *bolt.DB
	unique UniqueKeys
	logger *zap.Logger
}

// Compile-time check that BoltStore satisfies Store.
var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, apperrors.NewStoreUnavailable("open "+path, err)
	}
	s := &BoltStore{db: db, unique: applyOptions(opts).unique, logger: logger.Named("boltstore")}
	if err := s.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("Bolt store opened", zap.String("path", path))
	return s, nil
}

// InitSchema creates all buckets if they do not exist.
func (s *BoltStore) InitSchema(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return tx.Bucket(bucketMeta).Put(metaSchemaVersion, []byte(boltSchemaVersion))
	})
}

// Close closes the bbolt file.
func (s *BoltStore) Close(_ context.Context) error {
	return s.db.Close()
}

// View runs fn in a bbolt read transaction.
func (s *BoltStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("view aborted: %w", err)
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx, unique: s.unique})
	})
}

// Update runs fn in a bbolt write transaction. bbolt rolls back on error or panic.
func (s *BoltStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update aborted: %w", err)
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx, unique: s.unique})
	})
}

type boltTx struct {
	tx     *bolt.Tx
	unique UniqueKeys
}

// ============================================================================
// Key Encoding
// ============================================================================

func joinKey(parts ...string) []byte {
	return []byte(strings.Join(parts, keySep))
}

func nodeKey(ref NodeRef) []byte {
	return joinKey(ref.Label, ref.ID)
}

func outKey(e Edge) []byte {
	return joinKey(e.From.Label, e.From.ID, e.Type, e.To.Label, e.To.ID)
}

func inKey(e Edge) []byte {
	return joinKey(e.To.Label, e.To.ID, e.Type, e.From.Label, e.From.ID)
}

func uniqueKey(label, key string, value interface{}) []byte {
	return joinKey(label, key, fmt.Sprint(Normalize(value)))
}

// decodeAdjKey splits an adjacency key back into (anchor, type, other).
func decodeAdjKey(k []byte) (NodeRef, string, NodeRef, bool) {
	parts := strings.Split(string(k), keySep)
	if len(parts) != 5 {
		return NodeRef{}, "", NodeRef{}, false
	}
	return NodeRef{Label: parts[0], ID: parts[1]}, parts[2], NodeRef{Label: parts[3], ID: parts[4]}, true
}

func checkKeyPart(ref NodeRef) error {
	if strings.Contains(ref.ID, keySep) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid id %q: NUL byte not allowed", ref.ID))
	}
	return nil
}

// ============================================================================
// Node Storage
// ============================================================================

func (t *boltTx) getProps(ref NodeRef) (Props, error) {
	data := t.tx.Bucket(bucketNodes).Get(nodeKey(ref))
	if data == nil {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewGraphQueryFailed("decode node "+ref.Label+"/"+ref.ID, err)
	}
	return NormalizeProps(raw), nil
}

func (t *boltTx) putProps(ref NodeRef, props Props) error {
	data, err := msgpack.Marshal(map[string]interface{}(props))
	if err != nil {
		return fmt.Errorf("failed to encode node: %w", err)
	}
	return t.tx.Bucket(bucketNodes).Put(nodeKey(ref), data)
}

// indexUnique rewrites the unique-key index entries of ref from old to next props.
func (t *boltTx) indexUnique(ref NodeRef, old, next Props) error {
	b := t.tx.Bucket(bucketUnique)
	for _, key := range t.unique[ref.Label] {
		if v, ok := old[key]; ok {
			if err := b.Delete(uniqueKey(ref.Label, key, v)); err != nil {
				return err
			}
		}
		if v, ok := next[key]; ok {
			if err := b.Put(uniqueKey(ref.Label, key, v), []byte(ref.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *boltTx) lookup(label string) func(key string, value interface{}) (string, bool) {
	return func(key string, value interface{}) (string, bool) {
		if id := t.tx.Bucket(bucketUnique).Get(uniqueKey(label, key, value)); id != nil {
			return string(id), true
		}
		return "", false
	}
}

// scanLabel decodes every node of label, ordered by id.
func (t *boltTx) scanLabel(label string, fn func(Node) error) error {
	prefix := []byte(label + keySep)
	c := t.tx.Bucket(bucketNodes).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var raw map[string]interface{}
		if err := msgpack.Unmarshal(v, &raw); err != nil {
			return apperrors.NewGraphQueryFailed("decode node "+string(k), err)
		}
		if err := fn(nodeFrom(label, NormalizeProps(raw))); err != nil {
			return err
		}
	}
	return nil
}

// findBy returns the lowest-id node of label whose key equals value.
func (t *boltTx) findBy(label, key string, value interface{}) (*Node, error) {
	if id, ok := t.lookup(label)(key, value); ok {
		props, err := t.getProps(NodeRef{Label: label, ID: id})
		if err != nil || props == nil {
			return nil, err
		}
		n := nodeFrom(label, props)
		return &n, nil
	}
	var found *Node
	err := t.scanLabel(label, func(n Node) error {
		if found == nil {
			if v, ok := n.Props[key]; ok && valuesEqual(v, value) {
				found = &n
			}
		}
		return nil
	})
	return found, err
}

func (t *boltTx) edgesOf(bucket []byte, ref NodeRef, fn func(anchor NodeRef, relType string, other NodeRef)) {
	prefix := joinKey(ref.Label, ref.ID, "")
	c := t.tx.Bucket(bucket).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if anchor, relType, other, ok := decodeAdjKey(k); ok {
			fn(anchor, relType, other)
		}
	}
}

func (t *boltTx) putEdge(e Edge) error {
	if err := t.tx.Bucket(bucketAdjOut).Put(outKey(e), present); err != nil {
		return err
	}
	return t.tx.Bucket(bucketAdjIn).Put(inKey(e), present)
}

func (t *boltTx) deleteEdge(e Edge) error {
	if err := t.tx.Bucket(bucketAdjOut).Delete(outKey(e)); err != nil {
		return err
	}
	return t.tx.Bucket(bucketAdjIn).Delete(inKey(e))
}

// ============================================================================
// Tx Operations
// ============================================================================

func (t *boltTx) Nodes(_ context.Context, refs ...NodeRef) ([]Node, error) {
	out := make([]Node, 0, len(refs))
	for _, ref := range refs {
		props, err := t.getProps(ref)
		if err != nil {
			return nil, err
		}
		if props != nil {
			out = append(out, nodeFrom(ref.Label, props))
		}
	}
	return out, nil
}

func (t *boltTx) Match(ctx context.Context, p Pattern) ([]Node, error) {
	if err := checkPattern(p); err != nil {
		return nil, err
	}
	var candidates []Node
	err := t.scanLabel(p.Label, func(n Node) error {
		if matchesProps(n.Props, p.Props) {
			candidates = append(candidates, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortNodes(candidates)
	return filterByRels(ctx, t, candidates, p.Rels)
}

func (t *boltTx) Create(_ context.Context, n Node) error {
	if !t.tx.Writable() {
		return errReadOnly
	}
	if err := checkIdentifiers("label", n.Label); err != nil {
		return err
	}
	if err := checkProps(n.Props); err != nil {
		return err
	}
	if err := checkKeyPart(n.Ref()); err != nil {
		return err
	}
	if t.tx.Bucket(bucketNodes).Get(nodeKey(n.Ref())) != nil {
		return apperrors.NewIntegrityViolation(fmt.Sprintf("%s with id %s already exists", n.Label, n.ID), nil)
	}
	props := NormalizeProps(n.Props)
	props[constants.PropID] = n.ID
	if err := uniqueConflict(t.unique, n.Label, props, n.ID, t.lookup(n.Label)); err != nil {
		return err
	}
	if err := t.putProps(n.Ref(), props); err != nil {
		return err
	}
	return t.indexUnique(n.Ref(), nil, props)
}

func (t *boltTx) Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error) {
	if !t.tx.Writable() {
		return Node{}, errReadOnly
	}
	if err := checkIdentifiers("identifier", label, key); err != nil {
		return Node{}, err
	}
	existing, err := t.findBy(label, key, value)
	if err != nil {
		return Node{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	props := onCreate.Clone()
	props[key] = value
	id := props.String(constants.PropID)
	if id == "" {
		return Node{}, apperrors.NewValidationError("merge requires an id for new nodes")
	}
	if err := t.Create(ctx, Node{Label: label, ID: id, Props: props}); err != nil {
		return Node{}, err
	}
	created, err := t.getProps(NodeRef{Label: label, ID: id})
	if err != nil {
		return Node{}, err
	}
	return nodeFrom(label, created), nil
}

func (t *boltTx) Set(_ context.Context, ref NodeRef, props Props) (*Node, error) {
	if !t.tx.Writable() {
		return nil, errReadOnly
	}
	if err := checkProps(props); err != nil {
		return nil, err
	}
	current, err := t.getProps(ref)
	if err != nil || current == nil {
		return nil, err
	}
	next := current.Clone()
	for k, v := range NormalizeProps(props) {
		next[k] = v
	}
	next[constants.PropID] = ref.ID
	if err := uniqueConflict(t.unique, ref.Label, next, ref.ID, t.lookup(ref.Label)); err != nil {
		return nil, err
	}
	if err := t.putProps(ref, next); err != nil {
		return nil, err
	}
	if err := t.indexUnique(ref, current, next); err != nil {
		return nil, err
	}
	n := nodeFrom(ref.Label, next)
	return &n, nil
}

func (t *boltTx) DetachDelete(_ context.Context, ref NodeRef) (bool, error) {
	if !t.tx.Writable() {
		return false, errReadOnly
	}
	current, err := t.getProps(ref)
	if err != nil || current == nil {
		return false, err
	}
	var edges []Edge
	t.edgesOf(bucketAdjOut, ref, func(anchor NodeRef, relType string, other NodeRef) {
		edges = append(edges, Edge{Type: relType, From: anchor, To: other})
	})
	t.edgesOf(bucketAdjIn, ref, func(anchor NodeRef, relType string, other NodeRef) {
		edges = append(edges, Edge{Type: relType, From: other, To: anchor})
	})
	// Cursor iteration must finish before the buckets are mutated.
	for _, e := range edges {
		if err := t.deleteEdge(e); err != nil {
			return false, err
		}
	}
	if err := t.indexUnique(ref, current, nil); err != nil {
		return false, err
	}
	if err := t.tx.Bucket(bucketNodes).Delete(nodeKey(ref)); err != nil {
		return false, err
	}
	return true, nil
}

func (t *boltTx) MergeEdge(_ context.Context, e Edge) (bool, error) {
	if !t.tx.Writable() {
		return false, errReadOnly
	}
	if err := checkEdge(e); err != nil {
		return false, err
	}
	for _, ref := range []NodeRef{e.From, e.To} {
		if t.tx.Bucket(bucketNodes).Get(nodeKey(ref)) == nil {
			return false, apperrors.NewNotFound(ref.Label, ref.ID)
		}
	}
	if t.tx.Bucket(bucketAdjOut).Get(outKey(e)) != nil {
		return false, nil
	}
	if err := t.putEdge(e); err != nil {
		return false, err
	}
	return true, nil
}

func (t *boltTx) DeleteEdges(_ context.Context, f EdgeFilter) (int, error) {
	if !t.tx.Writable() {
		return 0, errReadOnly
	}
	if err := checkEdgeFilter(f); err != nil {
		return 0, err
	}
	var doomed []Edge
	keep := func(e Edge) {
		if e.Type != f.Type {
			return
		}
		if f.From != nil && e.From != *f.From {
			return
		}
		if f.To != nil && e.To != *f.To {
			return
		}
		doomed = append(doomed, e)
	}
	switch {
	case f.From != nil:
		t.edgesOf(bucketAdjOut, *f.From, func(anchor NodeRef, relType string, other NodeRef) {
			keep(Edge{Type: relType, From: anchor, To: other})
		})
	case f.To != nil:
		t.edgesOf(bucketAdjIn, *f.To, func(anchor NodeRef, relType string, other NodeRef) {
			keep(Edge{Type: relType, From: other, To: anchor})
		})
	default:
		c := t.tx.Bucket(bucketAdjOut).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if from, relType, to, ok := decodeAdjKey(k); ok {
				keep(Edge{Type: relType, From: from, To: to})
			}
		}
	}
	for _, e := range doomed {
		if err := t.deleteEdge(e); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

func (t *boltTx) Edges(_ context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error) {
	if err := checkIdentifiers("relationship type", types...); err != nil {
		return nil, err
	}
	seen := make(map[Edge]struct{})
	var out []Edge
	add := func(e Edge) {
		if _, dup := seen[e]; dup || !typeAllowed(e.Type, types) {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	for _, ref := range refs {
		if dir == Outgoing || dir == Both {
			t.edgesOf(bucketAdjOut, ref, func(anchor NodeRef, relType string, other NodeRef) {
				add(Edge{Type: relType, From: anchor, To: other})
			})
		}
		if dir == Incoming || dir == Both {
			t.edgesOf(bucketAdjIn, ref, func(anchor NodeRef, relType string, other NodeRef) {
				add(Edge{Type: relType, From: other, To: anchor})
			})
		}
	}
	SortEdges(out)
	return out, nil
}
