//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
	"catalog-graph/backend/pkg/logger"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
// KuzuDB tables are typed, so only the catalog labels and relationships are accepted.
type KuzuStore struct {
	mu     sync.Mutex
	db     *kuzu.Database
	conn   *kuzu.Connection
	unique UniqueKeys
	logger *zap.Logger
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

type kuzuColumn struct {
	name string
	typ  string
}

// kuzuTables is the typed node schema. id is always the primary key.
var kuzuTables = map[string][]kuzuColumn{
	constants.LabelItem: {
		{constants.PropID, "STRING"},
		{constants.PropName, "STRING"},
		{constants.PropDescription, "STRING"},
		{constants.PropPrice, "DOUBLE"},
		{constants.PropStock, "INT64"},
		{constants.PropCreatedAt, "STRING"},
		{constants.PropUpdatedAt, "STRING"},
	},
	constants.LabelCategory: {
		{constants.PropID, "STRING"},
		{constants.PropName, "STRING"},
	},
	constants.LabelTag: {
		{constants.PropID, "STRING"},
		{constants.PropName, "STRING"},
	},
}

// kuzuRels maps each relationship type to its (from, to) node tables.
var kuzuRels = map[string][2]string{
	constants.RelBelongsTo: {constants.LabelItem, constants.LabelCategory},
	constants.RelHasTag:    {constants.LabelItem, constants.LabelTag},
}

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore(opts ...Option) (*KuzuStore, error) {
	return openKuzu(":memory:", opts)
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path. KuzuDB creates the directory itself for new databases.
func NewKuzuFileStore(dbPath string, opts ...Option) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath, opts)
}

func openKuzu(path string, opts []Option) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable("kuzu: open database "+path, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, apperrors.NewStoreUnavailable("kuzu: open connection", err)
	}
	return &KuzuStore{db: db, conn: conn, unique: applyOptions(opts).unique, logger: logger.Named("kuzu")}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

func ddlStatements() []string {
	labels := make([]string, 0, len(kuzuTables))
	for label := range kuzuTables {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var stmts []string
	for _, label := range labels {
		cols := make([]string, 0, len(kuzuTables[label]))
		for _, c := range kuzuTables[label] {
			cols = append(cols, c.name+" "+c.typ)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE NODE TABLE IF NOT EXISTS %s(%s, PRIMARY KEY(id))",
			label, strings.Join(cols, ", ")))
	}
	// Node tables must precede relationship tables.
	for _, rel := range []string{constants.RelBelongsTo, constants.RelHasTag} {
		ends := kuzuRels[rel]
		stmts = append(stmts, fmt.Sprintf("CREATE REL TABLE IF NOT EXISTS %s(FROM %s TO %s)", rel, ends[0], ends[1]))
	}
	return stmts
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements() {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return apperrors.NewGraphQueryFailed(stmt, err)
		}
		res.Close()
	}
	s.logger.Info("Kuzu schema ensured")
	return nil
}

// ---------- Units of work ----------

// View runs fn inside a read-only KuzuDB transaction.
func (s *KuzuStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, false, fn)
}

// Update runs fn inside a write transaction, committing only if fn succeeds.
func (s *KuzuStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *KuzuStore) run(ctx context.Context, writable bool, fn func(Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("unit of work aborted: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return apperrors.NewStoreUnavailable("kuzu: store closed", nil)
	}

	begin := "BEGIN TRANSACTION READ ONLY"
	if writable {
		begin = "BEGIN TRANSACTION"
	}
	tx := &kuzuTx{conn: s.conn, unique: s.unique, writable: writable}
	if err := tx.exec(begin, nil); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.exec("ROLLBACK", nil)
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.exec("ROLLBACK", nil); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.exec("COMMIT", nil)
}

type kuzuTx struct {
	conn     *kuzu.Connection
	unique   UniqueKeys
	writable bool
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (t *kuzuTx) exec(cypher string, params map[string]any) error {
	_, err := t.query(cypher, params)
	return err
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (t *kuzuTx) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = t.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = t.conn.Prepare(cypher)
		if err != nil {
			return nil, apperrors.NewGraphQueryFailed(cypher, err)
		}
		defer stmt.Close()
		res, err = t.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(cypher, err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, apperrors.NewGraphQueryFailed(cypher, err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, apperrors.NewGraphQueryFailed(cypher, err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// ---------- Schema helpers ----------

func kuzuLabel(label string) ([]kuzuColumn, error) {
	cols, ok := kuzuTables[label]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown label %q", label))
	}
	return cols, nil
}

func kuzuCheckProps(label string, props Props) error {
	cols, err := kuzuLabel(label)
	if err != nil {
		return err
	}
	for k := range props {
		known := false
		for _, c := range cols {
			if c.name == k {
				known = true
				break
			}
		}
		if !known {
			return apperrors.NewValidationError(fmt.Sprintf("unknown property %s.%s", label, k))
		}
	}
	return nil
}

// kuzuValue coerces a normalized value to the column's declared type.
func kuzuValue(label, key string, v interface{}) interface{} {
	for _, c := range kuzuTables[label] {
		if c.name != key {
			continue
		}
		switch c.typ {
		case "DOUBLE":
			switch n := v.(type) {
			case int64:
				return float64(n)
			}
		case "INT64":
			switch n := v.(type) {
			case float64:
				return int64(n)
			}
		}
	}
	return v
}

func projection(alias string, cols []kuzuColumn) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, alias+"."+c.name)
	}
	return strings.Join(parts, ", ")
}

func rowToNode(label string, cols []kuzuColumn, row []any) Node {
	props := make(Props, len(cols))
	for i, c := range cols {
		if i < len(row) && row[i] != nil {
			props[c.name] = Normalize(row[i])
		}
	}
	return nodeFrom(label, props)
}

// ---------- Read operations ----------

func (t *kuzuTx) get(ref NodeRef) (*Node, error) {
	cols, err := kuzuLabel(ref.Label)
	if err != nil {
		return nil, err
	}
	rows, err := t.query(
		fmt.Sprintf("MATCH (n:%s) WHERE n.id = $id RETURN %s", ref.Label, projection("n", cols)),
		map[string]any{"id": ref.ID},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	n := rowToNode(ref.Label, cols, rows[0])
	return &n, nil
}

func (t *kuzuTx) Nodes(_ context.Context, refs ...NodeRef) ([]Node, error) {
	out := make([]Node, 0, len(refs))
	for _, ref := range refs {
		n, err := t.get(ref)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (t *kuzuTx) Match(_ context.Context, p Pattern) ([]Node, error) {
	if err := checkPattern(p); err != nil {
		return nil, err
	}
	cols, err := kuzuLabel(p.Label)
	if err != nil {
		return nil, err
	}
	clause, params := compileMatch(p)
	rows, err := t.query(
		clause+" RETURN DISTINCT "+projection("n", cols)+" ORDER BY n.id",
		params,
	)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToNode(p.Label, cols, row))
	}
	return out, nil
}

func (t *kuzuTx) Edges(_ context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error) {
	if err := checkIdentifiers("relationship type", types...); err != nil {
		return nil, err
	}
	rels := make([]string, 0, len(kuzuRels))
	for rel := range kuzuRels {
		if typeAllowed(rel, types) {
			rels = append(rels, rel)
		}
	}
	sort.Strings(rels)

	seen := make(map[Edge]struct{})
	var out []Edge
	add := func(e Edge) {
		if _, dup := seen[e]; !dup {
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	for _, ref := range refs {
		for _, rel := range rels {
			ends := kuzuRels[rel]
			if (dir == Outgoing || dir == Both) && ref.Label == ends[0] {
				rows, err := t.query(
					fmt.Sprintf("MATCH (a:%s)-[:%s]->(b:%s) WHERE a.id = $id RETURN b.id", ends[0], rel, ends[1]),
					map[string]any{"id": ref.ID},
				)
				if err != nil {
					return nil, err
				}
				for _, row := range rows {
					add(Edge{Type: rel, From: ref, To: NodeRef{Label: ends[1], ID: toString(row[0])}})
				}
			}
			if (dir == Incoming || dir == Both) && ref.Label == ends[1] {
				rows, err := t.query(
					fmt.Sprintf("MATCH (a:%s)-[:%s]->(b:%s) WHERE b.id = $id RETURN a.id", ends[0], rel, ends[1]),
					map[string]any{"id": ref.ID},
				)
				if err != nil {
					return nil, err
				}
				for _, row := range rows {
					add(Edge{Type: rel, From: NodeRef{Label: ends[0], ID: toString(row[0])}, To: ref})
				}
			}
		}
	}
	SortEdges(out)
	return out, nil
}

// ---------- Write operations ----------

func (t *kuzuTx) lookup(label string) func(key string, value interface{}) (string, bool) {
	return func(key string, value interface{}) (string, bool) {
		rows, err := t.query(
			fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $v RETURN n.id ORDER BY n.id LIMIT 1", label, key),
			map[string]any{"v": value},
		)
		if err != nil || len(rows) == 0 {
			return "", false
		}
		return toString(rows[0][0]), true
	}
}

func (t *kuzuTx) Create(_ context.Context, n Node) error {
	if !t.writable {
		return errReadOnly
	}
	props := NormalizeProps(n.Props)
	props[constants.PropID] = n.ID
	if err := kuzuCheckProps(n.Label, props); err != nil {
		return err
	}
	existing, err := t.get(n.Ref())
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.NewIntegrityViolation(fmt.Sprintf("%s with id %s already exists", n.Label, n.ID), nil)
	}
	if err := uniqueConflict(t.unique, n.Label, props, n.ID, t.lookup(n.Label)); err != nil {
		return err
	}

	keys := props.Keys()
	assigns := make([]string, 0, len(keys))
	params := make(map[string]any, len(keys))
	for _, k := range keys {
		assigns = append(assigns, fmt.Sprintf("%s: $p_%s", k, k))
		params["p_"+k] = kuzuValue(n.Label, k, props[k])
	}
	return t.exec(fmt.Sprintf("CREATE (n:%s {%s})", n.Label, strings.Join(assigns, ", ")), params)
}

func (t *kuzuTx) Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error) {
	if !t.writable {
		return Node{}, errReadOnly
	}
	if err := kuzuCheckProps(label, Props{key: value}); err != nil {
		return Node{}, err
	}
	if id, ok := t.lookup(label)(key, value); ok {
		n, err := t.get(NodeRef{Label: label, ID: id})
		if err != nil {
			return Node{}, err
		}
		if n != nil {
			return *n, nil
		}
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
	n, err := t.get(NodeRef{Label: label, ID: id})
	if err != nil {
		return Node{}, err
	}
	if n == nil {
		return Node{}, apperrors.NewGraphQueryFailed("merge "+label, fmt.Errorf("created node %s vanished", id))
	}
	return *n, nil
}

func (t *kuzuTx) Set(_ context.Context, ref NodeRef, props Props) (*Node, error) {
	if !t.writable {
		return nil, errReadOnly
	}
	update := NormalizeProps(props)
	delete(update, constants.PropID)
	if err := kuzuCheckProps(ref.Label, update); err != nil {
		return nil, err
	}
	current, err := t.get(ref)
	if err != nil || current == nil {
		return nil, err
	}
	next := current.Props.Clone()
	for k, v := range update {
		next[k] = v
	}
	if err := uniqueConflict(t.unique, ref.Label, next, ref.ID, t.lookup(ref.Label)); err != nil {
		return nil, err
	}
	if len(update) > 0 {
		keys := update.Keys()
		assigns := make([]string, 0, len(keys))
		params := map[string]any{"id": ref.ID}
		for _, k := range keys {
			assigns = append(assigns, fmt.Sprintf("n.%s = $p_%s", k, k))
			params["p_"+k] = kuzuValue(ref.Label, k, update[k])
		}
		query := fmt.Sprintf("MATCH (n:%s) WHERE n.id = $id SET %s", ref.Label, strings.Join(assigns, ", "))
		if err := t.exec(query, params); err != nil {
			return nil, err
		}
	}
	return t.get(ref)
}

func (t *kuzuTx) DetachDelete(_ context.Context, ref NodeRef) (bool, error) {
	if !t.writable {
		return false, errReadOnly
	}
	current, err := t.get(ref)
	if err != nil || current == nil {
		return false, err
	}
	err = t.exec(fmt.Sprintf("MATCH (n:%s) WHERE n.id = $id DETACH DELETE n", ref.Label), map[string]any{"id": ref.ID})
	return err == nil, err
}

func kuzuRel(relType, from, to string) error {
	ends, ok := kuzuRels[relType]
	if !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown relationship type %q", relType))
	}
	if (from != "" && from != ends[0]) || (to != "" && to != ends[1]) {
		return apperrors.NewValidationError(fmt.Sprintf("%s connects %s to %s", relType, ends[0], ends[1]))
	}
	return nil
}

func (t *kuzuTx) MergeEdge(_ context.Context, e Edge) (bool, error) {
	if !t.writable {
		return false, errReadOnly
	}
	if err := kuzuRel(e.Type, e.From.Label, e.To.Label); err != nil {
		return false, err
	}
	for _, ref := range []NodeRef{e.From, e.To} {
		n, err := t.get(ref)
		if err != nil {
			return false, err
		}
		if n == nil {
			return false, apperrors.NewNotFound(ref.Label, ref.ID)
		}
	}
	params := map[string]any{"from": e.From.ID, "to": e.To.ID}
	rows, err := t.query(
		fmt.Sprintf("MATCH (a:%s)-[r:%s]->(b:%s) WHERE a.id = $from AND b.id = $to RETURN count(r)",
			e.From.Label, e.Type, e.To.Label),
		params,
	)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 && toInt(rows[0][0]) > 0 {
		return false, nil
	}
	err = t.exec(
		fmt.Sprintf("MATCH (a:%s), (b:%s) WHERE a.id = $from AND b.id = $to CREATE (a)-[:%s]->(b)",
			e.From.Label, e.To.Label, e.Type),
		params,
	)
	return err == nil, err
}

func (t *kuzuTx) DeleteEdges(_ context.Context, f EdgeFilter) (int, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	var fromLabel, toLabel string
	if f.From != nil {
		fromLabel = f.From.Label
	}
	if f.To != nil {
		toLabel = f.To.Label
	}
	if err := kuzuRel(f.Type, fromLabel, toLabel); err != nil {
		return 0, err
	}
	ends := kuzuRels[f.Type]
	var conds []string
	params := map[string]any{}
	if f.From != nil {
		conds = append(conds, "a.id = $from")
		params["from"] = f.From.ID
	}
	if f.To != nil {
		conds = append(conds, "b.id = $to")
		params["to"] = f.To.ID
	}
	match := fmt.Sprintf("MATCH (a:%s)-[r:%s]->(b:%s)", ends[0], f.Type, ends[1])
	if len(conds) > 0 {
		match += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := t.query(match+" RETURN count(r)", params)
	if err != nil {
		return 0, err
	}
	n := 0
	if len(rows) > 0 {
		n = toInt(rows[0][0])
	}
	if n == 0 {
		return 0, nil
	}
	if err := t.exec(match+" DELETE r", params); err != nil {
		return 0, err
	}
	return n, nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
