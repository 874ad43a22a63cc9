package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
	"catalog-graph/backend/pkg/logger"
)

// Neo4jOptions configures the driver behind a Neo4jStore.
type Neo4jOptions struct {
	URI             string
	User            string
	Password        string
	Database        string
	MaxPoolSize     int
	MaxConnLifetime time.Duration
	AcquireTimeout  time.Duration
}

// Neo4jStore handles all Neo4j database operations. Every unit of work is one
// explicit transaction on a fresh session.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// Compile-time check that Neo4jStore satisfies Store.
var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore creates the driver and verifies connectivity.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.User, opts.Password, ""),
		func(c *neo4jconfig.Config) {
			if opts.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = opts.MaxPoolSize
			}
			if opts.MaxConnLifetime > 0 {
				c.MaxConnectionLifetime = opts.MaxConnLifetime
			}
			if opts.AcquireTimeout > 0 {
				c.ConnectionAcquisitionTimeout = opts.AcquireTimeout
			}
		})
	if err != nil {
		return nil, apperrors.NewStoreUnavailable("create driver for "+opts.URI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewStoreUnavailable("connect to "+opts.URI, err)
	}
	return NewNeo4jStoreFromDriver(driver, opts.Database), nil
}

// NewNeo4jStoreFromDriver wraps an existing driver.
func NewNeo4jStoreFromDriver(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger.Named("neo4j"),
	}
}

// Driver exposes the underlying driver for schema tooling.
func (s *Neo4jStore) Driver() neo4j.DriverWithContext {
	return s.driver
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// SchemaStatements are the constraints and indexes the catalog relies on.
// Unique constraints also back every id and name lookup with an index.
var SchemaStatements = []string{
	fmt.Sprintf("CREATE CONSTRAINT item_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", constants.LabelItem),
	fmt.Sprintf("CREATE CONSTRAINT category_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", constants.LabelCategory),
	fmt.Sprintf("CREATE CONSTRAINT tag_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", constants.LabelTag),
	fmt.Sprintf("CREATE CONSTRAINT category_name IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE", constants.LabelCategory),
	fmt.Sprintf("CREATE CONSTRAINT tag_name IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE", constants.LabelTag),
	fmt.Sprintf("CREATE INDEX item_name IF NOT EXISTS FOR (n:%s) ON (n.name)", constants.LabelItem),
	fmt.Sprintf("CREATE INDEX item_created_at IF NOT EXISTS FOR (n:%s) ON (n.createdAt)", constants.LabelItem),
}

// InitSchema applies SchemaStatements. Schema changes run in auto-commit transactions.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range SchemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return classify("init schema", stmt, err)
		}
	}
	s.logger.Info("Schema ensured", zap.Int("statements", len(SchemaStatements)))
	return nil
}

func (s *Neo4jStore) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// View runs fn in a read transaction.
func (s *Neo4jStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, neo4j.AccessModeRead, fn)
}

// Update runs fn in a write transaction that commits only if fn succeeds.
func (s *Neo4jStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, neo4j.AccessModeWrite, fn)
}

func (s *Neo4jStore) run(ctx context.Context, mode neo4j.AccessMode, fn func(Tx) error) (err error) {
	session := s.newSession(ctx, mode)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return classify("begin transaction", "", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err = fn(&neo4jTx{tx: tx, writable: mode == neo4j.AccessModeWrite}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return classify("commit", "", err)
	}
	return nil
}

// classify maps driver errors onto the application taxonomy.
func classify(op, query string, err error) error {
	var neoErr *neo4j.Neo4jError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.NewStoreUnavailable(op, err)
	case errors.As(err, &neoErr) && neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed":
		return apperrors.NewIntegrityViolation(neoErr.Msg, err)
	case neo4j.IsConnectivityError(err), neo4j.IsRetryable(err):
		return apperrors.NewStoreUnavailable(op, err)
	default:
		if query == "" {
			query = op
		}
		return apperrors.NewGraphQueryFailed(query, err)
	}
}

type neo4jTx struct {
	tx       neo4j.ExplicitTransaction
	writable bool
}

func (t *neo4jTx) collect(ctx context.Context, op, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, classify(op, query, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classify(op, query, err)
	}
	return records, nil
}

func nodesFromRecords(records []*neo4j.Record, key string) []Node {
	out := make([]Node, 0, len(records))
	for _, record := range records {
		if n, ok := getNodeFromRecord(record, key); ok {
			out = append(out, n)
		}
	}
	return out
}

// ============================================================================
// Read Operations
// ============================================================================

func (t *neo4jTx) Nodes(ctx context.Context, refs ...NodeRef) ([]Node, error) {
	byLabel := make(map[string][]string)
	var labels []string
	for _, ref := range refs {
		if err := checkIdentifiers("label", ref.Label); err != nil {
			return nil, err
		}
		if _, ok := byLabel[ref.Label]; !ok {
			labels = append(labels, ref.Label)
		}
		byLabel[ref.Label] = append(byLabel[ref.Label], ref.ID)
	}

	found := make(map[NodeRef]Node, len(refs))
	for _, label := range labels {
		query := fmt.Sprintf("MATCH (n:%s) WHERE n.id IN $ids RETURN n", label)
		records, err := t.collect(ctx, "fetch nodes", query, map[string]interface{}{"ids": byLabel[label]})
		if err != nil {
			return nil, err
		}
		for _, n := range nodesFromRecords(records, "n") {
			found[n.Ref()] = n
		}
	}

	out := make([]Node, 0, len(refs))
	for _, ref := range refs {
		if n, ok := found[ref]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (t *neo4jTx) Match(ctx context.Context, p Pattern) ([]Node, error) {
	if err := checkPattern(p); err != nil {
		return nil, err
	}
	clause, params := compileMatch(p)
	query := clause + " RETURN DISTINCT n ORDER BY n.id"
	records, err := t.collect(ctx, "match", query, params)
	if err != nil {
		return nil, err
	}
	return nodesFromRecords(records, "n"), nil
}

func (t *neo4jTx) Edges(ctx context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error) {
	if err := checkIdentifiers("relationship type", types...); err != nil {
		return nil, err
	}
	byLabel := make(map[string][]string)
	for _, ref := range refs {
		if err := checkIdentifiers("label", ref.Label); err != nil {
			return nil, err
		}
		byLabel[ref.Label] = append(byLabel[ref.Label], ref.ID)
	}
	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if types == nil {
		types = []string{}
	}

	seen := make(map[Edge]struct{})
	var out []Edge
	for _, label := range labels {
		var queries []string
		if dir == Outgoing || dir == Both {
			queries = append(queries, fmt.Sprintf(`
				MATCH (a:%s)-[r]->(b)
				WHERE a.id IN $ids AND (size($types) = 0 OR type(r) IN $types)
				RETURN type(r) AS type, labels(a)[0] AS fromLabel, a.id AS fromId, labels(b)[0] AS toLabel, b.id AS toId`, label))
		}
		if dir == Incoming || dir == Both {
			queries = append(queries, fmt.Sprintf(`
				MATCH (b)-[r]->(a:%s)
				WHERE a.id IN $ids AND (size($types) = 0 OR type(r) IN $types)
				RETURN type(r) AS type, labels(b)[0] AS fromLabel, b.id AS fromId, labels(a)[0] AS toLabel, a.id AS toId`, label))
		}
		for _, query := range queries {
			records, err := t.collect(ctx, "edges", query, map[string]interface{}{
				"ids":   byLabel[label],
				"types": types,
			})
			if err != nil {
				return nil, err
			}
			for _, record := range records {
				e := Edge{
					Type: getStringFromRecord(record, "type"),
					From: NodeRef{Label: getStringFromRecord(record, "fromLabel"), ID: getStringFromRecord(record, "fromId")},
					To:   NodeRef{Label: getStringFromRecord(record, "toLabel"), ID: getStringFromRecord(record, "toId")},
				}
				if _, dup := seen[e]; dup {
					continue
				}
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	SortEdges(out)
	return out, nil
}

// ============================================================================
// Write Operations
// ============================================================================

func (t *neo4jTx) Create(ctx context.Context, n Node) error {
	if !t.writable {
		return errReadOnly
	}
	if err := checkIdentifiers("label", n.Label); err != nil {
		return err
	}
	if err := checkProps(n.Props); err != nil {
		return err
	}
	props := NormalizeProps(n.Props)
	props[constants.PropID] = n.ID

	existing, err := t.Nodes(ctx, n.Ref())
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperrors.NewIntegrityViolation(fmt.Sprintf("%s with id %s already exists", n.Label, n.ID), nil)
	}

	query := fmt.Sprintf("CREATE (n:%s) SET n = $props", n.Label)
	_, err = t.collect(ctx, "create", query, map[string]interface{}{"props": map[string]interface{}(props)})
	return err
}

func (t *neo4jTx) Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error) {
	if !t.writable {
		return Node{}, errReadOnly
	}
	if err := checkIdentifiers("identifier", label, key); err != nil {
		return Node{}, err
	}
	if err := checkProps(onCreate); err != nil {
		return Node{}, err
	}
	props := NormalizeProps(onCreate)
	if props.String(constants.PropID) == "" {
		return Node{}, apperrors.NewValidationError("merge requires an id for new nodes")
	}
	query := fmt.Sprintf(`
		MERGE (n:%s {%s: $value})
		ON CREATE SET n += $props
		RETURN n ORDER BY n.id LIMIT 1`, label, key)
	records, err := t.collect(ctx, "merge", query, map[string]interface{}{
		"value": value,
		"props": map[string]interface{}(props),
	})
	if err != nil {
		return Node{}, err
	}
	nodes := nodesFromRecords(records, "n")
	if len(nodes) == 0 {
		return Node{}, apperrors.NewGraphQueryFailed(query, errors.New("merge returned no node"))
	}
	return nodes[0], nil
}

func (t *neo4jTx) Set(ctx context.Context, ref NodeRef, props Props) (*Node, error) {
	if !t.writable {
		return nil, errReadOnly
	}
	if err := checkIdentifiers("label", ref.Label); err != nil {
		return nil, err
	}
	if err := checkProps(props); err != nil {
		return nil, err
	}
	update := NormalizeProps(props)
	delete(update, constants.PropID)
	query := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $props RETURN n", ref.Label)
	records, err := t.collect(ctx, "set", query, map[string]interface{}{
		"id":    ref.ID,
		"props": map[string]interface{}(update),
	})
	if err != nil {
		return nil, err
	}
	nodes := nodesFromRecords(records, "n")
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

func (t *neo4jTx) DetachDelete(ctx context.Context, ref NodeRef) (bool, error) {
	if !t.writable {
		return false, errReadOnly
	}
	if err := checkIdentifiers("label", ref.Label); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		WITH n, n.id AS id
		DETACH DELETE n
		RETURN count(id) AS deleted`, ref.Label)
	records, err := t.collect(ctx, "detach delete", query, map[string]interface{}{"id": ref.ID})
	if err != nil {
		return false, err
	}
	return len(records) > 0 && getIntFromRecord(records[0], "deleted") > 0, nil
}

func (t *neo4jTx) MergeEdge(ctx context.Context, e Edge) (bool, error) {
	if !t.writable {
		return false, errReadOnly
	}
	if err := checkEdge(e); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $from})
		MATCH (b:%s {id: $to})
		OPTIONAL MATCH (a)-[existing:%s]->(b)
		WITH a, b, count(existing) AS before
		MERGE (a)-[:%s]->(b)
		RETURN before`, e.From.Label, e.To.Label, e.Type, e.Type)
	records, err := t.collect(ctx, "merge edge", query, map[string]interface{}{
		"from": e.From.ID,
		"to":   e.To.ID,
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		nodes, err := t.Nodes(ctx, e.From)
		if err != nil {
			return false, err
		}
		if len(nodes) == 0 {
			return false, apperrors.NewNotFound(e.From.Label, e.From.ID)
		}
		return false, apperrors.NewNotFound(e.To.Label, e.To.ID)
	}
	return getIntFromRecord(records[0], "before") == 0, nil
}

func (t *neo4jTx) DeleteEdges(ctx context.Context, f EdgeFilter) (int, error) {
	if !t.writable {
		return 0, errReadOnly
	}
	if err := checkEdgeFilter(f); err != nil {
		return 0, err
	}
	clause, params := compileEdgeFilter(f)
	query := clause + `
		WITH collect(r) AS rels
		FOREACH (x IN rels | DELETE x)
		RETURN size(rels) AS deleted`
	records, err := t.collect(ctx, "delete edges", query, params)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return getIntFromRecord(records[0], "deleted"), nil
}
