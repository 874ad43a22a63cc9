package graph

import (
	"context"
	"fmt"
	"regexp"

	apperrors "catalog-graph/backend/pkg/errors"
)

// Store is a property graph that runs work in scoped units.
type Store interface {
	// InitSchema creates constraints, indexes or tables the store needs. Idempotent.
	InitSchema(ctx context.Context) error
	// View runs fn in a read-only unit of work.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn in an atomic write unit of work. Any error from fn rolls everything back.
	Update(ctx context.Context, fn func(Tx) error) error
	Close(ctx context.Context) error
}

// Tx is the set of graph primitives available inside a unit of work.
type Tx interface {
	// Nodes fetches nodes by identity, in the order given. Absent refs are skipped.
	Nodes(ctx context.Context, refs ...NodeRef) ([]Node, error)
	// Match returns every node satisfying p, ordered by id.
	Match(ctx context.Context, p Pattern) ([]Node, error)
	// Create inserts a node. A node with the same label and id is an integrity violation.
	Create(ctx context.Context, n Node) error
	// Merge returns the node of label whose key equals value, creating it from onCreate when absent.
	Merge(ctx context.Context, label, key, value string, onCreate Props) (Node, error)
	// Set overwrites the given properties. It returns nil when the node does not exist.
	Set(ctx context.Context, ref NodeRef, props Props) (*Node, error)
	// DetachDelete removes a node with all its edges and reports whether it existed.
	DetachDelete(ctx context.Context, ref NodeRef) (bool, error)
	// MergeEdge creates e unless it already exists and reports whether it was created.
	MergeEdge(ctx context.Context, e Edge) (bool, error)
	// DeleteEdges removes matching edges and returns how many went.
	DeleteEdges(ctx context.Context, f EdgeFilter) (int, error)
	// Edges returns the distinct edges incident to any of refs in dir, limited to types when given.
	Edges(ctx context.Context, refs []NodeRef, dir Direction, types ...string) ([]Edge, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s may be spliced into a query as a label, type or property key.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func checkIdentifiers(kind string, names ...string) error {
	for _, name := range names {
		if !ValidIdentifier(name) {
			return apperrors.NewValidationError(fmt.Sprintf("invalid %s: %q", kind, name))
		}
	}
	return nil
}

func checkProps(props Props) error {
	for k := range props {
		if err := checkIdentifiers("property key", k); err != nil {
			return err
		}
	}
	return nil
}

// checkPattern validates every identifier in p before it reaches an engine.
func checkPattern(p Pattern) error {
	if err := checkIdentifiers("label", p.Label); err != nil {
		return err
	}
	if err := checkProps(p.Props); err != nil {
		return err
	}
	for _, rel := range p.Rels {
		if err := checkIdentifiers("relationship type", rel.Type); err != nil {
			return err
		}
		if rel.Label != "" {
			if err := checkIdentifiers("label", rel.Label); err != nil {
				return err
			}
		}
		if err := checkProps(rel.Props); err != nil {
			return err
		}
	}
	return nil
}

func checkEdge(e Edge) error {
	return checkIdentifiers("identifier", e.Type, e.From.Label, e.To.Label)
}

// GetNode fetches a single node, returning nil when it does not exist.
func GetNode(ctx context.Context, tx Tx, ref NodeRef) (*Node, error) {
	nodes, err := tx.Nodes(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}
