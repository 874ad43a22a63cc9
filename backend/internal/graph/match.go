package graph

import (
	"context"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
)

// filterByRels keeps the candidates that satisfy every RelPattern, resolving
// neighbours through the transaction's own adjacency primitives.
func filterByRels(ctx context.Context, tx Tx, candidates []Node, rels []RelPattern) ([]Node, error) {
	out := candidates
	for _, rel := range rels {
		if len(out) == 0 {
			break
		}
		anchors := make(map[NodeRef]struct{}, len(out))
		refs := make([]NodeRef, 0, len(out))
		for _, n := range out {
			anchors[n.Ref()] = struct{}{}
			refs = append(refs, n.Ref())
		}

		edges, err := tx.Edges(ctx, refs, rel.Direction, rel.Type)
		if err != nil {
			return nil, err
		}

		neighbours := make(map[NodeRef][]NodeRef)
		link := func(anchor, nb NodeRef) {
			if _, ok := anchors[anchor]; !ok {
				return
			}
			if rel.Label != "" && nb.Label != rel.Label {
				return
			}
			neighbours[anchor] = append(neighbours[anchor], nb)
		}
		for _, e := range edges {
			if rel.Direction == Outgoing || rel.Direction == Both {
				link(e.From, e.To)
			}
			if rel.Direction == Incoming || rel.Direction == Both {
				link(e.To, e.From)
			}
		}

		var accepted map[NodeRef]bool
		if len(rel.Props) > 0 {
			var distinct []NodeRef
			seen := make(map[NodeRef]bool)
			for _, nbs := range neighbours {
				for _, nb := range nbs {
					if !seen[nb] {
						seen[nb] = true
						distinct = append(distinct, nb)
					}
				}
			}
			nodes, err := tx.Nodes(ctx, distinct...)
			if err != nil {
				return nil, err
			}
			accepted = make(map[NodeRef]bool, len(nodes))
			for _, n := range nodes {
				if matchesProps(n.Props, rel.Props) {
					accepted[n.Ref()] = true
				}
			}
		}

		kept := out[:0:0]
		for _, n := range out {
			for _, nb := range neighbours[n.Ref()] {
				if accepted == nil || accepted[nb] {
					kept = append(kept, n)
					break
				}
			}
		}
		out = kept
	}
	return out, nil
}

// uniqueConflict reports the first unique key of label on which props collides with a
// node other than self, as found by lookup.
func uniqueConflict(unique UniqueKeys, label string, props Props, self string, lookup func(key string, value interface{}) (string, bool)) error {
	for _, key := range unique[label] {
		v, ok := props[key]
		if !ok {
			continue
		}
		if id, found := lookup(key, v); found && id != self {
			return apperrors.NewIntegrityViolation(
				label+"."+key+" already taken by "+id, nil)
		}
	}
	return nil
}

func nodeFrom(label string, props Props) Node {
	return Node{Label: label, ID: props.String(constants.PropID), Props: props}
}

var errReadOnly = apperrors.NewGraphQueryFailed("write attempted in a read-only unit of work", nil)
