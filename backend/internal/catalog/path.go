package catalog

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"catalog-graph/backend/internal/graph"
)

const noPathMessage = "No path found between these items"

// ShortestPath finds a shortest chain of relationships between two items, ignoring
// direction and bounded by the configured depth. Ties resolve deterministically.
func (s *Service) ShortestPath(ctx context.Context, fromID, toID string) (*PathResult, error) {
	var result *PathResult
	err := s.store.View(ctx, func(tx graph.Tx) error {
		ends, err := tx.Nodes(ctx, itemRef(fromID), itemRef(toID))
		if err != nil {
			return err
		}
		byRef := make(map[graph.NodeRef]graph.Node, len(ends))
		for _, n := range ends {
			byRef[n.Ref()] = n
		}
		from, okFrom := byRef[itemRef(fromID)]
		_, okTo := byRef[itemRef(toID)]
		if !okFrom || !okTo {
			result = notFoundPath()
			return nil
		}
		if fromID == toID {
			result = &PathResult{
				Found:         true,
				Nodes:         []PathNode{pathNode(from)},
				Relationships: []PathRelationship{},
			}
			return nil
		}

		nodes, edges, err := breadthFirst(ctx, tx, from.Ref(), itemRef(toID), s.maxDepth)
		if err != nil {
			return err
		}
		if nodes == nil {
			result = notFoundPath()
			return nil
		}

		full, err := tx.Nodes(ctx, nodes...)
		if err != nil {
			return err
		}
		result = &PathResult{
			Found:         true,
			PathLength:    len(edges),
			Nodes:         make([]PathNode, 0, len(full)),
			Relationships: make([]PathRelationship, 0, len(edges)),
		}
		for _, n := range full {
			result.Nodes = append(result.Nodes, pathNode(n))
		}
		// Hops read in walk order, whichever way the relationship is stored.
		for i, e := range edges {
			result.Relationships = append(result.Relationships, PathRelationship{Type: e.Type, From: nodes[i].ID, To: nodes[i+1].ID})
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("shortest path", err)
	}

	s.logger.Debug("Shortest path searched",
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.Bool("found", result.Found),
		zap.Int("length", result.PathLength))
	return result, nil
}

func notFoundPath() *PathResult {
	return &PathResult{
		Found:         false,
		Nodes:         []PathNode{},
		Relationships: []PathRelationship{},
		Message:       noPathMessage,
	}
}

func pathNode(n graph.Node) PathNode {
	props := make(map[string]interface{}, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}
	return PathNode{Label: n.Label, ID: n.ID, Properties: props}
}

type visit struct {
	parent graph.NodeRef
	via    graph.Edge
}

// breadthFirst expands one level per round trip. It returns nil when target is not
// reachable within maxDepth hops. Neighbours are visited ordered by edge type, then
// neighbour label, then id, so equal-length paths resolve the same way every time.
func breadthFirst(ctx context.Context, tx graph.Tx, start, target graph.NodeRef, maxDepth int) ([]graph.NodeRef, []graph.Edge, error) {
	visited := map[graph.NodeRef]visit{start: {}}
	frontier := []graph.NodeRef{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		edges, err := tx.Edges(ctx, frontier, graph.Both)
		if err != nil {
			return nil, nil, err
		}
		incident := make(map[graph.NodeRef][]graph.Edge)
		for _, e := range edges {
			incident[e.From] = append(incident[e.From], e)
			if e.To != e.From {
				incident[e.To] = append(incident[e.To], e)
			}
		}

		var next []graph.NodeRef
		for _, node := range frontier {
			hops := incident[node]
			sort.Slice(hops, func(i, j int) bool {
				if hops[i].Type != hops[j].Type {
					return hops[i].Type < hops[j].Type
				}
				a, b := hops[i].Other(node), hops[j].Other(node)
				if a.Label != b.Label {
					return a.Label < b.Label
				}
				return a.ID < b.ID
			})
			for _, e := range hops {
				other := e.Other(node)
				if _, seen := visited[other]; seen {
					continue
				}
				visited[other] = visit{parent: node, via: e}
				if other == target {
					nodes, path := unwind(visited, start, target)
					return nodes, path, nil
				}
				next = append(next, other)
			}
		}
		frontier = next
	}
	return nil, nil, nil
}

func unwind(visited map[graph.NodeRef]visit, start, target graph.NodeRef) ([]graph.NodeRef, []graph.Edge) {
	var nodes []graph.NodeRef
	var edges []graph.Edge
	for cur := target; cur != start; cur = visited[cur].parent {
		nodes = append(nodes, cur)
		edges = append(edges, visited[cur].via)
	}
	nodes = append(nodes, start)
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return nodes, edges
}
