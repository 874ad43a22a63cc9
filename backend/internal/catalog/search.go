package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	"catalog-graph/backend/internal/graph"
	apperrors "catalog-graph/backend/pkg/errors"
)

// Search returns the items passing every given filter, newest first. The category and
// tag filters are pushed into the store as neighbour patterns; an item must carry all
// requested tags.
func (s *Service) Search(ctx context.Context, f SearchFilters) ([]ItemView, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, apperrors.NewValidationError("minPrice must not exceed maxPrice")
	}

	pattern := searchPattern(f)
	query := strings.ToLower(strings.TrimSpace(f.Query))

	var views []ItemView
	err := s.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.Match(ctx, pattern)
		if err != nil {
			return err
		}
		kept := nodes[:0]
		for _, n := range nodes {
			if matchesQuery(n, query) && inPriceRange(n, f.MinPrice, f.MaxPrice) {
				kept = append(kept, n)
			}
		}
		views, err = s.hydrate(ctx, tx, kept)
		return err
	})
	if err != nil {
		return nil, s.fail("search", err)
	}

	sortNewestFirst(views)
	s.logger.Debug("Search completed",
		zap.String("query", query),
		zap.String("category", f.Category),
		zap.Strings("tags", f.Tags),
		zap.Int("results", len(views)))
	return views, nil
}

func searchPattern(f SearchFilters) graph.Pattern {
	p := graph.Pattern{Label: constants.LabelItem}
	if name := strings.TrimSpace(f.Category); name != "" {
		p.Rels = append(p.Rels, graph.RelPattern{
			Type:      constants.RelBelongsTo,
			Direction: graph.Outgoing,
			Label:     constants.LabelCategory,
			Props:     graph.Props{constants.PropName: name},
		})
	}
	seen := make(map[string]bool)
	for _, tag := range f.Tags {
		name := strings.TrimSpace(tag)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		p.Rels = append(p.Rels, graph.RelPattern{
			Type:      constants.RelHasTag,
			Direction: graph.Outgoing,
			Label:     constants.LabelTag,
			Props:     graph.Props{constants.PropName: name},
		})
	}
	return p
}

func matchesQuery(n graph.Node, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(n.Props.String(constants.PropName)), query) ||
		strings.Contains(strings.ToLower(n.Props.String(constants.PropDescription)), query)
}

func inPriceRange(n graph.Node, lo, hi *float64) bool {
	price := n.Props.Float64(constants.PropPrice)
	if lo != nil && price < *lo {
		return false
	}
	if hi != nil && price > *hi {
		return false
	}
	return true
}
