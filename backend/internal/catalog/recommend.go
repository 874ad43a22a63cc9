package catalog

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	"catalog-graph/backend/internal/graph"
	apperrors "catalog-graph/backend/pkg/errors"
)

type relatedCandidate struct {
	id           string
	sharedTags   int
	sameCategory bool
}

func (c relatedCandidate) score() int {
	score := c.sharedTags
	if c.sameCategory {
		score++
	}
	return score
}

func (c relatedCandidate) reasons() []string {
	reasons := make([]string, 0, 2)
	if c.sharedTags > 0 {
		reasons = append(reasons, constants.ReasonSharedTags)
	}
	if c.sameCategory {
		reasons = append(reasons, constants.ReasonSameCategory)
	}
	return reasons
}

// RelatedItems ranks other items by how many tags they share with id, plus one when
// they sit in the same category. Limit <= 0 uses the configured default.
func (s *Service) RelatedItems(ctx context.Context, id string, limit int) ([]RelatedItem, error) {
	if limit <= 0 {
		limit = s.relatedLimit
	}
	if limit > constants.MaxRelatedLimit {
		limit = constants.MaxRelatedLimit
	}

	var out []RelatedItem
	err := s.store.View(ctx, func(tx graph.Tx) error {
		source, err := graph.GetNode(ctx, tx, itemRef(id))
		if err != nil {
			return err
		}
		if source == nil {
			return apperrors.NewNotFound(constants.LabelItem, id)
		}

		ranked, err := rankRelated(ctx, tx, source.Ref())
		if err != nil {
			return err
		}
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}

		refs := make([]graph.NodeRef, 0, len(ranked))
		for _, c := range ranked {
			refs = append(refs, itemRef(c.id))
		}
		nodes, err := tx.Nodes(ctx, refs...)
		if err != nil {
			return err
		}
		views, err := s.hydrate(ctx, tx, nodes)
		if err != nil {
			return err
		}
		byID := make(map[string]ItemView, len(views))
		for _, v := range views {
			byID[v.ID] = v
		}

		out = make([]RelatedItem, 0, len(ranked))
		for _, c := range ranked {
			view, ok := byID[c.id]
			if !ok {
				continue
			}
			out = append(out, RelatedItem{Item: view, Score: c.score(), Reasons: c.reasons()})
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("related items", err)
	}

	s.logger.Debug("Related items ranked", zap.String("item_id", id), zap.Int("results", len(out)))
	return out, nil
}

// rankRelated walks source -> tag/category -> other items and scores every item reached.
func rankRelated(ctx context.Context, tx graph.Tx, source graph.NodeRef) ([]relatedCandidate, error) {
	hops, err := tx.Edges(ctx, []graph.NodeRef{source}, graph.Outgoing, constants.RelHasTag, constants.RelBelongsTo)
	if err != nil {
		return nil, err
	}
	if len(hops) == 0 {
		return nil, nil
	}

	hubs := make([]graph.NodeRef, 0, len(hops))
	for _, e := range hops {
		hubs = append(hubs, e.To)
	}
	back, err := tx.Edges(ctx, hubs, graph.Incoming, constants.RelHasTag, constants.RelBelongsTo)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*relatedCandidate)
	for _, e := range back {
		if e.From == source || e.From.Label != constants.LabelItem {
			continue
		}
		c, ok := byID[e.From.ID]
		if !ok {
			c = &relatedCandidate{id: e.From.ID}
			byID[e.From.ID] = c
		}
		switch e.Type {
		case constants.RelHasTag:
			// Edges are distinct, so each shared tag counts once.
			c.sharedTags++
		case constants.RelBelongsTo:
			c.sameCategory = true
		}
	}

	ranked := make([]relatedCandidate, 0, len(byID))
	for _, c := range byID {
		ranked = append(ranked, *c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if si, sj := ranked[i].score(), ranked[j].score(); si != sj {
			return si > sj
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked, nil
}
