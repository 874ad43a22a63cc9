package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	"catalog-graph/backend/internal/graph"
	apperrors "catalog-graph/backend/pkg/errors"
)

func itemRef(id string) graph.NodeRef {
	return graph.NodeRef{Label: constants.LabelItem, ID: id}
}

// ============================================================================
// Item Operations
// ============================================================================

// CreateItem validates the input, creates the item and links its category and tags
// in one unit of work.
func (s *Service) CreateItem(ctx context.Context, in ItemInput, category *Ref, tags []Ref) (*ItemView, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := checkRefs(category, tags); err != nil {
		return nil, err
	}

	id := s.newID()
	ts := s.timestamp()
	props := itemProps(in)
	props[constants.PropCreatedAt] = ts
	props[constants.PropUpdatedAt] = ts

	var view *ItemView
	err := s.store.Update(ctx, func(tx graph.Tx) error {
		node := graph.Node{Label: constants.LabelItem, ID: id, Props: props}
		if err := tx.Create(ctx, node); err != nil {
			return err
		}
		if category != nil {
			if err := s.attachCategory(ctx, tx, id, *category); err != nil {
				return err
			}
		}
		for _, ref := range tags {
			if _, err := s.attachTag(ctx, tx, id, ref); err != nil {
				return err
			}
		}
		var err error
		view, err = s.loadItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("create item", err)
	}

	if s.metrics != nil {
		s.metrics.ItemsCreated.Inc()
	}
	s.logger.Info("Item created", zap.String("item_id", id), zap.Int("tags", len(view.Tags)))
	return view, nil
}

// GetItem returns one item with its category and tags.
func (s *Service) GetItem(ctx context.Context, id string) (*ItemView, error) {
	var view *ItemView
	err := s.store.View(ctx, func(tx graph.Tx) error {
		var err error
		view, err = s.loadItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("get item", err)
	}
	return view, nil
}

// ListItems returns every item, newest first.
func (s *Service) ListItems(ctx context.Context) ([]ItemView, error) {
	var views []ItemView
	err := s.store.View(ctx, func(tx graph.Tx) error {
		nodes, err := tx.Match(ctx, graph.Pattern{Label: constants.LabelItem})
		if err != nil {
			return err
		}
		views, err = s.hydrate(ctx, tx, nodes)
		return err
	})
	if err != nil {
		return nil, s.fail("list items", err)
	}
	sortNewestFirst(views)
	return views, nil
}

// UpdateItem replaces the item's fields. A nil price or stock resets it to 0. When
// category is given, the old BELONGS_TO is replaced in the same unit of work.
func (s *Service) UpdateItem(ctx context.Context, id string, in ItemInput, category *Ref) (*ItemView, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := checkRefs(category, nil); err != nil {
		return nil, err
	}

	props := itemProps(in)
	props[constants.PropUpdatedAt] = s.timestamp()

	var view *ItemView
	err := s.store.Update(ctx, func(tx graph.Tx) error {
		node, err := tx.Set(ctx, itemRef(id), props)
		if err != nil {
			return err
		}
		if node == nil {
			return apperrors.NewNotFound(constants.LabelItem, id)
		}
		if category != nil {
			from := itemRef(id)
			if _, err := tx.DeleteEdges(ctx, graph.EdgeFilter{Type: constants.RelBelongsTo, From: &from}); err != nil {
				return err
			}
			if err := s.attachCategory(ctx, tx, id, *category); err != nil {
				return err
			}
		}
		view, err = s.loadItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("update item", err)
	}

	s.logger.Info("Item updated", zap.String("item_id", id))
	return view, nil
}

// DeleteItem removes the item and its relationships. Categories and tags stay.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(tx graph.Tx) error {
		deleted, err := tx.DetachDelete(ctx, itemRef(id))
		if err != nil {
			return err
		}
		if !deleted {
			return apperrors.NewNotFound(constants.LabelItem, id)
		}
		return nil
	})
	if err != nil {
		return s.fail("delete item", err)
	}

	if s.metrics != nil {
		s.metrics.ItemsDeleted.Inc()
	}
	s.logger.Info("Item deleted", zap.String("item_id", id))
	return nil
}

// AddTag links a tag to the item, creating the tag by name if needed. Idempotent.
func (s *Service) AddTag(ctx context.Context, itemID string, ref Ref) (*Tag, error) {
	if err := checkRef(constants.LabelTag, ref); err != nil {
		return nil, err
	}

	var tag *Tag
	err := s.store.Update(ctx, func(tx graph.Tx) error {
		item, err := graph.GetNode(ctx, tx, itemRef(itemID))
		if err != nil {
			return err
		}
		if item == nil {
			return apperrors.NewNotFound(constants.LabelItem, itemID)
		}
		tag, err = s.attachTag(ctx, tx, itemID, ref)
		return err
	})
	if err != nil {
		return nil, s.fail("add tag", err)
	}

	s.logger.Debug("Tag added", zap.String("item_id", itemID), zap.String("tag_id", tag.ID))
	return tag, nil
}

// RemoveTag unlinks a tag from the item. Removing an absent link is not an error.
func (s *Service) RemoveTag(ctx context.Context, itemID, tagID string) error {
	err := s.store.Update(ctx, func(tx graph.Tx) error {
		from := itemRef(itemID)
		to := graph.NodeRef{Label: constants.LabelTag, ID: tagID}
		_, err := tx.DeleteEdges(ctx, graph.EdgeFilter{Type: constants.RelHasTag, From: &from, To: &to})
		return err
	})
	if err != nil {
		return s.fail("remove tag", err)
	}
	return nil
}

// ============================================================================
// Category and Tag Listings
// ============================================================================

// ListCategories returns every category with its item count, ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	var out []CategoryCount
	err := s.store.View(ctx, func(tx graph.Tx) error {
		nodes, counts, err := countIncoming(ctx, tx, constants.LabelCategory, constants.RelBelongsTo)
		if err != nil {
			return err
		}
		out = make([]CategoryCount, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, CategoryCount{
				Category:  Category{ID: n.ID, Name: n.Props.String(constants.PropName)},
				ItemCount: counts[n.ID],
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("list categories", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return nameLess(out[i].Name, out[i].ID, out[j].Name, out[j].ID)
	})
	return out, nil
}

// ListTags returns every tag with its item count, ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]TagCount, error) {
	var out []TagCount
	err := s.store.View(ctx, func(tx graph.Tx) error {
		nodes, counts, err := countIncoming(ctx, tx, constants.LabelTag, constants.RelHasTag)
		if err != nil {
			return err
		}
		out = make([]TagCount, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, TagCount{
				Tag:       Tag{ID: n.ID, Name: n.Props.String(constants.PropName)},
				ItemCount: counts[n.ID],
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("list tags", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return nameLess(out[i].Name, out[i].ID, out[j].Name, out[j].ID)
	})
	return out, nil
}

// countIncoming returns every node of label and how many items point at each over relType.
func countIncoming(ctx context.Context, tx graph.Tx, label, relType string) ([]graph.Node, map[string]int, error) {
	nodes, err := tx.Match(ctx, graph.Pattern{Label: label})
	if err != nil {
		return nil, nil, err
	}
	refs := make([]graph.NodeRef, 0, len(nodes))
	for _, n := range nodes {
		refs = append(refs, n.Ref())
	}
	counts := make(map[string]int, len(nodes))
	if len(refs) == 0 {
		return nodes, counts, nil
	}
	edges, err := tx.Edges(ctx, refs, graph.Incoming, relType)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range edges {
		if e.To.Label == label && e.From.Label == constants.LabelItem {
			counts[e.To.ID]++
		}
	}
	return nodes, counts, nil
}

// ============================================================================
// Helpers
// ============================================================================

func itemProps(in ItemInput) graph.Props {
	price := 0.0
	if in.Price != nil {
		price = *in.Price
	}
	var stock int64
	if in.Stock != nil {
		stock = *in.Stock
	}
	return graph.Props{
		constants.PropName:        strings.TrimSpace(in.Name),
		constants.PropDescription: in.Description,
		constants.PropPrice:       price,
		constants.PropStock:       stock,
	}
}

func refProblem(label string, ref Ref) string {
	if strings.TrimSpace(ref.Name) == "" && strings.TrimSpace(ref.ID) == "" {
		return fmt.Sprintf("%s name is required", label)
	}
	return ""
}

func checkRef(label string, ref Ref) error {
	if problem := refProblem(label, ref); problem != "" {
		return apperrors.NewValidationError(problem)
	}
	return nil
}

func checkRefs(category *Ref, tags []Ref) error {
	var problems []string
	if category != nil {
		if p := refProblem(constants.LabelCategory, *category); p != "" {
			problems = append(problems, p)
		}
	}
	for _, ref := range tags {
		if p := refProblem(constants.LabelTag, ref); p != "" {
			problems = append(problems, p)
			break
		}
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(problems...)
	}
	return nil
}

// resolve finds or creates the node a Ref points at. A name merges; a bare id must exist.
func (s *Service) resolve(ctx context.Context, tx graph.Tx, label string, ref Ref) (graph.Node, error) {
	name := strings.TrimSpace(ref.Name)
	id := strings.TrimSpace(ref.ID)
	if name != "" {
		if id == "" {
			id = s.newID()
		}
		return tx.Merge(ctx, label, constants.PropName, name, graph.Props{constants.PropID: id})
	}
	node, err := graph.GetNode(ctx, tx, graph.NodeRef{Label: label, ID: id})
	if err != nil {
		return graph.Node{}, err
	}
	if node == nil {
		return graph.Node{}, apperrors.NewNotFound(label, id)
	}
	return *node, nil
}

func (s *Service) attachCategory(ctx context.Context, tx graph.Tx, itemID string, ref Ref) error {
	cat, err := s.resolve(ctx, tx, constants.LabelCategory, ref)
	if err != nil {
		return err
	}
	_, err = tx.MergeEdge(ctx, graph.Edge{Type: constants.RelBelongsTo, From: itemRef(itemID), To: cat.Ref()})
	return err
}

func (s *Service) attachTag(ctx context.Context, tx graph.Tx, itemID string, ref Ref) (*Tag, error) {
	node, err := s.resolve(ctx, tx, constants.LabelTag, ref)
	if err != nil {
		return nil, err
	}
	if _, err := tx.MergeEdge(ctx, graph.Edge{Type: constants.RelHasTag, From: itemRef(itemID), To: node.Ref()}); err != nil {
		return nil, err
	}
	return &Tag{ID: node.ID, Name: node.Props.String(constants.PropName)}, nil
}

func (s *Service) loadItem(ctx context.Context, tx graph.Tx, id string) (*ItemView, error) {
	node, err := graph.GetNode(ctx, tx, itemRef(id))
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, apperrors.NewNotFound(constants.LabelItem, id)
	}
	views, err := s.hydrate(ctx, tx, []graph.Node{*node})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// hydrate resolves categories and tags for a batch of items with two store round trips.
func (s *Service) hydrate(ctx context.Context, tx graph.Tx, items []graph.Node) ([]ItemView, error) {
	if len(items) == 0 {
		return []ItemView{}, nil
	}
	refs := make([]graph.NodeRef, 0, len(items))
	for _, n := range items {
		refs = append(refs, n.Ref())
	}
	edges, err := tx.Edges(ctx, refs, graph.Outgoing, constants.RelBelongsTo, constants.RelHasTag)
	if err != nil {
		return nil, err
	}

	var targets []graph.NodeRef
	seen := make(map[graph.NodeRef]bool)
	for _, e := range edges {
		if !seen[e.To] {
			seen[e.To] = true
			targets = append(targets, e.To)
		}
	}
	linked, err := tx.Nodes(ctx, targets...)
	if err != nil {
		return nil, err
	}
	byRef := make(map[graph.NodeRef]graph.Node, len(linked))
	for _, n := range linked {
		byRef[n.Ref()] = n
	}

	categories := make(map[string][]Category)
	tags := make(map[string][]Tag)
	for _, e := range edges {
		target, ok := byRef[e.To]
		if !ok {
			continue
		}
		name := target.Props.String(constants.PropName)
		switch e.Type {
		case constants.RelBelongsTo:
			categories[e.From.ID] = append(categories[e.From.ID], Category{ID: target.ID, Name: name})
		case constants.RelHasTag:
			tags[e.From.ID] = append(tags[e.From.ID], Tag{ID: target.ID, Name: name})
		}
	}

	views := make([]ItemView, 0, len(items))
	for _, n := range items {
		view := ItemView{
			ID:          n.ID,
			Name:        n.Props.String(constants.PropName),
			Description: n.Props.String(constants.PropDescription),
			Price:       n.Props.Float64(constants.PropPrice),
			Stock:       n.Props.Int64(constants.PropStock),
			CreatedAt:   n.Props.String(constants.PropCreatedAt),
			UpdatedAt:   n.Props.String(constants.PropUpdatedAt),
			Tags:        tags[n.ID],
		}
		switch cats := categories[n.ID]; len(cats) {
		case 0:
		case 1:
			view.Category = &cats[0]
		default:
			return nil, apperrors.NewIntegrityViolation(
				fmt.Sprintf("item %s belongs to %d categories", n.ID, len(cats)), nil)
		}
		if view.Tags == nil {
			view.Tags = []Tag{}
		}
		sort.Slice(view.Tags, func(i, j int) bool {
			return nameLess(view.Tags[i].Name, view.Tags[i].ID, view.Tags[j].Name, view.Tags[j].ID)
		})
		views = append(views, view)
	}
	return views, nil
}

func nameLess(nameA, idA, nameB, idB string) bool {
	if nameA != nameB {
		return nameA < nameB
	}
	return idA < idB
}

func sortNewestFirst(views []ItemView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			return views[i].CreatedAt > views[j].CreatedAt
		}
		return views[i].ID < views[j].ID
	})
}

// fail logs integrity violations and unexpected failures before handing err back.
func (s *Service) fail(op string, err error) error {
	switch {
	case apperrors.IsValidation(err), apperrors.IsNotFound(err):
	case apperrors.IsIntegrity(err):
		s.logger.Error("Integrity violation", zap.String("operation", op), zap.Error(err))
	default:
		s.logger.Warn("Operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}
