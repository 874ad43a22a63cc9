package catalog

// ItemInput carries the caller-supplied item fields. Nil price or stock means 0.
type ItemInput struct {
	Name        string   `json:"name" validate:"notblank"`
	Description string   `json:"description"`
	Price       *float64 `json:"price" validate:"omitnil,gte=0,finite"`
	Stock       *int64   `json:"stock" validate:"omitnil,gte=0"`
}

// Ref points at a Category or Tag. A non-blank Name merges by name; an ID alone must exist.
type Ref struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Category groups items. Each item belongs to at most one.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag labels items. An item may carry many.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemView is an item with its category and tags resolved.
type ItemView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int64     `json:"stock"`
	CreatedAt   string    `json:"createdAt"`
	UpdatedAt   string    `json:"updatedAt"`
	Category    *Category `json:"category"`
	Tags        []Tag     `json:"tags"`
}

// CategoryCount is a category with the number of items in it.
type CategoryCount struct {
	Category
	ItemCount int `json:"itemCount"`
}

// TagCount is a tag with the number of items carrying it.
type TagCount struct {
	Tag
	ItemCount int `json:"itemCount"`
}

// RelatedItem is a recommendation with its relevance score and the reasons behind it.
type RelatedItem struct {
	Item    ItemView `json:"item"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// PathNode is one node on a path.
type PathNode struct {
	Label      string                 `json:"label"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
}

// PathRelationship is one hop on a path, in its stored direction.
type PathRelationship struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// PathResult is the outcome of a shortest path search.
type PathResult struct {
	Found         bool               `json:"found"`
	PathLength    int                `json:"pathLength"`
	Nodes         []PathNode         `json:"nodes"`
	Relationships []PathRelationship `json:"relationships"`
	Message       string             `json:"message,omitempty"`
}

// SearchFilters narrows a search. Zero values disable a filter.
type SearchFilters struct {
	Query    string   `json:"query"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	MinPrice *float64 `json:"minPrice"`
	MaxPrice *float64 `json:"maxPrice"`
}
