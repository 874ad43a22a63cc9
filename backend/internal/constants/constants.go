package constants

// Node labels
const (
	LabelItem     = "Item"
	LabelCategory = "Category"
	LabelTag      = "Tag"
)

// Relationship types
const (
	// RelBelongsTo links an Item to its single Category
	RelBelongsTo = "BELONGS_TO"
	// RelHasTag links an Item to each of its Tags
	RelHasTag = "HAS_TAG"
)

// Property keys shared by every layer
const (
	PropID          = "id"
	PropName        = "name"
	PropDescription = "description"
	PropPrice       = "price"
	PropStock       = "stock"
	PropCreatedAt   = "createdAt"
	PropUpdatedAt   = "updatedAt"
)

// Recommendation and traversal bounds
const (
	DefaultRelatedLimit = 10
	MaxRelatedLimit     = 100
	// DefaultMaxPathDepth bounds shortest path searches on large graphs
	DefaultMaxPathDepth = 15
)

// Relevance reasons, in the order they are reported
const (
	ReasonSharedTags   = "shared tags"
	ReasonSameCategory = "same category"
)

// TimestampLayout renders UTC instants as fixed-width ISO-8601 with milliseconds, so
// lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// UniqueKeys lists the properties, besides id, that identify a node of each label.
var UniqueKeys = map[string][]string{
	LabelCategory: {PropName},
	LabelTag:      {PropName},
}
