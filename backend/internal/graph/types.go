package graph

// Props is a property map. Values are normalized to string, int64, float64 or bool.
type Props map[string]interface{}

// NodeRef identifies a node by label and id.
type NodeRef struct {
	Label string
	ID    string
}

// Node is a labelled node. Props always carries the "id" key.
type Node struct {
	Label string
	ID    string
	Props Props
}

// Ref returns the node's identity.
func (n Node) Ref() NodeRef {
	return NodeRef{Label: n.Label, ID: n.ID}
}

// Edge is a typed, directed relationship. Two edges are the same relationship when all fields match.
type Edge struct {
	Type string
	From NodeRef
	To   NodeRef
}

// Other returns the endpoint of e that is not ref.
func (e Edge) Other(ref NodeRef) NodeRef {
	if e.From == ref {
		return e.To
	}
	return e.From
}

// EdgeFilter selects edges for deletion. Nil endpoints match anything.
type EdgeFilter struct {
	Type string
	From *NodeRef
	To   *NodeRef
}

// Direction of traversal relative to the anchor node.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return "both"
	}
}

// Pattern matches nodes of Label whose properties equal Props and that satisfy every RelPattern.
type Pattern struct {
	Label string
	Props Props
	Rels  []RelPattern
}

// RelPattern requires at least one neighbour reached over Type in Direction, carrying Label and Props.
// Each RelPattern is checked independently.
type RelPattern struct {
	Type      string
	Direction Direction
	Label     string
	Props     Props
}
