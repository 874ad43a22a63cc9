package graph

import (
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Value Normalization
// ============================================================================

// Normalize converts engine-specific scalar types into string, int64, float64 or bool.
// Unknown types are rendered with fmt so callers never see driver structs.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// NormalizeProps returns a normalized copy of props. Nil values are dropped.
func NormalizeProps(props map[string]interface{}) Props {
	out := make(Props, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = Normalize(v)
	}
	return out
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the string value at key, or "".
func (p Props) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Float64 returns the numeric value at key as float64, or 0.
func (p Props) Float64(key string) float64 {
	switch v := Normalize(p[key]).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Int64 returns the numeric value at key as int64, or 0.
func (p Props) Int64(key string) int64 {
	switch v := Normalize(p[key]).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// Keys returns the property keys in sorted order.
func (p Props) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// valuesEqual compares normalized values, treating int64 and float64 of equal magnitude as equal.
func valuesEqual(a, b interface{}) bool {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	}
	return a == b
}

// matchesProps reports whether props holds every key of want with an equal value.
func matchesProps(props, want Props) bool {
	for k, v := range want {
		got, ok := props[k]
		if !ok || !valuesEqual(got, v) {
			return false
		}
	}
	return true
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ID != nodes[j].ID {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Label < nodes[j].Label
	})
}

// SortEdges orders edges by type, then source, then target.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.From != b.From {
			return refLess(a.From, b.From)
		}
		return refLess(a.To, b.To)
	})
}

func refLess(a, b NodeRef) bool {
	if a.Label != b.Label {
		return a.Label < b.Label
	}
	return a.ID < b.ID
}

func typeAllowed(t string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Neo4j Record Helpers
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getNodeFromRecord(record *neo4j.Record, key string) (Node, bool) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return Node{}, false
	}
	n, ok := val.(neo4j.Node)
	if !ok {
		return Node{}, false
	}
	props := NormalizeProps(n.Props)
	label := ""
	if len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	return Node{Label: label, ID: props.String("id"), Props: props}, true
}
