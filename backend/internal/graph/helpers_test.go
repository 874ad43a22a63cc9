package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   interface{}
		want interface{}
	}{
		{int(3), int64(3)},
		{int8(-2), int64(-2)},
		{int32(7), int64(7)},
		{uint8(200), int64(200)},
		{uint64(9), int64(9)},
		{float32(1.5), float64(1.5)},
		{2.25, 2.25},
		{"x", "x"},
		{[]byte("raw"), "raw"},
		{true, true},
		{nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%#v)", tt.in)
	}
}

func TestProps_Accessors(t *testing.T) {
	p := NormalizeProps(map[string]interface{}{
		"name":  "Laptop",
		"price": int32(10),
		"stock": 4.0,
		"gone":  nil,
	})
	assert.NotContains(t, p, "gone")
	assert.Equal(t, "Laptop", p.String("name"))
	assert.Equal(t, "", p.String("price"))
	assert.Equal(t, 10.0, p.Float64("price"))
	assert.Equal(t, int64(4), p.Int64("stock"))
	assert.Equal(t, int64(0), p.Int64("missing"))
	assert.Equal(t, []string{"name", "price", "stock"}, p.Keys())
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int64(3), 3.0))
	assert.True(t, valuesEqual(uint8(3), int64(3)))
	assert.True(t, valuesEqual("a", "a"))
	assert.False(t, valuesEqual("3", int64(3)))
	assert.False(t, valuesEqual(3.5, int64(3)))
}

func TestSortEdges(t *testing.T) {
	a := NodeRef{Label: "Item", ID: "a"}
	b := NodeRef{Label: "Item", ID: "b"}
	tag := NodeRef{Label: "Tag", ID: "t"}
	edges := []Edge{
		{Type: "HAS_TAG", From: b, To: tag},
		{Type: "HAS_TAG", From: a, To: tag},
		{Type: "BELONGS_TO", From: b, To: tag},
	}
	SortEdges(edges)
	assert.Equal(t, []Edge{
		{Type: "BELONGS_TO", From: b, To: tag},
		{Type: "HAS_TAG", From: a, To: tag},
		{Type: "HAS_TAG", From: b, To: tag},
	}, edges)
}

func TestEdgeOther(t *testing.T) {
	a := NodeRef{Label: "Item", ID: "a"}
	tag := NodeRef{Label: "Tag", ID: "t"}
	e := Edge{Type: "HAS_TAG", From: a, To: tag}
	assert.Equal(t, tag, e.Other(a))
	assert.Equal(t, a, e.Other(tag))
}
