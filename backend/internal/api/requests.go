package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
)

// itemRequest is the body of POST and PUT /api/items. Price and stock accept numbers or
// numeric strings; category and each tag accept a name or an {id, name} object.
type itemRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       json.RawMessage   `json:"price"`
	Stock       json.RawMessage   `json:"stock"`
	Category    json.RawMessage   `json:"category"`
	Tags        []json.RawMessage `json:"tags"`
}

type addTagRequest struct {
	TagID   string `json:"tagId"`
	TagName string `json:"tagName"`
}

type searchRequest struct {
	Query    string          `json:"query"`
	Category string          `json:"category"`
	Tags     []string        `json:"tags"`
	MinPrice json.RawMessage `json:"minPrice"`
	MaxPrice json.RawMessage `json:"maxPrice"`
}

// input converts the request into service input. Values that cannot be read as numbers
// are reported together with a missing name, the way the service reports them.
func (r itemRequest) input() (catalog.ItemInput, error) {
	in := catalog.ItemInput{Name: r.Name, Description: r.Description}
	var problems []string

	price, ok := parseFloat(r.Price)
	if !ok || (price != nil && *price < 0) {
		problems = append(problems, "Price must be a positive number")
	}
	in.Price = price

	stock, ok := parseInt(r.Stock)
	if !ok || (stock != nil && *stock < 0) {
		problems = append(problems, "Stock must be a positive integer")
	}
	in.Stock = stock

	if len(problems) > 0 {
		if strings.TrimSpace(r.Name) == "" {
			problems = append([]string{"Name is required"}, problems...)
		}
		return in, apperrors.NewValidationError(problems...)
	}
	return in, nil
}

func (r itemRequest) category() (*catalog.Ref, error) {
	return parseRef(constants.LabelCategory, r.Category)
}

func (r itemRequest) tags() ([]catalog.Ref, error) {
	refs := make([]catalog.Ref, 0, len(r.Tags))
	for _, raw := range r.Tags {
		ref, err := parseRef(constants.LabelTag, raw)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			return nil, apperrors.NewValidationError("Tag name is required")
		}
		refs = append(refs, *ref)
	}
	return refs, nil
}

func (r searchRequest) filters() catalog.SearchFilters {
	f := catalog.SearchFilters{Query: r.Query, Category: r.Category, Tags: r.Tags}
	// Unreadable bounds are ignored rather than rejected.
	if v, ok := parseFloat(r.MinPrice); ok {
		f.MinPrice = v
	}
	if v, ok := parseFloat(r.MaxPrice); ok {
		f.MaxPrice = v
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseFloat reads a JSON number or numeric string. Absent or null yields nil, true.
func parseFloat(raw json.RawMessage) (*float64, bool) {
	if isNull(raw) {
		return nil, true
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}

// parseInt reads a whole JSON number or an integer string. Absent or null yields nil, true.
// A JSON number counts by value, so 12.0 and 1e2 are whole; a string must be digits.
func parseInt(raw json.RawMessage) (*int64, bool) {
	if isNull(raw) {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, true
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return &v, true
	}

	text := string(bytes.TrimSpace(raw))
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &v, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	v := int64(f)
	return &v, true
}

// parseRef reads a category or tag reference. Absent, null or an empty name yields nil.
func parseRef(label string, raw json.RawMessage) (*catalog.Ref, error) {
	if isNull(raw) {
		return nil, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if strings.TrimSpace(name) == "" {
			return nil, nil
		}
		return &catalog.Ref{Name: name}, nil
	}
	var ref catalog.Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, apperrors.NewValidationError(label + " must be a name or an object with id and name")
	}
	return &ref, nil
}
