package repository

import (
	"context"
	"encoding/json"
	"sort"

	"refdata/internal/model"
)

// ReferenceRepository defines data access for reference items using SQL queries only.
// No business logic here, strictly persistence operations.
type ReferenceRepository interface {
	// List returns one page of a resource's items matching c and the total matching rows.
	// A zero Limit returns every row from Offset on.
	List(ctx context.Context, resource string, c Criteria, pq PageQuery) (*PageResult[model.ReferenceItem], error)

	// FindByID returns an item by resource and GUID, or sql.ErrNoRows.
	FindByID(ctx context.Context, resource, id string) (*model.ReferenceItem, error)

	// PrivateProperties returns the property names (fixed fields or attributes) the data-privacy settings hide for resource.
	PrivateProperties(ctx context.Context, resource string) ([]string, error)
}

// Criteria holds exact-match filters. The keys "code" and "title" address columns,
// any other key addresses a top-level attribute.
type Criteria map[string]string

// Keys returns the criteria keys in a stable order.
func (c Criteria) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether item satisfies every filter in c.
func (c Criteria) Matches(item model.ReferenceItem) bool {
	for k, want := range c {
		var got string
		switch k {
		case "code":
			got = item.Code
		case "title":
			got = item.Title
		default:
			v, ok := attributeText(item.Attributes[k])
			if !ok {
				return false
			}
			got = v
		}
		if got != want {
			return false
		}
	}
	return true
}

// attributeText renders a scalar attribute the way Postgres' ->> operator
// renders a JSONB value: strings as-is, numbers and booleans as their JSON text.
// Missing, null and composite values never match.
func attributeText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool, float64, float32, int, int32, int64, json.Number:
	default:
		return "", false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
