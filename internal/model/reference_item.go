package model

import (
	"encoding/json"
	"fmt"
)

// ReferenceItem is one entry of an EEDM reference resource.
// It is a pure domain model with no database-specific dependencies or tags.
// Resource-specific properties live in Attributes and are flattened next to the
// fixed fields when encoded.
type ReferenceItem struct {
	ID          string
	Code        string
	Title       string
	Description string
	Attributes  map[string]any
}

var reservedKeys = map[string]struct{}{
	"id": {}, "code": {}, "title": {}, "description": {},
}

// MarshalJSON writes the fixed fields and every non-reserved attribute as one object.
func (r ReferenceItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attributes)+4)
	for k, v := range r.Attributes {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	out["id"] = r.ID
	if r.Code != "" {
		out["code"] = r.Code
	}
	if r.Title != "" {
		out["title"] = r.Title
	}
	if r.Description != "" {
		out["description"] = r.Description
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown keys land in Attributes.
func (r *ReferenceItem) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ReferenceItem{}
	for k, v := range raw {
		field := r.fixedField(k)
		if field == nil {
			if r.Attributes == nil {
				r.Attributes = make(map[string]any)
			}
			r.Attributes[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("reference item: %s must be a string, got %T", k, v)
		}
		*field = s
	}
	return nil
}

func (r *ReferenceItem) fixedField(k string) *string {
	switch k {
	case "id":
		return &r.ID
	case "code":
		return &r.Code
	case "title":
		return &r.Title
	case "description":
		return &r.Description
	}
	return nil
}

// Without returns a copy of r with the named properties removed and reports
// whether anything was dropped. Keys may name attributes or the fixed fields
// code, title and description; id is never removed. The receiver is not modified.
func (r ReferenceItem) Without(keys []string) (ReferenceItem, bool) {
	if len(keys) == 0 {
		return r, false
	}
	var attrs map[string]any
	if len(r.Attributes) > 0 {
		attrs = make(map[string]any, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
	}
	dropped := false
	for _, k := range keys {
		if k == "id" {
			continue
		}
		if field := r.fixedField(k); field != nil {
			if *field != "" {
				*field = ""
				dropped = true
			}
			continue
		}
		if _, ok := attrs[k]; ok {
			delete(attrs, k)
			dropped = true
		}
	}
	r.Attributes = attrs
	return r, dropped
}
