package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceItem_MarshalJSON(t *testing.T) {
	item := ReferenceItem{
		ID:    "7a2bf6b5-cdcd-4c8f-b5d8-3053bf5b3fbc",
		Code:  "ATH",
		Title: "Athletes",
		Attributes: map[string]any{
			"cohortType": "athletic",
			"id":         "must-not-win",
		},
	}

	b, err := json.Marshal(item)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, item.ID, got["id"])
	assert.Equal(t, "ATH", got["code"])
	assert.Equal(t, "Athletes", got["title"])
	assert.Equal(t, "athletic", got["cohortType"])
	assert.NotContains(t, got, "description")
}

func TestReferenceItem_UnmarshalJSON(t *testing.T) {
	var item ReferenceItem
	err := json.Unmarshal([]byte(`{"id":"g1","code":"C","title":"T","description":"D","status":"active"}`), &item)
	require.NoError(t, err)

	assert.Equal(t, "g1", item.ID)
	assert.Equal(t, "C", item.Code)
	assert.Equal(t, "T", item.Title)
	assert.Equal(t, "D", item.Description)
	assert.Equal(t, map[string]any{"status": "active"}, item.Attributes)
}

func TestReferenceItem_Without(t *testing.T) {
	item := ReferenceItem{ID: "g1", Attributes: map[string]any{"a": 1, "b": 2}}

	stripped, dropped := item.Without([]string{"a", "missing"})
	assert.True(t, dropped)
	assert.Equal(t, map[string]any{"b": 2}, stripped.Attributes)
	assert.Len(t, item.Attributes, 2)

	same, dropped := item.Without([]string{"zzz"})
	assert.False(t, dropped)
	assert.Len(t, same.Attributes, 2)

	_, dropped = item.Without(nil)
	assert.False(t, dropped)
}

func TestReferenceItem_UnmarshalJSONRejectsNonStringFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "numeric code", body: `{"id":"g1","code":7,"title":"T"}`},
		{name: "null title", body: `{"id":"g1","title":null}`},
		{name: "object description", body: `{"id":"g1","description":{"en":"D"}}`},
		{name: "bool id", body: `{"id":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item ReferenceItem
			assert.Error(t, json.Unmarshal([]byte(tt.body), &item))
		})
	}
}

func TestReferenceItem_WithoutFixedFields(t *testing.T) {
	item := ReferenceItem{
		ID:          "g1",
		Code:        "ATH",
		Title:       "Athletes",
		Description: "secret",
		Attributes:  map[string]any{"status": "active"},
	}

	tests := []struct {
		name        string
		keys        []string
		wantDropped bool
		wantJSON    string
	}{
		{
			name:        "description",
			keys:        []string{"description"},
			wantDropped: true,
			wantJSON:    `{"code":"ATH","id":"g1","status":"active","title":"Athletes"}`,
		},
		{
			name:        "code and title",
			keys:        []string{"code", "title"},
			wantDropped: true,
			wantJSON:    `{"description":"secret","id":"g1","status":"active"}`,
		},
		{
			name:        "id is kept",
			keys:        []string{"id"},
			wantDropped: false,
			wantJSON:    `{"code":"ATH","description":"secret","id":"g1","status":"active","title":"Athletes"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stripped, dropped := item.Without(tt.keys)
			assert.Equal(t, tt.wantDropped, dropped)

			b, err := json.Marshal(stripped)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantJSON, string(b))
		})
	}

	assert.Equal(t, "secret", item.Description)

	_, dropped := ReferenceItem{ID: "g2", Code: "X"}.Without([]string{"description"})
	assert.False(t, dropped, "an already empty field is not reported")
}
