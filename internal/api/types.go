package api

import (
	"encoding/json"
	"sort"
)

// --- API Response Envelope ---

type listEnvelope[T any] struct {
	Objects *[]T `json:"objects"`
}

// JSONMap handles opaque fields that may arrive as objects or as
// JSON-encoded strings.
type JSONMap map[string]any

func (j *JSONMap) UnmarshalJSON(data []byte) error {
	// Try as object first
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		*j = m
		return nil
	}
	// Try as string containing JSON
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "null" {
			*j = make(map[string]any)
			return nil
		}
		return json.Unmarshal([]byte(s), (*map[string]any)(j))
	}
	*j = make(map[string]any)
	return nil
}

// Keys returns the map keys in sorted order.
func (j JSONMap) Keys() []string {
	keys := make([]string, 0, len(j))
	for k := range j {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Talk ---

// Talk is a conference proposal owned by the server. Everything except the
// id and title is carried in Attrs and sent back untouched.
type Talk struct {
	ID    int     `json:"talk_id"`
	Title string  `json:"title"`
	Attrs JSONMap `json:"-"`
}

func (t *Talk) UnmarshalJSON(data []byte) error {
	var head struct {
		ID    int    `json:"talk_id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var attrs JSONMap
	if err := json.Unmarshal(data, &attrs); err != nil {
		return err
	}
	delete(attrs, "talk_id")
	delete(attrs, "title")
	if len(attrs) == 0 {
		attrs = nil
	}
	t.ID = head.ID
	t.Title = head.Title
	t.Attrs = attrs
	return nil
}

func (t Talk) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Attrs)+2)
	for k, v := range t.Attrs {
		out[k] = v
	}
	out["talk_id"] = t.ID
	out["title"] = t.Title
	return json.Marshal(out)
}

// --- Group ---

// Group is a thunderdome group as the server reports it.
type Group struct {
	Number  int    `json:"number"`
	Name    string `json:"name"`
	Decided *bool  `json:"decided,omitempty"`
}

// CreateGroupInput is the body of POST /api/groups.
type CreateGroupInput struct {
	Name  string `json:"name"`
	Talks []int  `json:"talks"`
}

// UpdateGroupInput is the body of PUT /api/groups/{n}. Nil fields are left
// alone by the server.
type UpdateGroupInput struct {
	Name  *string `json:"name,omitempty"`
	Talks []int   `json:"talks,omitempty"`
}
