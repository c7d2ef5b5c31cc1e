package normcache

import (
	"fmt"
	"maps"
)

// Entity is a typed record mirrored between the backend and the cache.
type Entity struct {
	TypeTag    string         `json:"__typename"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Identity returns the normalized cache key of e.
func (e Entity) Identity() (Identity, error) {
	return Identify(e.TypeTag, e.ID)
}

// Attr returns the attribute stored under name.
func (e Entity) Attr(name string) (any, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// String returns the attribute stored under name formatted as a string.
// Missing and nil attributes yield "".
func (e Entity) String(name string) string {
	v, ok := e.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a copy of e that shares no attribute map with it.
func (e Entity) Clone() Entity {
	out := Entity{TypeTag: e.TypeTag, ID: e.ID}
	if e.Attributes != nil {
		out.Attributes = maps.Clone(e.Attributes)
	}
	return out
}

// merge overlays incoming attributes on e. Attributes absent from incoming survive.
func (e Entity) merge(incoming Entity) Entity {
	out := e.Clone()
	if len(incoming.Attributes) == 0 {
		return out
	}
	if out.Attributes == nil {
		out.Attributes = make(map[string]any, len(incoming.Attributes))
	}
	for k, v := range incoming.Attributes {
		out.Attributes[k] = v
	}
	return out
}
