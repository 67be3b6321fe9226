package domain

import (
	"bytes"
	"context"
	"encoding/json"
)

// LocalID is the session-scoped handle of an element in the open model.
// It may change across reloads.
type LocalID int64

// DefinitionKind distinguishes property sets from quantity sets.
type DefinitionKind string

const (
	PropertySetKind DefinitionKind = "property_set"
	QuantitySetKind DefinitionKind = "quantity_set"
)

// Property is one named entry of a property or quantity set.
// HasValue is false when the store could not resolve a scalar value.
type Property struct {
	Name     string
	Value    any
	HasValue bool
}

// PropertyDefinition is a named group of properties attached to an element
// or its type through a defines-properties relation.
type PropertyDefinition struct {
	Kind       DefinitionKind
	Name       string
	Properties []Property
}

// Entity is anything that renders as "<category>: <name>".
type Entity interface {
	Category() string
	// Name returns the display name, or false when the entity has none.
	Name() (string, bool)
}

// TypeObject is an element's type definition.
type TypeObject interface {
	Entity
	PropertyDefinitions() ([]PropertyDefinition, error)
}

// Element is the capability view the bridge needs of a model element.
// Relation accessors return targets in declaration order; callers that want
// a single target take the first. Each accessor fails independently.
type Element interface {
	Entity
	LocalID() LocalID
	// UniqueID returns the stable id, or false when the element has none.
	UniqueID() (string, bool)
	// IsSpatial reports whether the element is a spatial-structure element
	// (site, building, storey, space) rather than a physical one.
	IsSpatial() bool
	PropertyDefinitions() ([]PropertyDefinition, error)
	TypeDefinitions() ([]TypeObject, error)
	ContainedIn() ([]Entity, error)
	Decomposes() ([]Entity, error)
	NestedIn() ([]Entity, error)
}

// Model is a handle to the currently open model. It must only be used from
// the main context.
type Model interface {
	LookupByUniqueID(uniqueID string) (Element, bool)
	LookupByLocalID(id LocalID) (Element, bool)
	AllProducts() ([]Element, error)
}

// ModelStore opens the current model. It returns ErrModelNotFound when no
// model is loaded.
type ModelStore interface {
	OpenCurrentModel(ctx context.Context) (Model, error)
}

// SelectionApplier manipulates the visual selection. Main context only.
type SelectionApplier interface {
	ClearSelection()
	// SelectByLocalIDs adds the given elements of model to the selection and
	// returns the ids that could not be selected (no visual counterpart).
	SelectByLocalIDs(model Model, ids []LocalID) []LocalID
	CurrentSelection() []LocalID
	// FrameSelection fits the view to the selection. Failures are non-fatal.
	FrameSelection() error
}

// ActiveSetter is implemented by appliers that track an active element.
type ActiveSetter interface {
	SetActive(id LocalID) bool
}

// UnnamedElement is the display name used when an element has none.
const UnnamedElement = "Unnamed"

// ElementRecord is the flat, order-stable serialization of one element.
type ElementRecord struct {
	UniqueID         string  `json:"UniqueId"`
	ElementID        LocalID `json:"ElementId"`
	Category         string  `json:"Category"`
	Name             string  `json:"Name"`
	Parameters       Params  `json:"Parameters"`
	TypeParameters   Params  `json:"TypeParameters"`
	RelatingType     *string `json:"RelatingType"`
	SpatialContainer *string `json:"SpatialContainer"`
	Aggregates       *string `json:"Aggregates"`
	Nests            *string `json:"Nests"`
}

// Params is a "<group>.<key>" → scalar mapping that keeps insertion order.
// Setting an existing key overwrites the value in place.
type Params struct {
	keys   []string
	values map[string]any
}

// Set records key → value, keeping the first insertion position of key.
func (p *Params) Set(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (p Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of entries.
func (p Params) Len() int { return len(p.keys) }

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DisplayName renders an entity as "<category>: <name>".
func DisplayName(e Entity) string {
	name, ok := e.Name()
	if !ok || name == "" {
		name = UnnamedElement
	}
	return e.Category() + ": " + name
}
