package store

import (
	"fmt"

	"bimbridge/internal/domain"
)

// Model is an immutable in-memory model built from a Fixture.
type Model struct {
	order    []*element
	byLocal  map[domain.LocalID]*element
	byUnique map[string]*element
	types    map[domain.LocalID]*typeObject
}

var _ domain.Model = (*Model)(nil)

// NewModel indexes the fixture. The fixture must not be modified afterwards.
func NewModel(f *Fixture) (*Model, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		byLocal:  make(map[domain.LocalID]*element, len(f.Elements)),
		byUnique: make(map[string]*element, len(f.Elements)),
		types:    make(map[domain.LocalID]*typeObject, len(f.Types)),
	}
	for i := range f.Types {
		t := &typeObject{spec: f.Types[i]}
		m.types[domain.LocalID(t.spec.LocalID)] = t
	}
	for i := range f.Elements {
		e := &element{spec: f.Elements[i], model: m}
		m.order = append(m.order, e)
		m.byLocal[e.LocalID()] = e
		if e.spec.UniqueID != "" {
			m.byUnique[e.spec.UniqueID] = e
		}
	}
	return m, nil
}

func (m *Model) LookupByUniqueID(uniqueID string) (domain.Element, bool) {
	e, ok := m.byUnique[uniqueID]
	if !ok {
		return nil, false
	}
	return e, true
}

func (m *Model) LookupByLocalID(id domain.LocalID) (domain.Element, bool) {
	e, ok := m.byLocal[id]
	if !ok {
		return nil, false
	}
	return e, true
}

// AllProducts returns every element in fixture order.
func (m *Model) AllProducts() ([]domain.Element, error) {
	out := make([]domain.Element, len(m.order))
	for i, e := range m.order {
		out[i] = e
	}
	return out, nil
}

// Len returns the number of elements.
func (m *Model) Len() int { return len(m.order) }

type element struct {
	spec  ElementSpec
	model *Model
}

func (e *element) Category() string { return e.spec.Category }

func (e *element) Name() (string, bool) { return e.spec.Name, e.spec.Name != "" }

func (e *element) LocalID() domain.LocalID { return domain.LocalID(e.spec.LocalID) }

func (e *element) UniqueID() (string, bool) { return e.spec.UniqueID, e.spec.UniqueID != "" }

func (e *element) IsSpatial() bool { return e.spec.Spatial }

func (e *element) PropertyDefinitions() ([]domain.PropertyDefinition, error) {
	return definitions(e.spec.PropertySets), nil
}

func (e *element) TypeDefinitions() ([]domain.TypeObject, error) {
	out := make([]domain.TypeObject, 0, len(e.spec.Types))
	for _, id := range e.spec.Types {
		t, ok := e.model.types[domain.LocalID(id)]
		if !ok {
			return out, domain.NewSubSystemError("store", "Element.TypeDefinitions", domain.ErrNotFound, fmt.Sprintf("type %d", id))
		}
		out = append(out, t)
	}
	return out, nil
}

func (e *element) ContainedIn() ([]domain.Entity, error) { return e.resolve("contained_in", e.spec.ContainedIn) }

func (e *element) Decomposes() ([]domain.Entity, error) { return e.resolve("decomposes", e.spec.Decomposes) }

func (e *element) NestedIn() ([]domain.Entity, error) { return e.resolve("nested_in", e.spec.NestedIn) }

func (e *element) resolve(relation string, ids []int64) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		target, ok := e.model.byLocal[domain.LocalID(id)]
		if !ok {
			return out, domain.NewSubSystemError("store", "Element.Relation", domain.ErrNotFound, fmt.Sprintf("%s target %d", relation, id))
		}
		out = append(out, target)
	}
	return out, nil
}

type typeObject struct {
	spec TypeSpec
}

func (t *typeObject) Category() string { return t.spec.Category }

func (t *typeObject) Name() (string, bool) { return t.spec.Name, t.spec.Name != "" }

func (t *typeObject) PropertyDefinitions() ([]domain.PropertyDefinition, error) {
	return definitions(t.spec.PropertySets), nil
}

func definitions(sets []PropertySetSpec) []domain.PropertyDefinition {
	out := make([]domain.PropertyDefinition, 0, len(sets))
	for _, s := range sets {
		kind := domain.DefinitionKind(s.Kind)
		if kind == "" {
			kind = domain.PropertySetKind
		}
		def := domain.PropertyDefinition{Kind: kind, Name: s.Name}
		for _, p := range s.Properties {
			def.Properties = append(def.Properties, domain.Property{
				Name:     p.Name,
				Value:    p.Value,
				HasValue: p.Value != nil,
			})
		}
		out = append(out, def)
	}
	return out
}
