// Package store provides the reference model stores: an in-memory model
// built from a YAML fixture, a SQLite-backed store that persists fixtures,
// and a circuit breaker wrapper for any store.
package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bimbridge/internal/domain"
)

// Fixture is the portable description of a model. Relations reference other
// entries by local id, in declaration order.
type Fixture struct {
	Elements []ElementSpec `yaml:"elements" json:"elements"`
	Types    []TypeSpec    `yaml:"types,omitempty" json:"types,omitempty"`
}

// ElementSpec describes one element.
type ElementSpec struct {
	LocalID      int64             `yaml:"local_id" json:"local_id"`
	UniqueID     string            `yaml:"unique_id,omitempty" json:"unique_id,omitempty"`
	Category     string            `yaml:"category" json:"category"`
	Name         string            `yaml:"name,omitempty" json:"name,omitempty"`
	Spatial      bool              `yaml:"spatial,omitempty" json:"spatial,omitempty"`
	PropertySets []PropertySetSpec `yaml:"property_sets,omitempty" json:"property_sets,omitempty"`
	Types        []int64           `yaml:"types,omitempty" json:"types,omitempty"`
	ContainedIn  []int64           `yaml:"contained_in,omitempty" json:"contained_in,omitempty"`
	Decomposes   []int64           `yaml:"decomposes,omitempty" json:"decomposes,omitempty"`
	NestedIn     []int64           `yaml:"nested_in,omitempty" json:"nested_in,omitempty"`
}

// TypeSpec describes one type object.
type TypeSpec struct {
	LocalID      int64             `yaml:"local_id" json:"local_id"`
	Category     string            `yaml:"category" json:"category"`
	Name         string            `yaml:"name,omitempty" json:"name,omitempty"`
	PropertySets []PropertySetSpec `yaml:"property_sets,omitempty" json:"property_sets,omitempty"`
}

// PropertySetSpec is a property or quantity set. Kind defaults to
// property_set.
type PropertySetSpec struct {
	Name       string         `yaml:"name" json:"name"`
	Kind       string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Properties []PropertySpec `yaml:"properties" json:"properties"`
}

// PropertySpec is one property. A missing or null value is unresolved.
type PropertySpec struct {
	Name  string `yaml:"name" json:"name"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// LoadFixture reads and validates a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.NewDomainError("Store.ParseFixture", domain.ErrInvalidInput, err.Error())
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate rejects fixtures with duplicate ids or unknown set kinds.
// Dangling relation targets are allowed; they surface as lookup failures.
func (f *Fixture) Validate() error {
	local := make(map[int64]bool, len(f.Elements)+len(f.Types))
	unique := make(map[string]bool, len(f.Elements))

	for _, e := range f.Elements {
		if local[e.LocalID] {
			return domain.NewDomainError("Store.Validate", domain.ErrInvalidInput, fmt.Sprintf("duplicate local_id %d", e.LocalID))
		}
		local[e.LocalID] = true
		if e.UniqueID != "" {
			if unique[e.UniqueID] {
				return domain.NewDomainError("Store.Validate", domain.ErrInvalidInput, "duplicate unique_id "+e.UniqueID)
			}
			unique[e.UniqueID] = true
		}
		if e.Category == "" {
			return domain.NewDomainError("Store.Validate", domain.ErrInvalidInput, fmt.Sprintf("element %d has no category", e.LocalID))
		}
		if err := validateSets(e.PropertySets); err != nil {
			return err
		}
	}
	for _, t := range f.Types {
		if local[t.LocalID] {
			return domain.NewDomainError("Store.Validate", domain.ErrInvalidInput, fmt.Sprintf("duplicate local_id %d", t.LocalID))
		}
		local[t.LocalID] = true
		if err := validateSets(t.PropertySets); err != nil {
			return err
		}
	}
	return nil
}

func validateSets(sets []PropertySetSpec) error {
	for _, s := range sets {
		switch domain.DefinitionKind(s.Kind) {
		case "", domain.PropertySetKind, domain.QuantitySetKind:
		default:
			return domain.NewDomainError("Store.Validate", domain.ErrInvalidInput, fmt.Sprintf("set %q has unknown kind %q", s.Name, s.Kind))
		}
	}
	return nil
}
