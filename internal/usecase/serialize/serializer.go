// Package serialize flattens model elements into ElementRecords.
package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"bimbridge/internal/domain"
)

// Serializer builds ElementRecords from model elements. A failing attribute
// never drops the element: the failure is logged and the field keeps its
// zero value.
type Serializer struct {
	logger *slog.Logger
}

// New creates a Serializer.
func New(logger *slog.Logger) *Serializer {
	return &Serializer{logger: logger}
}

// Records serializes every product of model that has a stable id, in the
// model's product order.
func (s *Serializer) Records(model domain.Model) ([]domain.ElementRecord, error) {
	products, err := model.AllProducts()
	if err != nil {
		return nil, domain.WrapOp("Serializer.Records", err)
	}

	records := make([]domain.ElementRecord, 0, len(products))
	skipped := 0
	for _, el := range products {
		rec, ok := s.Record(el)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		s.logger.Debug("skipped products without unique id", "count", skipped)
	}
	return records, nil
}

// Record serializes a single element. It returns false when the element has
// no stable id.
func (s *Serializer) Record(el domain.Element) (domain.ElementRecord, bool) {
	uid, ok := el.UniqueID()
	if !ok || uid == "" {
		return domain.ElementRecord{}, false
	}

	rec := domain.ElementRecord{
		UniqueID:  uid,
		ElementID: el.LocalID(),
		Category:  el.Category(),
		Name:      domain.UnnamedElement,
	}
	if name, ok := el.Name(); ok && name != "" {
		rec.Name = name
	}

	var defs []domain.PropertyDefinition
	s.guard(uid, "property_sets", func() error {
		var err error
		defs, err = el.PropertyDefinitions()
		if err != nil {
			return err
		}
		copyDefinitions(&rec.Parameters, defs, domain.PropertySetKind)
		return nil
	})

	if !el.IsSpatial() {
		s.guard(uid, "quantity_sets", func() error {
			copyDefinitions(&rec.Parameters, defs, domain.QuantitySetKind)
			return nil
		})
		s.guard(uid, "type", func() error {
			types, err := el.TypeDefinitions()
			if len(types) == 0 || types[0] == nil {
				return err
			}
			typ := types[0]
			rec.RelatingType = display(typ)
			typeDefs, defsErr := typ.PropertyDefinitions()
			if defsErr != nil {
				return errors.Join(err, fmt.Errorf("type properties: %w", defsErr))
			}
			copyDefinitions(&rec.TypeParameters, typeDefs, domain.PropertySetKind)
			return err
		})
		s.guard(uid, "spatial_container", func() error {
			return first(el.ContainedIn, &rec.SpatialContainer)
		})
	}

	s.guard(uid, "aggregates", func() error {
		return first(el.Decomposes, &rec.Aggregates)
	})
	s.guard(uid, "nests", func() error {
		return first(el.NestedIn, &rec.Nests)
	})

	return rec, true
}

// guard runs one serialization step, converting errors and panics into a
// logged warning.
func (s *Serializer) guard(uid, attribute string, step func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("element attribute unreadable",
				"unique_id", uid,
				"attribute", attribute,
				"error", domain.NewDomainError("Serializer.Record", domain.ErrSerialization, fmt.Sprint(r)),
			)
		}
	}()
	if err := step(); err != nil {
		s.logger.Warn("element attribute unreadable",
			"unique_id", uid,
			"attribute", attribute,
			"error", domain.NewDomainError("Serializer.Record", domain.ErrSerialization, err.Error()),
		)
	}
}

// first stores the display string of the earliest-declared relation target.
// A target resolved before the accessor failed is still used; the error is
// returned for logging either way.
func first(relations func() ([]domain.Entity, error), dst **string) error {
	targets, err := relations()
	if len(targets) > 0 && targets[0] != nil {
		*dst = display(targets[0])
	}
	return err
}

func display(e domain.Entity) *string {
	s := domain.DisplayName(e)
	return &s
}

// copyDefinitions records every resolvable scalar of the definitions of the
// given kind as "<set>.<property>".
func copyDefinitions(dst *domain.Params, defs []domain.PropertyDefinition, kind domain.DefinitionKind) {
	for _, def := range defs {
		if def.Kind != kind {
			continue
		}
		for _, prop := range def.Properties {
			if !prop.HasValue {
				continue
			}
			v, ok := scalar(prop.Value)
			if !ok {
				continue
			}
			dst.Set(def.Name+"."+prop.Name, v)
		}
	}
}

// scalar reports whether v is a JSON scalar and normalizes it.
func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, true
	case float32:
		return scalar(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return x, true
	default:
		return nil, false
	}
}

// Marshal encodes each record as its own JSON document, preserving order.
func Marshal(records []domain.ElementRecord) ([]string, error) {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, domain.NewDomainError("Serializer.Marshal", domain.ErrSerialization, rec.UniqueID)
		}
		out = append(out, string(data))
	}
	return out, nil
}
