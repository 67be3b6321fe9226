package serialize

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bimbridge/internal/domain"
)

type entity struct {
	category string
	name     string
}

func (e entity) Category() string { return e.category }
func (e entity) Name() (string, bool) { return e.name, e.name != "" }

type typeObject struct {
	entity
	defs []domain.PropertyDefinition
	err  error
}

func (t typeObject) PropertyDefinitions() ([]domain.PropertyDefinition, error) { return t.defs, t.err }

type element struct {
	entity
	id        domain.LocalID
	uid       string
	spatial   bool
	defs      []domain.PropertyDefinition
	defsErr   error
	types     []domain.TypeObject
	typesErr  error
	container []domain.Entity
	relErr    error
	aggregate []domain.Entity
	nests     []domain.Entity
	panicNest bool
}

func (e *element) LocalID() domain.LocalID { return e.id }
func (e *element) UniqueID() (string, bool) { return e.uid, e.uid != "" }
func (e *element) IsSpatial() bool { return e.spatial }
func (e *element) PropertyDefinitions() ([]domain.PropertyDefinition, error) {
	return e.defs, e.defsErr
}
func (e *element) TypeDefinitions() ([]domain.TypeObject, error) { return e.types, e.typesErr }
func (e *element) ContainedIn() ([]domain.Entity, error) { return e.container, e.relErr }
func (e *element) Decomposes() ([]domain.Entity, error) { return e.aggregate, e.relErr }
func (e *element) NestedIn() ([]domain.Entity, error) {
	if e.panicNest {
		panic("broken nesting relation")
	}
	return e.nests, nil
}

type model struct {
	products []domain.Element
	err      error
}

func (m model) LookupByUniqueID(string) (domain.Element, bool) { return nil, false }
func (m model) LookupByLocalID(domain.LocalID) (domain.Element, bool) { return nil, false }
func (m model) AllProducts() ([]domain.Element, error) { return m.products, m.err }

func newTestSerializer() *Serializer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func wall() *element {
	return &element{
		entity: entity{"IfcWall", "Basic Wall"},
		id:     42,
		uid:    "2O2Fr$t4X7Zf8NOew3FLOH",
		defs: []domain.PropertyDefinition{
			{Kind: domain.PropertySetKind, Name: "Pset_WallCommon", Properties: []domain.Property{
				{Name: "IsExternal", Value: true, HasValue: true},
				{Name: "FireRating", Value: "REI60", HasValue: true},
				{Name: "AcousticRating", HasValue: false},
			}},
			{Kind: domain.QuantitySetKind, Name: "BaseQuantities", Properties: []domain.Property{
				{Name: "Width", Value: 0.2, HasValue: true},
			}},
		},
		types: []domain.TypeObject{
			typeObject{
				entity: entity{"IfcWallType", "Basic Wall:Generic 200"},
				defs: []domain.PropertyDefinition{
					{Kind: domain.PropertySetKind, Name: "Pset_WallCommon", Properties: []domain.Property{
						{Name: "LoadBearing", Value: false, HasValue: true},
					}},
				},
			},
			typeObject{entity: entity{"IfcWallType", "Ignored"}},
		},
		container: []domain.Entity{entity{"IfcBuildingStorey", "Level 1"}, entity{"IfcBuildingStorey", "Level 2"}},
		aggregate: []domain.Entity{entity{"IfcElementAssembly", ""}},
	}
}

func TestRecordPhysicalElement(t *testing.T) {
	rec, ok := newTestSerializer().Record(wall())
	require.True(t, ok)

	assert.Equal(t, "2O2Fr$t4X7Zf8NOew3FLOH", rec.UniqueID)
	assert.Equal(t, domain.LocalID(42), rec.ElementID)
	assert.Equal(t, "IfcWall", rec.Category)
	assert.Equal(t, "Basic Wall", rec.Name)
	assert.Equal(t, []string{
		"Pset_WallCommon.IsExternal",
		"Pset_WallCommon.FireRating",
		"BaseQuantities.Width",
	}, rec.Parameters.Keys())
	assert.Equal(t, []string{"Pset_WallCommon.LoadBearing"}, rec.TypeParameters.Keys())

	require.NotNil(t, rec.RelatingType)
	assert.Equal(t, "IfcWallType: Basic Wall:Generic 200", *rec.RelatingType)
	require.NotNil(t, rec.SpatialContainer)
	assert.Equal(t, "IfcBuildingStorey: Level 1", *rec.SpatialContainer)
	require.NotNil(t, rec.Aggregates)
	assert.Equal(t, "IfcElementAssembly: Unnamed", *rec.Aggregates)
	assert.Nil(t, rec.Nests)
}

func TestRecordSpatialElementSkipsPhysicalSteps(t *testing.T) {
	el := wall()
	el.entity = entity{"IfcBuildingStorey", "Level 1"}
	el.spatial = true

	rec, ok := newTestSerializer().Record(el)
	require.True(t, ok)

	assert.Equal(t, []string{"Pset_WallCommon.IsExternal", "Pset_WallCommon.FireRating"}, rec.Parameters.Keys())
	assert.Zero(t, rec.TypeParameters.Len())
	assert.Nil(t, rec.RelatingType)
	assert.Nil(t, rec.SpatialContainer)
	require.NotNil(t, rec.Aggregates)
}

func TestRecordWithoutUniqueID(t *testing.T) {
	el := wall()
	el.uid = ""
	_, ok := newTestSerializer().Record(el)
	assert.False(t, ok)
}

func TestRecordUnnamed(t *testing.T) {
	el := wall()
	el.name = ""
	rec, ok := newTestSerializer().Record(el)
	require.True(t, ok)
	assert.Equal(t, domain.UnnamedElement, rec.Name)
}

func TestRecordSurvivesFailingSteps(t *testing.T) {
	el := wall()
	el.defsErr = errors.New("property relation unreadable")
	el.panicNest = true
	el.types = []domain.TypeObject{typeObject{
		entity: entity{"IfcWallType", "Broken"},
		err:    errors.New("type psets unreadable"),
	}}

	rec, ok := newTestSerializer().Record(el)
	require.True(t, ok)

	assert.Zero(t, rec.Parameters.Len())
	assert.Zero(t, rec.TypeParameters.Len())
	require.NotNil(t, rec.RelatingType)
	assert.Equal(t, "IfcWallType: Broken", *rec.RelatingType)
	require.NotNil(t, rec.SpatialContainer)
	assert.Nil(t, rec.Nests)
}

func TestRecordKeepsFirstTargetDespiteLaterFailure(t *testing.T) {
	el := wall()
	el.container = []domain.Entity{entity{"IfcBuildingStorey", "Level 1"}}
	el.aggregate = []domain.Entity{entity{"IfcCurtainWall", "CW-1"}}
	el.relErr = errors.New("target 77: not found")
	el.types = []domain.TypeObject{typeObject{entity: entity{"IfcWallType", "Generic"}}}
	el.typesErr = errors.New("type 88: not found")

	rec, ok := newTestSerializer().Record(el)
	require.True(t, ok)

	require.NotNil(t, rec.SpatialContainer)
	assert.Equal(t, "IfcBuildingStorey: Level 1", *rec.SpatialContainer)
	require.NotNil(t, rec.Aggregates)
	assert.Equal(t, "IfcCurtainWall: CW-1", *rec.Aggregates)
	require.NotNil(t, rec.RelatingType)
	assert.Equal(t, "IfcWallType: Generic", *rec.RelatingType)
}

func TestRecordSkipsNonScalarValues(t *testing.T) {
	el := wall()
	el.defs = []domain.PropertyDefinition{
		{Kind: domain.PropertySetKind, Name: "Pset", Properties: []domain.Property{
			{Name: "List", Value: []int{1, 2}, HasValue: true},
			{Name: "NaN", Value: math.NaN(), HasValue: true},
			{Name: "Nil", Value: nil, HasValue: true},
			{Name: "Height", Value: float32(2.5), HasValue: true},
			{Name: "Count", Value: 3, HasValue: true},
		}},
	}
	rec, ok := newTestSerializer().Record(el)
	require.True(t, ok)
	assert.Equal(t, []string{"Pset.Height", "Pset.Count"}, rec.Parameters.Keys())
	v, _ := rec.Parameters.Get("Pset.Height")
	assert.Equal(t, 2.5, v)
}

func TestRecordsKeepsModelOrder(t *testing.T) {
	first := wall()
	anonymous := wall()
	anonymous.uid = ""
	second := wall()
	second.uid = "3cUkl32yn9qRSPvBJVyWYp"
	second.id = 43

	records, err := newTestSerializer().Records(model{products: []domain.Element{first, anonymous, second}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2O2Fr$t4X7Zf8NOew3FLOH", records[0].UniqueID)
	assert.Equal(t, "3cUkl32yn9qRSPvBJVyWYp", records[1].UniqueID)
}

func TestRecordsPropagatesEnumerationError(t *testing.T) {
	_, err := newTestSerializer().Records(model{err: domain.ErrModelUnavailable})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestMarshal(t *testing.T) {
	rec, ok := newTestSerializer().Record(wall())
	require.True(t, ok)

	docs, err := Marshal([]domain.ElementRecord{rec})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], `"UniqueId":"2O2Fr$t4X7Zf8NOew3FLOH"`)
	assert.Contains(t, docs[0], `"Parameters":{"Pset_WallCommon.IsExternal":true,"Pset_WallCommon.FireRating":"REI60","BaseQuantities.Width":0.2}`)
	assert.Contains(t, docs[0], `"Nests":null`)
}
