// Package selection provides a headless selection applier that keeps the
// selection, the active element and the framed view in memory.
package selection

import (
	"slices"
	"sync"

	"bimbridge/internal/domain"
)

// ScenePredicate reports whether id has a visual counterpart in model.
type ScenePredicate func(model domain.Model, id domain.LocalID) bool

// PhysicalOnly accepts elements that exist in model and are not part of the
// spatial structure.
func PhysicalOnly(model domain.Model, id domain.LocalID) bool {
	if model == nil {
		return false
	}
	el, ok := model.LookupByLocalID(id)
	return ok && !el.IsSpatial()
}

// Set is an in-memory selection. Elements rejected by the scene predicate
// have no visual counterpart and cannot be selected.
type Set struct {
	mu        sync.Mutex
	inScene   ScenePredicate
	selected  []domain.LocalID
	active    domain.LocalID
	hasActive bool
	framed    []domain.LocalID
}

var (
	_ domain.SelectionApplier = (*Set)(nil)
	_ domain.ActiveSetter     = (*Set)(nil)
)

// NewSet creates an empty selection. A nil inScene accepts every element.
func NewSet(inScene ScenePredicate) *Set {
	if inScene == nil {
		inScene = func(domain.Model, domain.LocalID) bool { return true }
	}
	return &Set{inScene: inScene}
}

func (s *Set) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.hasActive = false
}

// SelectByLocalIDs adds ids to the selection, skipping duplicates, and
// returns the ids that are not in the scene. Every id is checked against the
// same model snapshot.
func (s *Set) SelectByLocalIDs(model domain.Model, ids []domain.LocalID) []domain.LocalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rejected []domain.LocalID
	for _, id := range ids {
		if !s.inScene(model, id) {
			rejected = append(rejected, id)
			continue
		}
		if !slices.Contains(s.selected, id) {
			s.selected = append(s.selected, id)
		}
	}
	return rejected
}

func (s *Set) CurrentSelection() []domain.LocalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selected)
}

// FrameSelection records the selection as the framed view. It fails when
// nothing is selected.
func (s *Set) FrameSelection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return domain.NewDomainError("Selection.FrameSelection", domain.ErrSelection, "nothing selected")
	}
	s.framed = slices.Clone(s.selected)
	return nil
}

// SetActive makes id the active element. Only selected elements can be
// active.
func (s *Set) SetActive(id domain.LocalID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.selected, id) {
		return false
	}
	s.active, s.hasActive = id, true
	return true
}

// Active returns the active element.
func (s *Set) Active() (domain.LocalID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.hasActive
}

// Framed returns the elements of the last successful frame.
func (s *Set) Framed() []domain.LocalID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.framed)
}
