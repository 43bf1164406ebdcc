package element

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caseforge/internal/mockup"
	"caseforge/internal/transform"
)

// NoActive is the active-index sentinel for an empty collection.
const NoActive = -1

// ErrNoActive is returned when a mutation needs an active element and the
// collection is empty.
var ErrNoActive = errors.New("element: no active element")

// ErrOutOfRange is returned for an element index outside the collection.
var ErrOutOfRange = errors.New("element: index out of range")

// Persistence stores element collections keyed by mockup id. Implemented by
// the disk store; remote failures are non-fatal to the in-memory model.
type Persistence interface {
	SaveElements(ctx context.Context, mockupID int, c Collection) error
	LoadElements(ctx context.Context, mockupID int) (Collection, error)
	DeleteElements(ctx context.Context, mockupID int) error
}

// DeltaKind names the transform field a UI change targets.
type DeltaKind string

const (
	DeltaRotation  DeltaKind = "rotation"
	DeltaZoom      DeltaKind = "zoom"
	DeltaPositionX DeltaKind = "positionX"
	DeltaPositionY DeltaKind = "positionY"
)

// Direction of a layer move in stacking order.
type Direction string

const (
	LayerUp   Direction = "up"
	LayerDown Direction = "down"
)

// Store owns the ordered element collection for the active mockup: identity
// assignment, stacking order, active-element selection and persistence. It
// observes a mockup.Selector so switching templates saves under the old id
// before anything else happens (write-then-switch).
type Store struct {
	persistence Persistence
	saver       *saver
	log         zerolog.Logger

	mu         sync.Mutex
	elements   []Element
	background string
	active     int
	nextID     int
	mockupID   int // NoActive until the first template is selected
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	saveDelay time.Duration
}

// WithSaveDelay overrides the persistence debounce window.
func WithSaveDelay(d time.Duration) Option {
	return func(o *storeOptions) { o.saveDelay = d }
}

// NewStore creates an empty store persisting through p.
func NewStore(p Persistence, log zerolog.Logger, opts ...Option) *Store {
	o := storeOptions{saveDelay: DefaultSaveDelay}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		persistence: p,
		log:         log,
		background:  transform.DefaultBackground,
		active:      NoActive,
		nextID:      1,
		mockupID:    NoActive,
	}
	s.saver = newSaver(o.saveDelay, s.persistNow)
	return s
}

var _ mockup.Observer = (*Store)(nil)

// MockupChanging persists the current elements under the outgoing template
// id before the selector switches, so in-flight edits cannot be lost.
func (s *Store) MockupChanging(prevID int) {
	s.mu.Lock()
	hasElements := len(s.elements) > 0
	snapshot := s.collectionLocked()
	s.mu.Unlock()

	if prevID == NoActive || !hasElements {
		return
	}
	s.saver.Cancel(prevID)
	if err := s.persistence.SaveElements(context.Background(), prevID, snapshot); err != nil {
		s.log.Warn().Err(err).Int("mockup", prevID).Msg("element save before switch failed")
	}
}

// MockupChanged resolves the collection for the incoming template: a
// non-empty in-memory collection travels with the user and is persisted
// under the new id immediately; an empty one is replaced by whatever was
// saved for the new template, if anything.
func (s *Store) MockupChanged(t mockup.Template) {
	s.mu.Lock()
	s.mockupID = t.ID

	if len(s.elements) > 0 {
		snapshot := s.collectionLocked()
		s.clampActiveLocked()
		s.mu.Unlock()
		if err := s.persistence.SaveElements(context.Background(), t.ID, snapshot); err != nil {
			s.log.Warn().Err(err).Int("mockup", t.ID).Msg("element carry-over save failed")
		}
		return
	}

	s.mu.Unlock()
	col, err := s.persistence.LoadElements(context.Background(), t.ID)
	if err != nil {
		// Nothing saved (or the load failed): stay empty rather than block.
		col = NewCollection()
	}
	col.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = col.Elements
	s.background = col.Background
	for _, e := range s.elements {
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	s.clampActiveLocked()
}

// AddElement appends a new top-of-stack element for the given source and
// makes it active.
func (s *Store) AddElement(source string) Element {
	s.mu.Lock()
	tr := transform.NewState()
	tr.LayerIndex = len(s.elements)
	e := Element{
		ID:        s.nextID,
		Source:    source,
		Name:      fmt.Sprintf("Element %d", len(s.elements)+1),
		Transform: tr,
	}
	s.nextID++
	s.elements = append(s.elements, e)
	s.active = len(s.elements) - 1
	id := s.mockupID
	s.mu.Unlock()

	s.requestSave(id)
	return e
}

// DeleteElement removes the element at index, keeps the layer indices a
// dense permutation and re-aims the active pointer at the same logical
// element where possible.
func (s *Store) DeleteElement(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.elements) {
		s.mu.Unlock()
		return fmt.Errorf("element: delete %d: %w", index, ErrOutOfRange)
	}
	s.elements = append(s.elements[:index], s.elements[index+1:]...)
	renormalizeLayers(s.elements)

	switch {
	case len(s.elements) == 0:
		s.active = NoActive
	case index == s.active:
		if index > len(s.elements)-1 {
			s.active = len(s.elements) - 1
		} else {
			s.active = index
		}
	case index < s.active:
		s.active--
	}
	id := s.mockupID
	s.mu.Unlock()

	s.requestSave(id)
	return nil
}

// Clear removes every element and resets the active pointer.
func (s *Store) Clear() {
	s.mu.Lock()
	s.elements = nil
	s.active = NoActive
	id := s.mockupID
	s.mu.Unlock()
	s.requestSave(id)
}

// MoveLayer swaps the element at index with its neighbor in stacking order
// (which need not be adjacent in the underlying slice). Moves past either
// boundary are no-ops.
func (s *Store) MoveLayer(index int, dir Direction) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.elements) {
		s.mu.Unlock()
		return fmt.Errorf("element: move %d: %w", index, ErrOutOfRange)
	}

	cur := s.elements[index].Transform.LayerIndex
	target := cur + 1
	if dir == LayerDown {
		target = cur - 1
	}

	moved := false
	if target >= 0 && target < len(s.elements) {
		for i := range s.elements {
			if s.elements[i].Transform.LayerIndex == target {
				s.elements[i].Transform.LayerIndex = cur
				s.elements[index].Transform.LayerIndex = target
				moved = true
				break
			}
		}
	}
	id := s.mockupID
	s.mu.Unlock()

	if moved {
		s.requestSave(id)
	}
	return nil
}

// SetActive points the store at another element. Out-of-range and no-change
// calls are no-ops.
func (s *Store) SetActive(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.elements) || index == s.active {
		return
	}
	s.active = index
}

// Active returns the active element and its index, or ok=false when the
// collection is empty.
func (s *Store) Active() (Element, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == NoActive {
		return Element{}, NoActive, false
	}
	return s.elements[s.active], s.active, true
}

// ApplyTransformDelta routes a UI-originated absolute value onto the active
// element's transform, applying that field's clamp or wrap rule. This is the
// single mutation entry point for sliders, step buttons and drags alike.
func (s *Store) ApplyTransformDelta(kind DeltaKind, value float64) error {
	s.mu.Lock()
	if s.active == NoActive {
		s.mu.Unlock()
		return ErrNoActive
	}
	tr := &s.elements[s.active].Transform
	switch kind {
	case DeltaRotation:
		tr.SetRotation(value)
	case DeltaZoom:
		tr.SetZoom(value)
	case DeltaPositionX:
		tr.SetPositionX(value)
	case DeltaPositionY:
		tr.SetPositionY(value)
	default:
		s.mu.Unlock()
		return fmt.Errorf("element: unknown delta kind %q", kind)
	}
	id := s.mockupID
	s.mu.Unlock()

	s.requestSave(id)
	return nil
}

// ResetActiveTransform restores the active element's position, rotation and
// zoom. Background and layer placement are untouched.
func (s *Store) ResetActiveTransform() error {
	s.mu.Lock()
	if s.active == NoActive {
		s.mu.Unlock()
		return ErrNoActive
	}
	s.elements[s.active].Transform.Reset()
	id := s.mockupID
	s.mu.Unlock()

	s.requestSave(id)
	return nil
}

// SetBackground changes the shared background color.
func (s *Store) SetBackground(hex string) error {
	if !ValidBackground(hex) {
		return fmt.Errorf("element: invalid background color %q", hex)
	}
	s.mu.Lock()
	s.background = hex
	id := s.mockupID
	s.mu.Unlock()
	s.requestSave(id)
	return nil
}

// Background returns the shared background color.
func (s *Store) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// Count returns the number of elements.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}

// ActiveIndex returns the active element index, NoActive when empty.
func (s *Store) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Collection returns a snapshot of the elements and background.
func (s *Store) Collection() Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionLocked()
}

// Restore replaces the in-memory collection wholesale, repairing anything out
// of range. Used when a render request arrives with client-held state.
func (s *Store) Restore(col Collection) {
	col.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = col.Elements
	s.background = col.Background
	for _, e := range s.elements {
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	s.clampActiveLocked()
}

// Flush persists the current collection for the active mockup immediately.
// This is the page-exit beacon equivalent; it also runs on shutdown.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	id := s.mockupID
	snapshot := s.collectionLocked()
	s.mu.Unlock()

	if id == NoActive {
		return nil
	}
	s.saver.Cancel(id)
	if err := s.persistence.SaveElements(ctx, id, snapshot); err != nil {
		return fmt.Errorf("element: flush mockup %d: %w", id, err)
	}
	return nil
}

// Close stops the debounce timers without persisting.
func (s *Store) Close() {
	s.saver.Stop()
}

func (s *Store) collectionLocked() Collection {
	elems := make([]Element, len(s.elements))
	copy(elems, s.elements)
	return Collection{Elements: elems, Background: s.background}
}

func (s *Store) clampActiveLocked() {
	if len(s.elements) == 0 {
		s.active = NoActive
	} else {
		s.active = 0
	}
}

func (s *Store) requestSave(id int) {
	if id == NoActive {
		return
	}
	s.saver.Request(id)
}

// persistNow is the saver callback; failures are logged and the in-memory
// state stays authoritative.
func (s *Store) persistNow(id int) {
	s.mu.Lock()
	snapshot := s.collectionLocked()
	s.mu.Unlock()

	if err := s.persistence.SaveElements(context.Background(), id, snapshot); err != nil {
		s.log.Warn().Err(err).Int("mockup", id).Msg("element save failed")
	}
}
