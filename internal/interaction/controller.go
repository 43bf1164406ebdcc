// Package interaction translates pointer and control input into transform
// mutations on the active element. Every path funnels through the element
// store's ApplyTransformDelta so clamping and persistence happen in exactly
// one place.
package interaction

import (
	"sync"

	"github.com/rs/zerolog"

	"caseforge/internal/element"
)

// Step sizes for the rotate and zoom buttons.
const (
	RotateStep = 90.0
	ZoomStep   = 10.0
)

// ControlState mirrors the active element's transform for the on-screen
// controls. Zero values with HasActive false mean the collection is empty.
type ControlState struct {
	HasActive  bool    `json:"hasActive"`
	Index      int     `json:"index"`
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	PositionX  float64 `json:"positionX"`
	PositionY  float64 `json:"positionY"`
	Rotation   float64 `json:"rotation"`
	Zoom       float64 `json:"zoom"`
	Front      bool    `json:"front"`
	LayerIndex int     `json:"layerIndex"`
	Background string  `json:"background"`
	CSS        string  `json:"css"`
	Dragging   bool    `json:"dragging"`
}

// Controller owns one drag session at a time against an element store.
type Controller struct {
	store *element.Store
	log   zerolog.Logger

	mu       sync.Mutex
	dragging bool
	startX   float64
	startY   float64
	baseX    float64
	baseY    float64
}

// NewController wires a controller to its element store.
func NewController(store *element.Store, log zerolog.Logger) *Controller {
	return &Controller{store: store, log: log}
}

// PressAt begins a drag session at pointer coordinates (x, y). It captures
// the active element's position as the drag base and reports whether a drag
// actually started; with no active element there is nothing to drag.
func (c *Controller) PressAt(x, y float64) bool {
	e, _, ok := c.store.Active()
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = true
	c.startX, c.startY = x, y
	c.baseX, c.baseY = e.Transform.PositionX, e.Transform.PositionY
	return true
}

// MoveTo updates the active element's position to base + pointer delta while
// a drag is in progress. Moves outside a drag session are ignored.
func (c *Controller) MoveTo(x, y float64) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}
	nx := c.baseX + (x - c.startX)
	ny := c.baseY + (y - c.startY)
	c.mu.Unlock()

	if err := c.store.ApplyTransformDelta(element.DeltaPositionX, nx); err != nil {
		c.log.Debug().Err(err).Msg("drag move dropped")
		return
	}
	if err := c.store.ApplyTransformDelta(element.DeltaPositionY, ny); err != nil {
		c.log.Debug().Err(err).Msg("drag move dropped")
	}
}

// Release ends the drag session. Safe to call when no drag is active.
func (c *Controller) Release() {
	c.mu.Lock()
	c.dragging = false
	c.mu.Unlock()
}

// IsDragging reports whether a drag session is in progress.
func (c *Controller) IsDragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// RotateBy steps the active element's rotation by delta degrees, wrapping
// once past either end of [-180, 180].
func (c *Controller) RotateBy(delta float64) error {
	e, _, ok := c.store.Active()
	if !ok {
		return element.ErrNoActive
	}
	return c.store.ApplyTransformDelta(element.DeltaRotation, e.Transform.Rotation+delta)
}

// ZoomBy steps the active element's zoom by delta percent points.
func (c *Controller) ZoomBy(delta float64) error {
	e, _, ok := c.store.Active()
	if !ok {
		return element.ErrNoActive
	}
	return c.store.ApplyTransformDelta(element.DeltaZoom, e.Transform.Zoom+delta)
}

// SetRotation applies an absolute slider value.
func (c *Controller) SetRotation(v float64) error {
	return c.store.ApplyTransformDelta(element.DeltaRotation, v)
}

// SetZoom applies an absolute slider value.
func (c *Controller) SetZoom(v float64) error {
	return c.store.ApplyTransformDelta(element.DeltaZoom, v)
}

// SetPosition applies absolute position slider values.
func (c *Controller) SetPosition(x, y float64) error {
	if err := c.store.ApplyTransformDelta(element.DeltaPositionX, x); err != nil {
		return err
	}
	return c.store.ApplyTransformDelta(element.DeltaPositionY, y)
}

// Select makes another element active and cancels any drag in progress, so
// a stale base position can never leak onto the newly selected element.
func (c *Controller) Select(index int) {
	c.Release()
	c.store.SetActive(index)
}

// Reset restores the active element's position, rotation and zoom.
func (c *Controller) Reset() error {
	c.Release()
	return c.store.ResetActiveTransform()
}

// State snapshots the controls for the active element. After a selection
// change the UI repopulates from this, never from cached values.
func (c *Controller) State() ControlState {
	e, idx, ok := c.store.Active()
	if !ok {
		return ControlState{Index: element.NoActive, Background: c.store.Background()}
	}
	return ControlState{
		HasActive:  true,
		Index:      idx,
		ID:         e.ID,
		Name:       e.Name,
		PositionX:  e.Transform.PositionX,
		PositionY:  e.Transform.PositionY,
		Rotation:   e.Transform.Rotation,
		Zoom:       e.Transform.Zoom,
		Front:      e.Transform.Front,
		LayerIndex: e.Transform.LayerIndex,
		Background: c.store.Background(),
		CSS:        e.Transform.CSSTransform(),
		Dragging:   c.IsDragging(),
	}
}
