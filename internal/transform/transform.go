package transform

import "fmt"

// Limits for the interactive controls. Positions are preview-pixel offsets
// from the mockup center; zoom is a percentage.
const (
	MinPosition = -150.0
	MaxPosition = 150.0
	MinZoom     = 10.0
	MaxZoom     = 300.0
	DefaultZoom = 100.0
)

// DefaultBackground is the shared background color for a fresh collection.
const DefaultBackground = "#FFFFFF"

// State holds one element's placement relative to the mockup preview.
// All numeric fields stay inside their limits after every mutation.
type State struct {
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	Rotation  float64 `json:"rotation"`
	Zoom      float64 `json:"zoom"`

	// Front controls whether the element draws above or below the mockup
	// image. LayerIndex orders elements among themselves, 0 = bottommost.
	Front      bool `json:"front"`
	LayerIndex int  `json:"layerIndex"`
}

// NewState returns the default placement: centered, unrotated, 100% zoom,
// drawn above the mockup.
func NewState() State {
	return State{Zoom: DefaultZoom, Front: true}
}

// ClampPosition limits a position offset to [MinPosition, MaxPosition].
func ClampPosition(v float64) float64 {
	if v < MinPosition {
		return MinPosition
	}
	if v > MaxPosition {
		return MaxPosition
	}
	return v
}

// ClampZoom limits a zoom percentage to [MinZoom, MaxZoom].
func ClampZoom(v float64) float64 {
	if v < MinZoom {
		return MinZoom
	}
	if v > MaxZoom {
		return MaxZoom
	}
	return v
}

// NormalizeRotation wraps a single rotation step back into [-180, 180].
// This is one-shot wraparound, not modular reduction: +90 from 170 yields
// -100, and callers never produce deltas larger than one full turn.
func NormalizeRotation(v float64) float64 {
	if v > 180 {
		return v - 360
	}
	if v < -180 {
		return v + 360
	}
	return v
}

// SetPosition sets both offsets, clamped.
func (s *State) SetPosition(x, y float64) {
	s.PositionX = ClampPosition(x)
	s.PositionY = ClampPosition(y)
}

// SetPositionX sets the horizontal offset, clamped.
func (s *State) SetPositionX(v float64) { s.PositionX = ClampPosition(v) }

// SetPositionY sets the vertical offset, clamped.
func (s *State) SetPositionY(v float64) { s.PositionY = ClampPosition(v) }

// SetRotation sets an absolute rotation, wrapped into [-180, 180].
func (s *State) SetRotation(v float64) { s.Rotation = NormalizeRotation(v) }

// RotateBy applies a rotation step and wraps the result.
func (s *State) RotateBy(delta float64) {
	s.Rotation = NormalizeRotation(s.Rotation + delta)
}

// SetZoom sets an absolute zoom percentage, clamped.
func (s *State) SetZoom(v float64) { s.Zoom = ClampZoom(v) }

// ZoomBy applies a zoom step and clamps the result.
func (s *State) ZoomBy(delta float64) { s.Zoom = ClampZoom(s.Zoom + delta) }

// Reset restores position, rotation and zoom to their defaults. Layer
// placement survives a reset; so does the collection's background color,
// which lives outside State.
func (s *State) Reset() {
	s.PositionX = 0
	s.PositionY = 0
	s.Rotation = 0
	s.Zoom = DefaultZoom
}

// CSSTransform renders the state as the preview's CSS transform value:
// translate outermost, scale innermost, so rotation and scale act about
// the element's own center after translation.
func (s State) CSSTransform() string {
	return fmt.Sprintf(
		"translate(calc(-50%% + %.2fpx), calc(-50%% + %.2fpx)) rotate(%.2fdeg) scale(%.4f)",
		s.PositionX, s.PositionY, s.Rotation, s.Zoom/100,
	)
}
